package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	root := t.TempDir()
	ws, err := NewWorkspace(filepath.Join(root, "tmp"), filepath.Join(root, "downloads"))
	require.NoError(t, err)
	return ws
}

func TestWorkspaceAcquireAndCleanup(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t)

	dir, cleanup, err := ws.Acquire("j1")
	require.NoError(t, err)
	require.DirExists(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.mp4.part"), []byte("x"), 0o644))

	cleanup()
	assert.NoDirExists(t, dir)
}

func TestWorkspaceFinalizeMovesArtifacts(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t)

	dir, cleanup, err := ws.Acquire("j1")
	require.NoError(t, err)
	defer cleanup()

	src := filepath.Join(dir, "video.mp4")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	result, err := ws.Finalize("j1", []string{src})
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "video.mp4", result.Files[0].Name)
	assert.FileExists(t, result.Files[0].Path)
	assert.NoFileExists(t, src)
	assert.Equal(t, filepath.Dir(result.Files[0].Path), result.FolderPath)
	assert.Equal(t, "/api/jobs/j1/files/video.mp4/link", result.Files[0].URL)
	assert.Equal(t, result.Files[0].URL, result.DownloadURL)
}

func TestWorkspaceFinalizeKeepsSameNamedOutputsApart(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t)

	dirA, cleanupA, err := ws.Acquire("j1")
	require.NoError(t, err)
	defer cleanupA()
	dirB, cleanupB, err := ws.Acquire("j1")
	require.NoError(t, err)
	defer cleanupB()

	srcA := filepath.Join(dirA, "track.mp3")
	srcB := filepath.Join(dirB, "track.mp3")
	require.NoError(t, os.WriteFile(srcA, []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(srcB, []byte("second"), 0o644))

	result, err := ws.Finalize("j1", []string{srcA, srcB})
	require.NoError(t, err)
	require.Len(t, result.Files, 2)
	assert.Equal(t, "track.mp3", result.Files[0].Name)
	assert.Equal(t, "track-1.mp3", result.Files[1].Name)

	first, err := os.ReadFile(result.Files[0].Path)
	require.NoError(t, err)
	second, err := os.ReadFile(result.Files[1].Path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(first))
	assert.Equal(t, "second", string(second))
}

func TestWorkspaceFinalizeRequiresFiles(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t)
	_, err := ws.Finalize("j1", nil)
	require.Error(t, err)
}

func TestWorkspaceArtifactPath(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t)

	dir, cleanup, err := ws.Acquire("j1")
	require.NoError(t, err)
	defer cleanup()

	src := filepath.Join(dir, "clip.mp3")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	result, err := ws.Finalize("j1", []string{src})
	require.NoError(t, err)

	path, err := ws.ArtifactPath("j1", "clip.mp3")
	require.NoError(t, err)
	assert.Equal(t, result.Files[0].Path, path)

	for _, name := range []string{"", "../clip.mp3", "sub/clip.mp3", ".hidden"} {
		_, err := ws.ArtifactPath("j1", name)
		require.Error(t, err, "name %q", name)
	}

	_, err = ws.ArtifactPath("j1", "missing.mp3")
	require.Error(t, err)
}

func TestWorkspaceRemoveJobArtifacts(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t)

	dir, cleanup, err := ws.Acquire("j1")
	require.NoError(t, err)
	defer cleanup()

	src := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	result, err := ws.Finalize("j1", []string{src})
	require.NoError(t, err)

	require.NoError(t, ws.RemoveJobArtifacts("j1"))
	assert.NoDirExists(t, result.FolderPath)

	require.Error(t, ws.RemoveJobArtifacts(""))
}
