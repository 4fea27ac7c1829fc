// Package worker provides the download worker pool: it reserves media jobs,
// runs the external tools in a scratch directory, and publishes outcomes.
package worker

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/domain/model"
)

// ErrUnsafeArtifactName rejects artifact names that escape the job directory.
var ErrUnsafeArtifactName = errors.New("artifact name escapes job directory")

// Workspace manages the two directory trees a job touches: a scratch
// directory under the temp root while the job runs, and a per-job artifact
// directory under the downloads root once it finishes. Scratch directories
// are always removed, whatever the outcome.
type Workspace struct {
	tempRoot      string
	downloadsRoot string
}

// NewWorkspace creates both roots if needed.
func NewWorkspace(tempRoot, downloadsRoot string) (*Workspace, error) {
	if tempRoot == "" || downloadsRoot == "" {
		return nil, errors.New("temp and downloads roots are required")
	}
	for _, dir := range []string{tempRoot, downloadsRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace root %s: %w", dir, err)
		}
	}
	return &Workspace{tempRoot: tempRoot, downloadsRoot: downloadsRoot}, nil
}

// Acquire creates the scratch directory for one job attempt. The random
// suffix keeps a retry from colliding with a previous attempt's directory
// while its cleanup is still in flight. The returned cleanup removes the
// directory along with anything the job left behind.
func (w *Workspace) Acquire(jobID string) (string, func(), error) {
	dir := filepath.Join(w.tempRoot, "job-"+jobID+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create scratch directory: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	return dir, cleanup, nil
}

// Finalize moves the produced files out of scratch into the job's artifact
// directory and builds the durable result.
func (w *Workspace) Finalize(jobID string, files []string) (*model.JobResult, error) {
	if len(files) == 0 {
		return nil, errors.New("no output files to finalize")
	}

	destDir := filepath.Join(w.downloadsRoot, jobID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	artifacts := make([]model.FileArtifact, 0, len(files))
	used := make(map[string]bool, len(files))
	for _, src := range files {
		name := uniqueDestName(filepath.Base(src), used)
		dst := filepath.Join(destDir, name)
		if err := moveFile(src, dst); err != nil {
			return nil, fmt.Errorf("move artifact %s: %w", name, err)
		}
		artifacts = append(artifacts, model.FileArtifact{
			Name: name,
			Path: dst,
			URL:  artifactLinkPath(jobID, name),
		})
	}

	return &model.JobResult{
		Files:       artifacts,
		DownloadURL: artifacts[0].URL,
		FolderPath:  destDir,
	}, nil
}

// uniqueDestName keeps same-named outputs from silently overwriting each
// other by suffixing an index before the extension.
func uniqueDestName(name string, used map[string]bool) string {
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	used[candidate] = true
	return candidate
}

// artifactLinkPath is the API route that mints a signed download link for
// one stored artifact.
func artifactLinkPath(jobID, name string) string {
	return "/api/jobs/" + url.PathEscape(jobID) + "/files/" + url.PathEscape(name) + "/link"
}

// ArtifactPath resolves a stored artifact by name, refusing names that would
// resolve outside the job's directory.
func (w *Workspace) ArtifactPath(jobID, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrUnsafeArtifactName
	}
	path := filepath.Join(w.downloadsRoot, jobID, name)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// RemoveJobArtifacts deletes the artifact directory of one job.
func (w *Workspace) RemoveJobArtifacts(jobID string) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	return os.RemoveAll(filepath.Join(w.downloadsRoot, jobID))
}

// moveFile renames src to dst, falling back to copy-and-remove when the two
// roots live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
