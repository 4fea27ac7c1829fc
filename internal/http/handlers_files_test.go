package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/adapters/worker"
	"github.com/clipforge/clipforge/internal/service"
)

func newArtifactFixture(t *testing.T) *worker.Workspace {
	t.Helper()

	root := t.TempDir()
	ws, err := worker.NewWorkspace(filepath.Join(root, "tmp"), filepath.Join(root, "downloads"))
	require.NoError(t, err)

	dir, cleanup, err := ws.Acquire("j1")
	require.NoError(t, err)
	defer cleanup()

	src := filepath.Join(dir, "video.mp4")
	require.NoError(t, os.WriteFile(src, []byte("media-bytes"), 0o644))
	_, err = ws.Finalize("j1", []string{src})
	require.NoError(t, err)
	return ws
}

func newTokenService(t *testing.T, now func() time.Time) *service.TokenService {
	t.Helper()

	tokens, err := service.NewTokenService(service.TokenServiceOptions{
		Secret: "test-secret",
		TTL:    time.Hour,
		Now:    now,
	})
	require.NoError(t, err)
	return tokens
}

func newFileRouter(t *testing.T, ws *worker.Workspace, tokens *service.TokenService) http.Handler {
	t.Helper()
	return NewRouter(RouterServices{Tokens: tokens, Artifacts: ws})
}

func TestSignedDownloadRoundTrip(t *testing.T) {
	t.Parallel()

	ws := newArtifactFixture(t)
	router := newFileRouter(t, ws, newTokenService(t, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/j1/files/video.mp4/link", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var link struct {
		URL       string `json:"url"`
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))
	require.NotEmpty(t, link.Token)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, link.URL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "media-bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "video.mp4")
}

func TestSignedDownloadSupportsRangeRequests(t *testing.T) {
	t.Parallel()

	ws := newArtifactFixture(t)
	tokens := newTokenService(t, nil)
	router := newFileRouter(t, ws, tokens)

	token, _ := tokens.Sign("j1", "video.mp4")
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/j1/files/video.mp4?token="+token, nil)
	req.Header.Set("Range", "bytes=0-4")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "media", rec.Body.String())
}

func TestSignLinkRequiresExistingArtifact(t *testing.T) {
	t.Parallel()

	ws := newArtifactFixture(t)
	router := newFileRouter(t, ws, newTokenService(t, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/j1/files/missing.mp4/link", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadRejectsBadToken(t *testing.T) {
	t.Parallel()

	ws := newArtifactFixture(t)
	router := newFileRouter(t, ws, newTokenService(t, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(
		http.MethodGet, "/api/jobs/j1/files/video.mp4?token=123.deadbeef", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDownloadRejectsTokenForOtherFile(t *testing.T) {
	t.Parallel()

	ws := newArtifactFixture(t)
	tokens := newTokenService(t, nil)
	router := newFileRouter(t, ws, tokens)

	token, _ := tokens.Sign("j1", "other.mp4")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(
		http.MethodGet, "/api/jobs/j1/files/video.mp4?token="+token, nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDownloadRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	ws := newArtifactFixture(t)
	past := time.Now().Add(-3 * time.Hour)
	signer := newTokenService(t, func() time.Time { return past })
	router := newFileRouter(t, ws, newTokenService(t, nil))

	token, _ := signer.Sign("j1", "video.mp4")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(
		http.MethodGet, "/api/jobs/j1/files/video.mp4?token="+token, nil))
	require.Equal(t, http.StatusGone, rec.Code)
}
