package httpx

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/clipforge/clipforge/internal/errors"
	"github.com/clipforge/clipforge/internal/service"
)

// ArtifactStore resolves stored download artifacts to filesystem paths.
type ArtifactStore interface {
	ArtifactPath(jobID, name string) (string, error)
}

// FileHandlers serves finished download artifacts behind signed tokens.
type FileHandlers struct {
	Tokens    *service.TokenService
	Artifacts ArtifactStore
}

// SignDownload handles requests to mint a time-limited download link for one
// artifact of a completed job.
func (h *FileHandlers) SignDownload(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	name := r.PathValue("file")
	if jobID == "" || name == "" {
		WriteAppError(w, apperrors.Validation("job id and file name are required"))
		return
	}

	// Resolve first so links are only minted for artifacts that exist.
	if _, err := h.Artifacts.ArtifactPath(jobID, name); err != nil {
		WriteAppError(w, apperrors.NotFoundf("artifact %s not found for job %s", name, jobID))
		return
	}

	token, expiresAt := h.Tokens.Sign(jobID, name)
	WriteJSON(w, http.StatusOK, map[string]any{
		"url":        downloadPath(jobID, name, token),
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// Download handles token-gated artifact delivery with range support.
func (h *FileHandlers) Download(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	name := r.PathValue("file")
	if jobID == "" || name == "" {
		WriteAppError(w, apperrors.Validation("job id and file name are required"))
		return
	}

	token := r.URL.Query().Get("token")
	if err := h.Tokens.Verify(jobID, name, token); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, service.ErrTokenExpired) {
			status = http.StatusGone
		}
		WriteError(w, ErrorParams{Code: status, ErrCode: string(apperrors.GetCode(err)), Err: err})
		return
	}

	path, err := h.Artifacts.ArtifactPath(jobID, name)
	if err != nil {
		WriteAppError(w, apperrors.NotFoundf("artifact %s not found for job %s", name, jobID))
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
	http.ServeFile(w, r, path)
}

func downloadPath(jobID, name, token string) string {
	return "/api/jobs/" + url.PathEscape(jobID) + "/files/" + url.PathEscape(name) + "?token=" + url.QueryEscape(token)
}
