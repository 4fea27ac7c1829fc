package httpx

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipforge/clipforge/internal/domain/model"
	apperrors "github.com/clipforge/clipforge/internal/errors"
	"github.com/clipforge/clipforge/internal/service"
)

const defaultKeepAlive = 15 * time.Second

// StreamHandlers serves live job progress as server-sent events.
type StreamHandlers struct {
	Svc       *service.StreamService
	Logger    *slog.Logger
	KeepAlive time.Duration // interval between comment pings; defaults to 15s
}

// StreamEvents handles GET requests for a job's progress stream. The stream
// opens with the job's current state and ends after a terminal event.
func (h *StreamHandlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteAppError(w, apperrors.Validation("job id is required"))
		return
	}

	events, cancel, err := h.Svc.Stream(r.Context(), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logf("event stream unsupported", jobID, err)
		return
	}

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, event); err != nil {
				h.logf("write event failed", jobID, err)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// wireEvent is the client-facing projection of a progress event. Terminal
// event names differ from the internal ones: "complete" and "error".
type wireEvent struct {
	JobID    string           `json:"job_id"`
	Type     string           `json:"type"`
	Progress *model.Progress  `json:"progress,omitempty"`
	Result   *model.JobResult `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func wireEventName(t model.EventType) string {
	switch t {
	case model.EventCompleted:
		return "complete"
	case model.EventFailed:
		return "error"
	default:
		return string(t)
	}
}

func writeEvent(w http.ResponseWriter, event *model.ProgressEvent) error {
	name := wireEventName(event.Type)
	data, err := json.Marshal(wireEvent{
		JobID:    event.JobID,
		Type:     name,
		Progress: event.Progress,
		Result:   event.Result,
		Error:    event.Error,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (h *StreamHandlers) logf(msg, jobID string, err error) {
	if h.Logger != nil {
		h.Logger.Warn(msg, "job_id", jobID, "error", err)
	}
}
