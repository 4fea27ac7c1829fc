package model

// EventType identifies the kind of a progress event.
type EventType string

const (
	// EventProgress carries an intermediate progress update.
	EventProgress EventType = "progress"
	// EventCompleted announces successful job completion.
	EventCompleted EventType = "completed"
	// EventFailed announces terminal or per-attempt job failure.
	EventFailed EventType = "failed"
)

// ProgressEvent is the ephemeral message broadcast on the event bus. It is
// never persisted; subscribers reconstruct current state from the Job record.
type ProgressEvent struct {
	JobID    string     `json:"job_id"`
	Type     EventType  `json:"type"`
	Progress *Progress  `json:"progress,omitempty"`
	Result   *JobResult `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Terminal reports whether the event ends a job's stream.
func (e *ProgressEvent) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed
}
