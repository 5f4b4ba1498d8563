package jobqueue

import "time"

// Job is one queued processing attempt for a stored webhook event. Retry
// bookkeeping lives on the event row; the job is a thin pointer to it.
type Job struct {
	ID        string     `json:"id"`
	EventID   uint       `json:"event_id"`
	EventType string     `json:"event_type"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}
