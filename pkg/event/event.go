// pkg/event/event.go
// Package event provides the in-process broadcast of job lifecycle and
// progress events.
package event

import "time"

// Type names a job event.
type Type string

const (
	Queued          Type = "queued"
	Started         Type = "started"
	Progress        Type = "progress"
	CredentialFound Type = "credential_found"
	Stalled         Type = "stalled"
	Retrying        Type = "retrying"
	Completed       Type = "completed"
	Failed          Type = "failed"
	Cancelled       Type = "cancelled"
)

// Terminal reports whether t is emitted when a job reaches a terminal state.
func (t Type) Terminal() bool {
	return t == Completed || t == Failed || t == Cancelled
}

// Event is a transient notification about one job. Payload holds a
// type-specific value and may be nil.
type Event struct {
	JobID   string    `json:"job_id"`
	Type    Type      `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

// Publisher is the producer side of the broadcast.
type Publisher interface {
	Publish(evt Event)
}
