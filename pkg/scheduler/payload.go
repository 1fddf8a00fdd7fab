package scheduler

import (
	"time"

	"github.com/vulntor/attackq/pkg/job"
)

// Event payloads. Credential events carry an extract.Record.

// QueuedPayload accompanies queued events, both on submit and after a retry
// delay elapsed.
type QueuedPayload struct {
	Lane    job.Lane `json:"lane"`
	Attempt int      `json:"attempt"`
}

// StartedPayload accompanies started events.
type StartedPayload struct {
	Lane    job.Lane `json:"lane"`
	Attempt int      `json:"attempt"`
}

// ProgressPayload accompanies progress events.
type ProgressPayload struct {
	Attempt int `json:"attempt"`
	Percent int `json:"percent"`
}

// StalledPayload accompanies stalled events.
type StalledPayload struct {
	Attempt         int       `json:"attempt"`
	IdleMS          int64     `json:"idle_ms"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// RetryingPayload accompanies retrying events. Attempt is the attempt that
// will run once Delay has elapsed.
type RetryingPayload struct {
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"-"`
	DelayMS int64         `json:"delay_ms"`
	Error   string        `json:"error"`
}

// FinishedPayload accompanies completed, failed and cancelled events.
type FinishedPayload struct {
	Attempt     int    `json:"attempt"`
	ExitCode    *int   `json:"exit_code,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	Credentials int    `json:"credentials"`
	Error       string `json:"error,omitempty"`
}
