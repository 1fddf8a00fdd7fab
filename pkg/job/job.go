// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package job defines the attack job model shared by the scheduler, the
// storage backends and the API: caller-supplied specs, typed per-type
// parameters, and the lifecycle state machine.
package job

import "time"

// Type identifies a supported attack kind.
type Type string

const (
	// TypeBruteforce tries every user/password pair from two lists.
	TypeBruteforce Type = "bruteforce"
	// TypeSpray tries a single password against a user list.
	TypeSpray Type = "spray"
	// TypeCombo tries colon-separated user:password pairs from one list.
	TypeCombo Type = "combo"
	// TypeHTTPForm attacks an HTTP(S) login form.
	TypeHTTPForm Type = "http_form"
)

// Types returns all supported job types in a stable order.
func Types() []Type {
	return []Type{TypeBruteforce, TypeSpray, TypeCombo, TypeHTTPForm}
}

// Valid reports whether t is a supported job type.
func (t Type) Valid() bool {
	switch t {
	case TypeBruteforce, TypeSpray, TypeCombo, TypeHTTPForm:
		return true
	}
	return false
}

// Lane is one of the two scheduler queues.
type Lane string

const (
	LanePriority Lane = "priority"
	LaneStandard Lane = "standard"
)

// Lanes returns both lanes, priority first.
func Lanes() []Lane {
	return []Lane{LanePriority, LaneStandard}
}

// State is the lifecycle state of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions are accepted from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

const (
	// DefaultMaxAttempts is applied when a spec leaves MaxAttempts at zero.
	DefaultMaxAttempts = 3
	// DefaultTimeout is applied when a spec leaves Timeout at zero.
	DefaultTimeout = time.Hour
)

// Spec is the caller-supplied description of a job. It is immutable once
// submitted.
type Spec struct {
	Target      string         `json:"target" yaml:"target"`
	Type        Type           `json:"type" yaml:"type"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters"`
	Priority    bool           `json:"priority,omitempty" yaml:"priority"`
	MaxAttempts int            `json:"max_attempts,omitempty" yaml:"max_attempts"`
	Timeout     time.Duration  `json:"timeout,omitempty" yaml:"timeout"`
}

// Lane returns the lane the spec is routed to.
func (s Spec) Lane() Lane {
	if s.Priority {
		return LanePriority
	}
	return LaneStandard
}

// withDefaults fills zero-valued optional fields.
func (s Spec) withDefaults() Spec {
	if s.MaxAttempts == 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	return s
}

// Job is the scheduler-owned record of a submitted spec.
type Job struct {
	ID              string     `json:"id"`
	Spec            Spec       `json:"spec"`
	Lane            Lane       `json:"lane"`
	State           State      `json:"state"`
	Attempt         int        `json:"attempt"`
	QueuedAt        time.Time  `json:"queued_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	Progress        int        `json:"progress"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	Credentials     int        `json:"credentials"`
}

// New creates a queued job for an already validated spec.
func New(id string, spec Spec, now time.Time) *Job {
	spec = spec.withDefaults()
	return &Job{
		ID:       id,
		Spec:     spec,
		Lane:     spec.Lane(),
		State:    StateQueued,
		Attempt:  1,
		QueuedAt: now,
	}
}

// CanRetry reports whether a failed attempt may be followed by another one.
func (j *Job) CanRetry() bool {
	return j.Attempt < j.Spec.MaxAttempts
}

// Clone returns a copy that shares no mutable pointers with j.
func (j *Job) Clone() Job {
	c := *j
	c.StartedAt = cloneTime(j.StartedAt)
	c.FinishedAt = cloneTime(j.FinishedAt)
	c.LastHeartbeatAt = cloneTime(j.LastHeartbeatAt)
	if j.Spec.Parameters != nil {
		c.Spec.Parameters = make(map[string]any, len(j.Spec.Parameters))
		for k, v := range j.Spec.Parameters {
			c.Spec.Parameters[k] = v
		}
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Handle is returned to callers on successful submission.
type Handle struct {
	ID       string    `json:"id"`
	Lane     Lane      `json:"lane"`
	QueuedAt time.Time `json:"queued_at"`
}
