package job

import (
	"errors"
	"fmt"
	"time"
)

// Trigger is an occurrence that may move a job between states.
type Trigger string

const (
	// TriggerDispatch fires when a worker slot picks the job up.
	TriggerDispatch Trigger = "dispatch"
	// TriggerSucceed fires when the process exits with status 0.
	TriggerSucceed Trigger = "succeed"
	// TriggerFail fires on a non-zero exit or a spawn failure.
	TriggerFail Trigger = "fail"
	// TriggerTimeout fires when the attempt exceeded its hard timeout.
	TriggerTimeout Trigger = "timeout"
	// TriggerCancel fires on user cancellation.
	TriggerCancel Trigger = "cancel"
)

var (
	// ErrTerminal is returned for any trigger applied to a terminal job.
	ErrTerminal = errors.New("job is in a terminal state")
	// ErrInvalidTransition is returned for triggers the table does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// TransitionError describes a rejected transition.
type TransitionError struct {
	From    State
	Trigger Trigger
	err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s on %s", e.err, e.Trigger, e.From)
}

func (e *TransitionError) Unwrap() error {
	return e.err
}

// Next computes the state reached from `from` on trigger t. canRetry tells
// whether the failed attempt leaves attempts remaining.
func Next(from State, t Trigger, canRetry bool) (State, error) {
	if from.Terminal() {
		return from, &TransitionError{From: from, Trigger: t, err: ErrTerminal}
	}

	switch from {
	case StateQueued:
		switch t {
		case TriggerDispatch:
			return StateRunning, nil
		case TriggerCancel:
			return StateCancelled, nil
		}
	case StateRunning:
		switch t {
		case TriggerSucceed:
			return StateCompleted, nil
		case TriggerFail, TriggerTimeout:
			if canRetry {
				return StateQueued, nil
			}
			return StateFailed, nil
		case TriggerCancel:
			return StateCancelled, nil
		}
	}
	return from, &TransitionError{From: from, Trigger: t, err: ErrInvalidTransition}
}

// Transition applies t to j and records the timestamps and counters that go
// with the new state. On error j is left untouched.
func (j *Job) Transition(t Trigger, at time.Time) error {
	from := j.State
	next, err := Next(from, t, j.CanRetry())
	if err != nil {
		return err
	}
	j.State = next

	switch {
	case next == StateRunning:
		j.StartedAt = &at
		j.FinishedAt = nil
		j.LastHeartbeatAt = &at
	case from == StateRunning && next == StateQueued:
		j.Attempt++
		j.Progress = 0
	case next == StateCompleted:
		j.Progress = 100
		j.LastError = ""
		j.FinishedAt = &at
	case next.Terminal():
		j.FinishedAt = &at
	}
	return nil
}
