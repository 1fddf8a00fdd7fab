package scheduler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vulntor/attackq/pkg/job"
)

const (
	errorCodeInvalidConfig = "SCHEDULER_INVALID_CONFIG"
	errorCodeStopped       = "SCHEDULER_STOPPED"
	errorCodeValidation    = "JOB_VALIDATION_FAILED"
	errorCodeNotFound      = "JOB_NOT_FOUND"
	errorCodeTerminal      = "JOB_TERMINAL"
	errorCodeExecution     = "JOB_EXECUTION_FAILED"
	errorCodeTimeout       = "JOB_TIMEOUT"
	errorCodeCancelled     = "JOB_CANCELLED"
	errorCodePersistence   = "PERSISTENCE_WARNING"
	errorCodeInternal      = "SCHEDULER_INTERNAL"
)

var (
	// ErrInvalidConfig indicates the scheduler configuration is unusable.
	ErrInvalidConfig = errors.New("invalid scheduler config")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrStopped is returned by Submit after Stop and used as the cancellation
	// cause of attempts interrupted by shutdown.
	ErrStopped = errors.New("scheduler stopped")
	// ErrNotFound indicates an unknown job id.
	ErrNotFound = errors.New("job not found")
	// ErrExecution indicates the attack process failed.
	ErrExecution = errors.New("execution failed")
	// ErrTimeout indicates an attempt exceeded its hard timeout.
	ErrTimeout = errors.New("timeout")
	// ErrCancelled indicates the job was cancelled by a user.
	ErrCancelled = errors.New("cancelled by user")
	// ErrPersistence indicates a persistence write failed. It never aborts a job.
	ErrPersistence = errors.New("persistence failed")

	errPersistQueueFull = errors.New("persistence queue full")
)

type errorCoder interface {
	error
	Code() string
}

type withCodeError struct {
	error
	code string
}

func (e *withCodeError) Code() string {
	return e.code
}

func (e *withCodeError) Unwrap() error {
	return e.error
}

// WithErrorCode annotates err with a scheduler error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &withCodeError{error: err, code: code}
}

// NewInvalidConfigError formats a configuration error.
func NewInvalidConfigError(field string, value any, reason string) error {
	return WithErrorCode(fmt.Errorf("%w: %s=%v: %s", ErrInvalidConfig, field, value, reason), errorCodeInvalidConfig)
}

// NotFoundError wraps ErrNotFound with the job id.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job not found: %s", e.ID)
}

// Unwrap returns the underlying error.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(id string) error {
	return &NotFoundError{ID: id}
}

// ExecutionError records why an attempt failed to run to a zero exit.
// ExitCode is nil when the process never started or was killed by a signal.
type ExecutionError struct {
	ExitCode *int
	Err      error
}

func (e *ExecutionError) Error() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case e.ExitCode != nil:
		return fmt.Sprintf("process exited with code %d", *e.ExitCode)
	default:
		return "process terminated by signal"
	}
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// TimeoutError reports an attempt killed by its hard timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// PersistenceWarning describes a failed write to the persistence boundary.
type PersistenceWarning struct {
	Op    string
	JobID string
	Err   error
}

func (e *PersistenceWarning) Error() string {
	return fmt.Sprintf("persistence warning: %s %s: %v", e.Op, e.JobID, e.Err)
}

func (e *PersistenceWarning) Unwrap() error {
	return e.Err
}

func (e *PersistenceWarning) Is(target error) bool {
	return target == ErrPersistence
}

// ErrorCode resolves an error to its scheduler error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded errorCoder
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, job.ErrValidation):
		return errorCodeValidation
	case errors.Is(err, ErrNotFound):
		return errorCodeNotFound
	case errors.Is(err, job.ErrTerminal), errors.Is(err, job.ErrInvalidTransition):
		return errorCodeTerminal
	case errors.Is(err, ErrStopped):
		return errorCodeStopped
	case errors.Is(err, ErrInvalidConfig):
		return errorCodeInvalidConfig
	case errors.Is(err, ErrTimeout):
		return errorCodeTimeout
	case errors.Is(err, ErrCancelled):
		return errorCodeCancelled
	case errors.Is(err, ErrPersistence):
		return errorCodePersistence
	case errors.Is(err, ErrExecution):
		return errorCodeExecution
	default:
		return errorCodeInternal
	}
}

// ExitCode maps scheduler errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, job.ErrValidation), errors.Is(err, ErrInvalidConfig):
		return 2
	case errors.Is(err, ErrNotFound):
		return 4
	case errors.Is(err, ErrTimeout):
		return 5
	case errors.Is(err, ErrCancelled), errors.Is(err, ErrStopped):
		return 6
	default:
		return 1
	}
}

// HTTPStatus maps scheduler errors to HTTP status codes.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch {
	case errors.Is(err, job.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, job.ErrTerminal), errors.Is(err, job.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Suggestions provides CLI hints for scheduler errors.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch ErrorCode(err) {
	case errorCodeValidation:
		return []string{
			"Check the job type and its required parameters",
			"Example:                   attackq run -f jobs.yaml",
		}
	case errorCodeNotFound:
		return []string{
			"List known jobs:           attackq job list",
		}
	case errorCodeTimeout:
		return []string{
			"Raise the job timeout or lower the number of parallel tasks",
		}
	case errorCodeInvalidConfig:
		return []string{
			"Review scheduler.* settings in the config file",
			"Validate config:           attackq doctor",
		}
	case errorCodeExecution:
		return []string{
			"Check that the attack tool is installed: attackq doctor",
		}
	default:
		return nil
	}
}
