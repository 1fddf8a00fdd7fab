package server

import (
	"errors"
	"fmt"

	"github.com/vulntor/attackq/pkg/workspace"
)

const (
	errorCodeInvalidPort       = "SERVER_INVALID_PORT"
	errorCodeConfigUnavailable = "SERVER_CONFIG_UNAVAILABLE"
	errorCodeInvalidConfig     = "SERVER_INVALID_CONFIG"
	errorCodeWorkspaceLocked   = "SERVER_WORKSPACE_LOCKED"
	errorCodeStorageInitFailed = "SERVER_STORAGE_INIT_FAILED"
	errorCodeToolUnavailable   = "SERVER_TOOL_UNAVAILABLE"
	errorCodeAppInitFailed     = "SERVER_INIT_FAILED"
	errorCodeRuntimeFailed     = "SERVER_RUNTIME_FAILED"
)

var (
	// ErrInvalidPort indicates an invalid port flag value.
	ErrInvalidPort = errors.New("invalid port")
	// ErrConfigUnavailable indicates the CLI context lacked a config manager.
	ErrConfigUnavailable = errors.New("config manager unavailable")
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

// WithErrorCode annotates err with a server error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &withCodeError{error: err, code: code}
}

// NewInvalidPortError formats an invalid port error with context.
func NewInvalidPortError(port int) error {
	return WithErrorCode(fmt.Errorf("%w: invalid port %d: must be between 1 and 65535", ErrInvalidPort, port), errorCodeInvalidPort)
}

// WrapInvalidConfig annotates server config validation errors.
func WrapInvalidConfig(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(fmt.Errorf("invalid server configuration: %w", err), errorCodeInvalidConfig)
}

// WrapStorageInit annotates storage backend initialization failures.
func WrapStorageInit(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(err, errorCodeStorageInitFailed)
}

// WrapToolCheck annotates a failed attack tool probe.
func WrapToolCheck(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(fmt.Errorf("attack tool unavailable: %w", err), errorCodeToolUnavailable)
}

// WrapAppInit annotates server app creation failures.
func WrapAppInit(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(err, errorCodeAppInitFailed)
}

// WrapRuntime annotates server runtime failures.
func WrapRuntime(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(err, errorCodeRuntimeFailed)
}

// ErrorCode resolves a server error to its error code.
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
	case errors.Is(err, ErrInvalidPort):
		return errorCodeInvalidPort
	case errors.Is(err, ErrConfigUnavailable):
		return errorCodeConfigUnavailable
	case errors.Is(err, workspace.ErrLocked):
		return errorCodeWorkspaceLocked
	default:
		return errorCodeRuntimeFailed
	}
}

// ExitCode maps server errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, ErrInvalidPort), ErrorCode(err) == errorCodeInvalidConfig:
		return 2
	case errors.Is(err, workspace.ErrLocked):
		return 3
	case ErrorCode(err) == errorCodeStorageInitFailed,
		ErrorCode(err) == errorCodeToolUnavailable,
		ErrorCode(err) == errorCodeAppInitFailed:
		return 7
	default:
		return 1
	}
}

// Suggestions provides CLI hints for server errors.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch ErrorCode(err) {
	case errorCodeInvalidPort:
		return []string{
			"Use a port between 1 and 65535",
			"Example:                 attackq server --server.port 8080",
		}
	case errorCodeConfigUnavailable:
		return []string{
			"Run via the attackq CLI so the config manager initializes",
		}
	case errorCodeInvalidConfig:
		return []string{
			"Check configuration values in config file",
			"Validate config:         attackq doctor",
		}
	case errorCodeWorkspaceLocked:
		return []string{
			"Another attackq process is using this workspace",
			"Use a separate workspace: attackq server --workspace.dir <path>",
		}
	case errorCodeStorageInitFailed:
		return []string{
			"Verify the database directory permissions",
			"Override the database:   attackq server --storage.path <file>",
		}
	case errorCodeToolUnavailable:
		return []string{
			"Install hydra or point tool.path at a compatible binary",
			"Check the tool:          attackq doctor",
		}
	case errorCodeAppInitFailed:
		return []string{
			"Retry with verbose logging: attackq server --debug",
			"Review configuration for invalid values",
		}
	case errorCodeRuntimeFailed:
		return []string{
			"Check server logs for runtime errors",
			"Ensure no other process is using the selected port",
		}
	default:
		return nil
	}
}
