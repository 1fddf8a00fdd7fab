package api

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Sentinel errors for configuration validation
var (
	// ErrInvalidTimeout is returned when a timeout value is invalid (negative).
	ErrInvalidTimeout = errors.New("invalid timeout: must be >= 0")
)

// Config holds API-level configuration.
type Config struct {
	// HandlerTimeout is the maximum duration for an API handler to complete.
	// If a handler exceeds this timeout, it returns HTTP 504 Gateway Timeout.
	//
	// The timeout is applied only if the request context doesn't already
	// have a deadline, so middleware and clients can set shorter ones.
	// Zero disables it. The event stream is never bounded by it.
	//
	// Default: 30 seconds
	// Config key: server.handler_timeout
	HandlerTimeout time.Duration
}

// DefaultConfig returns the default API configuration.
func DefaultConfig() Config {
	return Config{
		HandlerTimeout: 30 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.HandlerTimeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// HandlerContext returns the request context bounded by HandlerTimeout.
func (c Config) HandlerContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); ok || c.HandlerTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.HandlerTimeout)
}
