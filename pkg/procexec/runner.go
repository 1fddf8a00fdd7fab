// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package procexec runs external commands and streams their output line by
// line. It enforces a hard timeout with a graceful-then-forced kill and
// reports how the process ended; it knows nothing about jobs or retries.
package procexec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultGracePeriod is the delay between SIGTERM and SIGKILL.
	DefaultGracePeriod = 5 * time.Second
	// DefaultBufferLimit caps the rolling output buffer (10 MiB).
	DefaultBufferLimit = 10 << 20

	lineChannelSize = 256
	waitSlack       = time.Second
)

var (
	// ErrSpawn wraps failures to start the command.
	ErrSpawn = errors.New("failed to start process")

	errTimedOut = errors.New("process timeout elapsed")
)

// Stream identifies the origin of a line.
type Stream int

const (
	Stdout Stream = iota + 1
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	}
	return "unknown"
}

// Line is one line of process output without its trailing newline.
type Line struct {
	Stream Stream
	Text   string
	At     time.Time
}

// Command describes a process to run. A zero Timeout means no deadline.
type Command struct {
	Path    string
	Args    []string
	Env     []string
	Dir     string
	Timeout time.Duration
}

// Result describes how a process ended. ExitCode is nil when the process was
// killed, either by the timeout or by cancellation of the caller's context.
type Result struct {
	ExitCode  *int          `json:"exit_code"`
	Output    string        `json:"output,omitempty"`
	TimedOut  bool          `json:"timed_out"`
	Cancelled bool          `json:"cancelled"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"-"`
	// DurationMS mirrors Duration for JSON consumers.
	DurationMS int64 `json:"duration_ms"`
	// Err carries the raw wait error for diagnostics.
	Err error `json:"-"`
}

// Exited reports whether the process ended on its own with an exit status.
func (r Result) Exited() bool {
	return r.ExitCode != nil
}

// Success reports a normal exit with status 0.
func (r Result) Success() bool {
	return r.ExitCode != nil && *r.ExitCode == 0
}

// Runner starts processes.
type Runner struct {
	grace       time.Duration
	bufferLimit int
	logger      zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithGracePeriod sets the delay between the graceful signal and the kill.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithBufferLimit sets the rolling buffer size in bytes. Zero disables it.
func WithBufferLimit(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.bufferLimit = n
		}
	}
}

// WithLogger sets the logger used for process lifecycle messages.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a Runner with the given options applied over defaults.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		grace:       DefaultGracePeriod,
		bufferLimit: DefaultBufferLimit,
		logger:      log.With().Str("component", "procexec").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GracePeriod returns the configured delay between SIGTERM and SIGKILL.
func (r *Runner) GracePeriod() time.Duration {
	return r.grace
}

// Process is a started command.
type Process struct {
	pid    int
	lines  chan Line
	done   chan struct{}
	result Result
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	return p.pid
}

// Lines streams stdout and stderr lines as they are written. The channel is
// closed once both streams are drained and the process has been reaped.
func (p *Process) Lines() <-chan Line {
	return p.lines
}

// Done is closed when the result is available.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process ends and returns its result. Lines not yet
// read from Lines are discarded.
func (p *Process) Wait() Result {
	for range p.lines {
	}
	<-p.done
	return p.result
}

// Start launches c. Cancelling ctx stops the process through the same
// graceful-then-forced path as the timeout.
func (r *Runner) Start(ctx context.Context, c Command) (*Process, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("%w: empty command path", ErrSpawn)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if c.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, c.Timeout, errTimedOut)
		prev := cancel
		cancel = func() {
			cancelTimeout()
			prev()
		}
	}

	buf := newRingBuffer(r.bufferLimit)
	lines := make(chan Line, lineChannelSize)
	stdout := &lineWriter{stream: Stdout, out: lines, buf: buf}
	stderr := &lineWriter{stream: Stderr, out: lines, buf: buf}

	cmd := exec.CommandContext(runCtx, c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcessGroup(cmd)

	k := &killer{grace: r.grace}
	cmd.Cancel = func() error {
		return k.terminate(cmd.Process)
	}
	cmd.WaitDelay = r.grace + waitSlack

	started := time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, c.Path, err)
	}

	p := &Process{
		pid:   cmd.Process.Pid,
		lines: lines,
		done:  make(chan struct{}),
	}
	r.logger.Debug().
		Str("path", c.Path).
		Int("pid", p.pid).
		Dur("timeout", c.Timeout).
		Msg("Process started")

	go func() {
		waitErr := cmd.Wait()
		k.reaped()
		stdout.flush()
		stderr.flush()

		res := Result{
			Duration:  time.Since(started),
			Output:    buf.String(),
			Truncated: buf.Truncated(),
			Err:       waitErr,
		}
		res.DurationMS = res.Duration.Milliseconds()
		if k.wasSignalled() {
			res.TimedOut = errors.Is(context.Cause(runCtx), errTimedOut)
			res.Cancelled = !res.TimedOut
		}
		if st := cmd.ProcessState; st != nil && st.Exited() && !res.TimedOut && !res.Cancelled {
			code := st.ExitCode()
			res.ExitCode = &code
		}
		cancel()

		evt := r.logger.Debug().
			Int("pid", p.pid).
			Dur("duration", res.Duration).
			Bool("timed_out", res.TimedOut).
			Bool("cancelled", res.Cancelled)
		if res.ExitCode != nil {
			evt = evt.Int("exit_code", *res.ExitCode)
		}
		evt.Msg("Process finished")

		p.result = res
		close(lines)
		close(p.done)
	}()

	return p, nil
}

// Run starts c, hands every line to fn and returns the result.
func (r *Runner) Run(ctx context.Context, c Command, fn func(Line)) (Result, error) {
	p, err := r.Start(ctx, c)
	if err != nil {
		return Result{}, err
	}
	for line := range p.Lines() {
		if fn != nil {
			fn(line)
		}
	}
	return p.Wait(), nil
}
