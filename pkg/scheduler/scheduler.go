// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package scheduler runs attack jobs on two lanes with bounded concurrency.
// Priority jobs are always dispatched ahead of standard ones; failed attempts
// are retried with exponential backoff; running jobs that stop producing
// output are flagged as stalled. Job state is guarded by a single mutex and
// every transition goes through job.Transition.
package scheduler

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/attackq/pkg/event"
	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/procexec"
)

// Executor starts attack processes. *procexec.Runner satisfies it.
type Executor interface {
	Start(ctx context.Context, c procexec.Command) (*procexec.Process, error)
}

// CommandBuilder turns a validated job into the command line to execute.
type CommandBuilder interface {
	Build(j job.Job, p job.Params) (procexec.Command, error)
}

// BuilderFunc adapts a function to CommandBuilder.
type BuilderFunc func(j job.Job, p job.Params) (procexec.Command, error)

// Build calls f.
func (f BuilderFunc) Build(j job.Job, p job.Params) (procexec.Command, error) {
	return f(j, p)
}

// credentialLister is implemented by stores that can report what a job has
// already found. Restore uses it so a re-run does not report those again.
type credentialLister interface {
	ListCredentials(ctx context.Context, jobID string) ([]extract.Record, error)
}

// Store is the persistence boundary. Writes are performed off the dispatch
// path; failures are logged as warnings and never change job outcomes.
type Store interface {
	SaveJob(ctx context.Context, j job.Job) error
	AppendLog(ctx context.Context, jobID, level, message string) error
	SaveCredential(ctx context.Context, rec extract.Record) error
}

// LaneStats is a snapshot of one lane.
type LaneStats struct {
	Waiting       int `json:"waiting"`
	Delayed       int `json:"delayed"`
	Active        int `json:"active"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	Cancelled     int `json:"cancelled"`
	MaxConcurrent int `json:"max_concurrent"`
}

// entry is the scheduler's bookkeeping for one job.
type entry struct {
	job    *job.Job
	params job.Params
	// seen persists across attempts so a credential is reported once per job.
	seen       *extract.Deduper
	enqueuedAt time.Time

	attemptCtx      context.Context
	cancel          context.CancelCauseFunc
	cancelRequested bool
	stalled         bool
	retry           *time.Timer
	done            chan struct{}
}

// Scheduler owns the lanes and every job submitted to them.
type Scheduler struct {
	cfg      Config
	backoff  Backoff
	exec     Executor
	builder  CommandBuilder
	bus      event.Publisher
	store    Store
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string

	mu          sync.Mutex
	entries     map[string]*entry
	running     map[string]*entry
	lanes       map[job.Lane]*lane
	active      int
	started     bool
	dispatching bool
	stopped     bool

	baseCtx    context.Context
	cancelBase context.CancelCauseFunc
	workers    sync.WaitGroup

	persistQ      chan persistOp
	persistClosed bool
	persistDone   chan struct{}
	stallDone     chan struct{}
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithExecutor sets the process executor. Defaults to a procexec.Runner.
func WithExecutor(e Executor) Option {
	return func(s *Scheduler) { s.exec = e }
}

// WithCommandBuilder sets how jobs become command lines.
func WithCommandBuilder(b CommandBuilder) Option {
	return func(s *Scheduler) { s.builder = b }
}

// WithPublisher sets where lifecycle events go.
func WithPublisher(p event.Publisher) Option {
	return func(s *Scheduler) { s.bus = p }
}

// WithStore enables persistence.
func WithStore(st Store) Option {
	return func(s *Scheduler) { s.store = st }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithIDGenerator replaces the UUID job id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Scheduler) { s.newID = fn }
}

type nopPublisher struct{}

func (nopPublisher) Publish(event.Event) {}

// New creates a Scheduler. Jobs may be submitted before Start; they are held
// in their lanes until the scheduler is started.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:      cfg,
		backoff:  Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		bus:      nopPublisher{},
		observer: nopObserver{},
		logger:   log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
		entries:  make(map[string]*entry),
		running:  make(map[string]*entry),
		lanes: map[job.Lane]*lane{
			job.LanePriority: newLane(job.LanePriority, cfg.PriorityMaxConcurrent),
			job.LaneStandard: newLane(job.LaneStandard, cfg.StandardMaxConcurrent),
		},
		persistQ:    make(chan persistOp, cfg.PersistQueueSize),
		persistDone: make(chan struct{}),
		stallDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		return nil, NewInvalidConfigError("builder", nil, "a command builder is required")
	}
	if s.exec == nil {
		s.exec = procexec.NewRunner(procexec.WithLogger(s.logger.With().Str("component", "procexec").Logger()))
	}
	return s, nil
}

// Start begins dispatching. Cancelling ctx has the same effect on running
// attempts as Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if s.stopped {
		return ErrStopped
	}

	s.baseCtx, s.cancelBase = context.WithCancelCause(ctx)
	s.started = true
	s.dispatching = true

	go s.persistLoop()
	go s.stallLoop(s.baseCtx)

	s.logger.Info().
		Int("max_concurrent", s.cfg.MaxConcurrent).
		Int("priority_max", s.cfg.PriorityMaxConcurrent).
		Int("standard_max", s.cfg.StandardMaxConcurrent).
		Int("queued", s.lanes[job.LanePriority].waiting()+s.lanes[job.LaneStandard].waiting()).
		Msg("Scheduler started")

	s.dispatchLocked()
	return nil
}

// Stop halts dispatching, cancels running attempts and waits for workers and
// pending persistence writes. Interrupted jobs end cancelled; jobs waiting in
// a lane or a retry delay stay queued.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.dispatching = false
	if !s.started {
		s.mu.Unlock()
		return nil
	}

	for id, e := range s.entries {
		if e.retry != nil && e.retry.Stop() {
			e.retry = nil
			l := s.lanes[e.job.Lane]
			l.delayed--
			l.push(id)
		}
	}
	s.cancelBase(ErrStopped)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		<-s.stallDone
		s.mu.Lock()
		s.persistClosed = true
		close(s.persistQ)
		s.mu.Unlock()
		<-s.persistDone
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Scheduler shutdown timed out")
		return ctx.Err()
	}
}

// Submit validates spec and enqueues it on its lane.
func (s *Scheduler) Submit(spec job.Spec) (job.Handle, error) {
	spec, params, err := job.Validate(spec)
	if err != nil {
		s.logger.Debug().Err(err).Str("target", spec.Target).Msg("Job rejected")
		return job.Handle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return job.Handle{}, ErrStopped
	}

	j := job.New(s.newID(), spec, s.now())
	e := &entry{
		job:    j,
		params: params,
		seen:   extract.NewDeduper(),
		done:   make(chan struct{}),
	}
	s.entries[j.ID] = e
	s.enqueueLocked(e)

	s.logger.Info().
		Str("job_id", j.ID).
		Str("type", string(spec.Type)).
		Str("target", spec.Target).
		Str("lane", string(j.Lane)).
		Msg("Job queued")
	s.saveLocked(j, "info", fmt.Sprintf("job queued on %s lane", j.Lane))

	s.dispatchLocked()
	return job.Handle{ID: j.ID, Lane: j.Lane, QueuedAt: j.QueuedAt}, nil
}

// Restore re-enqueues jobs loaded from persistence that had not reached a
// terminal state. A job that was running when the process went away starts
// its current attempt again. Jobs whose id is already known are skipped.
// Credentials the store already holds for a job seed its deduplication, so
// they are neither reported nor counted a second time.
func (s *Scheduler) Restore(jobs []job.Job) (int, error) {
	found := s.storedCredentials(jobs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, ErrStopped
	}

	restored := 0
	for i := range jobs {
		j := jobs[i].Clone()
		if j.State.Terminal() {
			continue
		}
		if _, ok := s.entries[j.ID]; ok {
			continue
		}
		spec, params, err := job.Validate(j.Spec)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", j.ID).Msg("Skipping unrestorable job")
			continue
		}
		j.Spec = spec
		j.Lane = spec.Lane()
		j.State = job.StateQueued
		j.StartedAt = nil
		j.LastHeartbeatAt = nil
		j.Progress = 0

		seen := extract.NewDeduper()
		if recs, ok := found[j.ID]; ok {
			for _, rec := range recs {
				seen.Add(rec)
			}
			j.Credentials = seen.Len()
		}

		e := &entry{
			job:    &j,
			params: params,
			seen:   seen,
			done:   make(chan struct{}),
		}
		s.entries[j.ID] = e
		s.enqueueLocked(e)
		s.saveLocked(&j, "info", "job restored")
		restored++
	}

	if restored > 0 {
		s.logger.Info().Int("jobs", restored).Msg("Restored unfinished jobs")
	}
	s.dispatchLocked()
	return restored, nil
}

// storedCredentials loads the credentials of every unfinished job from the
// store. Jobs whose lookup fails are missing from the result and keep their
// persisted count.
func (s *Scheduler) storedCredentials(jobs []job.Job) map[string][]extract.Record {
	lister, ok := s.store.(credentialLister)
	if !ok {
		return nil
	}
	out := make(map[string][]extract.Record)
	for _, j := range jobs {
		if j.State.Terminal() {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
		recs, err := lister.ListCredentials(ctx, j.ID)
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", j.ID).Msg("Failed to load stored credentials")
			continue
		}
		out[j.ID] = recs
	}
	return out
}

// Cancel stops a job. A queued job is cancelled immediately; a running job
// is signalled and reaches the cancelled state once its process is gone.
// Cancelling a running job twice is a no-op.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return NewNotFoundError(id)
	}
	j := e.job

	switch j.State {
	case job.StateQueued:
		l := s.lanes[j.Lane]
		if e.retry != nil {
			e.retry.Stop()
			e.retry = nil
			l.delayed--
		} else {
			l.remove(id)
		}
		if err := j.Transition(job.TriggerCancel, s.now()); err != nil {
			return err
		}
		j.LastError = ErrCancelled.Error()
		l.cancelled++
		s.observer.JobFinished(j.Lane, j.State, 0)
		s.emitLocked(j, event.Cancelled, s.finishedPayload(j, nil, 0))
		s.saveLocked(j, "info", "job cancelled while queued")
		close(e.done)
		s.logger.Info().Str("job_id", id).Msg("Queued job cancelled")
		s.dispatchLocked()
		return nil

	case job.StateRunning:
		if e.cancelRequested {
			return nil
		}
		e.cancelRequested = true
		if e.cancel != nil {
			e.cancel(ErrCancelled)
		}
		s.appendLogLocked(id, "info", "cancellation requested")
		s.logger.Info().Str("job_id", id).Int("attempt", j.Attempt).Msg("Cancelling running job")
		return nil

	default:
		_, err := job.Next(j.State, job.TriggerCancel, false)
		return err
	}
}

// Status returns a snapshot of the job.
func (s *Scheduler) Status(id string) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return job.Job{}, NewNotFoundError(id)
	}
	return e.job.Clone(), nil
}

// List returns snapshots of every known job, oldest first.
func (s *Scheduler) List() []job.Job {
	s.mu.Lock()
	out := make([]job.Job, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.job.Clone())
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b job.Job) int {
		if c := a.QueuedAt.Compare(b.QueuedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Stats returns per-lane counters.
func (s *Scheduler) Stats() map[job.Lane]LaneStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[job.Lane]LaneStats, len(s.lanes))
	for name, l := range s.lanes {
		out[name] = l.stats()
	}
	return out
}

// Wait blocks until the job reaches a terminal state or ctx is done and
// returns the latest snapshot.
func (s *Scheduler) Wait(ctx context.Context, id string) (job.Job, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return job.Job{}, NewNotFoundError(id)
	}

	select {
	case <-e.done:
		return s.Status(id)
	case <-ctx.Done():
		j, _ := s.Status(id)
		return j, ctx.Err()
	}
}

// Drain blocks until every known job is terminal or ctx is done.
func (s *Scheduler) Drain(ctx context.Context) error {
	s.mu.Lock()
	pending := make([]chan struct{}, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.job.State.Terminal() {
			pending = append(pending, e.done)
		}
	}
	s.mu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Scheduler) enqueueLocked(e *entry) {
	e.enqueuedAt = s.now()
	l := s.lanes[e.job.Lane]
	l.push(e.job.ID)
	s.observer.JobQueued(l.name)
	s.emitLocked(e.job, event.Queued, QueuedPayload{Lane: l.name, Attempt: e.job.Attempt})
}

// dispatchLocked fills free slots, priority lane first.
func (s *Scheduler) dispatchLocked() {
	if s.dispatching && s.baseCtx.Err() == nil {
		for s.active < s.cfg.MaxConcurrent {
			l := s.nextLaneLocked()
			if l == nil {
				break
			}
			s.startLocked(s.entries[l.pop()], l)
		}
	}
	for _, name := range job.Lanes() {
		l := s.lanes[name]
		s.observer.LaneDepth(name, l.waiting(), l.active)
	}
}

// nextLaneLocked returns the lane to take the next job from. A priority lane
// at its own cap does not block standard jobs.
func (s *Scheduler) nextLaneLocked() *lane {
	for _, name := range job.Lanes() {
		l := s.lanes[name]
		if l.waiting() > 0 && l.active < l.max {
			return l
		}
	}
	return nil
}

func (s *Scheduler) startLocked(e *entry, l *lane) {
	j := e.job
	now := s.now()
	if err := j.Transition(job.TriggerDispatch, now); err != nil {
		s.logger.Error().Err(err).Str("job_id", j.ID).Msg("Dispatch rejected")
		return
	}

	ctx, cancel := context.WithCancelCause(s.baseCtx)
	e.attemptCtx = ctx
	e.cancel = cancel
	e.cancelRequested = false
	e.stalled = false
	l.active++
	s.active++
	s.running[j.ID] = e

	s.observer.JobStarted(l.name, now.Sub(e.enqueuedAt))
	s.emitLocked(j, event.Started, StartedPayload{Lane: l.name, Attempt: j.Attempt})
	s.saveLocked(j, "info", fmt.Sprintf("attempt %d started", j.Attempt))
	s.logger.Info().
		Str("job_id", j.ID).
		Str("lane", string(l.name)).
		Int("attempt", j.Attempt).
		Msg("Job started")

	a := attempt{
		ctx:    ctx,
		job:    j.Clone(),
		params: e.params,
		seen:   e.seen,
	}
	s.workers.Add(1)
	go s.runAttempt(a)
}

// finish applies the outcome of an attempt.
func (s *Scheduler) finish(a attempt, o outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[a.job.ID]
	j := e.job
	l := s.lanes[j.Lane]
	l.active--
	s.active--
	delete(s.running, j.ID)

	trigger, failure := s.classify(e, o)
	e.cancel(nil)
	e.cancel = nil
	failedAttempt := j.Attempt
	now := s.now()
	if err := j.Transition(trigger, now); err != nil {
		s.logger.Error().Err(err).Str("job_id", j.ID).Msg("Finish rejected")
		s.dispatchLocked()
		return
	}
	if failure != nil {
		j.LastError = failure.Error()
	}

	logger := s.logger.With().Str("job_id", j.ID).Int("attempt", failedAttempt).Logger()
	switch j.State {
	case job.StateQueued:
		delay := s.backoff.Delay(failedAttempt)
		l.delayed++
		id := j.ID
		e.retry = time.AfterFunc(delay, func() { s.requeue(id) })

		s.observer.JobRetried(l.name)
		s.emitLocked(j, event.Retrying, RetryingPayload{
			Attempt: j.Attempt,
			Delay:   delay,
			DelayMS: delay.Milliseconds(),
			Error:   j.LastError,
		})
		s.saveLocked(j, "warn", fmt.Sprintf("attempt %d failed: %s; retrying in %s", failedAttempt, j.LastError, delay))
		logger.Warn().Str("error", j.LastError).Dur("delay", delay).Msg("Attempt failed, retry scheduled")

	case job.StateCompleted:
		l.completed++
		s.emitLocked(j, event.Completed, s.finishedPayload(j, o.result.ExitCode, o.result.DurationMS))
		s.saveLocked(j, "info", fmt.Sprintf("job completed with %d credential(s)", j.Credentials))
		logger.Info().Int("credentials", j.Credentials).Dur("duration", o.result.Duration).Msg("Job completed")
		close(e.done)

	case job.StateFailed:
		l.failed++
		s.emitLocked(j, event.Failed, s.finishedPayload(j, o.result.ExitCode, o.result.DurationMS))
		s.saveLocked(j, "error", fmt.Sprintf("job failed: %s", j.LastError))
		if tail := outputTail(o.result.Output); tail != "" {
			s.appendLogLocked(j.ID, "debug", tail)
		}
		logger.Error().Str("error", j.LastError).Msg("Job failed")
		close(e.done)

	case job.StateCancelled:
		l.cancelled++
		s.emitLocked(j, event.Cancelled, s.finishedPayload(j, o.result.ExitCode, o.result.DurationMS))
		s.saveLocked(j, "info", fmt.Sprintf("job cancelled: %s", j.LastError))
		logger.Info().Str("reason", j.LastError).Msg("Running job cancelled")
		close(e.done)
	}

	s.observer.JobFinished(l.name, j.State, o.result.Duration)
	s.dispatchLocked()
}

// classify maps an attempt outcome to a trigger. The exit status alone
// decides success; credentials found on the way do not.
func (s *Scheduler) classify(e *entry, o outcome) (job.Trigger, error) {
	switch {
	case e.cancelRequested:
		return job.TriggerCancel, ErrCancelled
	case o.result.Cancelled, o.err != nil && e.attemptCtx.Err() != nil:
		// the scheduler itself is going away
		return job.TriggerCancel, ErrStopped
	case o.err != nil:
		return job.TriggerFail, &ExecutionError{Err: o.err}
	case o.result.TimedOut:
		return job.TriggerTimeout, &TimeoutError{Timeout: e.job.Spec.Timeout}
	case o.result.Success():
		return job.TriggerSucceed, nil
	default:
		return job.TriggerFail, &ExecutionError{ExitCode: o.result.ExitCode}
	}
}

// requeue moves a job out of its retry delay onto the tail of its lane.
func (s *Scheduler) requeue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.retry == nil || e.job.State != job.StateQueued {
		return
	}
	e.retry = nil
	s.lanes[e.job.Lane].delayed--
	s.enqueueLocked(e)
	s.logger.Debug().Str("job_id", id).Int("attempt", e.job.Attempt).Msg("Job re-queued")
	s.dispatchLocked()
}

func (s *Scheduler) finishedPayload(j *job.Job, exitCode *int, durationMS int64) FinishedPayload {
	return FinishedPayload{
		Attempt:     j.Attempt,
		ExitCode:    exitCode,
		DurationMS:  durationMS,
		Credentials: j.Credentials,
		Error:       j.LastError,
	}
}

func (s *Scheduler) emitLocked(j *job.Job, typ event.Type, payload any) {
	s.bus.Publish(event.Event{
		JobID:   j.ID,
		Type:    typ,
		Time:    s.now(),
		Payload: payload,
	})
}

const maxLoggedOutput = 2048

func outputTail(out string) string {
	if len(out) <= maxLoggedOutput {
		return out
	}
	return out[len(out)-maxLoggedOutput:]
}
