// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package spool turns a directory into a submission inbox: job files dropped
// into it are parsed, submitted and moved to processed/ or rejected/.
package spool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/jobfile"
)

const (
	// DefaultDebounce is the quiet period after the last write before a file
	// is read.
	DefaultDebounce = 500 * time.Millisecond

	ProcessedDir = "processed"
	RejectedDir  = "rejected"
)

// Submitter accepts job specs. *scheduler.Scheduler satisfies it.
type Submitter interface {
	Submit(spec job.Spec) (job.Handle, error)
}

// Result describes one processed file.
type Result struct {
	File      string
	MovedTo   string
	Submitted []job.Handle
	Errors    []error
}

// Rejected reports whether the file went to rejected/.
func (r Result) Rejected() bool {
	return len(r.Errors) > 0
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounceDelay = d
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l.With().Str("component", "spool").Logger()
	}
}

// WithResultHandler is called after every processed file.
func WithResultHandler(fn func(Result)) Option {
	return func(w *Watcher) {
		w.onResult = fn
	}
}

// Watcher watches a spool directory for job files.
type Watcher struct {
	dir           string
	submit        Submitter
	watcher       *fsnotify.Watcher
	debounceDelay time.Duration
	logger        zerolog.Logger
	onResult      func(Result)
	now           func() time.Time

	// mu protects the per-file debounce timers
	mu      sync.Mutex
	timers  map[string]*time.Timer
	closed  bool
	pending sync.WaitGroup
}

// New prepares dir (and its processed/ and rejected/ subdirectories) and
// creates a watcher submitting to submit.
func New(dir string, submit Submitter, opts ...Option) (*Watcher, error) {
	if submit == nil {
		return nil, errors.New("spool: nil submitter")
	}
	for _, sub := range []string{dir, filepath.Join(dir, ProcessedDir), filepath.Join(dir, RejectedDir)} {
		if err := os.MkdirAll(sub, 0o750); err != nil {
			return nil, fmt.Errorf("create spool dir: %w", err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:           dir,
		submit:        submit,
		watcher:       fsw,
		debounceDelay: DefaultDebounce,
		logger:        zerolog.Nop(),
		now:           time.Now,
		timers:        make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start processes files already in the directory, then watches for new ones.
// It blocks until ctx is cancelled and returns nil on cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		w.logger.Error().
			Err(err).
			Str("dir", w.dir).
			Msg("Failed to watch spool directory")
		return err
	}

	w.logger.Info().
		Str("dir", w.dir).
		Dur("debounce", w.debounceDelay).
		Msg("Started watching spool directory")

	defer func() {
		w.stopTimers()
		w.pending.Wait()
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Error closing watcher")
		}
		w.logger.Info().Msg("Stopped watching spool directory")
	}()

	if _, err := w.ScanOnce(); err != nil {
		w.logger.Warn().Err(err).Msg("Initial spool scan failed")
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Dir(event.Name) != filepath.Clean(w.dir) || !jobfile.Supported(event.Name) {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.logger.Debug().
					Str("op", event.Op.String()).
					Str("file", event.Name).
					Msg("Detected job file")
				w.schedule(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().
				Err(err).
				Msg("File watcher error")
		}
	}
}

// ScanOnce processes every job file currently in the spool directory, in
// name order.
func (w *Watcher) ScanOnce() ([]Result, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read spool dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && jobfile.Supported(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		results = append(results, w.Process(filepath.Join(w.dir, name)))
	}
	return results, nil
}

// schedule (re)arms the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if t, ok := w.timers[path]; ok {
		if t.Stop() {
			w.pending.Done()
		}
	}

	w.pending.Add(1)
	w.timers[path] = time.AfterFunc(w.debounceDelay, func() {
		defer w.pending.Done()
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.Process(path)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for path, t := range w.timers {
		if t.Stop() {
			w.pending.Done()
		}
		delete(w.timers, path)
	}
}

// Process submits every spec in path and moves the file. A file is rejected
// when it cannot be parsed or when any of its specs fails validation; specs
// accepted before the failure stay submitted.
func (w *Watcher) Process(path string) Result {
	res := Result{File: path}
	if _, err := os.Stat(path); err != nil {
		// Already moved by an earlier event for the same file.
		return res
	}

	specs, err := jobfile.Load(path)
	if err != nil {
		res.Errors = append(res.Errors, err)
	}
	for i, spec := range specs {
		h, err := w.submit.Submit(spec)
		if err != nil {
			res.Errors = append(res.Errors, &jobfile.EntryError{Index: i, Err: err})
			continue
		}
		res.Submitted = append(res.Submitted, h)
	}

	target := ProcessedDir
	if res.Rejected() {
		target = RejectedDir
	}
	moved, err := w.move(path, target)
	if err != nil {
		w.logger.Error().Err(err).Str("file", path).Msg("Failed to move job file")
	}
	res.MovedTo = moved
	if res.Rejected() && moved != "" {
		w.writeReasons(moved, res.Errors)
	}

	ev := w.logger.Info()
	if res.Rejected() {
		ev = w.logger.Warn().Errs("errors", res.Errors)
	}
	ev.Str("file", filepath.Base(path)).
		Int("submitted", len(res.Submitted)).
		Str("moved_to", moved).
		Msg("Processed job file")

	if w.onResult != nil {
		w.onResult(res)
	}
	return res
}

func (w *Watcher) move(path, sub string) (string, error) {
	name := w.now().UTC().Format("20060102T150405.000") + "-" + filepath.Base(path)
	dst := filepath.Join(w.dir, sub, name)
	if err := os.Rename(path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (w *Watcher) writeReasons(moved string, errs []error) {
	var b strings.Builder
	for _, err := range errs {
		b.WriteString(err.Error())
		b.WriteByte('\n')
	}
	if err := os.WriteFile(moved+".err", []byte(b.String()), 0o640); err != nil {
		w.logger.Warn().Err(err).Str("file", moved).Msg("Failed to write rejection reasons")
	}
}

// Close releases the watcher without waiting for Start to return.
func (w *Watcher) Close() error {
	w.stopTimers()
	return w.watcher.Close()
}
