// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package storage persists jobs, their log lines and the credentials they
// found. Backends are selected by driver name through a factory registry.
package storage

import (
	"context"
	"time"

	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
)

// Log levels accepted by AppendLog.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// DefaultPageSize is used by ListJobs when the filter carries no limit.
const DefaultPageSize = 100

// LogEntry is one line of a job's audit log.
type LogEntry struct {
	Seq     int64     `json:"seq"`
	JobID   string    `json:"job_id"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// JobFilter selects jobs for ListJobs. An empty States matches every state.
type JobFilter struct {
	States []job.State
	Limit  int
	// Cursor is the opaque NextCursor of a previous page.
	Cursor string
}

// JobPage is one page of ListJobs results, oldest first.
type JobPage struct {
	Jobs       []job.Job `json:"jobs"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// Backend is the persistence boundary. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Initialize prepares the backend (creates tables, runs migrations).
	Initialize(ctx context.Context) error
	// Close releases resources. Further calls return ErrClosed.
	Close() error

	// SaveJob inserts or replaces the job record.
	SaveJob(ctx context.Context, j job.Job) error
	// LoadJob returns a *NotFoundError for unknown ids.
	LoadJob(ctx context.Context, id string) (job.Job, error)
	ListJobs(ctx context.Context, f JobFilter) (JobPage, error)

	AppendLog(ctx context.Context, jobID, level, message string) error
	Logs(ctx context.Context, jobID string) ([]LogEntry, error)

	// SaveCredential stores rec once per job; duplicates are ignored.
	SaveCredential(ctx context.Context, rec extract.Record) error
	// ListCredentials returns the credentials of jobID, or of every job when
	// jobID is empty, in the order they were found.
	ListCredentials(ctx context.Context, jobID string) ([]extract.Record, error)
}

func validLevel(level string) bool {
	switch level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return limit
}
