// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
)

const maxErrorsToShow = 5

// RunSummary is the outcome of a batch of jobs.
type RunSummary struct {
	Jobs        []job.Job
	Credentials []extract.Record
}

// Count returns the number of jobs in state.
func (s RunSummary) Count(state job.State) int {
	n := 0
	for _, j := range s.Jobs {
		if j.State == state {
			n++
		}
	}
	return n
}

// Success reports whether every job completed.
func (s RunSummary) Success() bool {
	return s.Count(job.StateCompleted) == len(s.Jobs)
}

// PrintRunSummary prints counts, unfinished jobs and found credentials.
// Example output:
//
//	Summary:
//	  ✓ Completed: 2
//	  ✗ Failed:    1
//	  Credentials: 1
//
//	Failed jobs:
//	  - 6f1c2a9e: exit status 255
//
//	HOST       PORT  SERVICE  LOGIN  PASSWORD  JOB
//	192.0.2.5  22    ssh      root   toor      2b7e4c11
func (f *formatter) PrintRunSummary(summary RunSummary) error {
	if f.mode == ModeJSON {
		return f.PrintJSON(map[string]any{
			"success":     summary.Success(),
			"completed":   summary.Count(job.StateCompleted),
			"failed":      summary.Count(job.StateFailed),
			"cancelled":   summary.Count(job.StateCancelled),
			"jobs":        nonNil(summary.Jobs),
			"credentials": nonNil(summary.Credentials),
		})
	}
	if f.quiet && len(summary.Credentials) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("\nSummary:\n")
	f.writeCount(&sb, color.GreenString, "✓ Completed:", summary.Count(job.StateCompleted))
	f.writeCount(&sb, color.RedString, "✗ Failed:   ", summary.Count(job.StateFailed))
	f.writeCount(&sb, color.YellowString, "⚠ Cancelled:", summary.Count(job.StateCancelled))
	f.writeCount(&sb, color.YellowString, "… Unfinished:", summary.Count(job.StateQueued)+summary.Count(job.StateRunning))
	sb.WriteString(fmt.Sprintf("  Credentials: %d\n", len(summary.Credentials)))

	shown := 0
	for _, j := range summary.Jobs {
		if j.State != job.StateFailed && j.State != job.StateCancelled {
			continue
		}
		if shown == 0 {
			sb.WriteString("\nFailed jobs:\n")
		}
		if shown == maxErrorsToShow {
			sb.WriteString("  ... (use --output json for the full list)\n")
			break
		}
		reason := j.LastError
		if reason == "" {
			reason = string(j.State)
		}
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", shortID(j.ID), reason))
		shown++
	}
	if _, err := f.stdout.Write([]byte(sb.String())); err != nil {
		return err
	}

	if len(summary.Credentials) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(f.stdout); err != nil {
		return err
	}
	return f.PrintTable(CredentialHeaders, CredentialRows(summary.Credentials))
}

func (f *formatter) writeCount(sb *strings.Builder, paint func(string, ...any) string, label string, n int) {
	if n == 0 {
		return
	}
	line := fmt.Sprintf("  %s %d\n", label, n)
	if f.color {
		line = paint("%s", line)
	}
	sb.WriteString(line)
}

// CredentialHeaders are the columns of CredentialRows.
var CredentialHeaders = []string{"Host", "Port", "Service", "Login", "Password", "Job"}

// CredentialRows renders records as table rows. Unknown ports show as "-".
func CredentialRows(recs []extract.Record) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		port := "-"
		if r.Port > 0 {
			port = strconv.Itoa(r.Port)
		}
		rows = append(rows, []string{r.Host, port, r.Service, r.Username, r.Password, shortID(r.SourceJobID)})
	}
	return rows
}

// PrintTotalFailureSummary prints total failure with error and suggestions
// Example output:
//
//	✗ Failed to start server: workspace is locked by another attackq instance
//
//	💡 Suggestions:
//	  → Another attackq process is using this workspace
func (f *formatter) PrintTotalFailureSummary(operation string, err error, errorCode string, suggestions ...string) error {
	if f.quiet && f.mode != ModeJSON {
		return nil
	}

	if f.mode == ModeJSON {
		return f.PrintJSON(map[string]any{
			"success":     false,
			"operation":   operation,
			"error":       err.Error(),
			"error_code":  errorCode,
			"suggestions": nonNil(suggestions),
		})
	}

	var sb strings.Builder

	errorMsg := fmt.Sprintf("✗ Failed to %s: %v", operation, err)
	if f.color {
		sb.WriteString(color.RedString("%s\n", errorMsg))
	} else {
		sb.WriteString(errorMsg + "\n")
	}

	if len(suggestions) > 0 {
		sb.WriteString("\n💡 Suggestions:\n")
		for _, s := range suggestions {
			sb.WriteString(fmt.Sprintf("  → %s\n", s))
		}
	}

	_, writeErr := f.stderr.Write([]byte(sb.String()))
	return writeErr
}

// ReportedError marks an error whose failure summary was already printed.
type ReportedError struct {
	Err error
}

func (e *ReportedError) Error() string { return e.Err.Error() }
func (e *ReportedError) Unwrap() error { return e.Err }

// Reported wraps err so main does not print it a second time.
func Reported(err error) error {
	if err == nil {
		return nil
	}
	return &ReportedError{Err: err}
}

// IsReported reports whether err was already shown to the user.
func IsReported(err error) bool {
	var r *ReportedError
	return errors.As(err, &r)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
