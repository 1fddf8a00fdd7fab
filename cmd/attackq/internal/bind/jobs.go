// Package bind turns command flags into validated option structs.
package bind

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/storage"
)

var errSpoolDir = errors.New("spool is enabled but no spool directory is set")

var knownStates = []job.State{
	job.StateQueued,
	job.StateRunning,
	job.StateCompleted,
	job.StateFailed,
	job.StateCancelled,
}

// ListOptions holds the filter of `attackq job list`.
type ListOptions struct {
	Filter storage.JobFilter
	All    bool
}

// BindListOptions reads --state (repeatable or comma separated), --limit,
// --cursor and --all.
func BindListOptions(cmd *cobra.Command) (ListOptions, error) {
	raw, _ := cmd.Flags().GetStringSlice("state")
	limit, _ := cmd.Flags().GetInt("limit")
	cursor, _ := cmd.Flags().GetString("cursor")
	all, _ := cmd.Flags().GetBool("all")

	states, err := ParseStates(raw)
	if err != nil {
		return ListOptions{}, err
	}
	if limit < 0 || limit > 1000 {
		return ListOptions{}, &job.ValidationError{Field: "limit", Reason: "must be between 0 and 1000"}
	}
	if cursor != "" {
		if _, err := storage.DecodeCursor(cursor); err != nil {
			return ListOptions{}, &job.ValidationError{Field: "cursor", Reason: "not a valid page cursor"}
		}
	}

	return ListOptions{
		Filter: storage.JobFilter{States: states, Limit: limit, Cursor: cursor},
		All:    all,
	}, nil
}

// ParseStates validates state names. Duplicates are dropped.
func ParseStates(raw []string) ([]job.State, error) {
	var states []job.State
	for _, r := range raw {
		s := job.State(strings.ToLower(strings.TrimSpace(r)))
		if s == "" {
			continue
		}
		if !slices.Contains(knownStates, s) {
			return nil, &job.ValidationError{
				Field:  "state",
				Reason: fmt.Sprintf("unknown state %q (valid: %s)", r, joinStates(knownStates)),
			}
		}
		if !slices.Contains(states, s) {
			states = append(states, s)
		}
	}
	return states, nil
}

func joinStates(states []job.State) string {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
