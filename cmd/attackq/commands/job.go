package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vulntor/attackq/cmd/attackq/internal/bind"
	"github.com/vulntor/attackq/cmd/attackq/internal/format"
	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/scheduler"
	"github.com/vulntor/attackq/pkg/server"
	"github.com/vulntor/attackq/pkg/storage"
)

func newJobCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "job",
		Short:   "Inspect stored jobs",
		GroupID: "jobs",
	}
	cmd.AddCommand(newJobShowCommand())
	cmd.AddCommand(newJobListCommand())
	return cmd
}

func newJobShowCommand() *cobra.Command {
	var withLogs bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job, its credentials and optionally its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "show job"
			id := args[0]

			store, err := openReadStore(cmd.Context())
			if err != nil {
				return fail(cmd, op, err)
			}
			defer store.Close()

			ctx := cmd.Context()
			j, err := store.LoadJob(ctx, id)
			if err != nil {
				if storage.IsNotFound(err) {
					err = scheduler.NewNotFoundError(id)
				}
				return fail(cmd, op, err)
			}
			creds, err := store.ListCredentials(ctx, id)
			if err != nil {
				return fail(cmd, op, err)
			}
			var logs []storage.LogEntry
			if withLogs {
				if logs, err = store.Logs(ctx, id); err != nil {
					return fail(cmd, op, err)
				}
			}

			f := format.FromCommand(cmd)
			if f.Mode() == format.ModeJSON {
				out := map[string]any{"job": j, "credentials": creds}
				if withLogs {
					out["logs"] = logs
				}
				return f.PrintJSON(out)
			}

			if err := f.PrintTable([]string{"Field", "Value"}, jobDetailRows(j)); err != nil {
				return err
			}
			if len(creds) > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
				if err := f.PrintTable(format.CredentialHeaders, format.CredentialRows(creds)); err != nil {
					return err
				}
			}
			if withLogs && len(logs) > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
				rows := make([][]string, 0, len(logs))
				for _, e := range logs {
					rows = append(rows, []string{e.At.Format(time.RFC3339), e.Level, e.Message})
				}
				return f.PrintTable([]string{"Time", "Level", "Message"}, rows)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withLogs, "logs", false, "Include the job's log")
	return cmd
}

func newJobListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored jobs, oldest first",
		Args:  cobra.NoArgs,
		Example: `  attackq job list
  attackq job list --state failed,cancelled
  attackq job list --state queued --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "list jobs"

			opts, err := bind.BindListOptions(cmd)
			if err != nil {
				return fail(cmd, op, err)
			}

			store, err := openReadStore(cmd.Context())
			if err != nil {
				return fail(cmd, op, err)
			}
			defer store.Close()

			var (
				jobs []job.Job
				next string
			)
			filter := opts.Filter
			for {
				page, err := store.ListJobs(cmd.Context(), filter)
				if err != nil {
					return fail(cmd, op, err)
				}
				jobs = append(jobs, page.Jobs...)
				next = page.NextCursor
				if !opts.All || next == "" {
					break
				}
				filter.Cursor = next
			}

			f := format.FromCommand(cmd)
			if f.Mode() == format.ModeJSON {
				if jobs == nil {
					jobs = []job.Job{}
				}
				return f.PrintJSON(storage.JobPage{Jobs: jobs, NextCursor: next})
			}

			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				rows = append(rows, []string{
					j.ID, j.Spec.Target, string(j.Spec.Type), string(j.Lane), string(j.State),
					strconv.Itoa(j.Attempt), strconv.Itoa(j.Credentials), j.LastError,
				})
			}
			if err := f.PrintTable([]string{"ID", "Target", "Type", "Lane", "State", "Attempt", "Creds", "Last Error"}, rows); err != nil {
				return err
			}
			if next != "" {
				return f.PrintSummary("More jobs: --cursor " + next)
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("state", nil, "Only list jobs in these states (queued, running, completed, failed, cancelled)")
	cmd.Flags().Int("limit", storage.DefaultPageSize, "Jobs per page")
	cmd.Flags().String("cursor", "", "Continue after a previous page")
	cmd.Flags().Bool("all", false, "Follow cursors and list every matching job")
	return cmd
}

// openReadStore opens the configured store without taking the workspace
// lock, so a running server does not block inspection.
func openReadStore(ctx context.Context) (storage.Backend, error) {
	cfg, err := settings(ctx)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewBackend(ctx, &cfg.Storage)
	if err != nil {
		return nil, server.WrapStorageInit(err)
	}
	return store, nil
}

func jobDetailRows(j job.Job) [][]string {
	rows := [][]string{
		{"ID", j.ID},
		{"Target", j.Spec.Target},
		{"Type", string(j.Spec.Type)},
		{"Lane", string(j.Lane)},
		{"State", string(j.State)},
		{"Attempt", fmt.Sprintf("%d/%d", j.Attempt, j.Spec.MaxAttempts)},
		{"Progress", strconv.Itoa(j.Progress) + "%"},
		{"Credentials", strconv.Itoa(j.Credentials)},
		{"Queued", j.QueuedAt.Format(time.RFC3339)},
	}
	if j.StartedAt != nil {
		rows = append(rows, []string{"Started", j.StartedAt.Format(time.RFC3339)})
	}
	if j.FinishedAt != nil {
		rows = append(rows, []string{"Finished", j.FinishedAt.Format(time.RFC3339)})
	}
	if j.LastError != "" {
		rows = append(rows, []string{"Last Error", j.LastError})
	}
	return rows
}
