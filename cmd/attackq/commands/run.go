package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vulntor/attackq/cmd/attackq/internal/format"
	"github.com/vulntor/attackq/pkg/config"
	"github.com/vulntor/attackq/pkg/event"
	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/jobfile"
	"github.com/vulntor/attackq/pkg/scheduler"
	"github.com/vulntor/attackq/pkg/spool"
)

const runOperation = "run jobs"

func newRunCommand() *cobra.Command {
	var (
		files []string
		watch bool
	)

	cmd := &cobra.Command{
		Use:     "run -f FILE [-f FILE]... [--watch]",
		Short:   "Run the jobs in one or more job files",
		GroupID: "jobs",
		Args:    cobra.NoArgs,
		Long: `Run the jobs listed in YAML or JSON job files and stream their events.

Every job in every file is validated before anything starts; a single invalid
entry aborts the run. Without --watch the command returns once every job is
terminal and exits non-zero if any of them did not complete. With --watch it
also submits job files dropped into the spool directory and keeps running
until interrupted.`,
		Example: `  attackq run -f jobs.yaml
  attackq run -f ssh.yaml -f ftp.yaml --scheduler.max_concurrent 2
  attackq run --watch --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings(cmd.Context())
			if err != nil {
				return fail(cmd, runOperation, err)
			}
			if len(files) == 0 && !watch {
				return fail(cmd, runOperation, &job.ValidationError{Field: "file", Reason: "pass at least one -f FILE or --watch"})
			}
			if watch && cfg.Spool.Dir == "" {
				return fail(cmd, runOperation, &job.ValidationError{Field: "spool.dir", Reason: "--watch needs a spool directory"})
			}

			specs, err := loadJobFiles(files)
			if err != nil {
				return fail(cmd, runOperation, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := runJobs(ctx, cmd, cfg, specs, watch)
			if err != nil {
				return fail(cmd, runOperation, err)
			}
			switch {
			case ctx.Err() != nil && !watch:
				return fail(cmd, runOperation, fmt.Errorf("interrupted: %w", scheduler.ErrStopped))
			case watch && summary.Count(job.StateFailed) > 0, !watch && !summary.Success():
				return fail(cmd, runOperation, ErrJobsFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Job file to run (repeatable)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Also submit job files dropped into the spool directory")
	cmd.Flags().String("spool.dir", "", "Spool directory watched with --watch (defaults to <workspace>/spool)")
	config.BindSchedulerFlags(cmd.Flags())

	return cmd
}

// loadJobFiles reads and validates every spec up front so a bad entry
// fails the run before any attack starts.
func loadJobFiles(paths []string) ([]job.Spec, error) {
	var specs []job.Spec
	for _, path := range paths {
		loaded, err := jobfile.Load(path)
		if err != nil {
			if errors.Is(err, job.ErrValidation) {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			return nil, fmt.Errorf("%w: %s: %w", job.ErrValidation, path, err)
		}
		for i, spec := range loaded {
			if _, _, err := job.Validate(spec); err != nil {
				return nil, fmt.Errorf("%s: %w", path, &jobfile.EntryError{Index: i, Err: err})
			}
		}
		specs = append(specs, loaded...)
	}
	return specs, nil
}

// runJobs submits specs, streams events until the jobs are done (or ctx is
// cancelled in watch mode) and returns the outcome of every job it saw.
func runJobs(ctx context.Context, cmd *cobra.Command, cfg config.Config, specs []job.Spec, watch bool) (format.RunSummary, error) {
	f := format.FromCommand(cmd)

	rt, err := openStack(ctx, cfg)
	if err != nil {
		return format.RunSummary{}, err
	}
	defer func() {
		if err := rt.close(); err != nil {
			rt.logger.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	sub := rt.bus.Subscribe()
	handles := make([]job.Handle, 0, len(specs))
	for _, spec := range specs {
		h, err := rt.sched.Submit(spec)
		if err != nil {
			return format.RunSummary{}, err
		}
		handles = append(handles, h)
	}
	if len(handles) > 0 {
		_ = f.PrintSummary(fmt.Sprintf("Queued %d %s", len(handles), plural(len(handles), "job", "jobs")))
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		event.Forward(context.Background(), sub, func(evt event.Event) {
			_ = f.PrintEvent(evt)
		})
	}()

	if err := rt.sched.Start(context.WithoutCancel(ctx)); err != nil {
		rt.bus.Close()
		<-printed
		return format.RunSummary{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	if watch {
		w, err := spool.New(cfg.Spool.Dir, rt.sched,
			spool.WithDebounce(cfg.Spool.Debounce),
			spool.WithLogger(rt.logger),
		)
		if err != nil {
			_ = rt.sched.Stop(context.Background())
			rt.bus.Close()
			<-printed
			return format.RunSummary{}, err
		}
		g.Go(func() error { return w.Start(gctx) })
	}
	g.Go(func() error {
		for _, h := range handles {
			if _, err := rt.sched.Wait(gctx, h.ID); err != nil {
				return err
			}
		}
		if watch {
			<-gctx.Done()
		}
		return nil
	})
	waitErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	stopErr := rt.sched.Stop(stopCtx)
	rt.bus.Close()
	<-printed

	summary := collectSummary(context.WithoutCancel(ctx), rt)
	if err := f.PrintRunSummary(summary); err != nil {
		rt.logger.Warn().Err(err).Msg("failed to print summary")
	}

	if waitErr != nil && ctx.Err() == nil {
		return summary, waitErr
	}
	return summary, stopErr
}

// collectSummary gathers final job states from the scheduler and their
// credentials from the store.
func collectSummary(ctx context.Context, rt *stack) format.RunSummary {
	jobs := rt.sched.List()
	slices.SortFunc(jobs, func(a, b job.Job) int {
		if c := a.QueuedAt.Compare(b.QueuedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	var creds []extract.Record
	for _, j := range jobs {
		if j.Credentials == 0 {
			continue
		}
		recs, err := rt.store.ListCredentials(ctx, j.ID)
		if err != nil {
			rt.logger.Warn().Err(err).Str("job_id", j.ID).Msg("failed to read credentials")
			continue
		}
		creds = append(creds, recs...)
	}
	return format.RunSummary{Jobs: jobs, Credentials: creds}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
