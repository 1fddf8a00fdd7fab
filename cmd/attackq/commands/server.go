package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vulntor/attackq/cmd/attackq/internal/bind"
	"github.com/vulntor/attackq/pkg/config"
	"github.com/vulntor/attackq/pkg/logging"
	"github.com/vulntor/attackq/pkg/metrics"
	"github.com/vulntor/attackq/pkg/scheduler"
	serversvc "github.com/vulntor/attackq/pkg/server"
	"github.com/vulntor/attackq/pkg/server/app"
	"github.com/vulntor/attackq/pkg/spool"
)

const serverOperation = "start server"

// newServerCommand creates the 'attackq server' command.
//
// The server hosts the scheduler behind the HTTP API in a single process:
//   - REST endpoints under /api/v1 (jobs, credentials, logs, stats)
//   - the /api/v1/events server-sent event stream
//   - /healthz, /readyz and /metrics
//   - the optional spool directory watcher
//
// It runs until interrupted (SIGINT/SIGTERM), then shuts down gracefully:
// event streams end, HTTP drains, running attacks are cancelled and the
// store is closed. SIGUSR1 re-opens the log file.
//
// Example usage:
//
//	attackq server
//	attackq server --server.addr 0.0.0.0 --server.port 9090
//	attackq server --spool --scheduler.max_concurrent 8
func newServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "server",
		Short:   "Run the scheduler behind the HTTP API",
		GroupID: "core",
		Args:    cobra.NoArgs,
		Long: `Start the attackq server process.

Jobs left queued or running by a previous process are restored from the
store and run again. The server runs until interrupted (Ctrl+C), then cancels
running attacks and shuts down cleanly. Queued jobs stay queued in the store
for the next start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings(cmd.Context())
			if err != nil {
				return fail(cmd, serverOperation, fmt.Errorf("%w: %w", serversvc.ErrConfigUnavailable, err))
			}

			opts, err := bind.BindServerOptions(cmd, cfg)
			if err != nil {
				return fail(cmd, serverOperation, err)
			}
			if err := cfg.Validate(); err != nil {
				return fail(cmd, serverOperation, serversvc.WrapInvalidConfig(err))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cmd, cfg, opts)
		},
	}

	cmd.Flags().Bool("skip-tool-check", false, "Start even if the attack tool is missing or too old")
	cmd.Flags().Bool("spool", false, "Watch the spool directory for job files")
	config.BindServerFlags(cmd.Flags())
	config.BindSchedulerFlags(cmd.Flags())

	return cmd
}

func serve(ctx context.Context, cmd *cobra.Command, cfg config.Config, opts bind.ServerOptions) error {
	logger := logging.NewLogger("server", zerolog.GlobalLevel())

	if !opts.SkipToolCheck {
		info, err := cfg.Tool.Builder().CheckVersion(ctx, cfg.Tool.Runner(logger), cfg.Tool.VersionConstraint)
		if err != nil {
			return fail(cmd, serverOperation, serversvc.WrapToolCheck(err))
		}
		logger.Info().Str("path", info.Path).Stringer("version", info.Version).Msg("Attack tool found")
	}

	collector := metrics.NewCollector()
	rt, err := openStack(ctx, cfg, scheduler.WithObserver(collector))
	if err != nil {
		if !isServerError(err) {
			err = serversvc.WrapAppInit(err)
		}
		return fail(cmd, serverOperation, err)
	}
	defer func() {
		// the app already closed the store and the bus; this releases the lock
		if err := rt.close(); err != nil {
			logger.Warn().Err(err).Msg("Cleanup failed")
		}
	}()

	deps := &app.Deps{
		Scheduler: rt.sched,
		Storage:   rt.store,
		Bus:       rt.bus,
		Metrics:   collector.Handler(),
		Logger:    logger,
	}
	if opts.Spool.Enabled {
		w, err := spool.New(opts.Spool.Dir, rt.sched,
			spool.WithDebounce(opts.Spool.Debounce),
			spool.WithLogger(logger),
		)
		if err != nil {
			return fail(cmd, serverOperation, serversvc.WrapAppInit(err))
		}
		deps.Spool = w
	}

	serverApp, err := app.New(ctx, opts.Server, deps)
	if err != nil {
		return fail(cmd, serverOperation, serversvc.WrapAppInit(err))
	}

	var reopen func() error
	if sink := logSinkFrom(ctx); sink != nil {
		reopen = sink.Reopen
	}
	sigCtx, cancelSignals := context.WithCancel(ctx)
	signals := serversvc.NewServer(reopen)
	signals.Start(sigCtx)
	defer func() {
		cancelSignals()
		signals.Close()
	}()

	if err := serverApp.Run(ctx); err != nil {
		return fail(cmd, serverOperation, serversvc.WrapRuntime(err))
	}
	return nil
}
