package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/attackq/cmd/attackq/internal/format"
	"github.com/vulntor/attackq/pkg/config"
	"github.com/vulntor/attackq/pkg/event"
	"github.com/vulntor/attackq/pkg/scheduler"
	"github.com/vulntor/attackq/pkg/server"
	"github.com/vulntor/attackq/pkg/storage"
	"github.com/vulntor/attackq/pkg/workspace"
)

// ErrJobsFailed is returned by run when at least one job did not complete.
var ErrJobsFailed = errors.New("one or more jobs did not complete")

// stack bundles what run and server share: the locked workspace, the
// store, the event bus and the scheduler wired to all of them.
type stack struct {
	cfg    config.Config
	ws     *workspace.Workspace
	store  storage.Backend
	bus    *event.Bus
	sched  *scheduler.Scheduler
	logger zerolog.Logger
}

// openStack locks the workspace (unless disabled), opens the store and
// builds a scheduler. extra options are applied after the defaults.
func openStack(ctx context.Context, cfg config.Config, extra ...scheduler.Option) (*stack, error) {
	rt := &stack{
		cfg:    cfg,
		logger: log.With().Str("component", "cli").Logger(),
	}

	if cfg.Workspace.Dir != "" {
		ws, err := workspace.Open(cfg.Workspace.Dir)
		if err != nil {
			return nil, err
		}
		rt.ws = ws
	}

	store, err := storage.NewBackend(ctx, &cfg.Storage)
	if err != nil {
		_ = rt.ws.Close()
		return nil, server.WrapStorageInit(err)
	}
	rt.store = store
	rt.bus = event.New(cfg.Server.EventBuffer)

	opts := []scheduler.Option{
		scheduler.WithCommandBuilder(cfg.Tool.Builder()),
		scheduler.WithExecutor(cfg.Tool.Runner(log.With().Str("component", "procexec").Logger())),
		scheduler.WithPublisher(rt.bus),
		scheduler.WithStore(store),
		scheduler.WithLogger(log.With().Str("component", "scheduler").Logger()),
	}
	sched, err := scheduler.New(cfg.Scheduler, append(opts, extra...)...)
	if err != nil {
		_ = store.Close()
		_ = rt.ws.Close()
		return nil, err
	}
	rt.sched = sched
	return rt, nil
}

// close releases the store and the workspace lock. The scheduler must have
// been stopped.
func (rt *stack) close() error {
	rt.bus.Close()
	var errs []error
	if err := rt.store.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	if err := rt.ws.Close(); err != nil {
		errs = append(errs, fmt.Errorf("unlock workspace: %w", err))
	}
	return errors.Join(errs...)
}

// fail prints a failure summary for err and marks it as reported.
func fail(cmd *cobra.Command, operation string, err error) error {
	code, hints := describe(err)
	_ = format.FromCommand(cmd).PrintTotalFailureSummary(operation, err, code, hints...)
	return format.Reported(err)
}

// describe picks the error code and hints of the layer err came from.
func describe(err error) (string, []string) {
	switch {
	case errors.Is(err, ErrJobsFailed):
		return "JOBS_FAILED", []string{
			"Inspect a job:             attackq job show <id>",
			"Read its log:              attackq job show <id> --logs",
		}
	case errors.Is(err, config.ErrInvalid):
		return "INVALID_CONFIG", []string{
			"Check configuration values in the config file and ATTACKQ_* variables",
			"Validate config:           attackq doctor",
		}
	case isServerError(err):
		return server.ErrorCode(err), server.Suggestions(err)
	default:
		return scheduler.ErrorCode(err), scheduler.Suggestions(err)
	}
}

func isServerError(err error) bool {
	if errors.Is(err, workspace.ErrLocked) {
		return true
	}
	var coded interface{ Code() string }
	return errors.As(err, &coded) && strings.HasPrefix(coded.Code(), "SERVER_")
}

// ExitCode maps an error returned by the command tree to a process exit code:
//
//	0 success
//	1 general error
//	2 invalid input or configuration
//	3 workspace locked
//	4 job not found
//	5 timeout
//	6 cancelled or interrupted
//	7 storage, tool or server initialization failure
//	8 some jobs did not complete
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrJobsFailed):
		return 8
	case errors.Is(err, config.ErrInvalid):
		return 2
	case isServerError(err):
		return server.ExitCode(err)
	default:
		return scheduler.ExitCode(err)
	}
}
