package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vulntor/attackq/pkg/config"
	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/server/api"
	"github.com/vulntor/attackq/pkg/server/httpx"
	"github.com/vulntor/attackq/pkg/storage"
)

const defaultShutdownTimeout = 30 * time.Second

// App orchestrates the server runtime components:
// - HTTP server (API, events, metrics)
// - Job scheduler and the optional spool watcher
// - Lifecycle management
type App struct {
	HTTP      *http.Server
	Scheduler Scheduler
	Ready     *atomic.Bool
	Config    config.ServerConfig
	Deps      *Deps

	addr atomic.Value
}

// New creates and configures a new server application. Jobs left queued or
// running by a previous process are restored into the scheduler.
func New(ctx context.Context, cfg config.ServerConfig, deps *Deps) (*App, error) {
	deps.Logger.Info().Msg("Initializing server application")

	if deps.Scheduler == nil || deps.Storage == nil {
		return nil, errors.New("server requires a scheduler and a storage backend")
	}

	restored, err := restore(ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("restore jobs: %w", err)
	}
	if restored > 0 {
		deps.Logger.Info().Int("jobs", restored).Msg("Restored unfinished jobs")
	}

	apiCfg := api.DefaultConfig()
	apiCfg.HandlerTimeout = cfg.HandlerTimeout
	if err := apiCfg.Validate(); err != nil {
		return nil, err
	}

	ready := &atomic.Bool{}
	apiDeps := &api.Deps{
		Jobs:    deps.Scheduler,
		Storage: deps.Storage,
		Bus:     deps.Bus,
		Config:  apiCfg,
		Ready:   ready,
	}

	router := httpx.NewRouter(cfg, apiDeps, deps.Metrics)

	if cfg.Auth.Mode == "none" || cfg.Auth.Mode == "" {
		deps.Logger.Warn().Msg("API authentication disabled")
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.Port)),
		Handler:           httpx.Chain(cfg, router),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return &App{
		HTTP:      httpServer,
		Scheduler: deps.Scheduler,
		Ready:     ready,
		Config:    cfg,
		Deps:      deps,
	}, nil
}

// restore feeds every queued or running job from storage back into the
// scheduler.
func restore(ctx context.Context, deps *Deps) (int, error) {
	filter := storage.JobFilter{
		States: []job.State{job.StateQueued, job.StateRunning},
		Limit:  storage.DefaultPageSize,
	}

	var pending []job.Job
	for {
		page, err := deps.Storage.ListJobs(ctx, filter)
		if err != nil {
			return 0, err
		}
		pending = append(pending, page.Jobs...)
		if page.NextCursor == "" {
			break
		}
		filter.Cursor = page.NextCursor
	}
	if len(pending) == 0 {
		return 0, nil
	}
	return deps.Scheduler.Restore(pending)
}

// Addr returns the bound listen address once Run has started listening.
func (a *App) Addr() string {
	if v, ok := a.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Run starts the server and blocks until ctx is cancelled or a component
// fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.HTTP.Addr, err)
	}
	a.addr.Store(ln.Addr().String())

	a.Deps.Logger.Info().
		Str("addr", ln.Addr().String()).
		Bool("metrics", a.Config.MetricsEnabled && a.Deps.Metrics != nil).
		Bool("events", a.Deps.Bus != nil).
		Bool("spool", a.Deps.Spool != nil).
		Msg("Starting attackq server")

	// Shutdown order is driven by shutdown(), not by ctx.
	if err := a.Scheduler.Start(context.WithoutCancel(ctx)); err != nil {
		_ = ln.Close()
		return fmt.Errorf("start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.HTTP.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	if a.Deps.Spool != nil {
		g.Go(func() error {
			return a.Deps.Spool.Start(gctx)
		})
	}

	// Mark as ready
	a.Ready.Store(true)
	a.Deps.Logger.Info().Msg("Server is ready and accepting connections")

	<-gctx.Done()
	if ctx.Err() != nil {
		a.Deps.Logger.Info().Msg("Shutdown signal received")
	}

	shutdownErr := a.shutdown()
	if err := g.Wait(); err != nil {
		a.Deps.Logger.Error().Err(err).Msg("Server error")
		return err
	}
	return shutdownErr
}

// shutdown performs graceful shutdown of all components.
func (a *App) shutdown() error {
	a.Deps.Logger.Info().Msg("Initiating graceful shutdown")

	timeout := a.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Mark as not ready
	a.Ready.Store(false)

	// Event streams never go idle on their own.
	if a.Deps.Bus != nil {
		a.Deps.Bus.Close()
	}

	var errs []error

	a.Deps.Logger.Info().Msg("Shutting down HTTP server...")
	if err := a.HTTP.Shutdown(shutdownCtx); err != nil {
		a.Deps.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	} else {
		a.Deps.Logger.Info().Msg("HTTP server stopped")
	}

	a.Deps.Logger.Info().Msg("Stopping scheduler...")
	if err := a.Scheduler.Stop(shutdownCtx); err != nil {
		a.Deps.Logger.Error().Err(err).Msg("Scheduler shutdown failed")
		errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
	} else {
		a.Deps.Logger.Info().Msg("Scheduler stopped")
	}

	a.Deps.Logger.Info().Msg("Closing storage backend...")
	if err := a.Deps.Storage.Close(); err != nil {
		a.Deps.Logger.Error().Err(err).Msg("Storage close failed")
		errs = append(errs, fmt.Errorf("storage close: %w", err))
	} else {
		a.Deps.Logger.Info().Msg("Storage backend closed")
	}

	a.Deps.Logger.Info().Msg("Server shutdown complete")
	return errors.Join(errs...)
}
