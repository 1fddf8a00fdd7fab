package app

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/vulntor/attackq/pkg/event"
	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/server/api"
	"github.com/vulntor/attackq/pkg/spool"
	"github.com/vulntor/attackq/pkg/storage"
)

// Scheduler is the job runtime driven by the app. *scheduler.Scheduler
// implements it.
type Scheduler interface {
	api.JobService
	Restore(jobs []job.Job) (int, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Deps holds dependencies for the server application.
// This pattern enables dependency injection and easier testing.
type Deps struct {
	// Scheduler runs submitted jobs
	Scheduler Scheduler

	// Storage backend for job history; closed on shutdown
	Storage storage.Backend

	// Bus feeds the event stream; closed on shutdown
	Bus *event.Bus

	// Metrics serves /metrics when server.metrics_enabled is set
	Metrics http.Handler

	// Spool watches the submission directory (optional)
	Spool *spool.Watcher

	// Logger for structured logging (injected by caller)
	Logger zerolog.Logger
}
