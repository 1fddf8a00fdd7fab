package api

import (
	"sync/atomic"

	"github.com/vulntor/attackq/pkg/event"
	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/scheduler"
	"github.com/vulntor/attackq/pkg/storage"
)

// Deps holds dependencies for API handlers.
// This pattern enables dependency injection and easier testing.
type Deps struct {
	// Jobs is the live scheduler
	Jobs JobService

	// Storage serves job history, logs and credentials
	Storage storage.Backend

	// Bus feeds the event stream. Nil disables GET /api/v1/events.
	Bus *event.Bus

	// Config holds handler timeouts
	Config Config

	// Ready flag for readiness check
	Ready *atomic.Bool
}

// JobService is the subset of scheduler methods needed by the API.
// Defined here to ease mocking; *scheduler.Scheduler implements it.
type JobService interface {
	Submit(spec job.Spec) (job.Handle, error)
	Cancel(id string) error
	Status(id string) (job.Job, error)
	Stats() map[job.Lane]scheduler.LaneStats
}
