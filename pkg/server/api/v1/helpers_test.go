package v1

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/attackq/pkg/event"
	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/scheduler"
	"github.com/vulntor/attackq/pkg/server/api"
	"github.com/vulntor/attackq/pkg/storage"
)

// fakeJobs is an in-memory JobService.
type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[string]*job.Job
	next      int
	submitErr error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*job.Job)}
}

func (f *fakeJobs) Submit(spec job.Spec) (job.Handle, error) {
	if f.submitErr != nil {
		return job.Handle{}, f.submitErr
	}
	spec, _, err := job.Validate(spec)
	if err != nil {
		return job.Handle{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("job-%d", f.next)
	j := job.New(id, spec, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	f.jobs[id] = j
	return job.Handle{ID: id, Lane: j.Lane, QueuedAt: j.QueuedAt}, nil
}

func (f *fakeJobs) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return scheduler.NewNotFoundError(id)
	}
	return j.Transition(job.TriggerCancel, time.Now())
}

func (f *fakeJobs) Status(id string) (job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return job.Job{}, scheduler.NewNotFoundError(id)
	}
	return j.Clone(), nil
}

func (f *fakeJobs) Stats() map[job.Lane]scheduler.LaneStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := map[job.Lane]scheduler.LaneStats{}
	for _, j := range f.jobs {
		s := stats[j.Lane]
		if j.State == job.StateQueued {
			s.Waiting++
		}
		stats[j.Lane] = s
	}
	return stats
}

type testEnv struct {
	jobs    *fakeJobs
	store   *storage.MemoryBackend
	bus     *event.Bus
	deps    *api.Deps
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.NewMemoryBackend()
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	ready := &atomic.Bool{}
	ready.Store(true)
	env := &testEnv{
		jobs:  newFakeJobs(),
		store: store,
		bus:   event.New(16),
	}
	env.deps = &api.Deps{
		Jobs:    env.jobs,
		Storage: store,
		Bus:     env.bus,
		Config:  api.DefaultConfig(),
		Ready:   ready,
	}
	env.handler = Routes(env.deps)
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doWith(h http.Handler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return w
}
