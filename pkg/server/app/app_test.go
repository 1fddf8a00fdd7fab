package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/attackq/pkg/config"
	"github.com/vulntor/attackq/pkg/event"
	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/metrics"
	"github.com/vulntor/attackq/pkg/procexec"
	"github.com/vulntor/attackq/pkg/scheduler"
	"github.com/vulntor/attackq/pkg/storage"
)

const hit = `[22][ssh] host: 192.0.2.5   login: root   password: toor`

func newDeps(t *testing.T) *Deps {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	store := storage.NewMemoryBackend()
	require.NoError(t, store.Initialize(context.Background()))

	bus := event.New(64)
	collector := metrics.NewCollector()
	sched, err := scheduler.New(scheduler.DefaultConfig(),
		scheduler.WithPublisher(bus),
		scheduler.WithStore(store),
		scheduler.WithObserver(collector),
		scheduler.WithCommandBuilder(scheduler.BuilderFunc(func(job.Job, job.Params) (procexec.Command, error) {
			return procexec.Command{Path: sh, Args: []string{"-c", "echo '" + hit + "'"}}, nil
		})),
	)
	require.NoError(t, err)

	return &Deps{
		Scheduler: sched,
		Storage:   store,
		Bus:       bus,
		Metrics:   collector.Handler(),
		Logger:    zerolog.Nop(),
	}
}

func testConfig() config.ServerConfig {
	cfg := config.DefaultServerConfig()
	cfg.Port = 0
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func startApp(t *testing.T, app *App) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	appErr := make(chan error, 1)
	go func() {
		appErr <- app.Run(ctx)
	}()
	require.Eventually(t, app.Ready.Load, 5*time.Second, 10*time.Millisecond)
	return "http://" + app.Addr(), cancel, appErr
}

func TestNew_RequiresSchedulerAndStorage(t *testing.T) {
	_, err := New(context.Background(), testConfig(), &Deps{Logger: zerolog.Nop()})
	require.Error(t, err)
}

func TestNew_RestoresUnfinishedJobs(t *testing.T) {
	deps := newDeps(t)
	ctx := context.Background()
	now := time.Now()
	for i, state := range []job.State{job.StateQueued, job.StateRunning, job.StateCompleted} {
		j := job.New(fmt.Sprintf("old-%d", i), job.Spec{
			Target:     "192.0.2.5",
			Type:       job.TypeSpray,
			Parameters: map[string]any{"service": "ssh", "user_list": "u.txt", "password": "x"},
		}, now.Add(time.Duration(i)*time.Second))
		j.State = state
		require.NoError(t, deps.Storage.SaveJob(ctx, *j))
	}

	app, err := New(ctx, testConfig(), deps)
	require.NoError(t, err)

	_, err = app.Scheduler.Status("old-0")
	require.NoError(t, err)
	_, err = app.Scheduler.Status("old-1")
	require.NoError(t, err)
	_, err = app.Scheduler.Status("old-2")
	require.ErrorIs(t, err, scheduler.ErrNotFound, "terminal jobs stay in storage only")

	require.NoError(t, app.Scheduler.Stop(ctx))
}

func TestApp_Lifecycle(t *testing.T) {
	deps := newDeps(t)
	app, err := New(context.Background(), testConfig(), deps)
	require.NoError(t, err)

	base, cancel, appErr := startApp(t, app)
	defer cancel()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(base + "/readyz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// Submit a job and wait for it to finish with a credential.
	resp, err = http.Post(base+"/api/v1/jobs", "application/json", strings.NewReader(
		`{"target":"192.0.2.5","type":"spray","parameters":{"service":"ssh","user_list":"u.txt","password":"toor"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var handle job.Handle
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&handle))
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		j, err := app.Scheduler.Status(handle.ID)
		return err == nil && j.State == job.StateCompleted
	}, 10*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/v1/jobs/" + handle.ID + "/credentials")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var creds []extract.Record
		return json.NewDecoder(resp.Body).Decode(&creds) == nil && len(creds) == 1
	}, 5*time.Second, 20*time.Millisecond, "credential is persisted asynchronously")

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// Trigger shutdown
	cancel()

	select {
	case err := <-appErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Shutdown timeout")
	}

	require.False(t, app.Ready.Load())
	_, err = deps.Storage.LoadJob(context.Background(), handle.ID)
	require.ErrorIs(t, err, storage.ErrClosed)
}

func TestApp_ShutdownEndsEventStreams(t *testing.T) {
	app, err := New(context.Background(), testConfig(), newDeps(t))
	require.NoError(t, err)

	base, cancel, appErr := startApp(t, app)
	defer cancel()

	resp, err := http.Get(base + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-appErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("open event stream blocked shutdown")
	}
}

func TestApp_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	deps := newDeps(t)
	app, err := New(context.Background(), cfg, deps)
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.ErrorContains(t, err, "listen on")
	require.NoError(t, deps.Scheduler.Stop(context.Background()))
}
