package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/scheduler"
	"github.com/vulntor/attackq/pkg/server/api"
	"github.com/vulntor/attackq/pkg/storage"
)

const sshJob = `{"target":"192.0.2.5","type":"bruteforce","priority":true,"timeout":"30m",
	"parameters":{"service":"ssh","user_list":"users.txt","pass_list":"pass.txt","tasks":4}}`

func TestSubmitJobHandler_Accepted(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/jobs", sshJob)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var handle job.Handle
	require.NoError(t, json.NewDecoder(w.Body).Decode(&handle))
	assert.Equal(t, "job-1", handle.ID)
	assert.Equal(t, job.LanePriority, handle.Lane)
	assert.Equal(t, "/api/v1/jobs/job-1", w.Header().Get("Location"))

	j, err := env.jobs.Status("job-1")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, j.Spec.Timeout)
}

func TestSubmitJobHandler_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"empty body", "", http.StatusBadRequest, "empty"},
		{"malformed json", "{", http.StatusBadRequest, ""},
		{"unknown field", `{"target":"a.example","type":"spray","colour":"red"}`, http.StatusBadRequest, "colour"},
		{"missing target", `{"type":"spray"}`, http.StatusBadRequest, "target"},
		{"bad timeout", `{"target":"a.example","type":"spray","timeout":"soon"}`, http.StatusBadRequest, "timeout"},
		{"attempts out of range", `{"target":"a.example","type":"spray","max_attempts":1000}`, http.StatusBadRequest, "max_attempts"},
		{"invalid spec", `{"target":"not a host!","type":"spray","parameters":{"service":"ssh"}}`, http.StatusBadRequest, "target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(http.MethodPost, "/jobs", tt.body)
			require.Equal(t, tt.status, w.Code)
			var resp api.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Contains(t, resp.Message, tt.field)
		})
	}
}

func TestSubmitJobHandler_SchedulerStopped(t *testing.T) {
	env := newTestEnv(t)
	env.jobs.submitErr = scheduler.ErrStopped

	w := env.do(http.MethodPost, "/jobs", sshJob)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetJobHandler(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/jobs", sshJob).Code)

	w := env.do(http.MethodGet, "/jobs/job-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var j job.Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&j))
	assert.Equal(t, job.StateQueued, j.State)
	assert.Equal(t, "192.0.2.5", j.Spec.Target)
}

func TestGetJobHandler_FallsBackToStorage(t *testing.T) {
	env := newTestEnv(t)
	old := job.New("old-1", job.Spec{Target: "192.0.2.9", Type: job.TypeSpray}, time.Now())
	old.State = job.StateCompleted
	require.NoError(t, env.store.SaveJob(context.Background(), *old))

	w := env.do(http.MethodGet, "/jobs/old-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/jobs/missing", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelJobHandler(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/jobs", sshJob).Code)

	w := env.do(http.MethodDelete, "/jobs/job-1", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	var j job.Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&j))
	assert.Equal(t, job.StateCancelled, j.State)

	// Cancelling again hits a terminal job.
	w = env.do(http.MethodDelete, "/jobs/job-1", "")
	require.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodDelete, "/jobs/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobsHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for i, state := range []job.State{job.StateCompleted, job.StateFailed, job.StateCompleted} {
		j := job.New(string(rune('a'+i)), job.Spec{Target: "192.0.2.1", Type: job.TypeSpray}, base.Add(time.Duration(i)*time.Minute))
		j.State = state
		require.NoError(t, env.store.SaveJob(ctx, *j))
	}

	w := env.do(http.MethodGet, "/jobs?state=completed&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page storage.JobPage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	require.Len(t, page.Jobs, 1)
	assert.Equal(t, "a", page.Jobs[0].ID)
	require.NotEmpty(t, page.NextCursor)

	w = env.do(http.MethodGet, "/jobs?state=completed&limit=1&cursor="+page.NextCursor, "")
	require.Equal(t, http.StatusOK, w.Code)
	page = storage.JobPage{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	require.Len(t, page.Jobs, 1)
	assert.Equal(t, "c", page.Jobs[0].ID)

	w = env.do(http.MethodGet, "/jobs?state=bogus", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListJobsHandler_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jobs":[]}`, w.Body.String())
}

func TestCredentialsHandlers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/jobs", sshJob).Code)
	require.NoError(t, env.store.SaveCredential(ctx, extract.Record{
		Host: "192.0.2.5", Service: "ssh", Port: 22, Username: "root", Password: "toor", SourceJobID: "job-1",
	}))
	require.NoError(t, env.store.SaveCredential(ctx, extract.Record{
		Host: "192.0.2.6", Service: "ftp", Username: "anon", Password: "anon", SourceJobID: "other",
	}))

	w := env.do(http.MethodGet, "/jobs/job-1/credentials", "")
	require.Equal(t, http.StatusOK, w.Code)
	var creds []extract.Record
	require.NoError(t, json.NewDecoder(w.Body).Decode(&creds))
	require.Len(t, creds, 1)
	assert.Equal(t, "root", creds[0].Username)

	w = env.do(http.MethodGet, "/credentials", "")
	require.Equal(t, http.StatusOK, w.Code)
	creds = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&creds))
	assert.Len(t, creds, 2)

	w = env.do(http.MethodGet, "/jobs/unknown/credentials", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobLogsHandler(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.AppendLog(context.Background(), "job-1", storage.LevelInfo, "attempt 1 started"))

	w := env.do(http.MethodGet, "/jobs/job-1/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []storage.LogEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "attempt 1 started", entries[0].Message)

	w = env.do(http.MethodGet, "/jobs/none/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestStatsHandler(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/jobs", sshJob).Code)

	w := env.do(http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]scheduler.LaneStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, 1, stats["priority"].Waiting)
}

func TestReadyzHandler(t *testing.T) {
	env := newTestEnv(t)
	handler := ReadyzHandler(env.deps)

	w := env.doWith(handler)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Ready", w.Body.String())

	env.deps.Ready.Store(false)
	w = env.doWith(handler)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "Not Ready", w.Body.String())
}
