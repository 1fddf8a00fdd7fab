package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/attackq/pkg/job"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()

	assert.NotNil(t, c.Registry())
	assert.Equal(t, float64(0), testutil.ToFloat64(c.waiting.WithLabelValues("priority")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.active.WithLabelValues("standard")))

	// Independent registries: a second collector must not panic on registration.
	assert.NotPanics(t, func() { _ = NewCollector() })
}

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.JobQueued(job.LanePriority)
	c.JobQueued(job.LanePriority)
	c.JobQueued(job.LaneStandard)
	c.JobStarted(job.LaneStandard, 250*time.Millisecond)
	c.JobRetried(job.LaneStandard)
	c.JobStalled(job.LanePriority)
	c.JobFinished(job.LaneStandard, job.StateFailed, 3*time.Second)
	c.JobFinished(job.LanePriority, job.StateCancelled, 0)
	c.CredentialFound("ssh")
	c.CredentialFound("")
	c.PersistenceFailed("save_job")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.queued.WithLabelValues("priority")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.queued.WithLabelValues("standard")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.started.WithLabelValues("standard")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.retried.WithLabelValues("standard")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.stalled.WithLabelValues("priority")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.finished.WithLabelValues("standard", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.finished.WithLabelValues("priority", "cancelled")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.credentials.WithLabelValues("ssh")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.credentials.WithLabelValues("unknown")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.persistence.WithLabelValues("save_job")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.runTime), "zero runtimes are not observed")
}

func TestCollector_LaneDepth(t *testing.T) {
	c := NewCollector()

	c.LaneDepth(job.LaneStandard, 7, 2)
	assert.Equal(t, float64(7), testutil.ToFloat64(c.waiting.WithLabelValues("standard")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.active.WithLabelValues("standard")))

	c.LaneDepth(job.LaneStandard, 0, 1)
	assert.Equal(t, float64(0), testutil.ToFloat64(c.waiting.WithLabelValues("standard")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.JobQueued(job.LanePriority)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `attackq_jobs_queued_total{lane="priority"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
