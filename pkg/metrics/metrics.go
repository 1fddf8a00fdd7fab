// Package metrics exposes scheduler measurements as Prometheus metrics.
//
// Exposed series (all prefixed attackq_):
//
//	jobs_queued_total{lane}            jobs entering a lane, retries included
//	jobs_started_total{lane}           attempts dispatched
//	jobs_finished_total{lane,state}    terminal transitions
//	jobs_retried_total{lane}           attempts rescheduled after a failure
//	jobs_stalled_total{lane}           stall episodes
//	credentials_found_total{service}   deduplicated credential records
//	persistence_failures_total{op}     dropped or failed store writes
//	lane_waiting{lane}, lane_active{lane}
//	job_wait_seconds{lane}, job_run_seconds{lane}
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/scheduler"
)

const namespace = "attackq"

var _ scheduler.Observer = (*Collector)(nil)

// Collector records scheduler activity. It implements scheduler.Observer.
type Collector struct {
	registry *prometheus.Registry

	queued      *prometheus.CounterVec
	started     *prometheus.CounterVec
	finished    *prometheus.CounterVec
	retried     *prometheus.CounterVec
	stalled     *prometheus.CounterVec
	credentials *prometheus.CounterVec
	persistence *prometheus.CounterVec

	waiting *prometheus.GaugeVec
	active  *prometheus.GaugeVec

	waitTime *prometheus.HistogramVec
	runTime  *prometheus.HistogramVec
}

// NewCollector creates a collector on its own registry, together with the Go
// runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		queued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_queued_total",
			Help:      "Total number of jobs appended to a lane, retries included",
		}, []string{"lane"}),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of attempts dispatched to a worker",
		}, []string{"lane"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of jobs reaching a terminal state",
		}, []string{"lane", "state"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_retried_total",
			Help:      "Total number of attempts rescheduled after a failure",
		}, []string{"lane"}),
		stalled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_stalled_total",
			Help:      "Total number of stall episodes",
		}, []string{"lane"}),
		credentials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credentials_found_total",
			Help:      "Total number of distinct credentials found",
		}, []string{"service"}),
		persistence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Total number of store writes that failed or were dropped",
		}, []string{"op"}),
		waiting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lane_waiting",
			Help:      "Jobs waiting in a lane",
		}, []string{"lane"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lane_active",
			Help:      "Jobs running from a lane",
		}, []string{"lane"}),
		waitTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_wait_seconds",
			Help:      "Time from queueing to dispatch",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"lane"}),
		runTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_run_seconds",
			Help:      "Duration of the final attempt of finished jobs",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"lane"}),
	}

	c.registry.MustRegister(
		c.queued, c.started, c.finished, c.retried, c.stalled,
		c.credentials, c.persistence,
		c.waiting, c.active,
		c.waitTime, c.runTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, l := range job.Lanes() {
		c.waiting.WithLabelValues(string(l)).Set(0)
		c.active.WithLabelValues(string(l)).Set(0)
	}
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) JobQueued(lane job.Lane) {
	c.queued.WithLabelValues(string(lane)).Inc()
}

func (c *Collector) JobStarted(lane job.Lane, waited time.Duration) {
	c.started.WithLabelValues(string(lane)).Inc()
	c.waitTime.WithLabelValues(string(lane)).Observe(waited.Seconds())
}

func (c *Collector) JobFinished(lane job.Lane, state job.State, runtime time.Duration) {
	c.finished.WithLabelValues(string(lane), string(state)).Inc()
	if runtime > 0 {
		c.runTime.WithLabelValues(string(lane)).Observe(runtime.Seconds())
	}
}

func (c *Collector) JobRetried(lane job.Lane) {
	c.retried.WithLabelValues(string(lane)).Inc()
}

func (c *Collector) JobStalled(lane job.Lane) {
	c.stalled.WithLabelValues(string(lane)).Inc()
}

func (c *Collector) CredentialFound(service string) {
	if service == "" {
		service = "unknown"
	}
	c.credentials.WithLabelValues(service).Inc()
}

func (c *Collector) LaneDepth(lane job.Lane, waiting, active int) {
	c.waiting.WithLabelValues(string(lane)).Set(float64(waiting))
	c.active.WithLabelValues(string(lane)).Set(float64(active))
}

func (c *Collector) PersistenceFailed(op string) {
	c.persistence.WithLabelValues(op).Inc()
}
