package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/vulntor/attackq/pkg/event"
	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/procexec"
)

// attempt is what a worker needs to run one try of a job. The deduper is
// owned by the worker for the duration of the attempt.
type attempt struct {
	ctx    context.Context
	job    job.Job
	params job.Params
	seen   *extract.Deduper
}

type outcome struct {
	result procexec.Result
	// err is set when the process could not be built or started.
	err error
}

func (s *Scheduler) runAttempt(a attempt) {
	defer s.workers.Done()
	s.finish(a, s.execute(a))
}

func (s *Scheduler) execute(a attempt) outcome {
	cmd, err := s.builder.Build(a.job, a.params)
	if err != nil {
		return outcome{err: fmt.Errorf("build command: %w", err)}
	}
	if cmd.Timeout == 0 {
		cmd.Timeout = a.job.Spec.Timeout
	}

	proc, err := s.exec.Start(a.ctx, cmd)
	if err != nil {
		return outcome{err: err}
	}
	s.logger.Debug().
		Str("job_id", a.job.ID).
		Int("attempt", a.job.Attempt).
		Int("pid", proc.PID()).
		Str("path", cmd.Path).
		Msg("Attack process spawned")

	var lastBeat time.Time
	for line := range proc.Lines() {
		now := s.now()
		if p, ok := extract.ParseProgress(line.Text); ok {
			s.progress(a, p.Percent, now)
			lastBeat = now
		} else if now.Sub(lastBeat) >= s.cfg.HeartbeatInterval {
			s.heartbeat(a.job.ID, now)
			lastBeat = now
		}

		if rec := extract.Extract(line.Text); rec != nil {
			s.credential(a, *rec, now)
		}
	}
	return outcome{result: proc.Wait()}
}

func (s *Scheduler) heartbeat(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beatLocked(s.entries[id], now)
}

func (s *Scheduler) beatLocked(e *entry, now time.Time) {
	e.job.LastHeartbeatAt = &now
	if e.stalled {
		e.stalled = false
		s.logger.Info().Str("job_id", e.job.ID).Msg("Stalled job produced output again")
	}
}

func (s *Scheduler) progress(a attempt, pct int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[a.job.ID]
	s.beatLocked(e, now)
	pct = min(max(pct, 0), 100)
	if pct == e.job.Progress || e.job.State != job.StateRunning {
		return
	}
	e.job.Progress = pct
	s.emitLocked(e.job, event.Progress, ProgressPayload{Attempt: a.job.Attempt, Percent: pct})
}

// credential fills the fields a loose line leaves out from the job itself and
// reports the record unless this job already reported it.
func (s *Scheduler) credential(a attempt, rec extract.Record, now time.Time) {
	if rec.Host == "" {
		rec.Host = a.job.Spec.Target
	}
	if rec.Service == "" {
		rec.Service = job.ServiceOf(a.params)
	}
	if rec.Port == 0 {
		rec.Port = job.PortOf(a.params)
	}
	rec.SourceJobID = a.job.ID
	rec.FoundAt = now

	if !a.seen.Add(rec) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[a.job.ID]
	e.job.Credentials++
	s.observer.CredentialFound(rec.Service)
	s.emitLocked(e.job, event.CredentialFound, rec)
	s.persistLocked(persistOp{
		name:  "save_credential",
		jobID: rec.SourceJobID,
		fn: func(ctx context.Context, st Store) error {
			return st.SaveCredential(ctx, rec)
		},
	})
	s.appendLogLocked(rec.SourceJobID, "info", fmt.Sprintf("credential found: %s@%s (%s)", rec.Username, rec.Host, rec.Service))
	s.logger.Info().
		Str("job_id", rec.SourceJobID).
		Str("host", rec.Host).
		Str("service", rec.Service).
		Str("username", rec.Username).
		Msg("Credential found")
}
