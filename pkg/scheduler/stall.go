package scheduler

import (
	"context"
	"time"

	"github.com/vulntor/attackq/pkg/event"
)

func (s *Scheduler) stallLoop(ctx context.Context) {
	defer close(s.stallDone)

	ticker := time.NewTicker(s.cfg.StallInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkStalls()
			s.prune()
		}
	}
}

// checkStalls flags running jobs silent for longer than the threshold. A job
// is reported once per silent stretch; its next output line re-arms it.
func (s *Scheduler) checkStalls() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.running {
		last := e.job.LastHeartbeatAt
		if e.stalled || last == nil {
			continue
		}
		idle := now.Sub(*last)
		if idle <= s.cfg.StallThreshold {
			continue
		}

		e.stalled = true
		s.observer.JobStalled(e.job.Lane)
		s.emitLocked(e.job, event.Stalled, StalledPayload{
			Attempt:         e.job.Attempt,
			IdleMS:          idle.Milliseconds(),
			LastHeartbeatAt: *last,
		})
		s.appendLogLocked(id, "warn", "no output for "+idle.Round(time.Second).String())
		s.logger.Warn().
			Str("job_id", id).
			Dur("idle", idle).
			Msg("Job stalled")
	}
}

// prune forgets terminal jobs that finished more than Retention ago. Their
// record stays in the store.
func (s *Scheduler) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.cfg.Retention)
	evicted := 0
	for id, e := range s.entries {
		fin := e.job.FinishedAt
		if !e.job.State.Terminal() || fin == nil || fin.After(cutoff) {
			continue
		}
		delete(s.entries, id)
		evicted++
	}
	if evicted > 0 {
		s.logger.Debug().Int("jobs", evicted).Msg("Evicted finished jobs from memory")
	}
}
