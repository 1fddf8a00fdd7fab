package scheduler

import (
	"context"

	"github.com/vulntor/attackq/pkg/job"
)

type persistOp struct {
	name  string
	jobID string
	fn    func(ctx context.Context, st Store) error
}

// persistLocked queues a write. A full queue drops the write with a warning
// instead of blocking dispatch.
func (s *Scheduler) persistLocked(op persistOp) {
	if s.store == nil || s.persistClosed {
		return
	}
	select {
	case s.persistQ <- op:
	default:
		s.warnPersistence(&PersistenceWarning{Op: op.name, JobID: op.jobID, Err: errPersistQueueFull})
	}
}

func (s *Scheduler) saveLocked(j *job.Job, level, message string) {
	snapshot := j.Clone()
	s.persistLocked(persistOp{
		name:  "save_job",
		jobID: j.ID,
		fn: func(ctx context.Context, st Store) error {
			return st.SaveJob(ctx, snapshot)
		},
	})
	if message != "" {
		s.appendLogLocked(j.ID, level, message)
	}
}

func (s *Scheduler) appendLogLocked(jobID, level, message string) {
	s.persistLocked(persistOp{
		name:  "append_log",
		jobID: jobID,
		fn: func(ctx context.Context, st Store) error {
			return st.AppendLog(ctx, jobID, level, message)
		},
	})
}

// persistLoop applies writes in submission order until the queue is closed.
func (s *Scheduler) persistLoop() {
	defer close(s.persistDone)

	for op := range s.persistQ {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
		err := op.fn(ctx, s.store)
		cancel()
		if err != nil {
			s.warnPersistence(&PersistenceWarning{Op: op.name, JobID: op.jobID, Err: err})
		}
	}
}

func (s *Scheduler) warnPersistence(w *PersistenceWarning) {
	s.observer.PersistenceFailed(w.Op)
	s.logger.Warn().
		Err(w.Err).
		Str("code", ErrorCode(w)).
		Str("op", w.Op).
		Str("job_id", w.JobID).
		Msg("Persistence write failed")
}
