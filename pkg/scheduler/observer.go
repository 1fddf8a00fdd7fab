package scheduler

import (
	"time"

	"github.com/vulntor/attackq/pkg/job"
)

// Observer receives scheduler measurements. Implementations must be safe for
// concurrent use; methods are called from worker and persister goroutines.
type Observer interface {
	JobQueued(lane job.Lane)
	JobStarted(lane job.Lane, waited time.Duration)
	JobFinished(lane job.Lane, state job.State, runtime time.Duration)
	JobRetried(lane job.Lane)
	JobStalled(lane job.Lane)
	CredentialFound(service string)
	LaneDepth(lane job.Lane, waiting, active int)
	PersistenceFailed(op string)
}

type nopObserver struct{}

func (nopObserver) JobQueued(job.Lane)                             {}
func (nopObserver) JobStarted(job.Lane, time.Duration)             {}
func (nopObserver) JobFinished(job.Lane, job.State, time.Duration) {}
func (nopObserver) JobRetried(job.Lane)                            {}
func (nopObserver) JobStalled(job.Lane)                            {}
func (nopObserver) CredentialFound(string)                         {}
func (nopObserver) LaneDepth(job.Lane, int, int)                   {}
func (nopObserver) PersistenceFailed(string)                       {}
