package scheduler

import (
	"slices"

	"github.com/vulntor/attackq/pkg/job"
)

// lane is a FIFO of job ids plus its counters. All access happens under the
// scheduler mutex.
type lane struct {
	name  job.Lane
	max   int
	queue []string

	active    int
	delayed   int
	completed int
	failed    int
	cancelled int
}

func newLane(name job.Lane, max int) *lane {
	return &lane{name: name, max: max}
}

func (l *lane) push(id string) {
	l.queue = append(l.queue, id)
}

func (l *lane) pop() string {
	id := l.queue[0]
	l.queue[0] = ""
	l.queue = l.queue[1:]
	return id
}

func (l *lane) remove(id string) bool {
	i := slices.Index(l.queue, id)
	if i < 0 {
		return false
	}
	l.queue = slices.Delete(l.queue, i, i+1)
	return true
}

func (l *lane) waiting() int {
	return len(l.queue)
}

func (l *lane) stats() LaneStats {
	return LaneStats{
		Waiting:       len(l.queue),
		Delayed:       l.delayed,
		Active:        l.active,
		Completed:     l.completed,
		Failed:        l.failed,
		Cancelled:     l.cancelled,
		MaxConcurrent: l.max,
	}
}
