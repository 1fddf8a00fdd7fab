package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
)

func init() {
	Register(DriverMemory, func(context.Context, *Config) (Backend, error) {
		return NewMemoryBackend(), nil
	})
}

type credKey struct {
	jobID string
	key   extract.Key
}

// MemoryBackend keeps everything in process memory. It is the default driver
// and loses its contents on exit.
type MemoryBackend struct {
	mu     sync.RWMutex
	closed bool
	now    func() time.Time

	jobs    map[string]job.Job
	logs    map[string][]LogEntry
	seq     int64
	creds   []extract.Record
	credSet map[credKey]struct{}
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		now:     time.Now,
		jobs:    make(map[string]job.Job),
		logs:    make(map[string][]LogEntry),
		credSet: make(map[credKey]struct{}),
	}
}

func (m *MemoryBackend) Initialize(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryBackend) SaveJob(_ context.Context, j job.Job) error {
	if j.ID == "" {
		return NewInvalidInputError("id", "job id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

func (m *MemoryBackend) LoadJob(_ context.Context, id string) (job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return job.Job{}, ErrClosed
	}
	j, ok := m.jobs[id]
	if !ok {
		return job.Job{}, NewNotFoundError("job", id)
	}
	return j.Clone(), nil
}

func (m *MemoryBackend) ListJobs(_ context.Context, f JobFilter) (JobPage, error) {
	cur, err := DecodeCursor(f.Cursor)
	if err != nil {
		return JobPage{}, err
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return JobPage{}, ErrClosed
	}
	all := make([]job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if len(f.States) > 0 && !slices.Contains(f.States, j.State) {
			continue
		}
		if cur != nil && !cur.after(j) {
			continue
		}
		all = append(all, j.Clone())
	}
	m.mu.RUnlock()

	slices.SortFunc(all, func(a, b job.Job) int {
		if c := a.QueuedAt.Compare(b.QueuedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	limit := pageSize(f.Limit)
	page := JobPage{Jobs: all}
	if len(all) > limit {
		page.Jobs = all[:limit]
		page.NextCursor = EncodeCursor(cursorFor(page.Jobs[limit-1]))
	}
	return page, nil
}

func (m *MemoryBackend) AppendLog(_ context.Context, jobID, level, message string) error {
	if !validLevel(level) {
		return NewInvalidInputError("level", "unknown log level "+level)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.seq++
	m.logs[jobID] = append(m.logs[jobID], LogEntry{
		Seq:     m.seq,
		JobID:   jobID,
		Level:   level,
		Message: message,
		At:      m.now().UTC(),
	})
	return nil
}

func (m *MemoryBackend) Logs(_ context.Context, jobID string) ([]LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return slices.Clone(m.logs[jobID]), nil
}

func (m *MemoryBackend) SaveCredential(_ context.Context, rec extract.Record) error {
	if rec.SourceJobID == "" {
		return NewInvalidInputError("source_job_id", "credential must reference a job")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	k := credKey{jobID: rec.SourceJobID, key: rec.Key()}
	if _, dup := m.credSet[k]; dup {
		return nil
	}
	m.credSet[k] = struct{}{}
	m.creds = append(m.creds, rec)
	return nil
}

func (m *MemoryBackend) ListCredentials(_ context.Context, jobID string) ([]extract.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []extract.Record
	for _, rec := range m.creds {
		if jobID == "" || rec.SourceJobID == jobID {
			out = append(out, rec)
		}
	}
	return out, nil
}
