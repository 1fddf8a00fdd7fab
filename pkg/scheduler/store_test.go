package scheduler

import (
	"context"
	"sync"

	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
)

type logLine struct {
	level   string
	message string
}

type memStore struct {
	mu    sync.Mutex
	jobs  map[string]job.Job
	log   map[string][]logLine
	creds []extract.Record
	fail  error
}

func newMemStore() *memStore {
	return &memStore{
		jobs: make(map[string]job.Job),
		log:  make(map[string][]logLine),
	}
}

func (m *memStore) SaveJob(_ context.Context, j job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.jobs[j.ID] = j
	return nil
}

func (m *memStore) AppendLog(_ context.Context, jobID, level, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.log[jobID] = append(m.log[jobID], logLine{level: level, message: message})
	return nil
}

func (m *memStore) SaveCredential(_ context.Context, rec extract.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.creds = append(m.creds, rec)
	return nil
}

func (m *memStore) job(id string) job.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

func (m *memStore) logs(id string) []logLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]logLine(nil), m.log[id]...)
}

func (m *memStore) credentials() []extract.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]extract.Record(nil), m.creds...)
}

func (m *memStore) ListCredentials(_ context.Context, jobID string) ([]extract.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []extract.Record
	for _, rec := range m.creds {
		if rec.SourceJobID == jobID {
			out = append(out, rec)
		}
	}
	return out, nil
}
