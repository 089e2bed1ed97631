package store

import (
	"context"
	"sync"

	"github.com/cinevideo/api/internal/model"
)

// Memory is the default process-local store. Records are never evicted.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]model.RenderJob
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]model.RenderJob)}
}

func (m *Memory) Save(_ context.Context, job *model.RenderJob) error {
	m.mu.Lock()
	m.jobs[job.ID] = *job
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*model.RenderJob, error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored jobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}
