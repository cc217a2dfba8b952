package storage

import (
	"context"
	"sync"

	"github.com/snapfulfil/order-router/internal/core/domain"
	"github.com/snapfulfil/order-router/internal/port"
)

// MemoryJobStore holds the job registry in process. Jobs carry no
// durability requirement, so a mutex-guarded map is all the queue
// needs.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]domain.Job)}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return port.ErrJobExists
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, port.ErrJobNotFound
	}
	return job, nil
}

func (s *MemoryJobStore) Update(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return port.ErrJobNotFound
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) DeleteIdle(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return port.ErrJobNotFound
	}
	if job.Status != domain.JobStatusWaiting && job.Status != domain.JobStatusDelayed {
		return port.ErrJobNotIdle
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryJobStore) CountByStatus(_ context.Context) (map[domain.JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.JobStatus]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

var _ port.JobStore = (*MemoryJobStore)(nil)
