package job

import (
	"context"
	"sync"
	"time"
)

// Store persists jobs. Complete must move a job out of processing exactly
// once and report ErrAlreadyFinished on any later attempt.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Complete(ctx context.Context, id string, status Status, result Result) error
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// MemoryStore keeps jobs for the life of the process. There is no eviction.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Create(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.clone(), nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, status Status, result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusProcessing {
		return ErrAlreadyFinished
	}
	j.Status = status
	j.Result = &result
	j.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CountByStatus(context.Context) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[Status]int{StatusProcessing: 0, StatusSuccess: 0, StatusError: 0}
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}
