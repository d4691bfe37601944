package repository

import (
	"context"
	"sync"
	"time"

	"github.com/chris40461/scam-or-safe/internal/model"
)

var _ TaskStore = (*memoryTaskStore)(nil)

// memoryTaskStore хранит копии задач в памяти процесса.
type memoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]model.GenerationTask
}

// NewMemoryTaskStore создаёт хранилище задач в памяти.
func NewMemoryTaskStore() TaskStore {
	return &memoryTaskStore{tasks: make(map[string]model.GenerationTask)}
}

func (s *memoryTaskStore) Create(_ context.Context, task *model.GenerationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = *task
	return nil
}

func (s *memoryTaskStore) Update(_ context.Context, task *model.GenerationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return model.ErrNotFound
	}
	s.tasks[task.ID] = *task
	return nil
}

func (s *memoryTaskStore) Get(_ context.Context, id string) (*model.GenerationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &task, nil
}

func (s *memoryTaskStore) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, task := range s.tasks {
		if task.Status.Terminal() && task.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed, nil
}
