// Package taskmanager запускает генерацию сценариев в фоне и ведёт статусы задач.
package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/repository"
)

var (
	// ErrTooManyTasks превышено максимальное количество активных задач.
	ErrTooManyTasks = errors.New("too many active tasks")
	// ErrShuttingDown менеджер останавливается и новые задачи не принимает.
	ErrShuttingDown = errors.New("task manager is shutting down")
	// ErrTaskNotActive задача уже завершена или неизвестна.
	ErrTaskNotActive = errors.New("task is not active")
)

// ProgressFunc сообщает этап и процент готовности задачи.
type ProgressFunc func(phase string, percent int)

// TaskFunc работа задачи. Возвращает ID готового сценария.
type TaskFunc func(ctx context.Context, progress ProgressFunc) (scenarioID string, err error)

// Callback вызывается после перехода задачи в конечный статус.
type Callback func(task model.GenerationTask)

// Config параметры менеджера.
type Config struct {
	MaxActive     int
	Retention     time.Duration
	SweepInterval time.Duration
}

// Manager управляет фоновыми задачами генерации.
type Manager struct {
	store  repository.TaskStore
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	active    map[string]context.CancelFunc
	callbacks []Callback
	closed    bool
	wg        sync.WaitGroup
}

// New создает менеджер поверх хранилища статусов.
func New(store repository.TaskStore, cfg Config, logger *zap.Logger) *Manager {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("TaskManager"),
		active: make(map[string]context.CancelFunc),
	}
}

// OnFinish регистрирует обработчик завершения задач.
func (m *Manager) OnFinish(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// ActiveCount число выполняющихся задач.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Submit регистрирует задачу в статусе pending и запускает fn в фоне.
// Пустой task.ID заменяется на новый UUID. Контекст задачи не зависит от ctx
// вызывающего: ctx используется только для записи статуса.
func (m *Manager) Submit(ctx context.Context, task model.GenerationTask, fn TaskFunc) (*model.GenerationTask, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if len(m.active) >= m.cfg.MaxActive {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyTasks, m.cfg.MaxActive)
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if _, dup := m.active[task.ID]; dup {
		m.mu.Unlock()
		return nil, fmt.Errorf("task %s is already running", task.ID)
	}
	now := time.Now().UTC()
	task.Status = model.TaskStatusPending
	task.Progress = 0
	task.CreatedAt = now
	task.UpdatedAt = now

	taskCtx, cancel := context.WithCancel(context.Background())
	m.active[task.ID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	if err := m.store.Create(ctx, &task); err != nil {
		m.release(task.ID)
		cancel()
		m.wg.Done()
		return nil, fmt.Errorf("failed to register task: %w", err)
	}

	m.logger.Info("Task submitted",
		zap.String("task_id", task.ID),
		zap.String("phishing_type", task.PhishingType),
		zap.String("difficulty", string(task.Difficulty)))

	snapshot := task
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(taskCtx, task, fn)
	}()
	return &snapshot, nil
}

// run выполняет задачу и обновляет ее статус.
func (m *Manager) run(ctx context.Context, task model.GenerationTask, fn TaskFunc) {
	log := m.logger.With(zap.String("task_id", task.ID))
	started := time.Now()

	var mu sync.Mutex
	m.transition(&task, model.TaskStatusGenerating, func(t *model.GenerationTask) {})

	progress := func(phase string, percent int) {
		mu.Lock()
		defer mu.Unlock()
		if percent < task.Progress {
			return
		}
		m.transition(&task, model.TaskStatusGenerating, func(t *model.GenerationTask) {
			t.Phase = phase
			t.Progress = percent
		})
	}

	scenarioID, err := fn(ctx, progress)

	mu.Lock()
	defer mu.Unlock()
	switch {
	case err == nil:
		m.transition(&task, model.TaskStatusCompleted, func(t *model.GenerationTask) {
			t.Progress = 100
			t.ScenarioID = scenarioID
		})
		log.Info("Task completed", zap.String("scenario_id", scenarioID), zap.Duration("elapsed", time.Since(started)))
	case errors.Is(err, context.Canceled):
		m.transition(&task, model.TaskStatusFailed, func(t *model.GenerationTask) {
			t.Error = "cancelled"
		})
		log.Info("Task cancelled", zap.Duration("elapsed", time.Since(started)))
	default:
		m.transition(&task, model.TaskStatusFailed, func(t *model.GenerationTask) {
			t.Error = err.Error()
		})
		log.Error("Task failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
	}

	m.release(task.ID)
	if task.Status.Terminal() {
		m.notify(task)
	}
}

// transition применяет изменения и сохраняет задачу, если переход допустим.
// Ошибка записи статуса не останавливает саму генерацию.
func (m *Manager) transition(task *model.GenerationTask, to model.TaskStatus, mutate func(*model.GenerationTask)) {
	if !task.Status.CanTransition(to) {
		m.logger.Warn("Illegal task status transition ignored",
			zap.String("task_id", task.ID), zap.String("from", string(task.Status)), zap.String("to", string(to)))
		return
	}
	task.Status = to
	mutate(task)
	task.UpdatedAt = time.Now().UTC()

	// отдельный контекст: статус нужно записать и после отмены задачи
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Update(ctx, task); err != nil {
		m.logger.Error("Failed to persist task status",
			zap.String("task_id", task.ID), zap.String("status", string(to)), zap.Error(err))
	}
}

func (m *Manager) notify(task model.GenerationTask) {
	m.mu.Lock()
	callbacks := append([]Callback(nil), m.callbacks...)
	m.mu.Unlock()
	for _, cb := range callbacks {
		cb(task)
	}
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
}

// Get возвращает текущий статус задачи.
func (m *Manager) Get(ctx context.Context, id string) (*model.GenerationTask, error) {
	return m.store.Get(ctx, id)
}

// Cancel отменяет выполняющуюся задачу. Статус failed записывает сама задача.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.active[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotActive, id)
	}
	cancel()
	m.logger.Info("Task cancellation requested", zap.String("task_id", id))
	return nil
}

// Sweep удаляет завершённые задачи старше Retention.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	if m.cfg.Retention <= 0 {
		return 0, nil
	}
	removed, err := m.store.DeleteFinishedBefore(ctx, time.Now().UTC().Add(-m.cfg.Retention))
	if err != nil {
		return removed, fmt.Errorf("failed to sweep tasks: %w", err)
	}
	if removed > 0 {
		m.logger.Info("Finished tasks swept", zap.Int("removed", removed))
	}
	return removed, nil
}

// RunSweeper периодически вызывает Sweep, пока ctx не завершён.
func (m *Manager) RunSweeper(ctx context.Context) {
	if m.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.Warn("Task sweep failed", zap.Error(err))
			}
		}
	}
}

// Shutdown перестаёт принимать задачи и ждёт завершения текущих.
// Если ctx истекает раньше, оставшиеся задачи отменяются.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for _, cancel := range m.active {
			cancel()
		}
		m.mu.Unlock()
		<-done
		return fmt.Errorf("shutdown timed out, running tasks cancelled: %w", ctx.Err())
	}
}
