// Package worker превращает задачи из очереди в управляемые задачи генерации
// и публикует результат, когда задача завершается.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/messaging"
	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/service"
	"github.com/chris40461/scam-or-safe/internal/taskmanager"
)

const notifyTimeout = 10 * time.Second

// TaskHandler принимает задачи из очереди.
type TaskHandler struct {
	svc    service.ScenarioService
	logger *zap.Logger
}

var _ messaging.Handler = (*TaskHandler)(nil)

// NewTaskHandler создаёт обработчик задач.
func NewTaskHandler(svc service.ScenarioService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{svc: svc, logger: logger.Named("TaskHandler")}
}

// Handle ставит задачу в работу. Сообщение подтверждается сразу после постановки:
// итог приходит отдельным уведомлением.
func (h *TaskHandler) Handle(ctx context.Context, payload messaging.GenerationTaskPayload) error {
	tasksReceived.Inc()
	log := h.logger.With(zap.String("task_id", payload.TaskID))

	task, err := h.svc.StartGeneration(ctx, service.GenerateRequest{
		TaskID:       payload.TaskID,
		PhishingType: payload.PhishingType,
		Difficulty:   payload.Difficulty,
		SeedInfo:     payload.SeedInfo,
	})
	switch {
	case err == nil:
		log.Info("Generation task accepted",
			zap.String("phishing_type", task.PhishingType),
			zap.String("difficulty", string(task.Difficulty)))
		return nil
	case errors.Is(err, taskmanager.ErrTooManyTasks):
		return fmt.Errorf("%w: %v", messaging.ErrRequeue, err)
	case errors.Is(err, service.ErrInvalidRequest):
		tasksFailed.WithLabelValues("invalid_request").Inc()
		return err
	default:
		tasksFailed.WithLabelValues("submit").Inc()
		return err
	}
}

// NotifyOnFinish возвращает колбэк для taskmanager, публикующий итог задачи.
// Ошибка публикации только логируется: статус задачи уже сохранён в хранилище.
func NotifyOnFinish(notifier messaging.Notifier, logger *zap.Logger) taskmanager.Callback {
	logger = logger.Named("TaskNotifier")
	return func(task model.GenerationTask) {
		taskDuration.Observe(task.UpdatedAt.Sub(task.CreatedAt).Seconds())
		if task.Status == model.TaskStatusCompleted {
			tasksSucceeded.Inc()
		} else {
			tasksFailed.WithLabelValues("generation").Inc()
		}

		if notifier == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := notifier.Notify(ctx, messaging.NotificationFromTask(task)); err != nil {
			logger.Error("Failed to send task notification", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
}
