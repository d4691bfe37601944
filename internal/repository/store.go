// Package repository хранилища сценариев и статусов задач генерации.
package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/chris40461/scam-or-safe/internal/model"
)

// ScenarioRepository хранилище готовых деревьев. Дерево сохраняется целиком
// одним документом; повторное сохранение того же ID перезаписывает документ.
type ScenarioRepository interface {
	Save(ctx context.Context, tree *model.ScenarioTree) error
	// Get возвращает model.ErrNotFound, если сценария нет.
	Get(ctx context.Context, id string) (*model.ScenarioTree, error)
	// List краткие описания, новые первыми.
	List(ctx context.Context) ([]model.Summary, error)
}

// TaskStore хранилище статусов задач генерации.
type TaskStore interface {
	Create(ctx context.Context, task *model.GenerationTask) error
	Update(ctx context.Context, task *model.GenerationTask) error
	// Get возвращает model.ErrNotFound, если задачи нет.
	Get(ctx context.Context, id string) (*model.GenerationTask, error)
	// DeleteFinishedBefore удаляет завершённые задачи, обновлённые раньше cutoff.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ErrInvalidID ID содержит недопустимые символы.
var ErrInvalidID = errors.New("invalid id")

func checkID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
