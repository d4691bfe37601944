package model

import "time"

// TaskStatus статус фоновой задачи генерации.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusGenerating TaskStatus = "generating"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal сообщает, что задача завершена и больше не меняется.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransition статусы меняются только вперёд: pending → generating → completed|failed.
// Из pending можно сразу перейти в failed (отмена до запуска).
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return to == TaskStatusGenerating || to == TaskStatusFailed
	case TaskStatusGenerating:
		return to == TaskStatusGenerating || to.Terminal()
	default:
		return false
	}
}

// GenerationTask состояние асинхронной генерации сценария.
type GenerationTask struct {
	ID           string     `json:"task_id"`
	Status       TaskStatus `json:"status"`
	Progress     int        `json:"progress"`
	Phase        string     `json:"phase,omitempty"`
	PhishingType string     `json:"phishing_type"`
	Difficulty   Difficulty `json:"difficulty"`
	SeedInfo     string     `json:"seed_info,omitempty"`
	ScenarioID   string     `json:"scenario_id,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
