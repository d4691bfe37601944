// Package messaging содержит полезные нагрузки очередей и работу с RabbitMQ.
package messaging

import "github.com/chris40461/scam-or-safe/internal/model"

// GenerationTaskPayload задача на генерацию сценария, приходящая из очереди.
type GenerationTaskPayload struct {
	TaskID       string `json:"task_id"`
	PhishingType string `json:"phishing_type"`
	Difficulty   string `json:"difficulty,omitempty"`
	SeedInfo     string `json:"seed_info,omitempty"`
}

// NotificationStatus статус уведомления о завершении задачи.
type NotificationStatus string

const (
	NotificationStatusSuccess NotificationStatus = "success"
	NotificationStatusError   NotificationStatus = "error"
)

// NotificationPayload результат задачи для внешних потребителей.
type NotificationPayload struct {
	TaskID     string             `json:"task_id"`
	Status     NotificationStatus `json:"status"`
	ScenarioID string             `json:"scenario_id,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// NotificationFromTask строит уведомление по завершённой задаче.
func NotificationFromTask(task model.GenerationTask) NotificationPayload {
	p := NotificationPayload{TaskID: task.ID, ScenarioID: task.ScenarioID, Error: task.Error}
	if task.Status == model.TaskStatusCompleted {
		p.Status = NotificationStatusSuccess
	} else {
		p.Status = NotificationStatusError
	}
	return p
}
