package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const appID = "scam-or-safe"

// Notifier отправляет уведомления о завершении задач.
type Notifier interface {
	Notify(ctx context.Context, payload NotificationPayload) error
}

// Publisher часть *amqp.Channel, нужная для публикации.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type rabbitMQNotifier struct {
	channel   Publisher
	queueName string
	logger    *zap.Logger
}

var _ Notifier = (*rabbitMQNotifier)(nil)

// NewRabbitMQNotifier канал открывается и закрывается вызывающим; очередь уже объявлена Topology.Declare.
func NewRabbitMQNotifier(ch Publisher, queueName string, logger *zap.Logger) Notifier {
	return &rabbitMQNotifier{channel: ch, queueName: queueName, logger: logger.Named("Notifier")}
}

func (n *rabbitMQNotifier) Notify(ctx context.Context, payload NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification for task %s: %w", payload.TaskID, err)
	}

	err = n.channel.PublishWithContext(ctx,
		"",
		n.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        appID,
			MessageId:    payload.TaskID + "-notif",
		},
	)
	if err != nil {
		n.logger.Error("Failed to publish notification", zap.String("task_id", payload.TaskID), zap.Error(err))
		return fmt.Errorf("failed to publish notification for task %s: %w", payload.TaskID, err)
	}

	n.logger.Info("Notification published",
		zap.String("task_id", payload.TaskID),
		zap.String("queue", n.queueName),
		zap.String("status", string(payload.Status)))
	return nil
}
