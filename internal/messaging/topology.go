package messaging

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const dlqRoutingKey = "dlq"

// Topology имена очередей сервиса.
type Topology struct {
	TaskQueue   string
	ResultQueue string
}

// DeadLetterExchange куда уходят отклонённые задачи.
func (t Topology) DeadLetterExchange() string { return t.TaskQueue + "_dlx" }

// DeadLetterQueue очередь отклонённых задач.
func (t Topology) DeadLetterQueue() string { return t.TaskQueue + "_dlq" }

// Declarer часть *amqp.Channel, нужная для объявления топологии.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare объявляет DLX, DLQ, очередь задач с dead-letter аргументами и очередь результатов.
// Повторное объявление с теми же параметрами безопасно.
func (t Topology) Declare(ch Declarer, logger *zap.Logger) error {
	dlx, dlq := t.DeadLetterExchange(), t.DeadLetterQueue()

	if err := ch.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLX '%s': %w", dlx, err)
	}
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ '%s': %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, dlqRoutingKey, dlx, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ '%s' to '%s': %w", dlq, dlx, err)
	}

	taskArgs := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	if _, err := ch.QueueDeclare(t.TaskQueue, true, false, false, false, taskArgs); err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", t.TaskQueue, err)
	}
	if _, err := ch.QueueDeclare(t.ResultQueue, true, false, false, false, amqp.Table{"x-queue-mode": "lazy"}); err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", t.ResultQueue, err)
	}

	logger.Info("RabbitMQ topology declared",
		zap.String("task_queue", t.TaskQueue),
		zap.String("result_queue", t.ResultQueue),
		zap.String("dlx", dlx),
		zap.String("dlq", dlq))
	return nil
}
