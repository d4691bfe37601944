package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrRequeue обработчик просит вернуть сообщение в очередь (например, все слоты заняты).
var ErrRequeue = errors.New("requeue later")

// Handler обрабатывает одну задачу из очереди.
type Handler interface {
	Handle(ctx context.Context, payload GenerationTaskPayload) error
}

// ConsumeChannel часть *amqp.Channel, нужная консьюмеру.
type ConsumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

// Consumer читает очередь задач генерации.
type Consumer struct {
	channel      ConsumeChannel
	queueName    string
	handler      Handler
	logger       *zap.Logger
	requeueDelay time.Duration
	consumerTag  string
}

// NewConsumer создаёт консьюмера очереди queueName.
func NewConsumer(ch ConsumeChannel, queueName string, handler Handler, logger *zap.Logger) *Consumer {
	return &Consumer{
		channel:      ch,
		queueName:    queueName,
		handler:      handler,
		logger:       logger.Named("TaskConsumer"),
		requeueDelay: 5 * time.Second,
		consumerTag:  fmt.Sprintf("scenario-worker-%d", time.Now().UnixNano()),
	}
}

// Run блокируется до отмены ctx или закрытия канала доставки.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := c.channel.Consume(c.queueName, c.consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer on '%s': %w", c.queueName, err)
	}
	c.logger.Info("Waiting for generation tasks", zap.String("queue", c.queueName))

	for {
		select {
		case <-ctx.Done():
			if err := c.channel.Cancel(c.consumerTag, false); err != nil {
				c.logger.Warn("Failed to cancel consumer", zap.Error(err))
			}
			c.logger.Info("Consumer stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Delivery channel closed, consumer stops")
				return nil
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	var payload GenerationTaskPayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.logger.Error("Failed to decode task payload, rejecting",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.ByteString("body", msg.Body),
			zap.Error(err))
		c.nack(msg, false)
		return
	}
	log := c.logger.With(zap.String("task_id", payload.TaskID))

	err := c.handler.Handle(ctx, payload)
	switch {
	case err == nil:
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
	case errors.Is(err, ErrRequeue):
		log.Warn("Task postponed, requeueing", zap.Duration("delay", c.requeueDelay), zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(c.requeueDelay):
		}
		c.nack(msg, true)
	default:
		// без requeue: сообщение уходит в DLQ
		log.Error("Task rejected", zap.Error(err))
		c.nack(msg, false)
	}
}

func (c *Consumer) nack(msg amqp.Delivery, requeue bool) {
	if err := msg.Nack(false, requeue); err != nil {
		c.logger.Error("Failed to nack message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(err))
	}
}
