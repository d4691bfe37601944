//go:build integration

package messaging_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/messaging"
)

type handlerFunc func(ctx context.Context, payload messaging.GenerationTaskPayload) error

func (f handlerFunc) Handle(ctx context.Context, payload messaging.GenerationTaskPayload) error {
	return f(ctx, payload)
}

// RabbitIntegrationSuite гоняет топологию, консьюмер и нотификатор через настоящий брокер.
type RabbitIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	conn      *amqp.Connection
	topo      messaging.Topology
}

func (s *RabbitIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.container, err = rabbitmq.Run(s.ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(wait.ForLog("Server startup complete")),
	)
	require.NoError(s.T(), err)

	url, err := s.container.AmqpURL(s.ctx)
	require.NoError(s.T(), err)
	s.conn, err = messaging.Dial(s.ctx, url, 5, time.Second, zap.NewNop())
	require.NoError(s.T(), err)

	s.topo = messaging.Topology{TaskQueue: "test_tasks", ResultQueue: "test_results"}
	ch, err := s.conn.Channel()
	require.NoError(s.T(), err)
	defer ch.Close()
	require.NoError(s.T(), s.topo.Declare(ch, zap.NewNop()))
}

func (s *RabbitIntegrationSuite) TearDownSuite() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *RabbitIntegrationSuite) publishTask(ch *amqp.Channel, body string) {
	err := ch.PublishWithContext(s.ctx, "", s.topo.TaskQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        []byte(body),
	})
	require.NoError(s.T(), err)
}

func (s *RabbitIntegrationSuite) TestRejectedTaskGoesToDLQ() {
	ch, err := s.conn.Channel()
	require.NoError(s.T(), err)
	defer ch.Close()

	received := make(chan messaging.GenerationTaskPayload, 2)
	consumer := messaging.NewConsumer(ch, s.topo.TaskQueue, handlerFunc(func(_ context.Context, p messaging.GenerationTaskPayload) error {
		received <- p
		return nil
	}), zap.NewNop())

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	pubCh, err := s.conn.Channel()
	require.NoError(s.T(), err)
	defer pubCh.Close()
	s.publishTask(pubCh, `{"task_id":"t-ok","phishing_type":"스미싱"}`)
	s.publishTask(pubCh, `broken`)

	select {
	case p := <-received:
		s.Equal("t-ok", p.TaskID)
	case <-time.After(30 * time.Second):
		s.FailNow("task was not consumed")
	}

	require.Eventually(s.T(), func() bool {
		q, err := pubCh.QueueDeclarePassive(s.topo.DeadLetterQueue(), true, false, false, false, nil)
		return err == nil && q.Messages == 1
	}, 30*time.Second, 200*time.Millisecond)

	cancel()
	s.NoError(<-done)
}

func (s *RabbitIntegrationSuite) TestNotifierPublishesResult() {
	ch, err := s.conn.Channel()
	require.NoError(s.T(), err)
	defer ch.Close()

	notifier := messaging.NewRabbitMQNotifier(ch, s.topo.ResultQueue, zap.NewNop())
	require.NoError(s.T(), notifier.Notify(s.ctx, messaging.NotificationPayload{
		TaskID: "t-1", Status: messaging.NotificationStatusSuccess, ScenarioID: "scenario_0000abcd",
	}))

	var msg amqp.Delivery
	require.Eventually(s.T(), func() bool {
		var ok bool
		msg, ok, err = ch.Get(s.topo.ResultQueue, true)
		return err == nil && ok
	}, 10*time.Second, 100*time.Millisecond)

	var payload messaging.NotificationPayload
	require.NoError(s.T(), json.Unmarshal(msg.Body, &payload))
	s.Equal("scenario_0000abcd", payload.ScenarioID)
}

func TestRabbitIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitIntegrationSuite))
}
