package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/model"
)

const taskKeyPrefix = "scenario_task:"

var _ TaskStore = (*redisTaskStore)(nil)

// redisTaskStore задача хранится JSON-строкой с TTL, чтобы забытые ключи истекали сами.
type redisTaskStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisTaskStore создаёт хранилище задач в Redis.
func NewRedisTaskStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) TaskStore {
	return &redisTaskStore{client: client, ttl: ttl, logger: logger.Named("RedisTaskStore")}
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

func (s *redisTaskStore) Create(ctx context.Context, task *model.GenerationTask) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}
	ok, err := s.client.SetNX(ctx, taskKey(task.ID), raw, s.ttl).Result()
	if err != nil {
		s.logger.Error("Failed to create task in redis", zap.String("task_id", task.ID), zap.Error(err))
		return fmt.Errorf("failed to create task %s: %w", task.ID, err)
	}
	if !ok {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	return nil
}

func (s *redisTaskStore) Update(ctx context.Context, task *model.GenerationTask) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}
	ok, err := s.client.SetXX(ctx, taskKey(task.ID), raw, s.ttl).Result()
	if err != nil {
		s.logger.Error("Failed to update task in redis", zap.String("task_id", task.ID), zap.Error(err))
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	if !ok {
		return model.ErrNotFound
	}
	return nil
}

func (s *redisTaskStore) Get(ctx context.Context, id string) (*model.GenerationTask, error) {
	raw, err := s.client.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	var task model.GenerationTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", id, err)
	}
	return &task, nil
}

func (s *redisTaskStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, taskKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// ключ мог истечь между SCAN и GET
			continue
		}
		var task model.GenerationTask
		if err := json.Unmarshal(raw, &task); err != nil {
			s.logger.Warn("Dropping undecodable task", zap.String("key", key), zap.Error(err))
		} else if !task.Status.Terminal() || !task.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan tasks: %w", err)
	}
	return removed, nil
}
