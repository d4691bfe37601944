// Package app собирает компоненты сервиса из конфигурации; общий код cmd/server и cmd/scenarioctl.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/config"
	"github.com/chris40461/scam-or-safe/internal/database"
	"github.com/chris40461/scam-or-safe/internal/imagegen"
	"github.com/chris40461/scam-or-safe/internal/llm"
	"github.com/chris40461/scam-or-safe/internal/pipeline"
	"github.com/chris40461/scam-or-safe/internal/repository"
)

// Pipeline построитель дерева и (если включён) генератор картинок.
type Pipeline struct {
	Builder *pipeline.Builder
	// Images nil, если IMAGE_ENABLED=false.
	Images *pipeline.ImageRenderer
}

// NewPipeline создаёт LLM клиент, генератор картинок и построитель.
func NewPipeline(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	textGen, err := llm.NewTextGenerator(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	var images *pipeline.ImageRenderer
	if cfg.Image.Enabled {
		client, err := imagegen.NewClient(cfg.Image, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create image client: %w", err)
		}
		images = pipeline.NewImageRenderer(client, cfg.Image, logger)
	}

	builder := pipeline.NewBuilder(textGen, images, pipeline.OptionsFromConfig(cfg.Pipeline), logger)
	logger.Info("Pipeline initialized",
		zap.String("llm_client", cfg.LLM.ClientType),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Int("max_depth", cfg.Pipeline.MaxDepth),
		zap.Bool("images", images != nil))
	return &Pipeline{Builder: builder, Images: images}, nil
}

// OpenScenarioRepository открывает хранилище сценариев по STORAGE_BACKEND.
// Для postgres применяет миграции. Вторым значением возвращается функция освобождения ресурсов.
func OpenScenarioRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.ScenarioRepository, func(), error) {
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Database, database.DefaultConnectOptions(), logger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.NewMigrator(pool, logger).Up(); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		return repository.NewPgScenarioRepository(pool, logger), pool.Close, nil
	default:
		repo, err := repository.NewFileScenarioRepository(cfg.Storage.Dir, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	}
}

// OpenTaskStore открывает хранилище статусов задач по TASK_STORE.
func OpenTaskStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.TaskStore, func(), error) {
	if cfg.Tasks.Store != "redis" {
		return repository.NewMemoryTaskStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	return repository.NewRedisTaskStore(client, cfg.Tasks.TTL, logger), func() { _ = client.Close() }, nil
}
