package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/api"
	"github.com/chris40461/scam-or-safe/internal/app"
	"github.com/chris40461/scam-or-safe/internal/config"
	"github.com/chris40461/scam-or-safe/internal/logger"
	"github.com/chris40461/scam-or-safe/internal/messaging"
	"github.com/chris40461/scam-or-safe/internal/service"
	"github.com/chris40461/scam-or-safe/internal/taskmanager"
	"github.com/chris40461/scam-or-safe/internal/worker"
)

const (
	shutdownTimeout  = 30 * time.Second
	rabbitMaxRetries = 5
	rabbitRetryDelay = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server stopped with error", zap.Error(err))
	}
	log.Info("Server stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting scenario service", zap.String("env", cfg.AppEnv))

	pl, err := app.NewPipeline(cfg, log)
	if err != nil {
		return err
	}

	repo, closeRepo, err := app.OpenScenarioRepository(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open scenario storage: %w", err)
	}
	defer closeRepo()

	taskStore, closeTasks, err := app.OpenTaskStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open task store: %w", err)
	}
	defer closeTasks()

	tasks := taskmanager.New(taskStore, taskmanager.Config{
		MaxActive:     cfg.Tasks.MaxActive,
		Retention:     cfg.Tasks.Retention,
		SweepInterval: cfg.Tasks.SweepInterval,
	}, log)
	go tasks.RunSweeper(ctx)

	// nil *ImageRenderer в интерфейсе не равен nil
	var images service.ImageRenderer
	if pl.Images != nil {
		images = pl.Images
	}
	svc := service.NewScenarioService(pl.Builder, images, repo, tasks, log)

	var pusher *worker.MetricsPusher
	if cfg.Metrics.PushGatewayURL != "" {
		pusher = worker.NewMetricsPusher(cfg.Metrics.PushGatewayURL, log)
		stopPush := make(chan struct{})
		pusher.Start(cfg.Metrics.PushInterval, stopPush)
		defer func() {
			close(stopPush)
			_ = pusher.Push()
			pusher.Cleanup()
		}()
	}

	consumerDone := make(chan error, 1)
	if cfg.RabbitMQ.Enabled {
		conn, err := messaging.Dial(ctx, cfg.RabbitMQ.URL, rabbitMaxRetries, rabbitRetryDelay, log)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := startQueueWorker(ctx, conn, cfg.RabbitMQ, svc, tasks, log, consumerDone); err != nil {
			return err
		}
	} else {
		tasks.OnFinish(worker.NotifyOnFinish(nil, log))
		close(consumerDone)
	}

	handler := api.NewHandler(svc, cfg.Image.SavePath, log)
	router := api.NewRouter(handler, api.RouterConfig{CORSOrigins: cfg.HTTP.CORSOrigins, EnableMetrics: true}, log)
	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("port", cfg.HTTP.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	<-consumerDone
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		log.Warn("Some generation tasks were cancelled on shutdown", zap.Error(err))
	}
	return nil
}

// startQueueWorker объявляет очереди, подключает уведомления и запускает консьюмера.
func startQueueWorker(ctx context.Context, conn *amqp.Connection, cfg config.RabbitMQConfig, svc service.ScenarioService, tasks *taskmanager.Manager, log *zap.Logger, done chan<- error) error {
	topo := messaging.Topology{TaskQueue: cfg.TaskQueue, ResultQueue: cfg.ResultQueue}

	// отдельные каналы: публикация из колбэков задач идёт параллельно с чтением очереди
	consumeCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	if err := topo.Declare(consumeCh, log); err != nil {
		_ = consumeCh.Close()
		return err
	}
	publishCh, err := conn.Channel()
	if err != nil {
		_ = consumeCh.Close()
		return fmt.Errorf("failed to open publisher channel: %w", err)
	}

	notifier := messaging.NewRabbitMQNotifier(publishCh, topo.ResultQueue, log)
	tasks.OnFinish(worker.NotifyOnFinish(notifier, log))

	consumer := messaging.NewConsumer(consumeCh, topo.TaskQueue, worker.NewTaskHandler(svc, log), log)
	go func() {
		defer close(done)
		defer consumeCh.Close()
		if err := consumer.Run(ctx); err != nil {
			log.Error("Queue consumer failed", zap.Error(err))
			done <- err
		}
	}()
	return nil
}
