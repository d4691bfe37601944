package worker

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const jobName = "scenario_generation_worker"

var (
	// Отдельный реестр воркера: только он уходит в Pushgateway.
	registry = prometheus.NewRegistry()

	tasksReceived = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "scenario_worker_tasks_received_total",
			Help: "Total number of generation tasks received from the queue.",
		},
	)
	tasksFailed = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_worker_tasks_failed_total",
			Help: "Total number of generation tasks failed, partitioned by reason.",
		},
		[]string{"reason"},
	)
	tasksSucceeded = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "scenario_worker_tasks_succeeded_total",
			Help: "Total number of generation tasks completed successfully.",
		},
	)
	taskDuration = promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scenario_worker_task_duration_seconds",
			Help:    "Wall time from task creation to its terminal status.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 900},
		},
	)
)

// MetricsPusher периодически отправляет метрики воркера в Pushgateway.
type MetricsPusher struct {
	pusher *push.Pusher
	logger *zap.Logger
	mu     sync.Mutex
}

// NewMetricsPusher создаёт pusher с группировкой по инстансу (hostname-pid).
func NewMetricsPusher(pushgatewayURL string, logger *zap.Logger) *MetricsPusher {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	logger = logger.Named("MetricsPusher")
	logger.Info("Initializing Pushgateway pusher",
		zap.String("job", jobName),
		zap.String("instance", instanceID),
		zap.String("url", pushgatewayURL))

	return &MetricsPusher{
		pusher: push.New(pushgatewayURL, jobName).Gatherer(registry).Grouping("instance", instanceID),
		logger: logger,
	}
}

// Push отправляет текущие значения.
func (p *MetricsPusher) Push() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.pusher.Push(); err != nil {
		p.logger.Warn("Failed to push metrics", zap.Error(err))
		return err
	}
	return nil
}

// Start пушит метрики каждые interval до закрытия stop.
func (p *MetricsPusher) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = p.Push()
			}
		}
	}()
}

// Cleanup удаляет метрики инстанса из Pushgateway.
func (p *MetricsPusher) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.pusher.Delete(); err != nil {
		p.logger.Warn("Failed to delete metrics from Pushgateway", zap.Error(err))
	}
}
