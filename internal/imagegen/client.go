// Package imagegen клиент внешнего сервиса генерации картинок:
// запрос, повторы, сохранение файла и публичный URL.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/config"
	"github.com/chris40461/scam-or-safe/internal/retry"
)

var (
	// ErrImageGenerationFailed ошибка при генерации изображения сервисом.
	ErrImageGenerationFailed = errors.New("image generation failed")
	// ErrImageSaveFailed ошибка при сохранении файла.
	ErrImageSaveFailed = errors.New("image save failed")
	// ErrSafetyBlocked запрос отклонён фильтром безопасности; повторять бессмысленно.
	ErrSafetyBlocked = errors.New("image blocked by safety filter")
	// ErrInvalidReference недопустимый ID сценария или узла для имени файла.
	ErrInvalidReference = errors.New("invalid image reference")
)

var imageRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scenario_image_requests_total",
		Help: "Total number of image generation requests by outcome.",
	},
	[]string{"status"},
)

var imageHTTPDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "scenario_image_http_request_duration_seconds",
		Help:    "Latency of HTTP calls to the image service.",
		Buckets: []float64{1, 5, 10, 20, 40, 60, 120},
	},
	[]string{"code", "method"},
)

var safeName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Request запрос картинки для узла.
type Request struct {
	Prompt     string
	NodeID     string
	ScenarioID string
	// Seed 0 означает "вычислить из ScenarioID".
	Seed int64
}

// Generator интерфейс генерации картинок. Возвращает публичный URL.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// apiRequest тело запроса к сервису.
type apiRequest struct {
	Prompt string `json:"prompt"`
	Ratio  string `json:"ratio"`
	Seed   int64  `json:"seed,omitempty"`
}

// statusError ответ сервиса с кодом, отличным от 200.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.code, e.body)
}

// Client реализация Generator поверх HTTP.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	serviceURL string
	ratio      string
	savePath   string
	publicBase string
	policy     retry.Policy
}

// NewClient создаёт клиент по конфигурации.
func NewClient(cfg config.ImageConfig, logger *zap.Logger) (*Client, error) {
	if cfg.ServiceURL == "" {
		return nil, errors.New("image service URL (IMAGE_SERVICE_URL) is not configured")
	}
	if cfg.SavePath == "" {
		return nil, errors.New("image save path (IMAGE_SAVE_PATH) is not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ImageClient")

	policy := retry.New("image", cfg.RetryCount, cfg.RetryDelay, logger)
	policy.Retryable = func(err error) bool { return !errors.Is(err, ErrSafetyBlocked) && !errors.Is(err, ErrInvalidReference) }
	policy.DelayFor = quotaDelay

	ratio := cfg.Ratio
	if ratio == "" {
		ratio = "16:9"
	}

	return &Client{
		logger:     logger,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: promhttp.InstrumentRoundTripperDuration(imageHTTPDuration, http.DefaultTransport),
		},
		serviceURL: strings.TrimSuffix(cfg.ServiceURL, "/"),
		ratio:      ratio,
		savePath:   cfg.SavePath,
		publicBase: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		policy:     policy,
	}, nil
}

// WithRetryPolicy заменяет политику повторов (в тестах).
func (c *Client) WithRetryPolicy(p retry.Policy) *Client {
	p.Retryable = c.policy.Retryable
	p.DelayFor = c.policy.DelayFor
	c.policy = p
	return c
}

// Generate генерирует картинку, сохраняет её в <save>/<scenario>/<node>.png
// и возвращает URL вида <public>/<scenario>/<node>.png.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if !safeName.MatchString(req.ScenarioID) || !safeName.MatchString(req.NodeID) {
		imageRequestsTotal.WithLabelValues("invalid").Inc()
		return "", fmt.Errorf("%w: scenario=%q node=%q", ErrInvalidReference, req.ScenarioID, req.NodeID)
	}
	seed := req.Seed
	if seed == 0 {
		seed = SeedFor(req.ScenarioID)
	}
	log := c.logger.With(
		zap.String("scenario_id", req.ScenarioID),
		zap.String("node_id", req.NodeID),
		zap.Int64("seed", seed),
	)

	imageData, err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) ([]byte, error) {
		data, err := c.callAPI(ctx, req.Prompt, seed)
		if err != nil {
			log.Debug("Image attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return data, err
	})
	if err != nil {
		if errors.Is(err, ErrSafetyBlocked) {
			imageRequestsTotal.WithLabelValues("blocked").Inc()
			log.Warn("Image blocked by safety filter, skipping")
			return "", err
		}
		imageRequestsTotal.WithLabelValues("error").Inc()
		log.Error("Image generation failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}

	dir := filepath.Join(c.savePath, req.ScenarioID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		imageRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}
	fileName := req.NodeID + ".png"
	filePath := filepath.Join(dir, fileName)
	if err := os.WriteFile(filePath, imageData, 0o644); err != nil {
		imageRequestsTotal.WithLabelValues("error").Inc()
		log.Error("Failed to save image to file", zap.String("path", filePath), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}

	imageRequestsTotal.WithLabelValues("success").Inc()
	imageURL := c.publicBase + "/" + req.ScenarioID + "/" + fileName
	log.Info("Image saved", zap.String("path", filePath), zap.String("url", imageURL), zap.Int("size_bytes", len(imageData)))
	return imageURL, nil
}

func (c *Client) callAPI(ctx context.Context, prompt string, seed int64) ([]byte, error) {
	body, err := json.Marshal(apiRequest{Prompt: prompt, Ratio: c.ratio, Seed: seed})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to marshal request payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/*")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		text := string(data)
		if resp.StatusCode == http.StatusUnavailableForLegalReasons || isSafetyMessage(text) {
			return nil, fmt.Errorf("%w: status %d", ErrSafetyBlocked, resp.StatusCode)
		}
		return nil, &statusError{code: resp.StatusCode, body: text}
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}
	if len(data) == 0 {
		return nil, errors.New("API returned empty data")
	}
	return data, nil
}

func isSafetyMessage(body string) bool {
	return strings.Contains(body, "SAFETY") || strings.Contains(strings.ToLower(body), "blocked")
}

// quotaDelay удваивает ожидание при ответе 429.
func quotaDelay(err error, delay time.Duration) time.Duration {
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusTooManyRequests {
		return delay * 2
	}
	return delay
}

// SeedFor стабильный seed сценария в диапазоне [1, 2^31-1),
// чтобы все картинки одного сценария были в одном стиле.
func SeedFor(scenarioID string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scenarioID))
	seed := int64(h.Sum32()) % 2147483647
	if seed <= 0 {
		seed = 1
	}
	return seed
}
