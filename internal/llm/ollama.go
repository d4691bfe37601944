package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/config"
)

// ollamaClient реализует TextGenerator через нативный API Ollama.
type ollamaClient struct {
	client      *api.Client
	model       string
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

func newOllamaClient(cfg config.LLMConfig, logger *zap.Logger) (TextGenerator, error) {
	// api.NewClient ожидает адрес без /v1
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Ollama base URL '%s': %w", baseURL, err)
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout})
	logger.Info("Ollama client created",
		zap.String("base_url", baseURL),
		zap.String("model", cfg.Model),
		zap.Duration("timeout", cfg.Timeout))

	return &ollamaClient{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger.Named("OllamaClient"),
	}, nil
}

func (c *ollamaClient) Complete(ctx context.Context, req Request) (string, Usage, error) {
	usage := Usage{}
	call := callName(req)
	if err := validateRequest(req); err != nil {
		llmRequestsTotal.WithLabelValues(c.model, call, "error").Inc()
		return "", usage, err
	}

	messages := []api.Message{{Role: "system", Content: req.System}}
	if req.User != "" {
		messages = append(messages, api.Message{Role: "user", Content: req.User})
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  map[string]any{"temperature": c.temperature},
	}
	if req.JSON {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	requestCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		requestCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("Ollama request timed out", zap.String("call", call), zap.Duration("timeout", c.timeout), zap.Error(err))
		} else {
			c.logger.Warn("Ollama API error", zap.String("call", call), zap.Duration("duration", duration), zap.Error(err))
		}
		llmRequestsTotal.WithLabelValues(c.model, call, "error").Inc()
		return "", usage, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		c.logger.Warn("Ollama returned empty response", zap.String("call", call), zap.Duration("duration", duration))
		llmRequestsTotal.WithLabelValues(c.model, call, "error_empty_response").Inc()
		return "", usage, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	llmRequestsTotal.WithLabelValues(c.model, call, "success").Inc()
	llmRequestDuration.WithLabelValues(c.model, call).Observe(duration.Seconds())

	usage = Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	observeUsage(c.model, call, usage)

	return resp.Message.Content, usage, nil
}
