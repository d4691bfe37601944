// Package llm содержит клиенты текстовых моделей (OpenAI-совместимые и Ollama)
// за единым интерфейсом TextGenerator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/config"
)

// ErrGenerationFailed ошибка при генерации текста моделью.
var ErrGenerationFailed = errors.New("text generation failed")

// Request один запрос к модели.
type Request struct {
	// Call имя вызова для логов и метрик (root, continuation, summary, educational).
	Call   string
	System string
	User   string
	// JSON включает режим ответа строго в виде JSON-объекта.
	JSON bool
}

// Usage информация об использовании токенов.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// TextGenerator интерфейс для взаимодействия с текстовой моделью.
type TextGenerator interface {
	// Complete возвращает ответ модели. Пустой ответ считается ошибкой.
	Complete(ctx context.Context, req Request) (string, Usage, error)
}

// NewTextGenerator создает клиент в зависимости от LLM_CLIENT_TYPE.
func NewTextGenerator(cfg config.LLMConfig, logger *zap.Logger) (TextGenerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.ClientType) {
	case "openai":
		openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
		openaiConfig.BaseURL = cfg.BaseURL
		openaiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		logger.Info("OpenAI client created",
			zap.String("base_url", cfg.BaseURL),
			zap.String("model", cfg.Model),
			zap.Duration("timeout", cfg.Timeout))
		return &openAIClient{
			client:      openaigo.NewClientWithConfig(openaiConfig),
			model:       cfg.Model,
			temperature: float32(cfg.Temperature),
			logger:      logger.Named("OpenAIClient"),
		}, nil
	case "ollama":
		return newOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown LLM client type: '%s'", cfg.ClientType)
	}
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.System) == "" {
		return fmt.Errorf("%w: system prompt is empty", ErrGenerationFailed)
	}
	return nil
}

func callName(req Request) string {
	if req.Call == "" {
		return "default"
	}
	return req.Call
}
