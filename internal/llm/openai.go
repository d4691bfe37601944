package llm

import (
	"context"
	"fmt"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIClient реализует TextGenerator через go-openai.
type openAIClient struct {
	client      *openaigo.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

func (c *openAIClient) Complete(ctx context.Context, req Request) (string, Usage, error) {
	usage := Usage{}
	call := callName(req)
	if err := validateRequest(req); err != nil {
		llmRequestsTotal.WithLabelValues(c.model, call, "error").Inc()
		return "", usage, err
	}

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: req.System},
	}
	if req.User != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: req.User,
		})
	}

	chatReq := openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	startTime := time.Now()
	c.logger.Debug("Sending request to model",
		zap.String("call", call),
		zap.String("model", c.model),
		zap.Int("system_bytes", len(req.System)),
		zap.Int("user_bytes", len(req.User)))

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("Model API error", zap.String("call", call), zap.Duration("duration", duration), zap.Error(err))
		llmRequestsTotal.WithLabelValues(c.model, call, "error").Inc()
		return "", usage, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.logger.Warn("Model returned empty response", zap.String("call", call), zap.Duration("duration", duration))
		llmRequestsTotal.WithLabelValues(c.model, call, "error_empty_response").Inc()
		return "", usage, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	llmRequestsTotal.WithLabelValues(c.model, call, "success").Inc()
	llmRequestDuration.WithLabelValues(c.model, call).Observe(duration.Seconds())

	usage = Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	observeUsage(c.model, call, usage)

	text := resp.Choices[0].Message.Content
	c.logger.Debug("Model response received",
		zap.String("call", call),
		zap.Duration("duration", duration),
		zap.Int("length", len(text)),
		zap.Int("total_tokens", usage.TotalTokens))
	return text, usage, nil
}
