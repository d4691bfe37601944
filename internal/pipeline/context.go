package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/chris40461/scam-or-safe/internal/llm"
	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/retry"
)

const (
	// fullContextDepth до этой глубины включительно путь передаётся целиком.
	fullContextDepth = 2
	// recentWindow сколько последних шагов пути не сжимаются.
	recentWindow = 2

	summaryNodeRunes = 200
	// maxSummaryRunes предел сводки, и модельной, и запасной.
	maxSummaryRunes = 500
)

// Compressor превращает путь от корня в текст для модели,
// сжимая раннюю часть пути по мере роста глубины.
type Compressor struct {
	client gatedClient
	policy retry.Policy
	logger *zap.Logger
}

// NewCompressor создаёт компрессор. Вызовы суммаризации идут через общий семафор.
func NewCompressor(textGen llm.TextGenerator, sem *semaphore.Weighted, policy retry.Policy, logger *zap.Logger) *Compressor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compressor{
		client: gatedClient{llm: textGen, sem: sem},
		policy: policy,
		logger: logger.Named("ContextCompressor"),
	}
}

// Compress строит текст пути. path не содержит ожидающий выбор:
// у последнего шага Choice пустой, а choiceTaken добавляется в конце один раз.
func (c *Compressor) Compress(ctx context.Context, path []model.PathStep, depth int, choiceTaken string) string {
	var digest string
	if depth <= fullContextDepth || len(path) <= recentWindow {
		digest = renderSteps(path)
	} else {
		early := path[:len(path)-recentWindow]
		recent := path[len(path)-recentWindow:]
		summary := c.summarize(ctx, early)
		digest = fmt.Sprintf("[이전 경과 요약]\n%s\n\n[최근 상황]\n%s", summary, renderSteps(recent))
	}

	if choiceTaken != "" {
		digest += fmt.Sprintf("\n\n→ 이번 선택: %q", choiceTaken)
	}

	c.logger.Debug("Context digest built",
		zap.Int("depth", depth),
		zap.Int("path_len", len(path)),
		zap.Int("runes", utf8.RuneCountInString(digest)),
		zap.Int("estimated_tokens", llm.EstimateTokens(digest)))
	return digest
}

func (c *Compressor) summarize(ctx context.Context, early []model.PathStep) string {
	req := llm.Request{Call: callSummary, System: SummarySystemPrompt, User: buildSummaryInput(early)}

	summary, usedFallback := retry.DoWithFallback(ctx, c.policy, func(ctx context.Context, _ int) (string, error) {
		text, err := c.client.complete(ctx, req)
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return "", fmt.Errorf("%w: empty summary", llm.ErrGenerationFailed)
		}
		return truncateRunes(text, maxSummaryRunes), nil
	}, func(err error) string {
		c.logger.Warn("Summary generation failed, using first sentences", zap.Error(err))
		return fallbackSummary(early)
	})
	if usedFallback {
		fallbacksTotal.WithLabelValues(callSummary).Inc()
	}
	return summary
}

func renderSteps(steps []model.PathStep) string {
	parts := make([]string, 0, len(steps)*2)
	for _, s := range steps {
		parts = append(parts, s.Node.Text)
		if s.Choice != nil {
			parts = append(parts, fmt.Sprintf("→ 선택: %q", s.Choice.Text))
		}
	}
	return strings.Join(parts, "\n\n")
}

// fallbackSummary первое предложение каждого узла и сделанный выбор.
func fallbackSummary(steps []model.PathStep) string {
	parts := make([]string, 0, len(steps)*2)
	for _, s := range steps {
		parts = append(parts, firstSentence(s.Node.Text))
		if s.Choice != nil {
			parts = append(parts, "→ "+s.Choice.Text)
		}
	}
	return truncateRunes(strings.Join(parts, " "), maxSummaryRunes)
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		return text[:i+1]
	}
	return text
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
