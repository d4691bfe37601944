package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/chris40461/scam-or-safe/internal/llm"
	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/retry"
	"github.com/chris40461/scam-or-safe/internal/schemas"
)

// Имена вызовов модели для логов и метрик.
const (
	callRoot         = "root"
	callContinuation = "continuation"
	callSummary      = "summary"
	callEducational  = "educational"
)

// gatedClient пропускает каждый вызов модели через общий семафор конвейера.
type gatedClient struct {
	llm llm.TextGenerator
	sem *semaphore.Weighted
}

func (g gatedClient) complete(ctx context.Context, req llm.Request) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", retry.Permanent(err)
	}
	defer g.sem.Release(1)
	text, _, err := g.llm.Complete(ctx, req)
	return text, err
}

// RootRequest входные данные для первого узла.
type RootRequest struct {
	PhishingType string
	Difficulty   model.Difficulty
	SeedInfo     string
}

// ChoiceOutput выбор в ответе модели.
type ChoiceOutput struct {
	Text           string              `json:"text"`
	IsDangerous    bool                `json:"is_dangerous"`
	ResourceEffect model.ResourceDelta `json:"resource_effect"`
}

// NodeOutput ответ модели для узла.
type NodeOutput struct {
	NodeType      string         `json:"node_type"`
	NarrativeText string         `json:"narrative_text"`
	Choices       []ChoiceOutput `json:"choices"`
	ImagePrompt   string         `json:"image_prompt"`
	Reasoning     string         `json:"reasoning"`
}

// RootOutput ответ модели для корня. Профиль героя разбирается отдельно,
// чтобы его ошибки не ломали весь ответ.
type RootOutput struct {
	NodeOutput
	Prologue    string          `json:"prologue"`
	Protagonist json.RawMessage `json:"protagonist"`
}

// NodeResult нормализованный результат генерации узла.
type NodeResult struct {
	Type        model.NodeType
	Text        string
	Choices     []ChoiceOutput
	ImagePrompt string
	Reasoning   string
	// Fallback: все попытки исчерпаны, узел собран из заготовки.
	Fallback bool
}

// RootResult результат генерации корня.
type RootResult struct {
	NodeResult
	Prologue    string
	Protagonist *model.ProtagonistProfile
}

// GenerationContext всё, что нужно для генерации продолжения.
type GenerationContext struct {
	PhishingType string
	Difficulty   model.Difficulty
	StoryPath    string
	ChoiceTaken  string
	// LastChoiceDangerous опасен ли только что сделанный выбор; нужен заготовке концовки без подсказки.
	LastChoiceDangerous bool
	Resources           model.Resources
	Depth               int
	MaxDepth            int
	Signal              EndSignal
	Protagonist         *model.ProtagonistProfile
}

// Generator генерирует узлы через модель с повторами и заготовками на случай отказа.
type Generator struct {
	client     gatedClient
	policy     retry.Policy
	maxChoices int
	logger     *zap.Logger
}

// NewGenerator создаёт генератор. sem общий для всего конвейера.
func NewGenerator(textGen llm.TextGenerator, sem *semaphore.Weighted, policy retry.Policy, maxChoices int, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:     gatedClient{llm: textGen, sem: sem},
		policy:     policy,
		maxChoices: maxChoices,
		logger:     logger.Named("NodeGenerator"),
	}
}

// GenerateRoot генерирует первый узел. Никогда не возвращает ошибку:
// при исчерпании попыток используется заготовка.
func (g *Generator) GenerateRoot(ctx context.Context, req RootRequest) RootResult {
	llmReq := llm.Request{Call: callRoot, System: RootSystemPrompt, User: BuildRootPrompt(req), JSON: true}

	out, usedFallback := retry.DoWithFallback(ctx, g.policy, func(ctx context.Context, _ int) (*RootOutput, error) {
		text, err := g.client.complete(ctx, llmReq)
		if err != nil {
			return nil, err
		}
		return schemas.Decode[RootOutput](schemas.Root, text)
	}, func(err error) *RootOutput {
		g.logger.Warn("Root generation exhausted, using fallback",
			zap.String("phishing_type", req.PhishingType), zap.Error(err))
		return nil
	})
	if usedFallback {
		fallbacksTotal.WithLabelValues(callRoot).Inc()
		return rootFallback(req.PhishingType)
	}

	result := RootResult{
		NodeResult: normalize(out.NodeOutput, EndSignal{Reason: ReasonContinue}, g.maxChoices),
		Prologue:   strings.TrimSpace(out.Prologue),
	}
	// корень всегда повествовательный: без выборов дерево не построить
	if result.Type != model.NodeTypeNarrative || len(result.Choices) == 0 {
		g.logger.Warn("Root output has no usable choices, using fallback choices")
		fb := rootFallback(req.PhishingType)
		result.Type = model.NodeTypeNarrative
		result.Choices = fb.Choices
	}
	p, err := decodeProtagonist(out.Protagonist)
	if err != nil {
		g.logger.Warn("Protagonist profile rejected", zap.Error(err))
	}
	result.Protagonist = p
	return result
}

// GenerateContinuation генерирует следующий узел ветки.
func (g *Generator) GenerateContinuation(ctx context.Context, gc GenerationContext) NodeResult {
	llmReq := llm.Request{Call: callContinuation, System: NodeSystemPrompt, User: BuildNodePrompt(gc), JSON: true}

	out, usedFallback := retry.DoWithFallback(ctx, g.policy, func(ctx context.Context, _ int) (*NodeOutput, error) {
		text, err := g.client.complete(ctx, llmReq)
		if err != nil {
			return nil, err
		}
		return schemas.Decode[NodeOutput](schemas.Node, text)
	}, func(err error) *NodeOutput {
		g.logger.Warn("Continuation generation exhausted, using fallback",
			zap.Int("depth", gc.Depth), zap.String("reason", gc.Signal.Reason), zap.Error(err))
		return nil
	})
	if usedFallback {
		fallbacksTotal.WithLabelValues(callContinuation).Inc()
		return continuationFallback(gc)
	}
	return normalize(*out, gc.Signal, g.maxChoices)
}

// GenerateEducational запрашивает обучающий блок. Второе значение true,
// если использован общий текст.
func (g *Generator) GenerateEducational(ctx context.Context, nodeText, choiceText, phishingType string) (*model.EducationalContent, bool) {
	llmReq := llm.Request{
		Call:   callEducational,
		System: EducationalSystemPrompt,
		User:   BuildEducationalPrompt(nodeText, choiceText, phishingType),
		JSON:   true,
	}
	content, usedFallback := retry.DoWithFallback(ctx, g.policy, func(ctx context.Context, _ int) (*model.EducationalContent, error) {
		text, err := g.client.complete(ctx, llmReq)
		if err != nil {
			return nil, err
		}
		return schemas.Decode[model.EducationalContent](schemas.Educational, text)
	}, func(err error) *model.EducationalContent {
		g.logger.Warn("Educational content generation exhausted, using generic content", zap.Error(err))
		return educationalFallback(phishingType)
	})
	if usedFallback {
		fallbacksTotal.WithLabelValues(callEducational).Inc()
	}
	return content, usedFallback
}

// normalize приводит недоверенный ответ модели к инвариантам дерева.
func normalize(out NodeOutput, signal EndSignal, maxChoices int) NodeResult {
	nodeType := model.NodeType(strings.TrimSpace(out.NodeType))
	if !nodeType.Valid() {
		nodeType = model.NodeTypeNarrative
	}

	choices := make([]ChoiceOutput, 0, len(out.Choices))
	for _, c := range out.Choices {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		choices = append(choices, ChoiceOutput{
			Text:           text,
			IsDangerous:    c.IsDangerous,
			ResourceEffect: c.ResourceEffect.Clamped(),
		})
	}
	if maxChoices > 0 && len(choices) > maxChoices {
		choices = choices[:maxChoices]
	}

	switch {
	case signal.Forced:
		nodeType = signal.EndingType.NodeType()
	case nodeType == model.NodeTypeNarrative && len(choices) == 0:
		nodeType = signal.EndingType.NodeType()
	}
	if nodeType.IsEnding() {
		choices = nil
	}

	return NodeResult{
		Type:        nodeType,
		Text:        strings.TrimSpace(out.NarrativeText),
		Choices:     choices,
		ImagePrompt: strings.TrimSpace(out.ImagePrompt),
		Reasoning:   out.Reasoning,
	}
}

// decodeProtagonist разбирает профиль героя по схеме protagonist.json.
// Отсутствие профиля даёт nil без ошибки.
func decodeProtagonist(raw json.RawMessage) (*model.ProtagonistProfile, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	p, err := schemas.Decode[model.ProtagonistProfile](schemas.Protagonist, string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidProtagonist, err)
	}
	return p, nil
}
