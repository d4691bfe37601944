package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/chris40461/scam-or-safe/internal/llm"
	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/retry"
)

func newTestGenerator(fake llm.TextGenerator) *Generator {
	return NewGenerator(fake, semaphore.NewWeighted(2), retry.New("test", 1, 0, zap.NewNop()), 3, zap.NewNop())
}

func TestNormalize_ForcedSignalOverridesNarrative(t *testing.T) {
	out := NodeOutput{
		NodeType:      "narrative",
		NarrativeText: " 결국 돈을 보냈습니다. ",
		Choices:       []ChoiceOutput{{Text: "다시 확인한다"}},
	}
	res := normalize(out, EndSignal{ShouldEnd: true, Forced: true, EndingType: model.EndingBad, Reason: ReasonMoneyDepleted}, 3)

	assert.Equal(t, model.NodeTypeEndingBad, res.Type)
	assert.Empty(t, res.Choices)
	assert.Equal(t, "결국 돈을 보냈습니다.", res.Text)
}

func TestNormalize_CleansChoices(t *testing.T) {
	out := NodeOutput{
		NodeType:      "mystery",
		NarrativeText: "x",
		Choices: []ChoiceOutput{
			{Text: "a", ResourceEffect: model.ResourceDelta{Trust: 9, Money: -7}},
			{Text: "   "},
			{Text: "b"},
			{Text: "c"},
			{Text: "d"},
		},
	}
	res := normalize(out, EndSignal{Reason: ReasonContinue}, 3)

	assert.Equal(t, model.NodeTypeNarrative, res.Type)
	require.Len(t, res.Choices, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{res.Choices[0].Text, res.Choices[1].Text, res.Choices[2].Text})
	assert.Equal(t, model.ResourceDelta{Trust: 2, Money: -2}, res.Choices[0].ResourceEffect)
}

func TestNormalize_NarrativeWithoutChoicesBecomesEnding(t *testing.T) {
	res := normalize(NodeOutput{NodeType: "narrative", NarrativeText: "x"}, EndSignal{ShouldEnd: true, EndingType: model.EndingGood, Reason: ReasonThreeSafe}, 3)
	assert.Equal(t, model.NodeTypeEndingGood, res.Type)

	res = normalize(NodeOutput{NodeType: "narrative", NarrativeText: "x"}, EndSignal{Reason: ReasonContinue}, 3)
	assert.Equal(t, model.NodeTypeEndingBad, res.Type)
}

func TestGenerateRoot_FallbackAfterExhaustion(t *testing.T) {
	fake := failingLLM()
	g := newTestGenerator(fake)

	res := g.GenerateRoot(context.Background(), RootRequest{PhishingType: "보이스피싱"})

	assert.True(t, res.Fallback)
	assert.Equal(t, model.NodeTypeNarrative, res.Type)
	assert.Contains(t, res.Text, "보이스피싱")
	require.Len(t, res.Choices, 2)
	assert.True(t, res.Choices[0].IsDangerous)
	assert.False(t, res.Choices[1].IsDangerous)
	assert.Equal(t, 2, fake.count(callRoot))
}

func TestGenerateRoot_RetriesInvalidOutput(t *testing.T) {
	attempts := 0
	fake := newFakeLLM(func(context.Context, llm.Request) (string, error) {
		attempts++
		if attempts == 1 {
			return "죄송하지만 도와드릴 수 없습니다.", nil
		}
		return scriptedRoot, nil
	})
	g := newTestGenerator(fake)

	res := g.GenerateRoot(context.Background(), RootRequest{PhishingType: "기관 사칭"})
	assert.False(t, res.Fallback)
	assert.Equal(t, "은행 직원이라며 전화가 걸려왔습니다.", res.Text)
	assert.Equal(t, 2, attempts)
}

func TestDecodeProtagonist(t *testing.T) {
	p, err := decodeProtagonist(nil)
	assert.NoError(t, err)
	assert.Nil(t, p)

	p, err = decodeProtagonist([]byte(`{"age_group": "middle-aged", "gender": "man", "description": "회사원", "appearance": "navy suit"}`))
	require.NoError(t, err)
	assert.Equal(t, "middle-aged", p.AgeGroup)

	p, err = decodeProtagonist([]byte(`{"age_group": "teen", "gender": "man", "description": "학생", "appearance": "hoodie"}`))
	assert.ErrorIs(t, err, model.ErrInvalidProtagonist)
	assert.Nil(t, p)
}

func TestContinuationFallback(t *testing.T) {
	cont := continuationFallback(GenerationContext{Depth: 1, MaxDepth: 4, Signal: EndSignal{Reason: ReasonContinue}})
	assert.Equal(t, model.NodeTypeNarrative, cont.Type)
	require.Len(t, cont.Choices, 2)
	assert.NotEqual(t, cont.Choices[0].IsDangerous, cont.Choices[1].IsDangerous)

	forced := continuationFallback(GenerationContext{Depth: 1, MaxDepth: 4, Signal: EndSignal{ShouldEnd: true, Forced: true, EndingType: model.EndingBad}})
	assert.Equal(t, model.NodeTypeEndingBad, forced.Type)
	assert.Empty(t, forced.Choices)

	// предпоследний уровень без подсказки: концовка по последнему выбору
	late := continuationFallback(GenerationContext{Depth: 3, MaxDepth: 4, LastChoiceDangerous: false, Signal: EndSignal{Reason: ReasonContinue}})
	assert.Equal(t, model.NodeTypeEndingGood, late.Type)
	late = continuationFallback(GenerationContext{Depth: 3, MaxDepth: 4, LastChoiceDangerous: true, Signal: EndSignal{Reason: ReasonContinue}})
	assert.Equal(t, model.NodeTypeEndingBad, late.Type)
}

func TestGenerateEducational(t *testing.T) {
	content, generic := newTestGenerator(scriptedLLM()).GenerateEducational(context.Background(), "n", "c", "기관 사칭")
	assert.False(t, generic)
	assert.Equal(t, "기관 사칭 주의", content.Title)

	content, generic = newTestGenerator(failingLLM()).GenerateEducational(context.Background(), "n", "c", "기관 사칭")
	assert.True(t, generic)
	assert.Contains(t, content.Explanation, "기관 사칭")
	assert.NotEmpty(t, content.WarningSigns)
}
