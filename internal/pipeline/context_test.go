package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/chris40461/scam-or-safe/internal/llm"
	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/retry"
)

// chainPath путь из n узлов, в каждом из которых сделан первый выбор.
func chainPath(n int, textRunes int) []model.PathStep {
	path := make([]model.PathStep, 0, n)
	for i := 0; i < n; i++ {
		node := &model.ScenarioNode{
			ID:    fmt.Sprintf("node_%03d", i+1),
			Text:  fmt.Sprintf("장면%d. %s", i+1, strings.Repeat("가", textRunes)),
			Depth: i,
		}
		var choice *model.Choice
		if i < n-1 {
			choice = &model.Choice{ID: node.ID + "_c1", Text: fmt.Sprintf("선택%d", i+1)}
		}
		path = append(path, model.PathStep{Node: node, Choice: choice})
	}
	return path
}

func newTestCompressor(fake llm.TextGenerator) *Compressor {
	return NewCompressor(fake, semaphore.NewWeighted(1), retry.New("test", 1, 0, zap.NewNop()), zap.NewNop())
}

func TestCompress_ShallowPathVerbatim(t *testing.T) {
	fake := scriptedLLM()
	path := chainPath(2, 10)

	digest := newTestCompressor(fake).Compress(context.Background(), path, 2, "계좌번호를 알려준다")

	assert.Contains(t, digest, path[0].Node.Text)
	assert.Contains(t, digest, path[1].Node.Text)
	assert.Contains(t, digest, `→ 선택: "선택1"`)
	assert.True(t, strings.HasSuffix(digest, `→ 이번 선택: "계좌번호를 알려준다"`))
	assert.Equal(t, 1, strings.Count(digest, "계좌번호를 알려준다"))
	assert.Zero(t, fake.count(callSummary))
}

func TestCompress_DeepPathSummarizesEarlySteps(t *testing.T) {
	fake := newFakeLLM(func(context.Context, llm.Request) (string, error) {
		return "요약: 피해자는 의심 없이 안내를 따랐다.", nil
	})
	path := chainPath(6, 300)

	digest := newTestCompressor(fake).Compress(context.Background(), path, 6, "송금한다")

	assert.Contains(t, digest, "요약: 피해자는 의심 없이 안내를 따랐다.")
	assert.NotContains(t, digest, path[0].Node.Text)
	assert.Contains(t, digest, path[4].Node.Text)
	assert.Contains(t, digest, path[5].Node.Text)
	assert.Equal(t, 1, fake.count(callSummary))
	// полный путь заметно длиннее сжатого
	assert.Less(t, utf8.RuneCountInString(digest), utf8.RuneCountInString(renderSteps(path)))
}

func TestCompress_SummaryFallbackIsBounded(t *testing.T) {
	fake := failingLLM()
	path := chainPath(12, 400)

	digest := newTestCompressor(fake).Compress(context.Background(), path, 12, "끊는다")

	assert.Contains(t, digest, "장면1.")
	assert.NotContains(t, digest, path[0].Node.Text)
	assert.Equal(t, 2, fake.count(callSummary))
}

func TestCompress_ModelSummaryIsCapped(t *testing.T) {
	fake := newFakeLLM(func(context.Context, llm.Request) (string, error) {
		return strings.Repeat("뷁", 20000), nil
	})
	path := chainPath(6, 10)

	digest := newTestCompressor(fake).Compress(context.Background(), path, 6, "")

	assert.Equal(t, maxSummaryRunes, strings.Count(digest, "뷁"))
	assert.Less(t, utf8.RuneCountInString(digest), maxSummaryRunes+200)
}

func TestFallbackSummary(t *testing.T) {
	summary := fallbackSummary(chainPath(40, 50))
	assert.LessOrEqual(t, utf8.RuneCountInString(summary), maxSummaryRunes)
	assert.True(t, strings.HasPrefix(summary, "장면1. → 선택1"))
}

func TestBuildSummaryInput_TruncatesNodes(t *testing.T) {
	input := buildSummaryInput(chainPath(2, 500))
	assert.Contains(t, input, "[상황]")
	assert.Contains(t, input, "[선택] 선택1")
	assert.NotContains(t, input, strings.Repeat("가", summaryNodeRunes))
}
