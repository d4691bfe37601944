package pipeline

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/llm"
	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/validation"
)

func testOptions(maxDepth int) Options {
	return Options{
		MaxDepth:      maxDepth,
		MaxChoices:    3,
		Concurrency:   4,
		RetryCount:    1,
		Timeout:       10 * time.Second,
		EnrichEnabled: true,
		RepairRounds:  3,
	}
}

func countTypes(tree *model.ScenarioTree) map[model.NodeType]int {
	out := make(map[model.NodeType]int)
	for _, n := range tree.Nodes {
		out[n.Type]++
	}
	return out
}

func TestBuild_ScriptedModelProducesValidTree(t *testing.T) {
	fake := scriptedLLM()
	b := NewBuilder(fake, nil, testOptions(3), zap.NewNop())

	tree, err := b.Build(context.Background(), RootRequest{PhishingType: "기관 사칭", Difficulty: model.DifficultyEasy}, nil)
	require.NoError(t, err)

	assert.Empty(t, validation.Validate(tree, 3))
	// 1 + 2 + 4 + 8: полное бинарное дерево глубины 3
	assert.Len(t, tree.Nodes, 15)
	assert.Equal(t, "node_001", tree.RootNodeID)
	assert.Equal(t, "기관 사칭 시나리오", tree.Title)
	assert.Regexp(t, `^scenario_[0-9a-f]{8}$`, tree.ID)
	assert.Equal(t, "평범한 화요일 오후였습니다.", tree.Prologue)
	require.NotNil(t, tree.Protagonist)
	assert.Equal(t, "elderly", tree.Protagonist.AgeGroup)

	types := countTypes(tree)
	assert.Equal(t, 7, types[model.NodeTypeNarrative])
	assert.Equal(t, 4, types[model.NodeTypeEndingGood])
	assert.Equal(t, 4, types[model.NodeTypeEndingBad])

	for _, n := range tree.Nodes {
		assert.LessOrEqual(t, n.Depth, 3)
		if n.Type.IsEnding() {
			assert.Empty(t, n.Choices, n.ID)
			assert.NotNil(t, n.EducationalContent, n.ID)
		}
		for _, c := range n.Choices {
			assert.True(t, c.Resolved(), c.ID)
		}
	}
	assert.Equal(t, 0, tree.Metadata["fallback_nodes"])
	assert.Equal(t, 0, tree.Metadata["repair_rounds"])
}

func TestBuild_EndingTypeFollowsLastChoice(t *testing.T) {
	b := NewBuilder(scriptedLLM(), nil, testOptions(2), zap.NewNop())

	tree, err := b.Build(context.Background(), RootRequest{PhishingType: "메신저 피싱"}, nil)
	require.NoError(t, err)

	for _, n := range tree.Nodes {
		if !n.Type.IsEnding() {
			continue
		}
		parent := tree.Node(n.ParentNodeID)
		require.NotNil(t, parent)
		via := parent.Choice(n.ParentChoiceID)
		require.NotNil(t, via)
		if via.IsDangerous {
			assert.Equal(t, model.NodeTypeEndingBad, n.Type, n.ID)
		} else {
			assert.Equal(t, model.NodeTypeEndingGood, n.Type, n.ID)
		}
	}
}

func TestBuild_MaxDepthOne(t *testing.T) {
	b := NewBuilder(scriptedLLM(), nil, testOptions(1), zap.NewNop())

	tree, err := b.Build(context.Background(), RootRequest{PhishingType: "택배 사칭"}, nil)
	require.NoError(t, err)

	root := tree.Node(tree.RootNodeID)
	require.NotNil(t, root)
	assert.Equal(t, model.NodeTypeNarrative, root.Type)
	assert.Len(t, tree.Nodes, 1+len(root.Choices))
	for _, c := range root.Choices {
		child := tree.Node(c.NextNodeID)
		require.NotNil(t, child)
		assert.True(t, child.Type.IsEnding())
		assert.Equal(t, 1, child.Depth)
	}
	assert.Empty(t, validation.Validate(tree, 1))
}

func TestBuild_FailingModelStillYieldsValidTree(t *testing.T) {
	fake := failingLLM()
	b := NewBuilder(fake, nil, testOptions(3), zap.NewNop())

	tree, err := b.Build(context.Background(), RootRequest{PhishingType: "대출 사기"}, nil)
	require.NoError(t, err)

	assert.Empty(t, validation.Validate(tree, 3))
	types := countTypes(tree)
	assert.Positive(t, types[model.NodeTypeEndingGood])
	assert.Positive(t, types[model.NodeTypeEndingBad])
	assert.Nil(t, tree.Protagonist)
	assert.Equal(t, len(tree.Nodes), tree.Metadata["fallback_nodes"])

	for _, n := range tree.Nodes {
		if n.Type.IsEnding() {
			require.NotNil(t, n.EducationalContent)
			assert.Equal(t, "주의하세요", n.EducationalContent.Title)
		}
	}
	// одна повторная попытка на каждый вызов
	assert.Equal(t, 2, fake.count(callRoot))
}

func TestBuild_TimeoutReturnsNoTree(t *testing.T) {
	slow := newFakeLLM(func(ctx context.Context, _ llm.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	opts := testOptions(3)
	opts.Timeout = 50 * time.Millisecond
	b := NewBuilder(slow, nil, opts, zap.NewNop())

	tree, err := b.Build(context.Background(), RootRequest{PhishingType: "기관 사칭"}, nil)
	assert.ErrorIs(t, err, ErrPipelineTimeout)
	assert.Nil(t, tree)
}

func TestBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBuilder(scriptedLLM(), nil, testOptions(3), zap.NewNop())

	tree, err := b.Build(ctx, RootRequest{PhishingType: "기관 사칭"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrPipelineTimeout)
	assert.Nil(t, tree)
}

func TestBuild_RejectsEmptyPhishingType(t *testing.T) {
	b := NewBuilder(scriptedLLM(), nil, testOptions(3), zap.NewNop())

	_, err := b.Build(context.Background(), RootRequest{PhishingType: "  "}, nil)
	assert.ErrorIs(t, err, model.ErrEmptyPhishingType)
}

func TestBuild_ReportsMonotonicProgress(t *testing.T) {
	var (
		mu      sync.Mutex
		percent []int
		phases  []Phase
	)
	progress := func(p Phase, pct int) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, p)
		percent = append(percent, pct)
	}
	b := NewBuilder(scriptedLLM(), nil, testOptions(2), zap.NewNop())

	_, err := b.Build(context.Background(), RootRequest{PhishingType: "기관 사칭"}, progress)
	require.NoError(t, err)

	require.NotEmpty(t, percent)
	assert.Equal(t, PhaseSeed, phases[0])
	assert.Equal(t, PhaseDone, phases[len(phases)-1])
	assert.Equal(t, 100, percent[len(percent)-1])
	assert.IsNonDecreasing(t, percent)
}

func TestBuild_InvalidProtagonistDropped(t *testing.T) {
	fake := newFakeLLM(func(_ context.Context, req llm.Request) (string, error) {
		if req.Call == callRoot {
			return `{"protagonist": {"age_group": "teen", "gender": "cat"}, "node_type": "narrative",
				"narrative_text": "문자가 도착했습니다.",
				"choices": [{"text": "링크를 누른다", "is_dangerous": true}, {"text": "삭제한다", "is_dangerous": false}]}`, nil
		}
		return scriptedLLM().respond(context.Background(), req)
	})
	b := NewBuilder(fake, nil, testOptions(1), zap.NewNop())

	tree, err := b.Build(context.Background(), RootRequest{PhishingType: "스미싱"}, nil)
	require.NoError(t, err)
	assert.Nil(t, tree.Protagonist)
	assert.Equal(t, "문자가 도착했습니다.", tree.Node(tree.RootNodeID).Text)
}

func TestBuild_NoEnrichWhenDisabled(t *testing.T) {
	fake := scriptedLLM()
	opts := testOptions(1)
	opts.EnrichEnabled = false
	b := NewBuilder(fake, nil, opts, zap.NewNop())

	tree, err := b.Build(context.Background(), RootRequest{PhishingType: "스미싱"}, nil)
	require.NoError(t, err)
	assert.Zero(t, fake.count(callEducational))
	for _, n := range tree.Nodes {
		assert.Nil(t, n.EducationalContent)
	}
}

func TestBuild_ModelCallsBoundedBySemaphore(t *testing.T) {
	var inFlight, peak atomic.Int32
	scripted := scriptedLLM()
	fake := newFakeLLM(func(ctx context.Context, req llm.Request) (string, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return scripted.respond(ctx, req)
	})
	opts := testOptions(3)
	opts.Concurrency = 2
	b := NewBuilder(fake, nil, opts, zap.NewNop())

	tree, err := b.Build(context.Background(), RootRequest{PhishingType: "기관 사칭"}, nil)
	require.NoError(t, err)

	assert.Empty(t, validation.Validate(tree, 3))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(2), peak.Load(), "a level with several entries runs in parallel")
}

var (
	sceneMarker  = regexp.MustCompile(`씬#([A-Z]+)#`)
	choiceMarker = regexp.MustCompile(`플레이어의 선택: "([A-Z]+)"`)
)

// pathLLM пишет в текст узла путь выборов, которым до него дошли,
// чтобы по запросу было видно, чьи тексты попали в контекст.
func pathLLM(t *testing.T, prompts map[string]string, mu *sync.Mutex) *fakeLLM {
	node := func(path string) string {
		raw, _ := json.Marshal(map[string]any{
			"node_type":      "narrative",
			"narrative_text": "씬#" + path + "#",
			"choices": []map[string]any{
				{"text": path + "A", "is_dangerous": true, "resource_effect": map[string]int{}},
				{"text": path + "B", "is_dangerous": false, "resource_effect": map[string]int{}},
			},
		})
		return string(raw)
	}
	scripted := scriptedLLM()
	return newFakeLLM(func(ctx context.Context, req llm.Request) (string, error) {
		switch req.Call {
		case callRoot:
			root := strings.Replace(scriptedRoot, "은행 직원이라며 전화가 걸려왔습니다.", "씬#ROOT#", 1)
			root = strings.Replace(root, "안내대로 앱을 설치한다", "A", 1)
			return strings.Replace(root, "전화를 끊고 은행에 직접 확인한다", "B", 1), nil
		case callContinuation:
			m := choiceMarker.FindStringSubmatch(req.User)
			if !assert.NotNil(t, m, req.User) {
				return "", errUnavailable
			}
			mu.Lock()
			prompts[m[1]] = req.User
			mu.Unlock()
			return node(m[1]), nil
		default:
			return scripted.respond(ctx, req)
		}
	})
}

func TestBuild_ContinuationSeesOnlyItsAncestors(t *testing.T) {
	var mu sync.Mutex
	prompts := make(map[string]string)
	b := NewBuilder(pathLLM(t, prompts, &mu), nil, testOptions(3), zap.NewNop())

	tree, err := b.Build(context.Background(), RootRequest{PhishingType: "기관 사칭"}, nil)
	require.NoError(t, err)
	assert.Empty(t, validation.Validate(tree, 3))

	// 2 + 4 + 8 продолжений
	require.Len(t, prompts, 14)
	for path, prompt := range prompts {
		parent := "ROOT"
		if len(path) > 1 {
			parent = path[:len(path)-1]
		}
		assert.Contains(t, prompt, "씬#"+parent+"#", path)

		for _, m := range sceneMarker.FindAllStringSubmatch(prompt, -1) {
			seen := m[1]
			ancestor := seen == "ROOT" || (len(seen) < len(path) && strings.HasPrefix(path, seen))
			assert.True(t, ancestor, "prompt for %s contains text of %s", path, seen)
		}
	}
}
