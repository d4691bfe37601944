package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/chris40461/scam-or-safe/internal/llm"
)

// fakeLLM отвечает через respond и считает вызовы по имени.
type fakeLLM struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(ctx context.Context, req llm.Request) (string, error)
}

func newFakeLLM(respond func(ctx context.Context, req llm.Request) (string, error)) *fakeLLM {
	return &fakeLLM{calls: make(map[string]int), respond: respond}
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, llm.Usage, error) {
	f.mu.Lock()
	f.calls[req.Call]++
	f.mu.Unlock()
	text, err := f.respond(ctx, req)
	return text, llm.Usage{}, err
}

func (f *fakeLLM) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

var errUnavailable = errors.New("model unavailable")

func failingLLM() *fakeLLM {
	return newFakeLLM(func(context.Context, llm.Request) (string, error) {
		return "", errUnavailable
	})
}

const (
	scriptedRoot = `{
  "prologue": "평범한 화요일 오후였습니다.",
  "protagonist": {"age_group": "elderly", "gender": "woman", "description": "손주를 아끼는 할머니", "appearance": "short gray hair, cardigan"},
  "node_type": "narrative",
  "narrative_text": "은행 직원이라며 전화가 걸려왔습니다.",
  "choices": [
    {"text": "안내대로 앱을 설치한다", "is_dangerous": true, "resource_effect": {"trust": 1, "money": -1, "awareness": 0}},
    {"text": "전화를 끊고 은행에 직접 확인한다", "is_dangerous": false, "resource_effect": {"trust": -1, "money": 0, "awareness": 2}}
  ],
  "image_prompt": "Korean webtoon style illustration: an elderly woman answering a phone call. Webtoon art style, no text",
  "reasoning": "opening"
}`
	scriptedNode = `{
  "node_type": "narrative",
  "narrative_text": "상대방이 다시 재촉합니다.",
  "choices": [
    {"text": "요구한 정보를 보낸다", "is_dangerous": true, "resource_effect": {"trust": 1, "money": -1, "awareness": 0}},
    {"text": "가족에게 먼저 알린다", "is_dangerous": false, "resource_effect": {"trust": 0, "money": 0, "awareness": 1}}
  ],
  "image_prompt": "Korean webtoon style illustration: a tense phone conversation. Webtoon art style, no text",
  "reasoning": "pressure"
}`
	scriptedEducational = `{"title": "기관 사칭 주의", "explanation": "금융기관은 앱 설치를 요구하지 않습니다.", "warning_signs": ["앱 설치 요구"], "prevention_tips": ["대표번호로 직접 확인"]}`
)

// scriptedLLM всегда отвечает корректным JSON нужной формы.
func scriptedLLM() *fakeLLM {
	return newFakeLLM(func(_ context.Context, req llm.Request) (string, error) {
		switch req.Call {
		case callRoot:
			return scriptedRoot, nil
		case callContinuation:
			return scriptedNode, nil
		case callEducational:
			return scriptedEducational, nil
		default:
			return "피해자는 전화를 받고 안내를 따랐습니다.", nil
		}
	})
}
