package pipeline

import (
	"fmt"

	"github.com/chris40461/scam-or-safe/internal/model"
)

const (
	fallbackGoodEndingText = "상황이 마무리되었습니다."
	fallbackBadEndingText  = "안타깝게도 피해가 발생했습니다."

	fallbackGoodImage = "Korean webtoon style illustration: a relieved person realizing they avoided a scam, bright lighting, hopeful atmosphere, Korean urban setting. Webtoon art style, no text, no letters"
	fallbackBadImage  = "Korean webtoon style illustration: a distressed person realizing they fell victim to a scam, dark atmosphere, regret and despair, Korean urban setting. Webtoon art style, no text, no letters"
	fallbackRootImage = "Korean webtoon style illustration: a person in a modern Korean apartment receiving a suspicious phone call, tense atmosphere, dark lighting. Webtoon art style, no text, no letters"
	fallbackNextImage = "Korean webtoon style illustration: a person hesitating with a smartphone in hand, thinking carefully, dim room. Webtoon art style, no text, no letters"
)

func rootFallback(phishingType string) RootResult {
	return RootResult{NodeResult: NodeResult{
		Type: model.NodeTypeNarrative,
		Text: fmt.Sprintf("당신의 휴대폰에 알 수 없는 번호로 연락이 왔습니다. %s 관련 의심스러운 내용입니다.", phishingType),
		Choices: []ChoiceOutput{
			{Text: "응답한다", IsDangerous: true, ResourceEffect: model.ResourceDelta{Trust: 1}},
			{Text: "무시한다", IsDangerous: false, ResourceEffect: model.ResourceDelta{Trust: -1, Awareness: 1}},
		},
		ImagePrompt: fallbackRootImage,
		Reasoning:   "fallback",
		Fallback:    true,
	}}
}

// continuationFallback заготовка продолжения. На последнем уровне или при
// принудительном сигнале это концовка, иначе ветка продолжается.
func continuationFallback(gc GenerationContext) NodeResult {
	if gc.Signal.Forced || gc.Depth >= gc.MaxDepth-1 {
		ending := gc.Signal.EndingType
		if ending == "" {
			ending = model.EndingGood
			if gc.LastChoiceDangerous {
				ending = model.EndingBad
			}
		}
		return endingFallback(ending)
	}

	return NodeResult{
		Type: model.NodeTypeNarrative,
		Text: "상대방에게서 다시 연락이 왔습니다. 지금부터의 선택이 결과를 좌우합니다. 신중하게 판단하세요.",
		Choices: []ChoiceOutput{
			{Text: "공식 채널로 직접 사실을 확인한다", IsDangerous: false, ResourceEffect: model.ResourceDelta{Trust: -1, Awareness: 1}},
			{Text: "상대방의 안내를 일단 따른다", IsDangerous: true, ResourceEffect: model.ResourceDelta{Trust: 1, Money: -1}},
		},
		ImagePrompt: fallbackNextImage,
		Reasoning:   "fallback",
		Fallback:    true,
	}
}

func endingFallback(ending model.EndingType) NodeResult {
	result := NodeResult{
		Type:      ending.NodeType(),
		Text:      fallbackBadEndingText,
		Reasoning: "fallback",
		Fallback:  true,
	}
	result.ImagePrompt = fallbackBadImage
	if ending == model.EndingGood {
		result.Text = fallbackGoodEndingText
		result.ImagePrompt = fallbackGoodImage
	}
	return result
}

func educationalFallback(phishingType string) *model.EducationalContent {
	return &model.EducationalContent{
		Title:       "주의하세요",
		Explanation: fmt.Sprintf("이것은 %s의 전형적인 수법입니다. 항상 의심하고 확인하세요.", phishingType),
		PreventionTips: []string{
			"의심스러운 연락은 먼저 끊으세요",
			"공식 채널로 직접 확인하세요",
		},
		WarningSigns: []string{
			"급하게 결정을 요구",
			"개인정보나 금전 요구",
		},
	}
}
