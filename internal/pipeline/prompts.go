package pipeline

import (
	"fmt"
	"strings"

	"github.com/chris40461/scam-or-safe/internal/model"
)

const imagePromptGuide = `
image_prompt 작성 규칙 (매우 중요):
- 반드시 영문으로 작성
- 스타일을 프롬프트 앞과 끝에 모두 명시
  * 형식: "Korean webtoon style illustration: [장면 묘사]. Webtoon art style, no text."
- 이미지에 어떤 텍스트, 글자, 간판 글씨도 포함하지 않음
  * 프롬프트 끝에 반드시 "no text, no letters, no words, no typography" 추가
- 구체적인 장면, 인물, 감정, 환경을 묘사
  * 장소: 거실, 사무실, 지하철, 카페, 은행, 경찰서, 병원 대기실 등
  * 시간대와 분위기: 밤, 새벽, 퇴근길, 비 오는 날, 어두운 골목 등
  * 기기/소품: 스마트폰, 노트북, ATM, 서류, 현금 등
- 감정 묘사 예: worried expression, confused look, trembling hands, relieved expression, head in hands
- 한국적 요소 포함: Korean apartment, Korean cafe, Korean street (텍스트 없이)
- 매 장면마다 다른 구도와 시점 사용
`

const choiceRules = `
선택지 작성 규칙 (교육 효과를 위해 매우 중요):
- 모든 선택지가 표면적으로 합리적이고 그럴듯해 보여야 함
- 위험한 선택(is_dangerous=true)도 납득할 만한 이유가 있어야 함 (급박함, 권위에 대한 신뢰, 두려움 등)
- 안전한 선택도 번거롭거나 불편해 보일 수 있음 (시간 소요, 관계 악화 우려 등)
- 선택지 텍스트만으로는 어떤 것이 위험한지 명확히 알 수 없어야 함
- is_dangerous 속성은 내부 로직용으로만 사용 (사용자에게 노출 안 됨)
- 선택지 텍스트는 1-2문장으로 간결하게
`

// RootSystemPrompt системная инструкция для первого узла.
var RootSystemPrompt = `당신은 피싱 예방 교육을 위한 텍스트 어드벤처 게임 시나리오 작가입니다.
2인칭 시점("당신은...")으로 현실적인 피싱 시나리오를 작성합니다.
반드시 JSON 형식으로만 응답하세요.

자원 변동 규칙:
- 각 선택지의 resource_effect는 -2 ~ +2 범위로 제한
- trust(신뢰도): 사기범에게 동조하면 +, 의심하면 -
- money(자산): 송금/결제하면 -, 거부하면 변동 없음
- awareness(경각심): 경고 신호를 인지하면 +, 무시하면 -
- 각 노드에 2-3개의 선택지 제공
` + choiceRules + imagePromptGuide

// NodeSystemPrompt системная инструкция для продолжения.
var NodeSystemPrompt = `당신은 피싱 시나리오의 다음 장면을 생성합니다.
이전 이야기 맥락과 플레이어의 선택을 바탕으로 자연스러운 다음 장면을 작성합니다.
반드시 JSON 형식으로만 응답하세요.

서사 일관성 규칙 (매우 중요):
- 이전 이야기의 등장인물, 상황, 수법을 그대로 이어가세요
- 갑작스러운 주제 전환이나 새로운 사기 수법 등장은 금지합니다
- 플레이어의 선택에 대한 직접적인 결과/반응으로 다음 장면을 시작하세요
- 사기범의 말투, 태도, 전략이 이전 장면과 일관되어야 합니다
` + choiceRules + `
종료 신호 처리:
- should_end=true이고 force=true: 반드시 엔딩(ending_good 또는 ending_bad)으로 작성, choices는 빈 리스트
- should_end=true이고 force=false: 엔딩을 권장하지만, 내러티브상 자연스럽지 않으면 계속 가능
- should_end=false: narrative 타입으로 계속 진행

엔딩 작성 규칙:
- ending_good: 피싱을 간파하고 피해를 예방한 결말. 어떻게 위기를 벗어났는지 구체적으로 서술하세요.
- ending_bad: 피싱에 당해 금전적/개인정보 피해를 입은 결말. 어떤 피해가 발생했는지 구체적으로 서술하세요.
- 엔딩 텍스트는 4-6문장으로, 상황의 결과와 교훈을 포함하세요.
` + imagePromptGuide

// EducationalSystemPrompt системная инструкция для обучающего блока.
const EducationalSystemPrompt = `당신은 피싱 예방 교육 전문가입니다.
주어진 피싱 시나리오 상황에 대해 교육적 콘텐츠를 작성합니다.
반드시 JSON 형식으로만 응답하세요.

교육 콘텐츠 구성:
- title: 간결한 제목 (10자 이내)
- explanation: 왜 위험한지 설명 (2-3문장)
- warning_signs: 놓친 경고 신호들 (2-4개)
- prevention_tips: 예방 방법 (2-4개)`

// SummarySystemPrompt просьба сжать раннюю часть пути.
const SummarySystemPrompt = `다음 피싱 시나리오 경과를 3-4문장으로 요약하세요.
핵심 상황과 사용자의 선택만 간결하게 포함하세요.`

const rootJSONShape = `JSON 형식:
{
  "prologue": "이전 상황 요약 (한국어, 2-3문장. 이미 어느 정도 연루된 상태 설명)",
  "protagonist": {
    "age_group": "young adult|middle-aged|elderly",
    "gender": "man|woman",
    "description": "영문 한 줄 설명",
    "appearance": "외모 디테일 영문"
  },
  "node_type": "narrative",
  "narrative_text": "2인칭 시점 나레이션 (한국어, 3-5문장. 현재 순간의 상황)",
  "choices": [
    {"text": "선택지 텍스트", "is_dangerous": true, "resource_effect": {"trust": 0, "money": 0, "awareness": 0}}
  ],
  "image_prompt": "상세한 영문 이미지 프롬프트 (주인공 설명 포함)",
  "reasoning": "이 장면 설계의 근거"
}

protagonist 생성 지침:
- 피싱 유형과 상황에 맞는 주인공을 자유롭게 생성하세요 (나이대, 성별, 외모, 복장).
- 생성한 주인공은 모든 이미지에서 일관되게 유지됩니다.
- 예: {"age_group": "middle-aged", "gender": "woman", "description": "A middle-aged Korean woman in her 50s", "appearance": "short black hair, wearing casual home clothes, glasses"}

IMPORTANT:
1. image_prompt에 주인공의 description과 appearance를 반드시 포함
2. image_prompt는 반드시 "Korean webtoon style illustration:" 로 시작해야 함`

const nodeJSONShape = `JSON 형식:
{
  "node_type": "narrative" | "ending_good" | "ending_bad",
  "narrative_text": "2인칭 시점 나레이션 (한국어)",
  "choices": [{"text": "...", "is_dangerous": true, "resource_effect": {"trust": 0, "money": 0, "awareness": 0}}],
  "image_prompt": "상세한 영문 이미지 프롬프트",
  "reasoning": "이 장면 설계의 근거"
}
`

// BuildRootPrompt пользовательский запрос для корня.
func BuildRootPrompt(req RootRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "피싱 유형: %s\n난이도: %s\n\n", req.PhishingType, req.Difficulty)
	b.WriteString(`중요: 시나리오는 이미 진행 중인 상황에서 시작합니다.
- 피해자가 피싱 시도를 '처음' 접하는 것이 아니라, 이미 어느 정도 연루된 상황
- prologue: 며칠 전부터의 상황을 요약 (2-3문장)
- narrative_text: 중요한 결정을 해야 하는 현재 순간부터 시작
- 2-3개의 선택지 제공

`)
	if seed := strings.TrimSpace(req.SeedInfo); seed != "" {
		fmt.Fprintf(&b, "시나리오 상세 설정:\n%s\n\n", seed)
	}
	b.WriteString(rootJSONShape)
	return b.String()
}

// BuildNodePrompt пользовательский запрос для продолжения.
func BuildNodePrompt(gc GenerationContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "피싱 유형: %s\n난이도: %s\n현재 깊이: %d/%d\n\n", gc.PhishingType, gc.Difficulty, gc.Depth, gc.MaxDepth)
	fmt.Fprintf(&b, "이전 이야기:\n%s\n\n", gc.StoryPath)
	fmt.Fprintf(&b, "플레이어의 선택: %q\n\n", gc.ChoiceTaken)
	fmt.Fprintf(&b, "현재 자원 상태:\n- 신뢰도(trust): %d/5\n- 자산(money): %d/5\n- 경각심(awareness): %d/5\n\n",
		gc.Resources.Trust, gc.Resources.Money, gc.Resources.Awareness)

	switch {
	case gc.Signal.ShouldEnd && gc.Signal.Forced:
		fmt.Fprintf(&b, "종료 신호: 반드시 엔딩으로 작성 (강제)\n권장 엔딩 유형: %s\nchoices는 빈 리스트 []로 작성하세요.\n이전 이야기의 흐름을 자연스럽게 마무리하는 엔딩을 작성하세요.\n\n",
			gc.Signal.EndingType)
	case gc.Signal.ShouldEnd:
		fmt.Fprintf(&b, "종료 신호: 엔딩 권장 (선택적)\n권장 엔딩 유형: %s\n내러티브상 자연스러우면 엔딩으로, 아니면 계속 진행 가능합니다.\n\n",
			gc.Signal.EndingType)
	default:
		b.WriteString("종료 신호: 계속 진행\n2-3개의 선택지를 제공하세요.\n\n중요: 이전 이야기에서 이어지는 자연스러운 다음 장면을 작성하세요.\n플레이어의 선택에 대한 직접적인 결과로 시작하세요.\n\n")
	}

	if p := gc.Protagonist; p != nil {
		fmt.Fprintf(&b, "주인공 정보 (모든 이미지에 일관되게 포함):\n- 나이대: %s\n- 성별: %s\n- 설명: %s\n- 외모: %s\n\n",
			p.AgeGroup, p.Gender, p.Description, p.Appearance)
	}

	b.WriteString(nodeJSONShape)

	if p := gc.Protagonist; p != nil {
		fmt.Fprintf(&b, `
CRITICAL: image_prompt 작성 시 주인공을 반드시 포함하세요:
- 반드시 "Korean webtoon style illustration:" 로 시작
- 주인공: %s, %s
- 주인공의 외모와 특징을 정확히 유지하면서 다른 장면, 배경, 감정을 묘사
- 예: "Korean webtoon style illustration: %s, %s, standing at ATM machine in convenience store at night, sweating nervously. Webtoon art style, no text, no letters."
`, p.Description, p.Appearance, p.Description, p.Appearance)
	} else {
		b.WriteString(`
image_prompt 예시 (이전 장면과 다르게 작성):
- narrative: "Korean webtoon style illustration: a stressed Korean person hunched over a laptop in a dimly lit home office at midnight, worried expression. Webtoon art style, no text, no letters"
- ending_good: "Korean webtoon style illustration: a relieved Korean person at a police station showing phone screen as evidence, hopeful expression. Webtoon art style, no text, no letters"
- ending_bad: "Korean webtoon style illustration: a devastated Korean person alone on a park bench at dusk, head in hands. Webtoon art style, no text, no letters"
`)
	}

	b.WriteString("\nIMPORTANT: image_prompt는 필수. 이전 노드와 중복되지 않는 새로운 장면을 묘사하세요.")
	return b.String()
}

// BuildEducationalPrompt запрос обучающего блока для узла.
func BuildEducationalPrompt(nodeText, choiceText, phishingType string) string {
	return fmt.Sprintf(`피싱 유형: %s

상황:
%s

위험한 선택: %q

이 상황과 선택에 대한 교육 콘텐츠를 작성하세요.

JSON 형식:
{
  "title": "제목 (10자 이내)",
  "explanation": "왜 위험한지 설명 (2-3문장)",
  "warning_signs": ["경고 신호 1", "경고 신호 2"],
  "prevention_tips": ["예방 방법 1", "예방 방법 2"]
}`, phishingType, nodeText, choiceText)
}

// buildSummaryInput текст для сжатия ранней части пути.
func buildSummaryInput(steps []model.PathStep) string {
	parts := make([]string, 0, len(steps)*2)
	for _, s := range steps {
		parts = append(parts, "[상황] "+truncateRunes(s.Node.Text, summaryNodeRunes))
		if s.Choice != nil {
			parts = append(parts, "[선택] "+s.Choice.Text)
		}
	}
	return strings.Join(parts, "\n")
}
