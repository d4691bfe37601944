package pipeline

import "github.com/chris40461/scam-or-safe/internal/model"

// Причины завершения ветки.
const (
	ReasonMaxDepth       = "max_depth"
	ReasonMoneyDepleted  = "money_depleted"
	ReasonThreeDangerous = "three_dangerous"
	ReasonThreeSafe      = "three_safe"
	ReasonContinue       = "continue"
)

// streakLength сколько одинаковых выборов подряд дают рекомендацию завершить ветку.
const streakLength = 3

// EndSignal решение о завершении ветки.
// Forced: генератор обязан вернуть концовку без выборов.
// ShouldEnd без Forced: концовка рекомендуется, но не обязательна.
type EndSignal struct {
	ShouldEnd  bool
	EndingType model.EndingType
	Reason     string
	Forced     bool
}

// EvaluateEndSignal применяет правила по приоритету, срабатывает первое подходящее.
// pathChoices содержит все выборы пути, включая только что сделанный.
func EvaluateEndSignal(res model.Resources, depth, maxDepth int, pathChoices []*model.Choice) EndSignal {
	if depth >= maxDepth {
		ending := model.EndingGood
		if n := len(pathChoices); n > 0 && pathChoices[n-1].IsDangerous {
			ending = model.EndingBad
		}
		return EndSignal{ShouldEnd: true, EndingType: ending, Reason: ReasonMaxDepth, Forced: true}
	}

	if res.Money <= 0 {
		return EndSignal{ShouldEnd: true, EndingType: model.EndingBad, Reason: ReasonMoneyDepleted, Forced: true}
	}

	if len(pathChoices) >= streakLength {
		recent := pathChoices[len(pathChoices)-streakLength:]
		if allMatch(recent, true) {
			return EndSignal{ShouldEnd: true, EndingType: model.EndingBad, Reason: ReasonThreeDangerous}
		}
		if allMatch(recent, false) {
			return EndSignal{ShouldEnd: true, EndingType: model.EndingGood, Reason: ReasonThreeSafe}
		}
	}

	return EndSignal{Reason: ReasonContinue}
}

func allMatch(choices []*model.Choice, dangerous bool) bool {
	for _, c := range choices {
		if c.IsDangerous != dangerous {
			return false
		}
	}
	return true
}
