package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chris40461/scam-or-safe/internal/model"
)

// endingChoiceText подставляется вместо опасного выбора для концовок.
const endingChoiceText = "상황 종료"

// enrich добавляет обучающий блок концовкам и узлам с опасным выбором.
// Возвращает число узлов, получивших общий текст вместо сгенерированного.
func (b *Builder) enrich(ctx context.Context, tree *model.ScenarioTree) int {
	var targets []*model.ScenarioNode
	for _, id := range tree.SortedNodeIDs() {
		n := tree.Nodes[id]
		if n.EducationalContent == nil && (n.Type.IsEnding() || n.HasDangerousChoice()) {
			targets = append(targets, n)
		}
	}

	contents := make([]*model.EducationalContent, len(targets))
	generic := make([]bool, len(targets))

	var g errgroup.Group
	for i, n := range targets {
		choiceText := endingChoiceText
		for _, c := range n.Choices {
			if c.IsDangerous {
				choiceText = c.Text
				break
			}
		}
		g.Go(func() error {
			contents[i], generic[i] = b.generator.GenerateEducational(ctx, n.Text, choiceText, tree.PhishingType)
			return nil
		})
	}
	_ = g.Wait()

	fallbacks := 0
	for i, n := range targets {
		n.EducationalContent = contents[i]
		if generic[i] {
			fallbacks++
		}
	}
	b.logger.Debug("Enrichment finished",
		zap.String("scenario_id", tree.ID),
		zap.Int("nodes", len(targets)),
		zap.Int("generic", fallbacks))
	return fallbacks
}
