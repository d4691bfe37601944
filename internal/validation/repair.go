package validation

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/model"
)

// fallbackEndingDepth глубина синтетической концовки (с ограничением maxDepth).
const fallbackEndingDepth = 5

// Report итог одного прохода починки.
type Report struct {
	Applied      map[DefectKind]int `json:"applied" yaml:"applied"`
	AddedNodes   []string           `json:"added_nodes,omitempty" yaml:"added_nodes,omitempty"`
	RemovedNodes []string           `json:"removed_nodes,omitempty" yaml:"removed_nodes,omitempty"`
	Reclassified []string           `json:"reclassified,omitempty" yaml:"reclassified,omitempty"`
	// Skipped дефекты, которые уже были исправлены предыдущими шагами или не чинятся.
	Skipped int `json:"skipped" yaml:"skipped"`
}

func (r *Report) applied(kind DefectKind) {
	r.Applied[kind]++
}

// Repairer детерминированно исправляет дефекты в порядке отчёта.
type Repairer struct {
	maxDepth int
	logger   *zap.Logger
}

// NewRepairer создаёт Repairer.
func NewRepairer(maxDepth int, logger *zap.Logger) *Repairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repairer{maxDepth: maxDepth, logger: logger.Named("Repairer")}
}

// Repair изменяет дерево на месте. Для корректного дерева (пустой список) ничего не делает.
func (r *Repairer) Repair(tree *model.ScenarioTree, defects []Defect) Report {
	report := Report{Applied: make(map[DefectKind]int)}
	if len(defects) == 0 {
		return report
	}
	log := r.logger.With(zap.String("scenario_id", tree.ID))
	log.Info("Repairing tree", zap.Int("defects", len(defects)))

	for _, d := range defects {
		switch d.Kind {
		case DefectOrphanNode:
			if _, ok := tree.Nodes[d.NodeID]; !ok {
				report.Skipped++
				continue
			}
			// вместе с сиротой уходит всё её поддерево, недостижимое из корня
			removed := removeUnreachableSubtree(tree, d.NodeID)
			report.RemovedNodes = append(report.RemovedNodes, removed...)
			report.applied(d.Kind)
			log.Info("Orphan node removed", zap.String("node_id", d.NodeID), zap.Strings("removed", removed))

		case DefectBrokenLink:
			if r.repairBrokenLink(tree, d, &report) {
				report.applied(d.Kind)
			} else {
				report.Skipped++
			}

		case DefectNoGoodEnding:
			if r.addMissingEnding(tree, model.EndingGood, &report) {
				report.applied(d.Kind)
			} else {
				report.Skipped++
			}

		case DefectNoBadEnding:
			if r.addMissingEnding(tree, model.EndingBad, &report) {
				report.applied(d.Kind)
			} else {
				report.Skipped++
			}

		case DefectLeafNotEnding:
			node := tree.Node(d.NodeID)
			// узел мог перестать быть листом после привязки концовки выше
			if node == nil || !node.IsLeaf() || node.Type.IsEnding() {
				report.Skipped++
				continue
			}
			node.Type = model.NodeTypeEndingBad
			node.Choices = nil
			report.Reclassified = append(report.Reclassified, node.ID)
			report.applied(d.Kind)
			log.Info("Leaf reclassified as bad ending", zap.String("node_id", node.ID))

		case DefectDepthExceeded:
			report.Skipped++
			log.Warn("Node exceeds max depth", zap.String("node_id", d.NodeID), zap.String("details", d.Message))

		default:
			report.Skipped++
		}
	}

	log.Info("Repair finished",
		zap.Int("nodes", len(tree.Nodes)),
		zap.Int("added", len(report.AddedNodes)),
		zap.Int("removed", len(report.RemovedNodes)),
		zap.Int("skipped", report.Skipped))
	return report
}

func (r *Repairer) repairBrokenLink(tree *model.ScenarioTree, d Defect, report *Report) bool {
	node := tree.Node(d.NodeID)
	if node == nil {
		return false
	}
	choice := node.Choice(d.ChoiceID)
	if choice == nil || !choice.Resolved() || tree.Node(choice.NextNodeID) != nil {
		return false
	}

	depth := node.Depth + 1
	if r.maxDepth > 0 && depth > r.maxDepth {
		depth = r.maxDepth
	}
	fallback := fallbackEnding("fallback_"+choice.ID, model.EndingBad, depth)
	fallback.ParentNodeID = node.ID
	fallback.ParentChoiceID = choice.ID
	tree.Nodes[fallback.ID] = fallback
	choice.NextNodeID = fallback.ID

	report.AddedNodes = append(report.AddedNodes, fallback.ID)
	r.logger.Info("Broken link repaired", zap.String("choice_id", choice.ID), zap.String("fallback_id", fallback.ID))
	return true
}

// addMissingEnding добавляет концовку нужного типа и привязывает её к первому
// свободному выбору повествовательного узла. Если свободных выборов нет,
// корню добавляется новый выбор, чтобы концовка не осталась сиротой.
func (r *Repairer) addMissingEnding(tree *model.ScenarioTree, ending model.EndingType, report *Report) bool {
	for _, n := range tree.Nodes {
		if n.Type == ending.NodeType() {
			return false
		}
	}

	anchor, choice := firstUnresolvedChoice(tree)
	if anchor == nil {
		root := tree.Node(tree.RootNodeID)
		if root == nil || root.Type.IsEnding() {
			r.logger.Warn("Cannot attach fallback ending: no root narrative node", zap.String("ending", string(ending)))
			return false
		}
		choice = &model.Choice{
			ID:          fmt.Sprintf("%s_c%d", root.ID, len(root.Choices)+1),
			Text:        fallbackChoiceText(ending),
			IsDangerous: ending == model.EndingBad,
		}
		root.Choices = append(root.Choices, choice)
		anchor = root
	}

	depth := fallbackEndingDepth
	if r.maxDepth > 0 && depth > r.maxDepth {
		depth = r.maxDepth
	}
	fallback := fallbackEnding("fallback_"+string(ending), ending, depth)
	fallback.ParentNodeID = anchor.ID
	fallback.ParentChoiceID = choice.ID
	tree.Nodes[fallback.ID] = fallback
	choice.NextNodeID = fallback.ID

	report.AddedNodes = append(report.AddedNodes, fallback.ID)
	r.logger.Info("Fallback ending attached",
		zap.String("fallback_id", fallback.ID),
		zap.String("anchor_node_id", anchor.ID),
		zap.String("choice_id", choice.ID))
	return true
}

// reachableFromRoot множество узлов, до которых можно дойти по выборам от корня.
func reachableFromRoot(tree *model.ScenarioTree) map[string]struct{} {
	seen := make(map[string]struct{}, len(tree.Nodes))
	queue := []string{tree.RootNodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := tree.Node(id)
		if n == nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		for _, c := range n.Choices {
			if c.Resolved() {
				queue = append(queue, c.NextNodeID)
			}
		}
	}
	return seen
}

// removeUnreachableSubtree удаляет узел и его потомков, если они не достижимы из корня.
// Возвращает удалённые id в порядке обхода.
func removeUnreachableSubtree(tree *model.ScenarioTree, id string) []string {
	reachable := reachableFromRoot(tree)
	var removed []string
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := tree.Node(cur)
		if n == nil {
			continue
		}
		if _, ok := reachable[cur]; ok {
			continue
		}
		delete(tree.Nodes, cur)
		removed = append(removed, cur)
		for i := len(n.Choices) - 1; i >= 0; i-- {
			if c := n.Choices[i]; c.Resolved() {
				stack = append(stack, c.NextNodeID)
			}
		}
	}
	return removed
}

func firstUnresolvedChoice(tree *model.ScenarioTree) (*model.ScenarioNode, *model.Choice) {
	for _, id := range tree.SortedNodeIDs() {
		n := tree.Nodes[id]
		if n.Type != model.NodeTypeNarrative {
			continue
		}
		for _, c := range n.Choices {
			if !c.Resolved() {
				return n, c
			}
		}
	}
	return nil, nil
}

func fallbackChoiceText(ending model.EndingType) string {
	if ending == model.EndingGood {
		return "공식 기관에 직접 전화해 사실을 확인한다"
	}
	return "상대방의 요구대로 바로 처리한다"
}

func fallbackEnding(id string, ending model.EndingType, depth int) *model.ScenarioNode {
	node := &model.ScenarioNode{
		ID:    id,
		Type:  ending.NodeType(),
		Depth: depth,
		EducationalContent: &model.EducationalContent{
			PreventionTips: []string{"의심스러운 연락은 먼저 끊으세요", "공식 채널로 확인하세요"},
			WarningSigns:   []string{"급한 결정 요구", "개인정보 요청"},
		},
	}
	if ending == model.EndingGood {
		node.Text = "당신은 상황의 이상함을 감지하고 현명하게 대처했습니다. 피해를 예방했습니다!"
		node.EducationalContent.Title = "축하합니다"
		node.EducationalContent.Explanation = "의심스러운 상황에서 신중하게 판단하셨습니다."
	} else {
		node.Text = "안타깝게도 상황이 좋지 않게 흘러갔습니다. 피해가 발생했습니다."
		node.EducationalContent.Title = "주의가 필요합니다"
		node.EducationalContent.Explanation = "이런 상황에서는 더 신중한 판단이 필요합니다."
	}
	return node
}
