// Package validation проверяет структуру дерева сценария и чинит найденные дефекты.
package validation

import (
	"fmt"

	"github.com/chris40461/scam-or-safe/internal/model"
)

// DefectKind тип структурного дефекта.
type DefectKind string

const (
	DefectOrphanNode    DefectKind = "orphan_node"
	DefectBrokenLink    DefectKind = "broken_link"
	DefectNoGoodEnding  DefectKind = "no_good_ending"
	DefectNoBadEnding   DefectKind = "no_bad_ending"
	DefectLeafNotEnding DefectKind = "leaf_not_ending"
	DefectDepthExceeded DefectKind = "depth_exceeded"
)

// Defect один найденный дефект.
type Defect struct {
	Kind     DefectKind `json:"kind" yaml:"kind"`
	NodeID   string     `json:"node_id,omitempty" yaml:"node_id,omitempty"`
	ChoiceID string     `json:"choice_id,omitempty" yaml:"choice_id,omitempty"`
	Message  string     `json:"message" yaml:"message"`
}

// Validate проверяет дерево. Функция чистая; узлы обходятся в отсортированном
// порядке, поэтому результат для одного и того же дерева всегда одинаков.
func Validate(tree *model.ScenarioTree, maxDepth int) []Defect {
	var defects []Defect
	ids := tree.SortedNodeIDs()

	referenced := map[string]struct{}{tree.RootNodeID: {}}
	for _, id := range ids {
		for _, c := range tree.Nodes[id].Choices {
			if c.Resolved() {
				referenced[c.NextNodeID] = struct{}{}
			}
		}
	}

	for _, id := range ids {
		if _, ok := referenced[id]; !ok {
			defects = append(defects, Defect{
				Kind:    DefectOrphanNode,
				NodeID:  id,
				Message: fmt.Sprintf("node %s is not referenced by any choice", id),
			})
		}
	}

	for _, id := range ids {
		for _, c := range tree.Nodes[id].Choices {
			if c.Resolved() && tree.Node(c.NextNodeID) == nil {
				defects = append(defects, Defect{
					Kind:     DefectBrokenLink,
					NodeID:   id,
					ChoiceID: c.ID,
					Message:  fmt.Sprintf("choice %s references non-existent node %s", c.ID, c.NextNodeID),
				})
			}
		}
	}

	var hasGood, hasBad bool
	for _, n := range tree.Nodes {
		switch n.Type {
		case model.NodeTypeEndingGood:
			hasGood = true
		case model.NodeTypeEndingBad:
			hasBad = true
		}
	}
	if !hasGood {
		defects = append(defects, Defect{Kind: DefectNoGoodEnding, Message: "no good ending found in tree"})
	}
	if !hasBad {
		defects = append(defects, Defect{Kind: DefectNoBadEnding, Message: "no bad ending found in tree"})
	}

	for _, id := range ids {
		n := tree.Nodes[id]
		if n.IsLeaf() && !n.Type.IsEnding() {
			defects = append(defects, Defect{
				Kind:    DefectLeafNotEnding,
				NodeID:  id,
				Message: fmt.Sprintf("leaf node %s is not an ending", id),
			})
		}
	}

	for _, id := range ids {
		if d := tree.Nodes[id].Depth; d > maxDepth {
			defects = append(defects, Defect{
				Kind:    DefectDepthExceeded,
				NodeID:  id,
				Message: fmt.Sprintf("node %s depth %d exceeds max depth %d", id, d, maxDepth),
			})
		}
	}

	return defects
}

// CountByKind группирует дефекты по типу.
func CountByKind(defects []Defect) map[DefectKind]int {
	counts := make(map[DefectKind]int, len(defects))
	for _, d := range defects {
		counts[d.Kind]++
	}
	return counts
}
