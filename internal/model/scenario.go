package model

import (
	"sort"
	"strings"
	"time"
)

// NodeType тип узла сценария.
type NodeType string

const (
	NodeTypeNarrative  NodeType = "narrative"
	NodeTypeEndingGood NodeType = "ending_good"
	NodeTypeEndingBad  NodeType = "ending_bad"
)

// IsEnding сообщает, является ли тип концовкой.
func (t NodeType) IsEnding() bool {
	return t == NodeTypeEndingGood || t == NodeTypeEndingBad
}

// Valid проверяет, что тип известен.
func (t NodeType) Valid() bool {
	return t == NodeTypeNarrative || t.IsEnding()
}

// EndingType тип концовки без префикса ("good" / "bad").
type EndingType string

const (
	EndingGood EndingType = "good"
	EndingBad  EndingType = "bad"
)

// NodeType возвращает тип узла для концовки. Пустая концовка считается плохой.
func (e EndingType) NodeType() NodeType {
	if e == EndingGood {
		return NodeTypeEndingGood
	}
	return NodeTypeEndingBad
}

// Difficulty уровень сложности сценария.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty разбирает сложность; пустая строка даёт medium.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DifficultyMedium, nil
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	default:
		return "", ErrInvalidDifficulty
	}
}

// ProtagonistProfile описание главного героя, общее для всех картинок сценария.
type ProtagonistProfile struct {
	AgeGroup    string `json:"age_group"`
	Gender      string `json:"gender"`
	Description string `json:"description"`
	Appearance  string `json:"appearance"`
}

// EducationalContent обучающий блок, показываемый после опасного выбора или в концовке.
type EducationalContent struct {
	Title          string   `json:"title"`
	Explanation    string   `json:"explanation"`
	PreventionTips []string `json:"prevention_tips"`
	WarningSigns   []string `json:"warning_signs"`
}

// Choice вариант выбора игрока.
type Choice struct {
	ID             string        `json:"id"`
	Text           string        `json:"text"`
	NextNodeID     string        `json:"next_node_id,omitempty"`
	IsDangerous    bool          `json:"is_dangerous"`
	ResourceEffect ResourceDelta `json:"resource_effect"`
}

// Resolved сообщает, что выбор уже ведёт к узлу.
func (c *Choice) Resolved() bool {
	return c.NextNodeID != ""
}

// ScenarioNode один шаг сценария или концовка.
type ScenarioNode struct {
	ID                 string              `json:"id"`
	Type               NodeType            `json:"type"`
	Text               string              `json:"text"`
	Choices            []*Choice           `json:"choices"`
	EducationalContent *EducationalContent `json:"educational_content,omitempty"`
	ImagePrompt        string              `json:"image_prompt,omitempty"`
	ImageURL           string              `json:"image_url,omitempty"`
	Depth              int                 `json:"depth"`
	ParentNodeID       string              `json:"parent_node_id,omitempty"`
	ParentChoiceID     string              `json:"parent_choice_id,omitempty"`
}

// Choice ищет выбор по ID.
func (n *ScenarioNode) Choice(id string) *Choice {
	for _, c := range n.Choices {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// IsLeaf: нет выборов или ни один выбор никуда не ведёт.
func (n *ScenarioNode) IsLeaf() bool {
	for _, c := range n.Choices {
		if c.Resolved() {
			return false
		}
	}
	return true
}

// HasDangerousChoice сообщает, есть ли у узла опасный выбор.
func (n *ScenarioNode) HasDangerousChoice() bool {
	for _, c := range n.Choices {
		if c.IsDangerous {
			return true
		}
	}
	return false
}

// ScenarioTree полное дерево сценария.
type ScenarioTree struct {
	ID           string                   `json:"id"`
	Title        string                   `json:"title"`
	Description  string                   `json:"description"`
	PhishingType string                   `json:"phishing_type"`
	Difficulty   Difficulty               `json:"difficulty"`
	RootNodeID   string                   `json:"root_node_id"`
	Nodes        map[string]*ScenarioNode `json:"nodes"`
	Protagonist  *ProtagonistProfile      `json:"protagonist,omitempty"`
	Prologue     string                   `json:"prologue,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	Metadata     map[string]any           `json:"metadata,omitempty"`
}

// Node возвращает узел по ID или nil.
func (t *ScenarioTree) Node(id string) *ScenarioNode {
	if id == "" {
		return nil
	}
	return t.Nodes[id]
}

// SortedNodeIDs возвращает ID узлов в лексикографическом порядке.
func (t *ScenarioTree) SortedNodeIDs() []string {
	ids := make([]string, 0, len(t.Nodes))
	for id := range t.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PathStep узел пути и выбор, сделанный в нём (nil для последнего узла).
type PathStep struct {
	Node   *ScenarioNode
	Choice *Choice
}

// TracePath восстанавливает путь от корня до узла по обратным ссылкам.
// Выбор у последнего шага пустой: он ещё не сделан.
func (t *ScenarioTree) TracePath(nodeID string) []PathStep {
	var reversed []PathStep
	var taken *Choice
	seen := make(map[string]struct{})

	for id := nodeID; id != ""; {
		if _, loop := seen[id]; loop {
			break
		}
		seen[id] = struct{}{}

		node := t.Node(id)
		if node == nil {
			break
		}
		reversed = append(reversed, PathStep{Node: node, Choice: taken})

		taken = nil
		if parent := t.Node(node.ParentNodeID); parent != nil {
			taken = parent.Choice(node.ParentChoiceID)
		}
		id = node.ParentNodeID
	}

	path := make([]PathStep, len(reversed))
	for i, step := range reversed {
		path[len(reversed)-1-i] = step
	}
	return path
}

// Summary краткое описание сценария для списков.
type Summary struct {
	ID           string     `json:"id" db:"id"`
	Title        string     `json:"title" db:"title"`
	Description  string     `json:"description" db:"description"`
	PhishingType string     `json:"phishing_type" db:"phishing_type"`
	Difficulty   Difficulty `json:"difficulty" db:"difficulty"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Summary строит краткое описание дерева.
func (t *ScenarioTree) Summary() Summary {
	return Summary{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		PhishingType: t.PhishingType,
		Difficulty:   t.Difficulty,
		CreatedAt:    t.CreatedAt,
	}
}
