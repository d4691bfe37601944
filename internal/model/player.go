package model

// PlayerChoice выбор в том виде, в каком его видит игрок: без признака опасности.
type PlayerChoice struct {
	ID             string        `json:"id"`
	Text           string        `json:"text"`
	NextNodeID     string        `json:"next_node_id,omitempty"`
	ResourceEffect ResourceDelta `json:"resource_effect"`
}

// PlayerNode узел для игрока.
type PlayerNode struct {
	ID                 string              `json:"id"`
	Type               NodeType            `json:"type"`
	Text               string              `json:"text"`
	Choices            []PlayerChoice      `json:"choices"`
	EducationalContent *EducationalContent `json:"educational_content,omitempty"`
	ImageURL           string              `json:"image_url,omitempty"`
	Depth              int                 `json:"depth"`
}

// PlayerScenario сценарий для прохождения.
type PlayerScenario struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	PhishingType string                `json:"phishing_type"`
	Difficulty   Difficulty            `json:"difficulty"`
	Prologue     string                `json:"prologue,omitempty"`
	RootNodeID   string                `json:"root_node_id"`
	Resources    Resources             `json:"initial_resources"`
	Nodes        map[string]PlayerNode `json:"nodes"`
}

// PlayerView убирает из дерева всё, что игрок видеть не должен.
func (t *ScenarioTree) PlayerView() *PlayerScenario {
	view := &PlayerScenario{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		PhishingType: t.PhishingType,
		Difficulty:   t.Difficulty,
		Prologue:     t.Prologue,
		RootNodeID:   t.RootNodeID,
		Resources:    DefaultResources(),
		Nodes:        make(map[string]PlayerNode, len(t.Nodes)),
	}
	for id, n := range t.Nodes {
		choices := make([]PlayerChoice, 0, len(n.Choices))
		for _, c := range n.Choices {
			choices = append(choices, PlayerChoice{
				ID:             c.ID,
				Text:           c.Text,
				NextNodeID:     c.NextNodeID,
				ResourceEffect: c.ResourceEffect,
			})
		}
		view.Nodes[id] = PlayerNode{
			ID:                 n.ID,
			Type:               n.Type,
			Text:               n.Text,
			Choices:            choices,
			EducationalContent: n.EducationalContent,
			ImageURL:           n.ImageURL,
			Depth:              n.Depth,
		}
	}
	return view
}
