package model

const (
	ResourceMin = 0
	ResourceMax = 5

	DeltaMin = -2
	DeltaMax = 2
)

// Resources состояние игрока по трём осям, каждая в [0,5].
type Resources struct {
	Trust     int `json:"trust"`
	Money     int `json:"money"`
	Awareness int `json:"awareness"`
}

// ResourceDelta изменение ресурсов от выбора, каждая ось в [-2,2].
type ResourceDelta struct {
	Trust     int `json:"trust"`
	Money     int `json:"money"`
	Awareness int `json:"awareness"`
}

// DefaultResources стартовое состояние: trust=3, money=3, awareness=1.
func DefaultResources() Resources {
	return Resources{Trust: 3, Money: 3, Awareness: 1}
}

// Apply применяет дельту и ограничивает каждую ось.
func (r Resources) Apply(d ResourceDelta) Resources {
	return Resources{
		Trust:     clamp(r.Trust+d.Trust, ResourceMin, ResourceMax),
		Money:     clamp(r.Money+d.Money, ResourceMin, ResourceMax),
		Awareness: clamp(r.Awareness+d.Awareness, ResourceMin, ResourceMax),
	}
}

// Clamped возвращает дельту, ограниченную диапазоном [-2,2] по каждой оси.
func (d ResourceDelta) Clamped() ResourceDelta {
	return ResourceDelta{
		Trust:     clamp(d.Trust, DeltaMin, DeltaMax),
		Money:     clamp(d.Money, DeltaMin, DeltaMax),
		Awareness: clamp(d.Awareness, DeltaMin, DeltaMax),
	}
}

// ComputeResources проигрывает все выборы пути, начиная с DefaultResources.
func ComputeResources(path []PathStep) Resources {
	res := DefaultResources()
	for _, step := range path {
		if step.Choice != nil {
			res = res.Apply(step.Choice.ResourceEffect)
		}
	}
	return res
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
