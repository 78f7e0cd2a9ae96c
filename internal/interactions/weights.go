package interactions

import (
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/pkg/config"
)

// DefaultWeight applies to actions missing from the table.
const DefaultWeight = 1.0

// Weights maps an action to its contribution to interest scores.
type Weights map[models.Action]float64

// NewWeights converts a parsed weight table.
func NewWeights(table map[string]float64) Weights {
	w := make(Weights, len(table))
	for action, weight := range table {
		w[models.Action(action)] = weight
	}
	return w
}

// DefaultWeights returns the reference weight table.
func DefaultWeights() Weights {
	table, err := config.ParseActionWeights(config.DefaultActionWeights)
	if err != nil {
		panic(err)
	}
	return NewWeights(table)
}

// Weight returns the weight of action, or DefaultWeight when it has none.
func (w Weights) Weight(action models.Action) float64 {
	if weight, ok := w[action]; ok {
		return weight
	}
	return DefaultWeight
}
