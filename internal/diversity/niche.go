package diversity

import (
	"fmt"
	"math"
	"sort"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/population"
)

// NicheKey is a cell of the instinct grid.
type NicheKey struct {
	FearBin int
	RiskBin int
}

// String formats the key as "fear:risk".
func (k NicheKey) String() string {
	return fmt.Sprintf("%d:%d", k.FearBin, k.RiskBin)
}

// Niche groups agents that share a grid cell.
type Niche struct {
	Key     NicheKey
	Members []*population.Agent // fitness DESC, ID ASC
}

// NicheKeyOf bins an instinct on a gridSize x gridSize grid over
// fear [0, 2] and risk [0, 1]. Values on the upper edge fall in the last bin.
func NicheKeyOf(inst domain.Instinct, gridSize int) (NicheKey, error) {
	if !isFinite(inst.FearOfDeath) || !isFinite(inst.RiskAppetite) {
		return NicheKey{}, fmt.Errorf("%w: instinct (%v, %v)", domain.ErrNicheComputationFailure,
			inst.FearOfDeath, inst.RiskAppetite)
	}
	return NicheKey{
		FearBin: bin(inst.FearOfDeath, domain.MaxFearOfDeath, gridSize),
		RiskBin: bin(inst.RiskAppetite, domain.MaxRiskAppetite, gridSize),
	}, nil
}

func bin(v, upper float64, gridSize int) int {
	b := int(v / upper * float64(gridSize))
	if b >= gridSize {
		b = gridSize - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

// ComputeNiches groups agents by niche key. Niches are ordered by key.
func ComputeNiches(agents []*population.Agent, gridSize int) ([]Niche, error) {
	byKey := make(map[NicheKey][]*population.Agent)
	for _, a := range agents {
		k, err := NicheKeyOf(a.Instinct, gridSize)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.ID, err)
		}
		byKey[k] = append(byKey[k], a)
	}

	niches := make([]Niche, 0, len(byKey))
	for k, members := range byKey {
		population.SortByFitness(members)
		niches = append(niches, Niche{Key: k, Members: members})
	}
	sort.Slice(niches, func(i, j int) bool {
		if niches[i].Key.FearBin != niches[j].Key.FearBin {
			return niches[i].Key.FearBin < niches[j].Key.FearBin
		}
		return niches[i].Key.RiskBin < niches[j].Key.RiskBin
	})
	return niches, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
