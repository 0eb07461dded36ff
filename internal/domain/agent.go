package domain

import (
	"fmt"
	"math"
)

// Instinct bounds.
const (
	MaxFearOfDeath  = 2.0
	MaxRiskAppetite = 1.0
)

// Genome is a fixed-length strategy parameter vector.
// A Genome is never modified after creation; reproduction builds a new one.
type Genome []float64

// Dim returns the genome dimensionality.
func (g Genome) Dim() int {
	return len(g)
}

// Clone returns an independent copy.
func (g Genome) Clone() Genome {
	out := make(Genome, len(g))
	copy(out, g)
	return out
}

// Distance returns the Euclidean distance between two genomes.
// Returns ErrGenomeDimension when the lengths differ.
func (g Genome) Distance(other Genome) (float64, error) {
	if len(g) != len(other) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrGenomeDimension, len(g), len(other))
	}
	sum := 0.0
	for i := range g {
		d := g[i] - other[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Lineage identifies the ancestry of an agent. Set at birth.
type Lineage struct {
	FamilyID       string // ancestry group
	DominantFamily string // family contributing the most genes
}

// Instinct holds the two behavioral scalars used for niche binning.
type Instinct struct {
	FearOfDeath  float64 // [0, 2]
	RiskAppetite float64 // [0, 1]
}

// Validate checks instinct bounds.
func (i Instinct) Validate() error {
	if math.IsNaN(i.FearOfDeath) || i.FearOfDeath < 0 || i.FearOfDeath > MaxFearOfDeath {
		return fmt.Errorf("%w: fear_of_death=%v", ErrInvalidInstinct, i.FearOfDeath)
	}
	if math.IsNaN(i.RiskAppetite) || i.RiskAppetite < 0 || i.RiskAppetite > MaxRiskAppetite {
		return fmt.Errorf("%w: risk_appetite=%v", ErrInvalidInstinct, i.RiskAppetite)
	}
	return nil
}

// Clamp returns the instinct with both values forced into range.
func (i Instinct) Clamp() Instinct {
	return Instinct{
		FearOfDeath:  math.Max(0, math.Min(MaxFearOfDeath, i.FearOfDeath)),
		RiskAppetite: math.Max(0, math.Min(MaxRiskAppetite, i.RiskAppetite)),
	}
}
