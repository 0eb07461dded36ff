package strategy

import (
	"context"
	"fmt"
	"math"

	"trading-agent-lab/internal/domain"
)

// featureCount is the number of market features a genome is weighted against.
// Genomes longer than this reuse features cyclically.
const featureCount = 8

// GenomeStrategy trades on a genome-weighted signal over market features.
// Instinct gates it: fear raises the entry threshold and tightens the stop,
// risk appetite lowers the threshold and scales position size.
type GenomeStrategy struct {
	TradeFraction   float64 // fraction of capital per entry at neutral risk
	SignalThreshold float64 // base |signal| required to enter
}

// NewGenomeStrategy creates a new GenomeStrategy.
func NewGenomeStrategy(tradeFraction, signalThreshold float64) *GenomeStrategy {
	return &GenomeStrategy{
		TradeFraction:   tradeFraction,
		SignalThreshold: signalThreshold,
	}
}

// ID returns the strategy identifier including parameters.
func (s *GenomeStrategy) ID() string {
	return fmt.Sprintf("GENOME_f%.3f_t%.3f", s.TradeFraction, s.SignalThreshold)
}

// Decide computes signal = tanh(genome · features) and compares it to an
// instinct-adjusted threshold:
//   - flat: |signal| > threshold opens long (positive) or short (negative),
//     shorts only when risk appetite exceeds one half
//   - holding: close when the signal turns against the position by half the
//     threshold, or when the open loss exceeds the fear-scaled stop
func (s *GenomeStrategy) Decide(_ context.Context, in *Input) (Decision, error) {
	if err := in.Validate(); err != nil {
		return Decision{}, err
	}
	if in.Genome.Dim() == 0 {
		return Hold, nil
	}

	signal := s.Signal(in)
	threshold := s.threshold(in.Instinct)
	confidence := math.Min(math.Abs(signal), 1)

	if in.Holding {
		if in.OpenReturn() < -stopLoss(in.Instinct) {
			return Decision{Action: ActionSell, Confidence: 1}, nil
		}
		against := signal
		if in.PositionSide == domain.SideShort {
			against = -signal
		}
		if against < -threshold/2 {
			return Decision{Action: ActionSell, Confidence: confidence}, nil
		}
		return Hold, nil
	}

	price := in.Market.Price()
	switch {
	case signal > threshold:
		return Decision{Action: ActionBuy, Side: domain.SideLong, Amount: s.entryAmount(in, price), Confidence: confidence}, nil
	case signal < -threshold && in.Instinct.RiskAppetite > 0.5:
		return Decision{Action: ActionBuy, Side: domain.SideShort, Amount: s.entryAmount(in, price), Confidence: confidence}, nil
	default:
		return Hold, nil
	}
}

// Signal returns tanh(genome · features) in [-1, 1]. Large dot products saturate to ±1.
func (s *GenomeStrategy) Signal(in *Input) float64 {
	f := features(in)
	dot := 0.0
	for i, g := range in.Genome {
		dot += g * f[i%featureCount]
	}
	return math.Tanh(dot)
}

func (s *GenomeStrategy) threshold(inst domain.Instinct) float64 {
	return s.SignalThreshold * (1 + inst.FearOfDeath/2) * (1.5 - inst.RiskAppetite)
}

func (s *GenomeStrategy) entryAmount(in *Input, price float64) float64 {
	if price <= 0 {
		return 0
	}
	fraction := s.TradeFraction * (0.5 + in.Instinct.RiskAppetite)
	return in.Capital * math.Min(fraction, 1) / price
}

// stopLoss is the tolerated adverse move as a fraction of entry price.
// Fear 0 tolerates 5%, fear 2 tolerates 1%.
func stopLoss(inst domain.Instinct) float64 {
	return 0.05 - 0.02*inst.FearOfDeath
}

func features(in *Input) [featureCount]float64 {
	m := in.Market
	vol := math.Max(m.Volatility, 1e-9)

	var f [featureCount]float64
	f[0] = clamp(m.Return/vol, -3, 3) / 3
	if m.Close > 0 {
		f[1] = clamp((m.High-m.Low)/m.Close/vol, 0, 6)/3 - 1
	}
	f[2] = 2*m.Liquidity - 1
	f[3] = -clamp(m.SpreadPct*100, 0, 1)
	if m.Extreme {
		f[4] = math.Copysign(1, m.Return)
	}
	f[5] = 1
	if in.Holding {
		f[6] = 1
	} else {
		f[6] = -1
	}
	f[7] = clamp(in.OpenReturn()*10, -1, 1)
	return f
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
