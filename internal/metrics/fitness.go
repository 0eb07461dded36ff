// Package metrics computes agent fitness and trade statistics.
package metrics

import (
	"math"

	"trading-agent-lab/internal/domain"
)

// Fitness weights.
const (
	returnWeight     = 100.0
	winRateWeight    = 5.0
	fullConfidenceAt = 10 // trades before the win-rate term carries full weight
	neutralWinRate   = 0.5
)

// Fitness scores an agent from its account summary. Higher is better.
// The win-rate term ramps up linearly over the first fullConfidenceAt trades.
// Non-finite results map to -Inf.
func Fitness(s domain.AccountSummary) float64 {
	f := s.ReturnPct * returnWeight

	confidence := math.Min(float64(s.TradeCount)/fullConfidenceAt, 1)
	f += winRateWeight * (s.WinRate - neutralWinRate) * confidence

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return math.Inf(-1)
	}
	return f
}
