package metrics

import (
	"math"
	"sort"

	"trading-agent-lab/internal/domain"
)

// TradeStats summarizes a set of closed trades.
type TradeStats struct {
	TotalTrades int
	Agents      int
	Wins        int
	Losses      int
	WinRate     float64

	PnLTotal  float64
	PnLMean   float64
	PnLMedian float64
	PnLP10    float64
	PnLP90    float64
	PnLMin    float64
	PnLMax    float64
	PnLStddev float64

	MaxDrawdown          float64
	MaxConsecutiveLosses int
}

// computeFromTrades calculates all statistics from a slice of trades.
// Trades are sorted by ExitTime ASC, TradeID ASC before computing
// order-dependent statistics (MaxDrawdown, MaxConsecutiveLosses).
func computeFromTrades(trades []*domain.TradeRecord) *TradeStats {
	n := len(trades)
	if n == 0 {
		return &TradeStats{}
	}

	sorted := make([]*domain.TradeRecord, n)
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ExitTime != sorted[j].ExitTime {
			return sorted[i].ExitTime < sorted[j].ExitTime
		}
		return sorted[i].TradeID < sorted[j].TradeID
	})

	wins := 0
	agents := make(map[string]struct{})
	pnls := make([]float64, n)
	for i, t := range sorted {
		if t.OutcomeClass == domain.OutcomeClassWin {
			wins++
		}
		agents[t.AgentID] = struct{}{}
		pnls[i] = t.PnL
	}

	sortedPnL := make([]float64, n)
	copy(sortedPnL, pnls)
	sort.Float64s(sortedPnL)

	mean := Mean(pnls)
	return &TradeStats{
		TotalTrades: n,
		Agents:      len(agents),
		Wins:        wins,
		Losses:      n - wins,
		WinRate:     computeWinRate(wins, n),

		PnLTotal:  mean * float64(n),
		PnLMean:   mean,
		PnLMedian: Percentile(sortedPnL, 0.50),
		PnLP10:    Percentile(sortedPnL, 0.10),
		PnLP90:    Percentile(sortedPnL, 0.90),
		PnLMin:    sortedPnL[0],
		PnLMax:    sortedPnL[n-1],
		PnLStddev: Stddev(pnls, mean),

		MaxDrawdown:          MaxDrawdown(pnls),
		MaxConsecutiveLosses: maxConsecutiveLosses(pnls),
	}
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// Mean calculates the arithmetic mean.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Stddev calculates sample standard deviation (n-1 denominator).
func Stddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// Percentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// MaxDrawdown calculates worst peak-to-trough on cumulative PnL.
// Values must be in chronological order.
func MaxDrawdown(values []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, v := range values {
		cumulative += v
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// maxConsecutiveLosses finds the longest streak of pnl <= 0.
func maxConsecutiveLosses(pnls []float64) int {
	maxStreak := 0
	current := 0
	for _, p := range pnls {
		if p <= 0 {
			current++
			if current > maxStreak {
				maxStreak = current
			}
		} else {
			current = 0
		}
	}
	return maxStreak
}
