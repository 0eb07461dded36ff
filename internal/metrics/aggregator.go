package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/storage"
)

// ErrNoTrades is returned when no trades are available for aggregation.
var ErrNoTrades = errors.New("no trades available for aggregation")

// Aggregator computes trade statistics from stored trade records.
type Aggregator struct {
	tradeRecordStore storage.TradeRecordStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(tradeStore storage.TradeRecordStore) *Aggregator {
	return &Aggregator{tradeRecordStore: tradeStore}
}

// ComputeRunStats computes statistics over every trade of a run on one ledger.
// Returns ErrNoTrades if the run has no trades on that ledger.
func (a *Aggregator) ComputeRunStats(ctx context.Context, runID string, ledger domain.Ledger) (*TradeStats, error) {
	trades, err := a.tradeRecordStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	filtered := filterByLedger(trades, ledger)
	if len(filtered) == 0 {
		return nil, ErrNoTrades
	}
	return computeFromTrades(filtered), nil
}

// AgentStats pairs an agent with its trade statistics.
type AgentStats struct {
	AgentID string
	Stats   *TradeStats
}

// ComputeAgentStats computes per-agent statistics for a run on one ledger,
// sorted by total PnL DESC, agent_id ASC.
func (a *Aggregator) ComputeAgentStats(ctx context.Context, runID string, ledger domain.Ledger) ([]AgentStats, error) {
	trades, err := a.tradeRecordStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	byAgent := make(map[string][]*domain.TradeRecord)
	for _, t := range filterByLedger(trades, ledger) {
		byAgent[t.AgentID] = append(byAgent[t.AgentID], t)
	}
	if len(byAgent) == 0 {
		return nil, ErrNoTrades
	}

	result := make([]AgentStats, 0, len(byAgent))
	for id, ts := range byAgent {
		result = append(result, AgentStats{AgentID: id, Stats: computeFromTrades(ts)})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Stats.PnLTotal != result[j].Stats.PnLTotal {
			return result[i].Stats.PnLTotal > result[j].Stats.PnLTotal
		}
		return result[i].AgentID < result[j].AgentID
	})
	return result, nil
}

func filterByLedger(trades []*domain.TradeRecord, ledger domain.Ledger) []*domain.TradeRecord {
	var out []*domain.TradeRecord
	for _, t := range trades {
		if t.Ledger == ledger {
			out = append(out, t)
		}
	}
	return out
}
