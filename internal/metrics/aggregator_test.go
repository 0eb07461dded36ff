package metrics

import (
	"context"
	"errors"
	"testing"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/storage/memory"
)

func seedTrades(t *testing.T) *memory.TradeRecordStore {
	t.Helper()
	store := memory.NewTradeRecordStore()
	trades := []*domain.TradeRecord{
		{TradeID: "v1", RunID: "r1", AgentID: "a1", Ledger: domain.LedgerVirtual, PnL: 10, ExitTime: 1, OutcomeClass: domain.OutcomeClassWin},
		{TradeID: "v2", RunID: "r1", AgentID: "a1", Ledger: domain.LedgerVirtual, PnL: -4, ExitTime: 2, OutcomeClass: domain.OutcomeClassLoss},
		{TradeID: "v3", RunID: "r1", AgentID: "a2", Ledger: domain.LedgerVirtual, PnL: 3, ExitTime: 3, OutcomeClass: domain.OutcomeClassWin},
		{TradeID: "v4", RunID: "r1", AgentID: "a3", Ledger: domain.LedgerVirtual, PnL: 3, ExitTime: 4, OutcomeClass: domain.OutcomeClassWin},
		{TradeID: "x1", RunID: "r1", AgentID: "a1", Ledger: domain.LedgerReal, PnL: 100, ExitTime: 5, OutcomeClass: domain.OutcomeClassWin},
		{TradeID: "o1", RunID: "r2", AgentID: "a9", Ledger: domain.LedgerVirtual, PnL: 1, ExitTime: 1, OutcomeClass: domain.OutcomeClassWin},
	}
	if err := store.InsertBulk(context.Background(), trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	return store
}

func TestAggregator_ComputeRunStats(t *testing.T) {
	agg := NewAggregator(seedTrades(t))

	s, err := agg.ComputeRunStats(context.Background(), "r1", domain.LedgerVirtual)
	if err != nil {
		t.Fatalf("ComputeRunStats failed: %v", err)
	}
	if s.TotalTrades != 4 {
		t.Errorf("TotalTrades = %d, want 4", s.TotalTrades)
	}
	if s.Agents != 3 {
		t.Errorf("Agents = %d, want 3", s.Agents)
	}
	if s.PnLTotal != 12 {
		t.Errorf("PnLTotal = %v, want 12", s.PnLTotal)
	}

	realStats, err := agg.ComputeRunStats(context.Background(), "r1", domain.LedgerReal)
	if err != nil {
		t.Fatalf("ComputeRunStats real failed: %v", err)
	}
	if realStats.TotalTrades != 1 || realStats.PnLTotal != 100 {
		t.Errorf("real ledger stats = %+v", realStats)
	}
}

func TestAggregator_NoTrades(t *testing.T) {
	agg := NewAggregator(seedTrades(t))

	_, err := agg.ComputeRunStats(context.Background(), "missing", domain.LedgerVirtual)
	if !errors.Is(err, ErrNoTrades) {
		t.Errorf("expected ErrNoTrades, got %v", err)
	}
	_, err = agg.ComputeAgentStats(context.Background(), "r2", domain.LedgerReal)
	if !errors.Is(err, ErrNoTrades) {
		t.Errorf("expected ErrNoTrades, got %v", err)
	}
}

func TestAggregator_ComputeAgentStats_Ordering(t *testing.T) {
	agg := NewAggregator(seedTrades(t))

	stats, err := agg.ComputeAgentStats(context.Background(), "r1", domain.LedgerVirtual)
	if err != nil {
		t.Fatalf("ComputeAgentStats failed: %v", err)
	}

	// a1 = 6, a2 = 3, a3 = 3 (tie broken by id)
	want := []string{"a1", "a2", "a3"}
	if len(stats) != len(want) {
		t.Fatalf("got %d agents, want %d", len(stats), len(want))
	}
	for i, id := range want {
		if stats[i].AgentID != id {
			t.Errorf("position %d: got %s, want %s", i, stats[i].AgentID, id)
		}
	}
	if stats[0].Stats.WinRate != 0.5 {
		t.Errorf("a1 win rate = %v, want 0.5", stats[0].Stats.WinRate)
	}
}
