// Package reporting renders run results as CSV and Markdown.
package reporting

import "time"

// Report represents a completed simulation run.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string

	// Run Summary
	RunSummary RunSummary

	// Agents (sorted by fitness DESC, agent_id ASC)
	Agents []AgentRow

	// Generations (sorted by generation ASC)
	Generations []GenerationRow

	// Ledger comparison (VIRTUAL then REAL)
	Ledgers []LedgerRow

	// Diversity at the end of the run
	Diversity DiversityRow
}

// RunSummary contains run-level totals.
type RunSummary struct {
	Ticks       int
	Generations int
	Fills       int
	Rejected    int
	EndOfFeed   bool
	Population  int
	FinalPrice  float64
	PoolBalance float64
	TotalTrades int // closed trades across both ledgers
}

// AgentRow represents one living agent.
type AgentRow struct {
	AgentID         string
	Fitness         float64
	VirtualCapital  float64
	RealizedPnL     float64
	UnrealizedPnL   float64
	TotalPnL        float64
	ReturnPct       float64
	WinRate         float64
	TradeCount      int
	OpenPositions   int
	HasRealPosition bool
}

// GenerationRow represents one evolution boundary.
type GenerationRow struct {
	Generation          int
	Tick                int64
	Population          int
	Eliminated          int
	Born                int
	Protected           int
	Unfilled            int
	NicheCount          int
	MeanGeneticDistance float64
	BestFitness         float64
	MeanFitness         float64
	PoolBalance         float64
}

// LedgerRow summarizes closed trades on one ledger.
type LedgerRow struct {
	Ledger               string
	TotalTrades          int
	Agents               int
	WinRate              float64
	PnLTotal             float64
	PnLMean              float64
	PnLMedian            float64
	PnLP10               float64
	PnLP90               float64
	MaxDrawdown          float64
	MaxConsecutiveLosses int
}

// DiversityRow contains final population diversity.
type DiversityRow struct {
	NicheCount          int
	FamilyCount         int
	RareFamilyCount     int
	TotalProtected      int
	MeanGeneticDistance float64
}
