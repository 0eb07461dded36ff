package domain

// Side is the direction of a position.
type Side string

// Position sides.
const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Ledger distinguishes simulated from externally executed trades.
type Ledger string

// Ledger constants.
const (
	LedgerVirtual Ledger = "VIRTUAL"
	LedgerReal    Ledger = "REAL"
)

// Position is an open exposure held by an account.
type Position struct {
	Side       Side    // LONG | SHORT
	Amount     float64 // base units
	EntryPrice float64 // fill price at entry
	EntryTime  int64   // simulated timestamp (ms)
	Confidence float64 // decision confidence at entry
}

// PnL returns the profit of closing the position at exitPrice.
func (p Position) PnL(exitPrice float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - exitPrice) * p.Amount
	}
	return (exitPrice - p.EntryPrice) * p.Amount
}

// TradeRecord is an immutable snapshot of a completed round trip.
type TradeRecord struct {
	TradeID string // deterministic hash
	RunID   string // simulation run
	AgentID string // owning agent
	Ledger  Ledger // VIRTUAL | REAL

	Side       Side
	Amount     float64
	Confidence float64

	// Entry
	EntryPrice float64
	EntryTime  int64 // ms

	// Exit
	ExitPrice float64
	ExitTime  int64 // ms

	// Outcome
	PnL          float64 // realized profit in quote units
	OutcomeClass string  // "WIN" | "LOSS"
}

// Outcome class constants
const (
	OutcomeClassWin  = "WIN"
	OutcomeClassLoss = "LOSS"
)

// OutcomeClassFor classifies a realized PnL. Only strictly positive PnL is a win.
func OutcomeClassFor(pnl float64) string {
	if pnl > 0 {
		return OutcomeClassWin
	}
	return OutcomeClassLoss
}
