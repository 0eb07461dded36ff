package domain

// StrategyConfig represents strategy configuration parameters.
type StrategyConfig struct {
	StrategyType string // "GENOME" | "BUY_AND_HOLD"

	// Common parameters
	TradeFraction *float64 // fraction of capital committed per entry

	// GENOME parameters
	SignalThreshold *float64 // minimum |signal| before instinct adjustment

	// BUY_AND_HOLD parameters
	HoldTicks *int
}

// Strategy type constants
const (
	StrategyTypeGenome     = "GENOME"
	StrategyTypeBuyAndHold = "BUY_AND_HOLD"
)

// AccountSummary is a point-in-time view of an agent account.
type AccountSummary struct {
	AgentID         string
	InitialCapital  float64
	VirtualCapital  float64
	OpenPositions   int
	OpenExposure    float64 // sum of amount * entry_price over open positions
	HasRealPosition bool

	RealizedPnL   float64
	UnrealizedPnL float64
	TotalPnL      float64
	ReturnPct     float64 // TotalPnL / InitialCapital
	WinRate       float64 // wins / trades, 0 with no trades

	TradeCount    int
	WinCount      int
	LossCount     int
	LastTradeTime int64 // ms, 0 if never traded
}
