package strategy

import (
	"context"
	"errors"

	"trading-agent-lab/internal/domain"
)

// Input errors
var (
	ErrMissingMarket = errors.New("strategy input has no market state")
	ErrInvalidPrice  = errors.New("strategy input price must be > 0")
)

// Action is what an agent wants to do this tick.
type Action string

// Actions.
const (
	ActionHold Action = "HOLD"
	ActionBuy  Action = "BUY"  // open a position on Side
	ActionSell Action = "SELL" // close the oldest open position
)

// Decision is the output of a strategy for one tick.
type Decision struct {
	Action     Action
	Side       domain.Side // for ActionBuy
	Amount     float64     // base units, for ActionBuy
	Confidence float64     // [0, 1]
}

// Hold is the no-op decision.
var Hold = Decision{Action: ActionHold}

// Strategy turns a market snapshot and an agent's traits into a decision.
// Implementations must be safe for concurrent use: Decide is called for
// many agents in parallel and must not mutate shared state.
type Strategy interface {
	// Decide returns the decision for one agent at one tick.
	Decide(ctx context.Context, input *Input) (Decision, error)

	// ID returns strategy identifier (includes parameters).
	ID() string
}

// Input holds everything a strategy may read for one agent at one tick.
type Input struct {
	Tick     int64
	Market   *domain.MarketState
	Genome   domain.Genome
	Instinct domain.Instinct

	Capital      float64     // virtual capital
	Holding      bool        // an entry is open
	HeldTicks    int64       // ticks since the open entry
	EntryPrice   float64     // entry price of the open entry
	PositionSide domain.Side // side of the open entry
}

// OpenReturn is the fractional move of the open entry in its favor.
func (in *Input) OpenReturn() float64 {
	if !in.Holding || in.EntryPrice <= 0 || in.Market == nil {
		return 0
	}
	r := (in.Market.Close - in.EntryPrice) / in.EntryPrice
	if in.PositionSide == domain.SideShort {
		return -r
	}
	return r
}

// Validate checks the input is usable.
func (in *Input) Validate() error {
	if in.Market == nil {
		return ErrMissingMarket
	}
	if !(in.Market.Price() > 0) {
		return ErrInvalidPrice
	}
	return nil
}
