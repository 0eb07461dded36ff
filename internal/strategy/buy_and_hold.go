package strategy

import (
	"context"
	"fmt"

	"trading-agent-lab/internal/domain"
)

// BuyAndHoldStrategy enters long whenever flat and exits after HoldTicks.
type BuyAndHoldStrategy struct {
	HoldTicks     int
	TradeFraction float64
}

// NewBuyAndHoldStrategy creates a new BuyAndHoldStrategy.
func NewBuyAndHoldStrategy(holdTicks int, tradeFraction float64) *BuyAndHoldStrategy {
	return &BuyAndHoldStrategy{
		HoldTicks:     holdTicks,
		TradeFraction: tradeFraction,
	}
}

// ID returns the strategy identifier including parameters.
func (s *BuyAndHoldStrategy) ID() string {
	return fmt.Sprintf("BUY_AND_HOLD_%d", s.HoldTicks)
}

// Decide buys when flat and sells once the entry has been held HoldTicks.
func (s *BuyAndHoldStrategy) Decide(_ context.Context, in *Input) (Decision, error) {
	if err := in.Validate(); err != nil {
		return Decision{}, err
	}

	if in.Holding {
		if in.HeldTicks >= int64(s.HoldTicks) {
			return Decision{Action: ActionSell, Confidence: 1}, nil
		}
		return Hold, nil
	}

	amount := in.Capital * s.TradeFraction / in.Market.Price()
	if amount <= 0 {
		return Hold, nil
	}
	return Decision{Action: ActionBuy, Side: domain.SideLong, Amount: amount, Confidence: 1}, nil
}
