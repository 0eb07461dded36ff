package strategy

import (
	"errors"
	"fmt"

	"trading-agent-lab/internal/domain"
)

// Factory errors
var (
	ErrUnknownStrategyType    = errors.New("unknown strategy type")
	ErrMissingTradeFraction   = errors.New("strategy requires TradeFraction")
	ErrMissingSignalThreshold = errors.New("GENOME requires SignalThreshold")
	ErrMissingHoldTicks       = errors.New("BUY_AND_HOLD requires HoldTicks")
	ErrInvalidParameter       = errors.New("invalid strategy parameter")
)

// FromConfig creates a Strategy from domain.StrategyConfig.
// Validates required parameters per strategy type.
func FromConfig(cfg domain.StrategyConfig) (Strategy, error) {
	if cfg.TradeFraction == nil {
		return nil, ErrMissingTradeFraction
	}
	if tf := *cfg.TradeFraction; tf <= 0 || tf > 1 {
		return nil, fmt.Errorf("%w: trade_fraction=%v", ErrInvalidParameter, tf)
	}

	switch cfg.StrategyType {
	case domain.StrategyTypeGenome:
		return fromGenomeConfig(cfg)
	case domain.StrategyTypeBuyAndHold:
		return fromBuyAndHoldConfig(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategyType, cfg.StrategyType)
	}
}

func fromGenomeConfig(cfg domain.StrategyConfig) (*GenomeStrategy, error) {
	if cfg.SignalThreshold == nil {
		return nil, ErrMissingSignalThreshold
	}
	if th := *cfg.SignalThreshold; th < 0 || th >= 1 {
		return nil, fmt.Errorf("%w: signal_threshold=%v", ErrInvalidParameter, th)
	}
	return NewGenomeStrategy(*cfg.TradeFraction, *cfg.SignalThreshold), nil
}

func fromBuyAndHoldConfig(cfg domain.StrategyConfig) (*BuyAndHoldStrategy, error) {
	if cfg.HoldTicks == nil {
		return nil, ErrMissingHoldTicks
	}
	if *cfg.HoldTicks < 1 {
		return nil, fmt.Errorf("%w: hold_ticks=%d", ErrInvalidParameter, *cfg.HoldTicks)
	}
	return NewBuyAndHoldStrategy(*cfg.HoldTicks, *cfg.TradeFraction), nil
}
