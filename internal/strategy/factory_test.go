package strategy

import (
	"errors"
	"testing"

	"trading-agent-lab/internal/domain"
)

func ptr[T any](v T) *T {
	return &v
}

func TestFromConfig_Genome(t *testing.T) {
	cfg := domain.StrategyConfig{
		StrategyType:    domain.StrategyTypeGenome,
		TradeFraction:   ptr(0.1),
		SignalThreshold: ptr(0.2),
	}

	s, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	gs, ok := s.(*GenomeStrategy)
	if !ok {
		t.Fatalf("expected *GenomeStrategy, got %T", s)
	}
	if gs.TradeFraction != 0.1 || gs.SignalThreshold != 0.2 {
		t.Errorf("unexpected params: %+v", gs)
	}
	if gs.ID() != "GENOME_f0.100_t0.200" {
		t.Errorf("unexpected ID %s", gs.ID())
	}
}

func TestFromConfig_BuyAndHold(t *testing.T) {
	cfg := domain.StrategyConfig{
		StrategyType:  domain.StrategyTypeBuyAndHold,
		TradeFraction: ptr(0.5),
		HoldTicks:     ptr(10),
	}

	s, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	bh, ok := s.(*BuyAndHoldStrategy)
	if !ok {
		t.Fatalf("expected *BuyAndHoldStrategy, got %T", s)
	}
	if bh.HoldTicks != 10 {
		t.Errorf("expected 10, got %d", bh.HoldTicks)
	}
	if bh.ID() != "BUY_AND_HOLD_10" {
		t.Errorf("unexpected ID %s", bh.ID())
	}
}

func TestFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.StrategyConfig
		want error
	}{
		{
			name: "unknown type",
			cfg:  domain.StrategyConfig{StrategyType: "MOMENTUM", TradeFraction: ptr(0.1)},
			want: ErrUnknownStrategyType,
		},
		{
			name: "missing trade fraction",
			cfg:  domain.StrategyConfig{StrategyType: domain.StrategyTypeGenome, SignalThreshold: ptr(0.2)},
			want: ErrMissingTradeFraction,
		},
		{
			name: "trade fraction above one",
			cfg:  domain.StrategyConfig{StrategyType: domain.StrategyTypeGenome, TradeFraction: ptr(1.5), SignalThreshold: ptr(0.2)},
			want: ErrInvalidParameter,
		},
		{
			name: "missing threshold",
			cfg:  domain.StrategyConfig{StrategyType: domain.StrategyTypeGenome, TradeFraction: ptr(0.1)},
			want: ErrMissingSignalThreshold,
		},
		{
			name: "missing hold ticks",
			cfg:  domain.StrategyConfig{StrategyType: domain.StrategyTypeBuyAndHold, TradeFraction: ptr(0.1)},
			want: ErrMissingHoldTicks,
		},
		{
			name: "zero hold ticks",
			cfg:  domain.StrategyConfig{StrategyType: domain.StrategyTypeBuyAndHold, TradeFraction: ptr(0.1), HoldTicks: ptr(0)},
			want: ErrInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromConfig(tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
