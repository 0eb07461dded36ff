package strategy

import (
	"context"
	"errors"
	"testing"

	"trading-agent-lab/internal/domain"
)

func testMarket() *domain.MarketState {
	return &domain.MarketState{
		Tick:       1,
		Open:       100,
		High:       101,
		Low:        99,
		Close:      100,
		SpreadPct:  0.0005,
		Liquidity:  0.8,
		Volatility: 0.01,
		Return:     0.005,
	}
}

func TestInput_Validate(t *testing.T) {
	s := NewBuyAndHoldStrategy(5, 0.1)

	_, err := s.Decide(context.Background(), &Input{})
	if !errors.Is(err, ErrMissingMarket) {
		t.Errorf("expected ErrMissingMarket, got %v", err)
	}

	_, err = s.Decide(context.Background(), &Input{Market: &domain.MarketState{Close: 0}})
	if !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestBuyAndHold_Decide(t *testing.T) {
	s := NewBuyAndHoldStrategy(10, 0.5)
	ctx := context.Background()

	tests := []struct {
		name       string
		in         Input
		wantAction Action
		wantAmount float64
	}{
		{"flat buys", Input{Capital: 10000}, ActionBuy, 50},
		{"holding before hold period", Input{Capital: 10000, Holding: true, HeldTicks: 9}, ActionHold, 0},
		{"holding at hold period", Input{Capital: 10000, Holding: true, HeldTicks: 10}, ActionSell, 0},
		{"no capital", Input{Capital: 0}, ActionHold, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.Market = testMarket()
			d, err := s.Decide(ctx, &in)
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if d.Action != tt.wantAction {
				t.Errorf("action = %s, want %s", d.Action, tt.wantAction)
			}
			if d.Amount != tt.wantAmount {
				t.Errorf("amount = %v, want %v", d.Amount, tt.wantAmount)
			}
			if d.Action == ActionBuy && d.Side != domain.SideLong {
				t.Errorf("side = %s, want LONG", d.Side)
			}
		})
	}
}

func TestGenomeStrategy_SignalBounded(t *testing.T) {
	s := NewGenomeStrategy(0.1, 0.2)
	in := &Input{
		Market: testMarket(),
		Genome: domain.Genome{100, 100, 100, 100, 100, 100, 100, 100, 100, 100},
	}
	sig := s.Signal(in)
	if sig < -1 || sig > 1 {
		t.Errorf("signal %v outside [-1, 1]", sig)
	}

	for i := range in.Genome {
		in.Genome[i] = -100
	}
	sig = s.Signal(in)
	if sig < -1 || sig > 1 {
		t.Errorf("signal %v outside [-1, 1]", sig)
	}
}

func TestGenomeStrategy_EntersOnStrongSignal(t *testing.T) {
	s := NewGenomeStrategy(0.1, 0.2)
	ctx := context.Background()

	// Bias gene only: feature 5 is constant 1
	long := domain.Genome{0, 0, 0, 0, 0, 3, 0, 0}
	d, err := s.Decide(ctx, &Input{
		Market:   testMarket(),
		Genome:   long,
		Instinct: domain.Instinct{FearOfDeath: 0, RiskAppetite: 0.5},
		Capital:  10000,
	})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Action != ActionBuy || d.Side != domain.SideLong {
		t.Fatalf("expected long entry, got %+v", d)
	}
	// fraction = 0.1 * (0.5 + 0.5) = 0.1 -> 1000 / 100
	if d.Amount != 10 {
		t.Errorf("amount = %v, want 10", d.Amount)
	}

	short := domain.Genome{0, 0, 0, 0, 0, -3, 0, 0}
	d, err = s.Decide(ctx, &Input{Market: testMarket(), Genome: short, Instinct: domain.Instinct{RiskAppetite: 0.4}, Capital: 10000})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Action != ActionHold {
		t.Errorf("low risk appetite must not short, got %+v", d)
	}

	d, err = s.Decide(ctx, &Input{Market: testMarket(), Genome: short, Instinct: domain.Instinct{RiskAppetite: 0.9}, Capital: 10000})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Action != ActionBuy || d.Side != domain.SideShort {
		t.Errorf("expected short entry, got %+v", d)
	}
}

func TestGenomeStrategy_FearRaisesThreshold(t *testing.T) {
	s := NewGenomeStrategy(0.1, 0.2)
	calm := s.threshold(domain.Instinct{FearOfDeath: 0, RiskAppetite: 0.5})
	fearful := s.threshold(domain.Instinct{FearOfDeath: 2, RiskAppetite: 0.5})
	bold := s.threshold(domain.Instinct{FearOfDeath: 0, RiskAppetite: 1})

	if fearful <= calm {
		t.Errorf("fear should raise threshold: %v <= %v", fearful, calm)
	}
	if bold >= calm {
		t.Errorf("risk appetite should lower threshold: %v >= %v", bold, calm)
	}
}

func TestGenomeStrategy_StopLoss(t *testing.T) {
	s := NewGenomeStrategy(0.1, 0.2)
	m := testMarket()
	m.Close = 97

	// Long entry at 100, price 97: 3% adverse move. Fear 2 tolerates 1%.
	in := &Input{
		Market:       m,
		Genome:       domain.Genome{0, 0, 0, 0, 0, 3, 0, 0},
		Instinct:     domain.Instinct{FearOfDeath: 2, RiskAppetite: 0.5},
		Holding:      true,
		EntryPrice:   100,
		PositionSide: domain.SideLong,
	}
	d, err := s.Decide(context.Background(), in)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Action != ActionSell {
		t.Errorf("expected stop-loss exit, got %+v", d)
	}

	// Fear 0 tolerates 5%: keep holding on a strong positive signal
	in.Instinct.FearOfDeath = 0
	d, err = s.Decide(context.Background(), in)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Action != ActionHold {
		t.Errorf("expected hold, got %+v", d)
	}
}

func TestInput_OpenReturn(t *testing.T) {
	m := testMarket()
	m.Close = 110
	long := &Input{Market: m, Holding: true, EntryPrice: 100, PositionSide: domain.SideLong}
	short := &Input{Market: m, Holding: true, EntryPrice: 100, PositionSide: domain.SideShort}

	if r := long.OpenReturn(); r < 0.0999 || r > 0.1001 {
		t.Errorf("long open return = %v, want 0.1", r)
	}
	if r := short.OpenReturn(); r > -0.0999 || r < -0.1001 {
		t.Errorf("short open return = %v, want -0.1", r)
	}
	if r := (&Input{Market: m}).OpenReturn(); r != 0 {
		t.Errorf("flat open return = %v, want 0", r)
	}
}
