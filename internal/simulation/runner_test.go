package simulation

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trading-agent-lab/internal/config"
	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/strategy"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Simulation.Ticks = 120
	cfg.Population.InitialSize = 10
	cfg.Population.MaxSize = 20
	cfg.Lifecycle.EvolutionInterval = 40
	cfg.Lifecycle.Workers = 2
	return cfg
}

func run(t *testing.T, cfg config.Config, b *Backends) *Result {
	t.Helper()
	res, err := NewRunner(RunnerOptions{Config: cfg, Backends: b, Logger: zerolog.Nop()}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res
}

func TestRunID(t *testing.T) {
	cfg := testConfig()

	a, b := RunID(cfg), RunID(cfg)
	if a != b {
		t.Errorf("RunID not deterministic: %s vs %s", a, b)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("RunID %q is not a UUID: %v", a, err)
	}

	other := cfg
	other.Simulation.Seed++
	if RunID(other) == a {
		t.Error("different seeds should give different run IDs")
	}

	named := cfg
	named.Simulation.RunID = "my-run"
	if got := RunID(named); got != "my-run" {
		t.Errorf("RunID = %q, want my-run", got)
	}
}

func TestRunner_Run_Deterministic(t *testing.T) {
	cfg := testConfig()

	first := run(t, cfg, nil)
	second := run(t, cfg, nil)

	if first.Ticks != 120 {
		t.Errorf("ticks = %d, want 120", first.Ticks)
	}
	if first.Generations != 3 {
		t.Errorf("generations = %d, want 3", first.Generations)
	}
	if len(first.Stats) != 3 {
		t.Errorf("stored generation stats = %d, want 3", len(first.Stats))
	}
	if len(first.Summaries) == 0 {
		t.Fatal("no surviving agents")
	}

	if !reflect.DeepEqual(first.Summaries, second.Summaries) {
		t.Error("summaries differ between identical runs")
	}
	if !reflect.DeepEqual(first.Stats, second.Stats) {
		t.Error("generation stats differ between identical runs")
	}
	if first.PoolBalance != second.PoolBalance || first.FinalPrice != second.FinalPrice {
		t.Errorf("pool/price differ: %v/%v vs %v/%v",
			first.PoolBalance, first.FinalPrice, second.PoolBalance, second.FinalPrice)
	}
}

func TestRunner_RecordAndReplay(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.Ticks = 30
	cfg.Lifecycle.EvolutionInterval = 1000
	cfg.Market.Record = true

	recorded := MemoryBackends(cfg.Lifecycle.InitialPool)
	original := run(t, cfg, recorded)
	if original.Recorded != 30 {
		t.Fatalf("recorded = %d, want 30", original.Recorded)
	}

	replayCfg := cfg
	replayCfg.Simulation.Ticks = 100
	replayCfg.Simulation.RunID = original.RunID
	replayCfg.Market.Record = false
	replayCfg.Market.Source = "replay"
	replayCfg.Market.ReplayRunID = original.RunID

	b := MemoryBackends(cfg.Lifecycle.InitialPool)
	b.Ticks = recorded.Ticks
	replayed := run(t, replayCfg, b)

	if replayed.Ticks != 30 || !replayed.EndOfFeed {
		t.Errorf("replay ticks = %d end = %v, want 30 true", replayed.Ticks, replayed.EndOfFeed)
	}
	if replayed.FinalPrice != original.FinalPrice {
		t.Errorf("final price %v, want %v", replayed.FinalPrice, original.FinalPrice)
	}
	if !reflect.DeepEqual(replayed.Summaries, original.Summaries) {
		t.Error("replayed summaries differ from the recorded run")
	}
}

func TestRunner_RecordOwnReplay(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.RunID = "loop"
	cfg.Market.Source = "replay"
	cfg.Market.ReplayRunID = "loop"
	cfg.Market.Record = true

	_, err := NewRunner(RunnerOptions{Config: cfg, Logger: zerolog.Nop()}).Run(context.Background())
	if !errors.Is(err, ErrRecordOwnReplay) {
		t.Errorf("expected ErrRecordOwnReplay, got %v", err)
	}
}

func TestRunner_UnknownStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.Type = "MOMENTUM"

	_, err := NewRunner(RunnerOptions{Config: cfg, Logger: zerolog.Nop()}).Run(context.Background())
	if !errors.Is(err, strategy.ErrUnknownStrategyType) {
		t.Errorf("expected ErrUnknownStrategyType, got %v", err)
	}
}

func TestRunner_BuyAndHold(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.Ticks = 50
	cfg.Population.InitialSize = 1
	cfg.Market.Regime = domain.RegimeBull
	cfg.Strategy.Type = domain.StrategyTypeBuyAndHold
	cfg.Strategy.HoldTicks = 10
	cfg.Lifecycle.EvolutionInterval = 1000

	res := run(t, cfg, nil)
	if len(res.Summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(res.Summaries))
	}
	if s := res.Summaries[0]; s.TradeCount != 4 {
		t.Errorf("trade count = %d, want 4", s.TradeCount)
	}
}
