package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"trading-agent-lab/internal/config"
	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/simulation"
	"trading-agent-lab/internal/storage"
)

// ErrTradeNotFound is returned when trade ID doesn't exist.
var ErrTradeNotFound = errors.New("trade not found")

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	Config     config.Config            // config the stored run was produced with
	TradeStore storage.TradeRecordStore // holds the stored run
	Logger     zerolog.Logger
}

// ReplayVerifier implements Verifier by re-running the config once on
// in-memory backends and comparing each stored trade with its replay.
type ReplayVerifier struct {
	cfg        config.Config
	runID      string
	tradeStore storage.TradeRecordStore
	logger     zerolog.Logger

	mu       sync.Mutex
	replayed map[string]*domain.TradeRecord
}

// Compile-time interface check.
var _ Verifier = (*ReplayVerifier)(nil)

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		cfg:        opts.Config,
		runID:      simulation.RunID(opts.Config),
		tradeStore: opts.TradeStore,
		logger:     opts.Logger.With().Str("component", "ReplayVerifier").Logger(),
	}
}

// VerifyTrade verifies a single trade by replaying the run.
func (v *ReplayVerifier) VerifyTrade(ctx context.Context, tradeID string) (*VerificationResult, error) {
	// 1. Load stored trade
	stored, err := v.tradeStore.GetByID(ctx, tradeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
		}
		return nil, err
	}

	// 2. Replay
	replayed, err := v.replay(ctx)
	if err != nil {
		return nil, err
	}

	// 3. Compare
	return compareOne(stored, replayed[tradeID]), nil
}

// VerifyAll verifies every stored trade of the run.
func (v *ReplayVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	stored, err := v.tradeStore.GetByRunID(ctx, v.runID)
	if err != nil {
		return nil, err
	}
	replayed, err := v.replay(ctx)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		RunID:       v.runID,
		TotalTrades: len(stored),
		Results:     make([]VerificationResult, 0, len(stored)),
	}
	seen := make(map[string]struct{}, len(stored))
	for _, s := range stored {
		seen[s.TradeID] = struct{}{}
		res := compareOne(s, replayed[s.TradeID])
		if res.Match {
			report.MatchedTrades++
		} else {
			report.DivergentTrades++
		}
		report.Results = append(report.Results, *res)
	}
	for id := range replayed {
		if _, ok := seen[id]; !ok {
			report.ExtraTrades++
		}
	}

	v.logger.Info().
		Str("run_id", v.runID).
		Int("total", report.TotalTrades).
		Int("matched", report.MatchedTrades).
		Int("divergent", report.DivergentTrades).
		Int("extra", report.ExtraTrades).
		Msg("replay verification complete")
	return report, nil
}

// replay runs the config once and caches the resulting trades by ID.
func (v *ReplayVerifier) replay(ctx context.Context) (map[string]*domain.TradeRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.replayed != nil {
		return v.replayed, nil
	}

	cfg := v.cfg
	cfg.Market.Record = false
	backends := simulation.MemoryBackends(cfg.Lifecycle.InitialPool)
	if _, err := simulation.NewRunner(simulation.RunnerOptions{
		Config:   cfg,
		Backends: backends,
		Logger:   v.logger,
	}).Run(ctx); err != nil {
		return nil, fmt.Errorf("replay run: %w", err)
	}

	trades, err := backends.Trades.GetByRunID(ctx, v.runID)
	if err != nil {
		return nil, err
	}
	v.replayed = make(map[string]*domain.TradeRecord, len(trades))
	for _, t := range trades {
		v.replayed[t.TradeID] = t
	}
	return v.replayed, nil
}

func compareOne(stored, replayed *domain.TradeRecord) *VerificationResult {
	res := &VerificationResult{TradeID: stored.TradeID, StoredPnL: stored.PnL}
	if replayed == nil {
		res.Divergences = []FieldDivergence{{Field: "TradeID", Expected: stored.TradeID, Actual: nil}}
		return res
	}
	res.ReplayedPnL = replayed.PnL
	res.Divergences = CompareTradeRecords(stored, replayed)
	res.Match = len(res.Divergences) == 0
	return res
}

// DeterminismReport is the result of VerifyDeterminism.
type DeterminismReport struct {
	RunID       string
	Agents      int
	Trades      int
	Generations int
	Match       bool
	Divergences []FieldDivergence
}

// VerifyDeterminism runs cfg twice on fresh in-memory backends and diffs
// the final agent summaries, the trade logs and the generation stats.
func VerifyDeterminism(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*DeterminismReport, error) {
	cfg.Market.Record = false
	if cfg.Market.Source == "websocket" {
		return nil, fmt.Errorf("%w: a websocket feed cannot be replayed", config.ErrInvalidConfig)
	}

	type outcome struct {
		res    *simulation.Result
		trades []*domain.TradeRecord
	}
	runOnce := func() (outcome, error) {
		b := simulation.MemoryBackends(cfg.Lifecycle.InitialPool)
		res, err := simulation.NewRunner(simulation.RunnerOptions{Config: cfg, Backends: b, Logger: logger}).Run(ctx)
		if err != nil {
			return outcome{}, err
		}
		trades, err := b.Trades.GetByRunID(ctx, res.RunID)
		if err != nil {
			return outcome{}, err
		}
		return outcome{res: res, trades: trades}, nil
	}

	first, err := runOnce()
	if err != nil {
		return nil, fmt.Errorf("first run: %w", err)
	}
	second, err := runOnce()
	if err != nil {
		return nil, fmt.Errorf("second run: %w", err)
	}

	report := &DeterminismReport{
		RunID:       first.res.RunID,
		Agents:      len(first.res.Summaries),
		Trades:      len(first.trades),
		Generations: first.res.Generations,
	}
	var divs []FieldDivergence

	// Summaries
	if len(first.res.Summaries) != len(second.res.Summaries) {
		divs = append(divs, FieldDivergence{Field: "Population", Expected: len(first.res.Summaries), Actual: len(second.res.Summaries)})
	} else {
		for i := range first.res.Summaries {
			divs = append(divs, CompareSummaries(first.res.Summaries[i], second.res.Summaries[i])...)
		}
	}

	// Trades
	if len(first.trades) != len(second.trades) {
		divs = append(divs, FieldDivergence{Field: "TradeCount", Expected: len(first.trades), Actual: len(second.trades)})
	} else {
		for i := range first.trades {
			divs = append(divs, CompareTradeRecords(first.trades[i], second.trades[i])...)
		}
	}

	// Generations
	if len(first.res.Stats) != len(second.res.Stats) {
		divs = append(divs, FieldDivergence{Field: "Generations", Expected: len(first.res.Stats), Actual: len(second.res.Stats)})
	} else {
		for i, a := range first.res.Stats {
			b := second.res.Stats[i]
			d := &differ{prefix: fmt.Sprintf("generation %d.", a.Generation)}
			d.int64("Population", int64(a.Population), int64(b.Population))
			d.int64("Eliminated", int64(a.Eliminated), int64(b.Eliminated))
			d.int64("Born", int64(a.Born), int64(b.Born))
			d.float("BestFitness", a.BestFitness, b.BestFitness)
			d.float("PoolBalance", a.PoolBalance, b.PoolBalance)
			divs = append(divs, d.out...)
		}
	}

	report.Divergences = divs
	report.Match = len(divs) == 0
	if !report.Match {
		logger.Warn().Str("run_id", report.RunID).Int("divergences", len(divs)).Msg("run is not reproducible")
	}
	return report, nil
}
