// Package simulation assembles a complete run from configuration.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trading-agent-lab/internal/config"
	"trading-agent-lab/internal/diversity"
	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/execution"
	"trading-agent-lab/internal/feed"
	"trading-agent-lab/internal/lifecycle"
	"trading-agent-lab/internal/market"
	"trading-agent-lab/internal/observability"
	"trading-agent-lab/internal/population"
	"trading-agent-lab/internal/strategy"
)

// Runner errors
var (
	ErrUnknownSource   = errors.New("unknown market source")
	ErrRecordOwnReplay = errors.New("cannot record a replay into its own run")
)

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Config   config.Config
	Backends *Backends // in-memory when nil
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

// Runner executes one simulation run.
type Runner struct {
	cfg      config.Config
	backends *Backends
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// Result is the outcome of a run.
type Result struct {
	RunID       string
	Ticks       int
	Generations int
	Fills       int
	Rejected    int
	EndOfFeed   bool
	Recorded    int // ticks written to the tick store

	FinalPrice  float64
	PoolBalance float64
	Summaries   []domain.AccountSummary // living agents, by AgentID
	Stats       []*domain.GenerationStats
	Diversity   domain.DiversityStats
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) *Runner {
	b := opts.Backends
	if b == nil {
		b = MemoryBackends(opts.Config.Lifecycle.InitialPool)
	}
	return &Runner{
		cfg:      opts.Config,
		backends: b,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With().Str("component", "SimulationRunner").Logger(),
	}
}

// RunID returns the configured run ID, or one derived from the seed,
// regime and strategy so that identical configs share an ID.
func RunID(cfg config.Config) string {
	if cfg.Simulation.RunID != "" {
		return cfg.Simulation.RunID
	}
	name := fmt.Sprintf("trading-agent-lab/%d/%s/%s/%d",
		cfg.Simulation.Seed, cfg.Market.Regime, cfg.Strategy.Type, cfg.Population.InitialSize)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Run builds every component and drives the configured number of ticks.
//
// Steps:
//  1. Build the strategy, breeder, protector and execution interface
//  2. Open the tick source (process, replay or websocket), optionally recorded
//  3. Create the genesis population
//  4. Run the lifecycle loop
//  5. Collect summaries and generation stats
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	cfg := r.cfg
	runID := RunID(cfg)
	logger := r.logger.With().Str("run_id", runID).Logger()

	// 1. Components
	strat, err := strategy.FromConfig(cfg.Strategy.DomainStrategyConfig())
	if err != nil {
		return nil, fmt.Errorf("build strategy: %w", err)
	}

	rng := rand.New(rand.NewSource(cfg.Simulation.Seed))
	breeder := population.NewBreeder(population.BreederOptions{
		RunID:               runID,
		Rand:                rng,
		GenomeDim:           cfg.Population.GenomeDim,
		Families:            cfg.Population.Families,
		MutationRate:        cfg.Population.MutationRate,
		MutationStdDev:      cfg.Population.MutationStdDev,
		BoostedMutationRate: cfg.Population.BoostedMutationRate,
		InstinctMutationStd: cfg.Population.InstinctMutationStd,
		LifespanTicks:       cfg.Population.LifespanTicks,
		Cooldown:            cooldown(cfg.Account),
	})

	d := cfg.Diversity
	protector := diversity.New(diversity.Options{
		MinNicheSize:          d.MinNicheSize,
		MaxProtectionCount:    d.MaxProtectionCount,
		LowerPercentile:       d.LowerPercentile,
		UpperPercentile:       d.UpperPercentile,
		RareStrategyTopFrac:   d.RareStrategyTopFrac,
		RareLineageThreshold:  d.RareLineageThreshold,
		RareLineageTopN:       d.RareLineageTopN,
		CrossFamilyWeight:     d.CrossFamilyWeight,
		SameFamilyWeight:      d.SameFamilyWeight,
		GeneInjectionFraction: d.GeneInjectionFraction,
		GridSize:              d.GridSize,
		Logger:                logger,
	})

	e := cfg.Execution
	exec := execution.New(execution.Options{
		MinOrderSize: e.MinOrderSize,
		Slippage:     execution.LinearSlippage(e.BaseSlippagePct, e.ReferenceValue),
		Impact:       execution.SquareRootImpact(e.ImpactCoefficient, e.ReferenceValue),
		Logger:       logger,
	})

	// 2. Tick source
	source, closeSource, err := r.openSource(ctx, runID, logger)
	if err != nil {
		return nil, err
	}
	defer closeSource()

	var recorder *feed.RecordingSource
	if cfg.Market.Record {
		recorder = feed.NewRecordingSource(feed.RecordingOptions{
			Source: source,
			Store:  r.backends.Ticks,
			RunID:  runID,
			Logger: logger,
		})
		source = recorder
	}

	roster := population.NewRoster()
	coord := lifecycle.New(lifecycle.Options{
		RunID:                    runID,
		Roster:                   roster,
		Breeder:                  breeder,
		Protector:                protector,
		Exec:                     exec,
		Pool:                     r.backends.Pool,
		Strategy:                 strat,
		GenomeStore:              r.backends.Genomes,
		TradeStore:               r.backends.Trades,
		GenerationStatsStore:     r.backends.GenerationStats,
		Metrics:                  r.metrics,
		Logger:                   logger,
		EvolutionInterval:        cfg.Lifecycle.EvolutionInterval,
		EliminationRate:          cfg.Lifecycle.EliminationRate,
		OffspringCapitalFraction: cfg.Lifecycle.OffspringCapitalFraction,
		MaxSize:                  cfg.Population.MaxSize,
		GenomeDim:                cfg.Population.GenomeDim,
		Workers:                  cfg.Lifecycle.Workers,
	})

	// 3. Genesis
	agents, err := breeder.Genesis(cfg.Population.InitialSize, cfg.Account.InitialCapital, 0)
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	if err := coord.Populate(ctx, agents); err != nil {
		return nil, err
	}

	logger.Info().
		Int64("seed", cfg.Simulation.Seed).
		Str("regime", string(cfg.Market.Regime)).
		Str("strategy", strat.ID()).
		Str("source", cfg.Market.Source).
		Int("agents", len(agents)).
		Int("ticks", cfg.Simulation.Ticks).
		Msg("simulation starting")

	// 4. Lifecycle loop
	run, err := coord.Run(ctx, source, cfg.Simulation.Ticks)
	if err != nil {
		logger.Error().Err(err).Int("ticks", run.Ticks).Bool("fatal", domain.IsFatal(err)).Msg("simulation aborted")
		return nil, err
	}

	res := &Result{
		RunID:       runID,
		Ticks:       run.Ticks,
		Generations: run.Generations,
		Fills:       run.Fills,
		Rejected:    run.Rejected,
		EndOfFeed:   run.EndOfFeed,
		Diversity:   coord.DiversityStats(),
	}

	if recorder != nil {
		if err := recorder.Flush(ctx); err != nil {
			return nil, err
		}
		res.Recorded = recorder.Recorded()
	}

	// 5. Results
	if last := coord.LastMarket(); last != nil {
		res.FinalPrice = last.Price()
		summaries, err := coord.Summaries()
		if err != nil {
			return nil, err
		}
		sort.Slice(summaries, func(i, j int) bool { return summaries[i].AgentID < summaries[j].AgentID })
		res.Summaries = summaries
	}

	res.PoolBalance, err = r.backends.Pool.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pool balance: %w", err)
	}
	res.Stats, err = r.backends.GenerationStats.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load generation stats: %w", err)
	}

	logger.Info().
		Int("ticks", res.Ticks).
		Int("generations", res.Generations).
		Int("population", len(res.Summaries)).
		Int("fills", res.Fills).
		Int("rejected", res.Rejected).
		Float64("final_price", res.FinalPrice).
		Float64("pool_balance", res.PoolBalance).
		Msg("simulation complete")

	return res, nil
}

func (r *Runner) openSource(ctx context.Context, runID string, logger zerolog.Logger) (feed.TickSource, func(), error) {
	m := r.cfg.Market
	noop := func() {}

	switch m.Source {
	case "process", "":
		var stats market.StatisticsSource
		if m.StatisticsFile != "" {
			stats = market.FileStatisticsSource{Path: m.StatisticsFile}
		}
		process, err := market.New(ctx, market.Options{
			Seed:                 r.cfg.Simulation.Seed,
			Regime:               m.Regime,
			InitialPrice:         m.InitialPrice,
			Statistics:           stats,
			ExtremeVolMultiplier: m.ExtremeVolMultiplier,
			BaseSpreadPct:        m.BaseSpreadPct,
			BaseVolume:           m.BaseVolume,
			BaseDepth:            m.BaseDepth,
			StartTimeMs:          r.cfg.Simulation.StartTimeMs,
			TickInterval:         r.cfg.Simulation.TickInterval,
			Logger:               logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create market process: %w", err)
		}
		return process, noop, nil

	case "replay":
		if m.ReplayRunID == runID && m.Record {
			return nil, nil, fmt.Errorf("%w: %s", ErrRecordOwnReplay, runID)
		}
		return feed.NewReplaySource(r.backends.Ticks, m.ReplayRunID), noop, nil

	case "websocket":
		ws, err := feed.DialWS(ctx, m.WebsocketURL, nil)
		if err != nil {
			return nil, nil, err
		}
		return ws, func() {
			if err := ws.Close(); err != nil {
				logger.Debug().Err(err).Msg("websocket close")
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSource, m.Source)
	}
}

// cooldown maps the config value to account.Options, where a configured 0
// disables the cooldown.
func cooldown(a config.AccountConfig) time.Duration {
	if a.Cooldown == 0 {
		return -1
	}
	return a.Cooldown
}
