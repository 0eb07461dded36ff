// Package market generates a seeded synthetic price stream with fat tails,
// volatility clustering and rare extreme moves.
package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-agent-lab/internal/domain"
)

// Process errors
var (
	ErrInvalidInitialPrice = errors.New("initial price must be > 0")
	ErrUnknownRegime       = errors.New("unknown market regime")
)

const (
	defaultExtremeVolMultiplier = 2.0
	defaultTickInterval         = time.Minute
	volumeLogSigma              = 0.5
	maxDownMove                 = -0.95
)

// Options contains configuration for creating a Process.
type Options struct {
	Seed         int64
	Regime       domain.Regime
	InitialPrice float64

	// Statistics is the measured statistics source. Nil or failing sources
	// fall back to domain.DefaultMarketStatistics.
	Statistics StatisticsSource

	// ExtremeVolMultiplier scales post-shock volatility relative to pre-shock volatility.
	ExtremeVolMultiplier float64

	BaseSpreadPct float64
	BaseVolume    float64
	BaseDepth     float64

	StartTimeMs  int64
	TickInterval time.Duration

	Logger zerolog.Logger
}

// Process is a seeded tick generator. It is safe for concurrent use,
// but ticks are produced strictly in sequence.
type Process struct {
	mu sync.Mutex

	rng    *rand.Rand
	logger zerolog.Logger

	regime   domain.Regime
	measured domain.MarketStatistics // before regime adjustment
	stats    domain.MarketStatistics // after regime adjustment
	degraded bool

	df          float64
	tScale      float64
	negShockP   float64
	extremeMult float64

	baseSpread float64
	baseVolume float64
	baseDepth  float64

	startMs    int64
	intervalMs int64

	tick  int64
	price float64
	vol   float64
}

// New builds a Process. Statistics failures never fail construction.
func New(ctx context.Context, opts Options) (*Process, error) {
	if opts.InitialPrice <= 0 {
		return nil, ErrInvalidInitialPrice
	}
	preset, ok := domain.RegimePresets[opts.Regime]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegime, opts.Regime)
	}

	logger := opts.Logger.With().Str("component", "MarketProcess").Logger()

	measured, err := loadStatistics(ctx, opts.Statistics)
	degraded := err != nil
	if degraded {
		logger.Warn().
			Err(err).
			Str("kind", string(domain.KindMarketDataDegraded)).
			Msg("market statistics unavailable, using defaults")
		measured = domain.DefaultMarketStatistics
	}

	stats := applyRegime(measured, preset)
	df := DegreesOfFreedom(stats.Kurtosis)

	mult := opts.ExtremeVolMultiplier
	if mult < 1 {
		mult = defaultExtremeVolMultiplier
	}
	interval := opts.TickInterval
	if interval <= 0 {
		interval = defaultTickInterval
	}

	p := &Process{
		rng:         rand.New(rand.NewSource(opts.Seed)),
		logger:      logger,
		regime:      opts.Regime,
		measured:    measured,
		stats:       stats,
		degraded:    degraded,
		df:          df,
		tScale:      unitVarianceScale(df),
		negShockP:   negativeShockProbability(stats.Skew),
		extremeMult: mult,
		baseSpread:  opts.BaseSpreadPct,
		baseVolume:  opts.BaseVolume,
		baseDepth:   opts.BaseDepth,
		startMs:     opts.StartTimeMs,
		intervalMs:  interval.Milliseconds(),
		price:       opts.InitialPrice,
		vol:         stats.Volatility,
	}

	logger.Debug().
		Str("regime", string(opts.Regime)).
		Float64("mean", stats.MeanReturn).
		Float64("base_vol", stats.Volatility).
		Float64("df", df).
		Bool("degraded", degraded).
		Msg("market process ready")

	return p, nil
}

func loadStatistics(ctx context.Context, src StatisticsSource) (domain.MarketStatistics, error) {
	if src == nil {
		return domain.MarketStatistics{}, domain.ErrMarketDataDegraded
	}
	stats, err := src.Load(ctx)
	if err != nil {
		return domain.MarketStatistics{}, fmt.Errorf("%w: %w", domain.ErrMarketDataDegraded, err)
	}
	return stats, nil
}

// negativeShockProbability tilts extreme-shock direction by skew.
func negativeShockProbability(skew float64) float64 {
	return math.Max(0.1, math.Min(0.9, 0.5-skew/4))
}

// NextTick advances the process by exactly one tick.
func (p *Process) NextTick(ctx context.Context) (*domain.MarketState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// 1. GARCH-style volatility blend
	alpha := p.stats.VolPersistence
	vol := alpha*p.vol + (1-alpha)*p.stats.Volatility

	// 2-3. Student-t draw, or an extreme shock
	var ret float64
	extreme := p.rng.Float64() < p.stats.ExtremeFrequency
	nextVol := vol
	if extreme {
		sign := 1.0
		if p.rng.Float64() < p.negShockP {
			sign = -1.0
		}
		ret = sign * p.rng.ExpFloat64() * p.stats.MeanExtremeSize
		nextVol = p.extremeMult * vol
	} else {
		ret = p.stats.MeanReturn + vol*p.tScale*studentT(p.rng, p.df)
	}
	if ret < maxDownMove {
		ret = maxDownMove
	}

	// 4. OHLCV
	open := p.price
	closePrice := open * (1 + ret)
	band := math.Abs(ret) + 0.5*vol
	high := math.Max(closePrice*(1+band), math.Max(open, closePrice))
	low := math.Min(closePrice*math.Max(0, 1-band), math.Min(open, closePrice))

	volNorm := math.Abs(ret) / math.Max(vol, 1e-12)
	volume := p.baseVolume * math.Exp(volumeLogSigma*p.rng.NormFloat64()) * (1 + volNorm)

	ratio := vol / p.measured.Volatility
	spread := p.baseSpread * ratio
	if extreme {
		spread *= 2
	}
	liquidity := clamp(1/(ratio+10*math.Abs(ret)), 0.05, 1)

	state := &domain.MarketState{
		Tick:       p.tick,
		Timestamp:  p.startMs + p.tick*p.intervalMs,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePrice,
		Volume:     volume,
		SpreadPct:  spread,
		Liquidity:  liquidity,
		Depth:      p.baseDepth * liquidity,
		Volatility: vol,
		Return:     ret,
		Regime:     p.regime,
		Extreme:    extreme,
	}

	if extreme {
		p.logger.Debug().
			Int64("tick", p.tick).
			Float64("return", ret).
			Float64("pre_vol", vol).
			Float64("next_vol", nextVol).
			Msg("extreme market event")
	}

	p.price = closePrice
	p.vol = nextVol
	p.tick++

	return state, nil
}

// Volatility returns the conditional volatility that the next tick blends from.
func (p *Process) Volatility() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vol
}

// Statistics returns the regime-adjusted statistics in use.
func (p *Process) Statistics() domain.MarketStatistics {
	return p.stats
}

// DegreesOfFreedom returns the Student-t degrees of freedom in use.
func (p *Process) DegreesOfFreedom() float64 {
	return p.df
}

// Degraded reports whether default statistics replaced the configured source.
func (p *Process) Degraded() bool {
	return p.degraded
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
