// Package config loads simulation configuration from YAML.
// Unknown keys are rejected so that typos fail at startup.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trading-agent-lab/internal/domain"
)

// Config errors
var (
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the root configuration.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Market     MarketConfig     `yaml:"market"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Account    AccountConfig    `yaml:"account"`
	Population PopulationConfig `yaml:"population"`
	Diversity  DiversityConfig  `yaml:"diversity"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SimulationConfig controls the run itself.
type SimulationConfig struct {
	Seed         int64         `yaml:"seed"`
	Ticks        int           `yaml:"ticks"`
	TickInterval time.Duration `yaml:"tick_interval"` // simulated time per tick
	StartTimeMs  int64         `yaml:"start_time_ms"`
	RunID        string        `yaml:"run_id"` // derived from seed when empty
}

// MarketConfig configures the market process.
type MarketConfig struct {
	Regime               domain.Regime `yaml:"regime"`
	InitialPrice         float64       `yaml:"initial_price"`
	StatisticsFile       string        `yaml:"statistics_file"` // JSON; defaults used when empty or unreadable
	ExtremeVolMultiplier float64       `yaml:"extreme_vol_multiplier"`
	BaseSpreadPct        float64       `yaml:"base_spread_pct"`
	BaseVolume           float64       `yaml:"base_volume"`
	BaseDepth            float64       `yaml:"base_depth"`
	Source               string        `yaml:"source"` // "process" | "replay" | "websocket"
	ReplayRunID          string        `yaml:"replay_run_id"`
	WebsocketURL         string        `yaml:"websocket_url"`
	Record               bool          `yaml:"record"` // persist generated ticks
}

// ExecutionConfig configures the cost model.
type ExecutionConfig struct {
	MinOrderSize      float64 `yaml:"min_order_size"`
	BaseSlippagePct   float64 `yaml:"base_slippage_pct"`
	ImpactCoefficient float64 `yaml:"impact_coefficient"`
	ReferenceValue    float64 `yaml:"reference_value"` // trade value that doubles base slippage
}

// AccountConfig configures agent accounts.
type AccountConfig struct {
	InitialCapital float64       `yaml:"initial_capital"`
	Cooldown       time.Duration `yaml:"cooldown"`
}

// PopulationConfig configures genesis and reproduction.
type PopulationConfig struct {
	InitialSize         int     `yaml:"initial_size"`
	MaxSize             int     `yaml:"max_size"`
	GenomeDim           int     `yaml:"genome_dim"`
	Families            int     `yaml:"families"`
	MutationRate        float64 `yaml:"mutation_rate"`
	MutationStdDev      float64 `yaml:"mutation_stddev"`
	BoostedMutationRate float64 `yaml:"boosted_mutation_rate"`
	InstinctMutationStd float64 `yaml:"instinct_mutation_stddev"`
	LifespanTicks       int64   `yaml:"lifespan_ticks"` // 0 disables expiry
}

// DiversityConfig configures the diversity protector.
type DiversityConfig struct {
	MinNicheSize          int     `yaml:"min_niche_size"`
	MaxProtectionCount    int     `yaml:"max_protection_count"`
	LowerPercentile       float64 `yaml:"lower_percentile"`
	UpperPercentile       float64 `yaml:"upper_percentile"`
	RareStrategyTopFrac   float64 `yaml:"rare_strategy_top_fraction"`
	RareLineageThreshold  float64 `yaml:"rare_lineage_threshold"`
	RareLineageTopN       int     `yaml:"rare_lineage_top_n"`
	CrossFamilyWeight     float64 `yaml:"cross_family_weight"`
	SameFamilyWeight      float64 `yaml:"same_family_weight"`
	GeneInjectionFraction float64 `yaml:"gene_injection_fraction"`
	GridSize              int     `yaml:"grid_size"`
}

// LifecycleConfig configures evolution boundaries.
type LifecycleConfig struct {
	EvolutionInterval        int     `yaml:"evolution_interval"` // ticks between boundaries
	EliminationRate          float64 `yaml:"elimination_rate"`
	OffspringCapitalFraction float64 `yaml:"offspring_capital_fraction"`
	InitialPool              float64 `yaml:"initial_pool"`
	Workers                  int     `yaml:"workers"` // decision goroutines
}

// StrategyConfig selects the agent strategy.
type StrategyConfig struct {
	Type            string  `yaml:"type"` // GENOME | BUY_AND_HOLD
	TradeFraction   float64 `yaml:"trade_fraction"`
	SignalThreshold float64 `yaml:"signal_threshold"`
	HoldTicks       int     `yaml:"hold_ticks"`
}

// StorageConfig selects backends.
type StorageConfig struct {
	Backend       string `yaml:"backend"` // "memory" | "postgres"
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	RedisAddr     string `yaml:"redis_addr"` // capital pool; memory pool when empty
	RedisPoolKey  string `yaml:"redis_pool_key"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" | "console"
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Simulation: SimulationConfig{
			Seed:         42,
			Ticks:        1000,
			TickInterval: time.Minute,
			StartTimeMs:  1704067200000,
		},
		Market: MarketConfig{
			Regime:               domain.RegimeSideways,
			InitialPrice:         100,
			ExtremeVolMultiplier: 2.0,
			BaseSpreadPct:        0.0005,
			BaseVolume:           1000,
			BaseDepth:            250000,
			Source:               "process",
		},
		Execution: ExecutionConfig{
			MinOrderSize:      0.0001,
			BaseSlippagePct:   0.0005,
			ImpactCoefficient: 0.001,
			ReferenceValue:    10000,
		},
		Account: AccountConfig{
			InitialCapital: 10000,
			Cooldown:       60 * time.Second,
		},
		Population: PopulationConfig{
			InitialSize:         20,
			MaxSize:             50,
			GenomeDim:           8,
			Families:            5,
			MutationRate:        0.1,
			MutationStdDev:      0.1,
			BoostedMutationRate: 0.3,
			InstinctMutationStd: 0.05,
		},
		Diversity: DiversityConfig{
			MinNicheSize:          2,
			MaxProtectionCount:    10,
			LowerPercentile:       0.10,
			UpperPercentile:       0.90,
			RareStrategyTopFrac:   0.20,
			RareLineageThreshold:  0.10,
			RareLineageTopN:       2,
			CrossFamilyWeight:     1.5,
			SameFamilyWeight:      0.5,
			GeneInjectionFraction: 0.20,
			GridSize:              5,
		},
		Lifecycle: LifecycleConfig{
			EvolutionInterval:        100,
			EliminationRate:          0.2,
			OffspringCapitalFraction: 0.5,
			InitialPool:              100000,
			Workers:                  4,
		},
		Strategy: StrategyConfig{
			Type:            domain.StrategyTypeGenome,
			TradeFraction:   0.1,
			SignalThreshold: 0.2,
			HoldTicks:       10,
		},
		Storage: StorageConfig{
			Backend:      "memory",
			RedisPoolKey: "trading-agent-lab:capital-pool",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML file on top of Default(). Unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of Default() and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Simulation.Ticks >= 0, "simulation.ticks must be >= 0")
	check(c.Simulation.TickInterval > 0, "simulation.tick_interval must be > 0")

	check(c.Market.Regime.IsValid(), "market.regime %q unknown", c.Market.Regime)
	check(c.Market.InitialPrice > 0, "market.initial_price must be > 0")
	check(c.Market.ExtremeVolMultiplier >= 1, "market.extreme_vol_multiplier must be >= 1")
	switch c.Market.Source {
	case "process":
	case "replay":
		check(c.Market.ReplayRunID != "", "market.replay_run_id required for replay source")
	case "websocket":
		check(c.Market.WebsocketURL != "", "market.websocket_url required for websocket source")
	default:
		errs = append(errs, fmt.Errorf("market.source %q unknown", c.Market.Source))
	}

	check(c.Execution.MinOrderSize >= 0, "execution.min_order_size must be >= 0")
	check(c.Execution.ReferenceValue > 0, "execution.reference_value must be > 0")

	check(c.Account.InitialCapital > 0, "account.initial_capital must be > 0")
	check(c.Account.Cooldown >= 0, "account.cooldown must be >= 0")

	check(c.Population.InitialSize > 0, "population.initial_size must be > 0")
	check(c.Population.MaxSize >= c.Population.InitialSize, "population.max_size must be >= initial_size")
	check(c.Population.GenomeDim > 0, "population.genome_dim must be > 0")
	check(c.Population.Families > 0, "population.families must be > 0")

	check(c.Diversity.GridSize > 0, "diversity.grid_size must be > 0")
	check(c.Diversity.MaxProtectionCount >= 0, "diversity.max_protection_count must be >= 0")
	check(c.Diversity.LowerPercentile >= 0 && c.Diversity.LowerPercentile < c.Diversity.UpperPercentile &&
		c.Diversity.UpperPercentile <= 1, "diversity percentiles must satisfy 0 <= lower < upper <= 1")

	check(c.Lifecycle.EvolutionInterval > 0, "lifecycle.evolution_interval must be > 0")
	check(c.Lifecycle.EliminationRate >= 0 && c.Lifecycle.EliminationRate <= 1, "lifecycle.elimination_rate must be in [0,1]")
	check(c.Lifecycle.OffspringCapitalFraction > 0 && c.Lifecycle.OffspringCapitalFraction <= 1,
		"lifecycle.offspring_capital_fraction must be in (0,1]")
	check(c.Lifecycle.InitialPool >= 0, "lifecycle.initial_pool must be >= 0")

	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		check(c.Storage.PostgresDSN != "", "storage.postgres_dsn required for postgres backend")
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q unknown", c.Storage.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// DomainStrategyConfig converts the YAML section to a domain.StrategyConfig.
func (s StrategyConfig) DomainStrategyConfig() domain.StrategyConfig {
	cfg := domain.StrategyConfig{StrategyType: s.Type}
	if s.TradeFraction > 0 {
		tf := s.TradeFraction
		cfg.TradeFraction = &tf
	}
	if s.SignalThreshold > 0 {
		th := s.SignalThreshold
		cfg.SignalThreshold = &th
	}
	if s.HoldTicks > 0 {
		h := s.HoldTicks
		cfg.HoldTicks = &h
	}
	return cfg
}
