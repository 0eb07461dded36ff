package simulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trading-agent-lab/internal/capital"
	"trading-agent-lab/internal/config"
	"trading-agent-lab/internal/storage"
	chstore "trading-agent-lab/internal/storage/clickhouse"
	"trading-agent-lab/internal/storage/memory"
	"trading-agent-lab/internal/storage/migrations"
	"trading-agent-lab/internal/storage/postgres"
)

// Backends holds the stores and the capital pool of a run.
type Backends struct {
	Genomes         storage.GenomeStore
	Trades          storage.TradeRecordStore
	GenerationStats storage.GenerationStatsStore
	Ticks           storage.MarketTickStore
	Pool            capital.Pool

	closers []func() error
}

// Close releases every connection opened by OpenBackends.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// MemoryBackends returns in-memory stores and a memory pool holding initialPool.
func MemoryBackends(initialPool float64) *Backends {
	return &Backends{
		Genomes:         memory.NewGenomeStore(),
		Trades:          memory.NewTradeRecordStore(),
		GenerationStats: memory.NewGenerationStatsStore(),
		Ticks:           memory.NewMarketTickStore(),
		Pool:            capital.NewMemoryPool(initialPool),
	}
}

// OpenBackends connects the configured storage and pool.
//
//   - backend "memory": in-memory stores
//   - backend "postgres": genome, trade and generation stats stores in postgres
//     (migrated on open), market ticks in clickhouse when a DSN is set
//   - redis_addr set: a shared Redis pool reset to initialPool
func OpenBackends(ctx context.Context, cfg config.StorageConfig, initialPool float64, logger zerolog.Logger) (*Backends, error) {
	b := MemoryBackends(initialPool)

	if cfg.Backend == "postgres" {
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		b.Genomes = postgres.NewGenomeStore(pool)
		b.Trades = postgres.NewTradeRecordStore(pool)
		b.GenerationStats = postgres.NewGenerationStatsStore(pool)
		logger.Info().Msg("postgres storage ready")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		b.closers = append(b.closers, conn.Close)
		b.Ticks = chstore.NewMarketTickStore(conn)
		logger.Info().Msg("clickhouse tick storage ready")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		b.closers = append(b.closers, client.Close)

		pool, err := capital.NewRedisPool(ctx, capital.RedisPoolOptions{
			Client: client,
			Key:    cfg.RedisPoolKey,
			Logger: logger,
		})
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		if err := pool.Reset(ctx, initialPool); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("reset capital pool: %w", err)
		}
		b.Pool = pool
		logger.Info().Str("addr", cfg.RedisAddr).Msg("redis capital pool ready")
	}

	return b, nil
}
