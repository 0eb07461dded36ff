package storage

import (
	"context"

	"trading-agent-lab/internal/domain"
)

// GenomeStore provides access to genome_records storage.
// Records are written at birth and death and are never updated.
type GenomeStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if (run_id, agent_id, event) exists.
	Insert(ctx context.Context, r *domain.GenomeRecord) error

	// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.GenomeRecord) error

	// GetByRunID retrieves all records for a run, ordered by tick ASC, agent_id ASC, event ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.GenomeRecord, error)

	// GetByFamily retrieves all records of a family within a run, ordered like GetByRunID.
	GetByFamily(ctx context.Context, runID, familyID string) ([]*domain.GenomeRecord, error)
}

// TradeRecordStore provides access to trade_records storage.
type TradeRecordStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByRunID retrieves all trades of a run, ordered by exit_time ASC, trade_id ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error)

	// GetByAgentID retrieves all trades of one agent within a run, ordered like GetByRunID.
	GetByAgentID(ctx context.Context, runID, agentID string) ([]*domain.TradeRecord, error)
}

// GenerationStatsStore provides access to generation_stats storage.
type GenerationStatsStore interface {
	// Insert adds stats for one generation. Returns ErrDuplicateKey if (run_id, generation) exists.
	Insert(ctx context.Context, s *domain.GenerationStats) error

	// GetByRunID retrieves all generations of a run, ordered by generation ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.GenerationStats, error)
}

// MarketTickStore provides access to market_ticks storage.
type MarketTickStore interface {
	// InsertBulk adds multiple ticks for a run. Fails entire batch on duplicate (run_id, tick).
	InsertBulk(ctx context.Context, runID string, ticks []*domain.MarketState) error

	// GetByRunID retrieves all ticks of a run, ordered by tick ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.MarketState, error)

	// GetByTickRange retrieves ticks of a run within [start, end] (inclusive).
	GetByTickRange(ctx context.Context, runID string, start, end int64) ([]*domain.MarketState, error)
}
