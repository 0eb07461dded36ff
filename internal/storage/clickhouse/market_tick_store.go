package clickhouse

import (
	"context"
	"fmt"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/storage"
)

// MarketTickStore implements storage.MarketTickStore using ClickHouse.
type MarketTickStore struct {
	conn *Conn
}

// NewMarketTickStore creates a new MarketTickStore.
func NewMarketTickStore(conn *Conn) *MarketTickStore {
	return &MarketTickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MarketTickStore = (*MarketTickStore)(nil)

const marketTickColumns = `
	tick, timestamp_ms, open, high, low, close, volume,
	spread_pct, liquidity, depth, volatility, tick_return, regime, extreme
`

// InsertBulk adds multiple ticks. Fails entire batch on duplicate (run_id, tick).
// MergeTree does not enforce keys, so duplicates are checked before the insert.
func (s *MarketTickStore) InsertBulk(ctx context.Context, runID string, ticks []*domain.MarketState) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(ticks) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(ticks))
	lo, hi := ticks[0].Tick, ticks[0].Tick
	for _, m := range ticks {
		if _, exists := seen[m.Tick]; exists {
			return storage.ErrDuplicateKey
		}
		seen[m.Tick] = struct{}{}
		lo = min(lo, m.Tick)
		hi = max(hi, m.Tick)
	}

	existing, err := s.existingTicks(ctx, runID, lo, hi)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	for _, t := range existing {
		if _, dup := seen[t]; dup {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO market_ticks (run_id, `+marketTickColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, m := range ticks {
		var extreme uint8
		if m.Extreme {
			extreme = 1
		}
		err = batch.Append(
			runID, m.Tick, m.Timestamp, m.Open, m.High, m.Low, m.Close, m.Volume,
			m.SpreadPct, m.Liquidity, m.Depth, m.Volatility, m.Return, string(m.Regime), extreme,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRunID retrieves all ticks of a run, ordered by tick ASC.
func (s *MarketTickStore) GetByRunID(ctx context.Context, runID string) ([]*domain.MarketState, error) {
	query := `SELECT ` + marketTickColumns + ` FROM market_ticks WHERE run_id = ? ORDER BY tick ASC`
	return s.query(ctx, query, runID)
}

// GetByTickRange retrieves ticks of a run within [start, end].
func (s *MarketTickStore) GetByTickRange(ctx context.Context, runID string, start, end int64) ([]*domain.MarketState, error) {
	query := `SELECT ` + marketTickColumns + `
		FROM market_ticks
		WHERE run_id = ? AND tick >= ? AND tick <= ?
		ORDER BY tick ASC`
	return s.query(ctx, query, runID, start, end)
}

func (s *MarketTickStore) existingTicks(ctx context.Context, runID string, lo, hi int64) ([]int64, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT tick FROM market_ticks WHERE run_id = ? AND tick >= ? AND tick <= ?`, runID, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *MarketTickStore) query(ctx context.Context, query string, args ...any) ([]*domain.MarketState, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query market ticks: %w", err)
	}
	defer rows.Close()

	var ticks []*domain.MarketState
	for rows.Next() {
		var (
			m       domain.MarketState
			regime  string
			extreme uint8
		)
		err := rows.Scan(
			&m.Tick, &m.Timestamp, &m.Open, &m.High, &m.Low, &m.Close, &m.Volume,
			&m.SpreadPct, &m.Liquidity, &m.Depth, &m.Volatility, &m.Return, &regime, &extreme,
		)
		if err != nil {
			return nil, fmt.Errorf("scan market tick: %w", err)
		}
		m.Regime = domain.Regime(regime)
		m.Extreme = extreme == 1
		ticks = append(ticks, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market ticks: %w", err)
	}
	return ticks, nil
}
