package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const tradeRecordColumns = `
	trade_id, run_id, agent_id, ledger, side, amount, confidence,
	entry_price, entry_time, exit_price, exit_time, pnl, outcome_class
`

const insertTradeRecord = `INSERT INTO trade_records (` + tradeRecordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func tradeRecordArgs(t *domain.TradeRecord) []any {
	return []any{
		t.TradeID, t.RunID, t.AgentID, string(t.Ledger), string(t.Side), t.Amount, t.Confidence,
		t.EntryPrice, t.EntryTime, t.ExitPrice, t.ExitTime, t.PnL, t.OutcomeClass,
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}
	if _, err := s.pool.Exec(ctx, insertTradeRecord, tradeRecordArgs(t)...); err != nil {
		return insertError("insert trade record", err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeRecordStore) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		for _, t := range trades {
			if t == nil || t.TradeID == "" {
				return storage.ErrInvalidInput
			}
			if _, err := tx.Exec(ctx, insertTradeRecord, tradeRecordArgs(t)...); err != nil {
				return insertError("insert trade record in bulk", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tradeRecordColumns+` FROM trade_records WHERE trade_id = $1`, tradeID)
	t, err := scanTradeRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return t, nil
}

// GetByRunID retrieves all trades of a run, ordered by exit_time ASC, trade_id ASC.
func (s *TradeRecordStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tradeRecordColumns+`
		FROM trade_records
		WHERE run_id = $1
		ORDER BY exit_time ASC, trade_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("get trade records by run id: %w", err)
	}
	defer rows.Close()
	return scanTradeRecords(rows)
}

// GetByAgentID retrieves all trades of one agent within a run.
func (s *TradeRecordStore) GetByAgentID(ctx context.Context, runID, agentID string) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tradeRecordColumns+`
		FROM trade_records
		WHERE run_id = $1 AND agent_id = $2
		ORDER BY exit_time ASC, trade_id ASC`, runID, agentID)
	if err != nil {
		return nil, fmt.Errorf("get trade records by agent id: %w", err)
	}
	defer rows.Close()
	return scanTradeRecords(rows)
}

func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var (
		t            domain.TradeRecord
		ledger, side string
	)
	err := row.Scan(
		&t.TradeID, &t.RunID, &t.AgentID, &ledger, &side, &t.Amount, &t.Confidence,
		&t.EntryPrice, &t.EntryTime, &t.ExitPrice, &t.ExitTime, &t.PnL, &t.OutcomeClass,
	)
	if err != nil {
		return nil, err
	}
	t.Ledger = domain.Ledger(ledger)
	t.Side = domain.Side(side)
	return &t, nil
}

func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord
	for rows.Next() {
		t, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}
	return trades, nil
}
