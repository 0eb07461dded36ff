package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/storage"
)

// GenomeStore implements storage.GenomeStore using PostgreSQL.
// Genomes are stored as float8[] and parent IDs as text[].
type GenomeStore struct {
	pool *Pool
}

// NewGenomeStore creates a new GenomeStore.
func NewGenomeStore(pool *Pool) *GenomeStore {
	return &GenomeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GenomeStore = (*GenomeStore)(nil)

const genomeColumns = `
	run_id, agent_id, event, generation, tick, family_id, dominant_family,
	parent_ids, genome, fear_of_death, risk_appetite, fitness, final_capital
`

const insertGenome = `INSERT INTO genome_records (` + genomeColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func genomeArgs(r *domain.GenomeRecord) []any {
	parents := r.ParentIDs
	if parents == nil {
		parents = []string{}
	}
	return []any{
		r.RunID, r.AgentID, string(r.Event), r.Generation, r.Tick, r.FamilyID, r.DominantFamily,
		parents, []float64(r.Genome), r.Instinct.FearOfDeath, r.Instinct.RiskAppetite,
		r.Fitness, r.FinalCapital,
	}
}

// Insert adds a new record. Returns ErrDuplicateKey if (run_id, agent_id, event) exists.
func (s *GenomeStore) Insert(ctx context.Context, r *domain.GenomeRecord) error {
	if r == nil || r.RunID == "" || r.AgentID == "" {
		return storage.ErrInvalidInput
	}
	if _, err := s.pool.Exec(ctx, insertGenome, genomeArgs(r)...); err != nil {
		return insertError("insert genome record", err)
	}
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *GenomeStore) InsertBulk(ctx context.Context, records []*domain.GenomeRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		if r == nil || r.RunID == "" || r.AgentID == "" {
			return storage.ErrInvalidInput
		}
		batch.Queue(insertGenome, genomeArgs(r)...)
	}

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return insertError("insert genome record in bulk", err)
			}
		}
		if err := br.Close(); err != nil {
			return insertError("close genome batch", err)
		}
		return nil
	})
}

// GetByRunID retrieves all records for a run, ordered by tick, agent_id, event.
func (s *GenomeStore) GetByRunID(ctx context.Context, runID string) ([]*domain.GenomeRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+genomeColumns+`
		FROM genome_records
		WHERE run_id = $1
		ORDER BY tick ASC, agent_id ASC, event ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("get genome records by run id: %w", err)
	}
	defer rows.Close()
	return scanGenomeRecords(rows)
}

// GetByFamily retrieves all records of a family within a run.
func (s *GenomeStore) GetByFamily(ctx context.Context, runID, familyID string) ([]*domain.GenomeRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+genomeColumns+`
		FROM genome_records
		WHERE run_id = $1 AND family_id = $2
		ORDER BY tick ASC, agent_id ASC, event ASC`, runID, familyID)
	if err != nil {
		return nil, fmt.Errorf("get genome records by family: %w", err)
	}
	defer rows.Close()
	return scanGenomeRecords(rows)
}

func scanGenomeRecords(rows pgx.Rows) ([]*domain.GenomeRecord, error) {
	var out []*domain.GenomeRecord
	for rows.Next() {
		var (
			r      domain.GenomeRecord
			event  string
			genome []float64
		)
		err := rows.Scan(
			&r.RunID, &r.AgentID, &event, &r.Generation, &r.Tick, &r.FamilyID, &r.DominantFamily,
			&r.ParentIDs, &genome, &r.Instinct.FearOfDeath, &r.Instinct.RiskAppetite,
			&r.Fitness, &r.FinalCapital,
		)
		if err != nil {
			return nil, fmt.Errorf("scan genome record row: %w", err)
		}
		r.Event = domain.GenomeEvent(event)
		r.Genome = domain.Genome(genome)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate genome record rows: %w", err)
	}
	return out, nil
}
