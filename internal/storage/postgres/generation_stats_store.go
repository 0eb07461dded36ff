package postgres

import (
	"context"
	"fmt"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/storage"
)

// GenerationStatsStore implements storage.GenerationStatsStore using PostgreSQL.
type GenerationStatsStore struct {
	pool *Pool
}

// NewGenerationStatsStore creates a new GenerationStatsStore.
func NewGenerationStatsStore(pool *Pool) *GenerationStatsStore {
	return &GenerationStatsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GenerationStatsStore = (*GenerationStatsStore)(nil)

// Insert adds stats for one generation. Returns ErrDuplicateKey if (run_id, generation) exists.
func (s *GenerationStatsStore) Insert(ctx context.Context, g *domain.GenerationStats) error {
	if g == nil || g.RunID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO generation_stats (
			run_id, generation, tick, population, eliminated, born, protected, unfilled,
			niche_count, rare_family_count, mean_genetic_distance,
			best_fitness, mean_fitness, pool_balance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		g.RunID, g.Generation, g.Tick, g.Population, g.Eliminated, g.Born, g.Protected, g.Unfilled,
		g.NicheCount, g.RareFamilyCount, g.MeanGeneticDistance,
		g.BestFitness, g.MeanFitness, g.PoolBalance,
	)
	if err != nil {
		return insertError("insert generation stats", err)
	}
	return nil
}

// GetByRunID retrieves all generations of a run, ordered by generation ASC.
func (s *GenerationStatsStore) GetByRunID(ctx context.Context, runID string) ([]*domain.GenerationStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			run_id, generation, tick, population, eliminated, born, protected, unfilled,
			niche_count, rare_family_count, mean_genetic_distance,
			best_fitness, mean_fitness, pool_balance
		FROM generation_stats
		WHERE run_id = $1
		ORDER BY generation ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("get generation stats by run id: %w", err)
	}
	defer rows.Close()

	var out []*domain.GenerationStats
	for rows.Next() {
		var g domain.GenerationStats
		err := rows.Scan(
			&g.RunID, &g.Generation, &g.Tick, &g.Population, &g.Eliminated, &g.Born, &g.Protected, &g.Unfilled,
			&g.NicheCount, &g.RareFamilyCount, &g.MeanGeneticDistance,
			&g.BestFitness, &g.MeanFitness, &g.PoolBalance,
		)
		if err != nil {
			return nil, fmt.Errorf("scan generation stats row: %w", err)
		}
		out = append(out, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generation stats rows: %w", err)
	}
	return out, nil
}
