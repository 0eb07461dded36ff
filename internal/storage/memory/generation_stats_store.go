package memory

import (
	"context"
	"sort"
	"sync"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/storage"
)

type generationKey struct {
	runID      string
	generation int
}

// GenerationStatsStore is an in-memory implementation of storage.GenerationStatsStore.
type GenerationStatsStore struct {
	mu   sync.RWMutex
	data map[generationKey]*domain.GenerationStats
}

// NewGenerationStatsStore creates a new in-memory generation stats store.
func NewGenerationStatsStore() *GenerationStatsStore {
	return &GenerationStatsStore{
		data: make(map[generationKey]*domain.GenerationStats),
	}
}

// Insert adds stats for one generation. Returns ErrDuplicateKey if (run_id, generation) exists.
func (s *GenerationStatsStore) Insert(_ context.Context, g *domain.GenerationStats) error {
	if g == nil || g.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := generationKey{runID: g.RunID, generation: g.Generation}
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}
	c := *g
	s.data[k] = &c
	return nil
}

// GetByRunID retrieves all generations of a run, ordered by generation ASC.
func (s *GenerationStatsStore) GetByRunID(_ context.Context, runID string) ([]*domain.GenerationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.GenerationStats
	for k, g := range s.data {
		if k.runID == runID {
			c := *g
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Generation < result[j].Generation
	})
	return result, nil
}

var _ storage.GenerationStatsStore = (*GenerationStatsStore)(nil)
