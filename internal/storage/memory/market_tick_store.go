package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/storage"
)

type storedTick struct {
	runID string
	state domain.MarketState
}

// MarketTickStore is an in-memory implementation of storage.MarketTickStore.
type MarketTickStore struct {
	mu   sync.RWMutex
	data map[string]*storedTick // keyed by (run_id, tick)
}

// NewMarketTickStore creates a new in-memory market tick store.
func NewMarketTickStore() *MarketTickStore {
	return &MarketTickStore{
		data: make(map[string]*storedTick),
	}
}

func tickKey(runID string, tick int64) string {
	return fmt.Sprintf("%s|%d", runID, tick)
}

// InsertBulk adds multiple ticks for a run. Fails entire batch on duplicate.
func (s *MarketTickStore) InsertBulk(_ context.Context, runID string, ticks []*domain.MarketState) error {
	if len(ticks) == 0 {
		return nil
	}
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(ticks))

	// First pass: check for duplicates (existing + intra-batch)
	for _, t := range ticks {
		if t == nil {
			return storage.ErrInvalidInput
		}
		key := tickKey(runID, t.Tick)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, t := range ticks {
		s.data[tickKey(runID, t.Tick)] = &storedTick{runID: runID, state: *t}
	}
	return nil
}

// GetByRunID retrieves all ticks of a run, ordered by tick ASC.
func (s *MarketTickStore) GetByRunID(_ context.Context, runID string) ([]*domain.MarketState, error) {
	return s.collect(runID, func(int64) bool { return true }), nil
}

// GetByTickRange retrieves ticks of a run within [start, end] (inclusive).
func (s *MarketTickStore) GetByTickRange(_ context.Context, runID string, start, end int64) ([]*domain.MarketState, error) {
	return s.collect(runID, func(tick int64) bool { return tick >= start && tick <= end }), nil
}

func (s *MarketTickStore) collect(runID string, match func(int64) bool) []*domain.MarketState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MarketState
	for _, st := range s.data {
		if st.runID == runID && match(st.state.Tick) {
			c := st.state
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Tick < result[j].Tick
	})
	return result
}

var _ storage.MarketTickStore = (*MarketTickStore)(nil)
