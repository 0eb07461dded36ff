package memory

import (
	"context"
	"sort"
	"sync"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/storage"
)

type genomeKey struct {
	runID   string
	agentID string
	event   domain.GenomeEvent
}

// GenomeStore is an in-memory implementation of storage.GenomeStore.
type GenomeStore struct {
	mu   sync.RWMutex
	data map[genomeKey]*domain.GenomeRecord
}

// NewGenomeStore creates a new in-memory genome store.
func NewGenomeStore() *GenomeStore {
	return &GenomeStore{
		data: make(map[genomeKey]*domain.GenomeRecord),
	}
}

func keyOf(r *domain.GenomeRecord) genomeKey {
	return genomeKey{runID: r.RunID, agentID: r.AgentID, event: r.Event}
}

// Insert adds a new record. Returns ErrDuplicateKey if (run_id, agent_id, event) exists.
func (s *GenomeStore) Insert(_ context.Context, r *domain.GenomeRecord) error {
	if r == nil || r.RunID == "" || r.AgentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(r)
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[k] = copyGenomeRecord(r)
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *GenomeStore) InsertBulk(_ context.Context, records []*domain.GenomeRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[genomeKey]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.RunID == "" || r.AgentID == "" {
			return storage.ErrInvalidInput
		}
		k := keyOf(r)
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, r := range records {
		s.data[keyOf(r)] = copyGenomeRecord(r)
	}
	return nil
}

// GetByRunID retrieves all records for a run, ordered by tick ASC, agent_id ASC, event ASC.
func (s *GenomeStore) GetByRunID(_ context.Context, runID string) ([]*domain.GenomeRecord, error) {
	return s.filter(func(r *domain.GenomeRecord) bool { return r.RunID == runID }), nil
}

// GetByFamily retrieves all records of a family within a run.
func (s *GenomeStore) GetByFamily(_ context.Context, runID, familyID string) ([]*domain.GenomeRecord, error) {
	return s.filter(func(r *domain.GenomeRecord) bool {
		return r.RunID == runID && r.FamilyID == familyID
	}), nil
}

func (s *GenomeStore) filter(match func(*domain.GenomeRecord) bool) []*domain.GenomeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.GenomeRecord
	for _, r := range s.data {
		if match(r) {
			result = append(result, copyGenomeRecord(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Tick != result[j].Tick {
			return result[i].Tick < result[j].Tick
		}
		if result[i].AgentID != result[j].AgentID {
			return result[i].AgentID < result[j].AgentID
		}
		return result[i].Event < result[j].Event
	})
	return result
}

func copyGenomeRecord(r *domain.GenomeRecord) *domain.GenomeRecord {
	c := *r
	c.Genome = r.Genome.Clone()
	if r.ParentIDs != nil {
		c.ParentIDs = append([]string(nil), r.ParentIDs...)
	}
	if r.FinalCapital != nil {
		v := *r.FinalCapital
		c.FinalCapital = &v
	}
	return &c
}

var _ storage.GenomeStore = (*GenomeStore)(nil)
