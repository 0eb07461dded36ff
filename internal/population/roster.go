package population

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"trading-agent-lab/internal/domain"
)

// Roster errors
var (
	ErrDuplicateAgent = errors.New("agent already in roster")
	ErrNilAgent       = errors.New("nil agent")
)

// Roster is the ordered set of living agents. Iteration follows insertion order.
type Roster struct {
	mu     sync.RWMutex
	order  []string
	agents map[string]*Agent
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{agents: make(map[string]*Agent)}
}

// Add appends an agent. Returns ErrDuplicateAgent if the ID is present.
func (r *Roster) Add(a *Agent) error {
	if a == nil {
		return ErrNilAgent
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.ID)
	}
	r.agents[a.ID] = a
	r.order = append(r.order, a.ID)
	return nil
}

// Remove deletes an agent and returns it, or nil if absent.
func (r *Roster) Remove(id string) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return nil
	}
	delete(r.agents, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return a
}

// Get returns the agent with id, or nil.
func (r *Roster) Get(id string) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[id]
}

// Len returns the number of living agents.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// List returns the agents in insertion order.
func (r *Roster) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, len(r.order))
	for i, id := range r.order {
		out[i] = r.agents[id]
	}
	return out
}

// RankByFitness returns the agents sorted by fitness DESC, ID ASC.
func (r *Roster) RankByFitness() []*Agent {
	ranked := r.List()
	SortByFitness(ranked)
	return ranked
}

// SortByFitness sorts agents in place by fitness DESC, ID ASC.
func SortByFitness(agents []*Agent) {
	sort.SliceStable(agents, func(i, j int) bool {
		if agents[i].Fitness != agents[j].Fitness {
			return agents[i].Fitness > agents[j].Fitness
		}
		return agents[i].ID < agents[j].ID
	})
}

// ValidateDimensions checks that every genome has dim genes.
func (r *Roster) ValidateDimensions(dim int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		a := r.agents[id]
		if a.Genome.Dim() != dim {
			return fmt.Errorf("%w: agent %s has %d genes, want %d", domain.ErrGenomeDimension, id, a.Genome.Dim(), dim)
		}
	}
	return nil
}
