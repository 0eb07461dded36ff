// Package population holds trading agents and breeds new ones.
package population

import (
	"trading-agent-lab/internal/account"
	"trading-agent-lab/internal/domain"
)

// Expirable is implemented by agents with a finite lifespan.
type Expirable interface {
	Expired(tick int64) bool
}

// Reproducible is implemented by agents that may parent offspring.
type Reproducible interface {
	Fertile() bool
}

// Agent is one member of the population. The Account is exclusively owned.
type Agent struct {
	ID       string
	Genome   domain.Genome
	Lineage  domain.Lineage
	Instinct domain.Instinct
	Fitness  float64
	Account  *account.Account

	Generation    int
	ParentIDs     []string
	BornAtTick    int64
	LifespanTicks int64 // 0 means no age limit

	// MutationBoost is set on gene-injection targets. Offspring of a
	// boosted parent mutate at the boosted rate.
	MutationBoost bool

	entryTick int64 // tick of the currently open entry
	holding   bool
}

var (
	_ Expirable    = (*Agent)(nil)
	_ Reproducible = (*Agent)(nil)
)

// Expired reports whether the agent has outlived its lifespan at tick.
func (a *Agent) Expired(tick int64) bool {
	return a.LifespanTicks > 0 && tick-a.BornAtTick >= a.LifespanTicks
}

// Fertile reports whether the agent still has capital to pass on.
func (a *Agent) Fertile() bool {
	return a.Account != nil && a.Account.VirtualCapital() > 0
}

// MarkEntry records the tick an entry was filled.
func (a *Agent) MarkEntry(tick int64) {
	a.entryTick = tick
	a.holding = true
}

// MarkFlat clears the entry tick.
func (a *Agent) MarkFlat() {
	a.entryTick = 0
	a.holding = false
}

// HeldTicks returns how long the current entry has been held.
func (a *Agent) HeldTicks(tick int64) (int64, bool) {
	if !a.holding {
		return 0, false
	}
	return tick - a.entryTick, true
}

// GenomeRecord snapshots the agent for persistence.
func (a *Agent) GenomeRecord(runID string, event domain.GenomeEvent, tick int64) *domain.GenomeRecord {
	return &domain.GenomeRecord{
		RunID:          runID,
		AgentID:        a.ID,
		Event:          event,
		Generation:     a.Generation,
		Tick:           tick,
		FamilyID:       a.Lineage.FamilyID,
		DominantFamily: a.Lineage.DominantFamily,
		ParentIDs:      append([]string(nil), a.ParentIDs...),
		Genome:         a.Genome.Clone(),
		Instinct:       a.Instinct,
		Fitness:        a.Fitness,
	}
}
