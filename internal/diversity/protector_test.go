package diversity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/population"
)

func newTestProtector() *Protector {
	return New(Options{Logger: zerolog.Nop()})
}

func agent(id string, fitness float64, family string, inst domain.Instinct, genome ...float64) *population.Agent {
	if len(genome) == 0 {
		genome = []float64{0}
	}
	return &population.Agent{
		ID:       id,
		Fitness:  fitness,
		Genome:   domain.Genome(genome),
		Instinct: inst,
		Lineage:  domain.Lineage{FamilyID: family, DominantFamily: family},
	}
}

func TestNicheKeyOf(t *testing.T) {
	tests := []struct {
		name string
		inst domain.Instinct
		want NicheKey
	}{
		{"origin", domain.Instinct{FearOfDeath: 0, RiskAppetite: 0}, NicheKey{0, 0}},
		{"upper edge", domain.Instinct{FearOfDeath: 2, RiskAppetite: 1}, NicheKey{4, 4}},
		{"interior", domain.Instinct{FearOfDeath: 0.5, RiskAppetite: 0.5}, NicheKey{1, 2}},
		{"just below edge", domain.Instinct{FearOfDeath: 1.99, RiskAppetite: 0.79}, NicheKey{4, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NicheKeyOf(tt.inst, 5)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NicheKeyOf(domain.Instinct{FearOfDeath: math.NaN()}, 5)
	assert.ErrorIs(t, err, domain.ErrNicheComputationFailure)
	assert.Equal(t, domain.KindNicheComputationFailure, domain.KindOf(err))
}

func TestComputeNiches_Ordered(t *testing.T) {
	agents := []*population.Agent{
		agent("a", 1, "F0", domain.Instinct{FearOfDeath: 1.9, RiskAppetite: 0.1}),
		agent("b", 3, "F0", domain.Instinct{FearOfDeath: 0.1, RiskAppetite: 0.1}),
		agent("c", 5, "F0", domain.Instinct{FearOfDeath: 0.1, RiskAppetite: 0.1}),
	}
	niches, err := ComputeNiches(agents, 5)
	require.NoError(t, err)
	require.Len(t, niches, 2)
	assert.Equal(t, NicheKey{0, 0}, niches[0].Key)
	assert.Equal(t, "c", niches[0].Members[0].ID, "members sorted by fitness")
	assert.Equal(t, NicheKey{4, 0}, niches[1].Key)
}

func TestProtectDiversity_RareLineage(t *testing.T) {
	// 50 agents with identical instincts: one niche, no rare strategies.
	inst := domain.Instinct{FearOfDeath: 1, RiskAppetite: 0.5}
	var agents []*population.Agent
	for i := 0; i < 48; i++ {
		agents = append(agents, agent(fmt.Sprintf("m%02d", i), float64(i), "F000", inst))
	}
	agents = append(agents,
		agent("r1", -5, "F001", inst),
		agent("r2", -6, "F001", inst),
	)

	p := newTestProtector()
	prot, err := p.ProtectDiversity(agents)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"r1", "r2"}, prot.RareLineage)
	assert.Empty(t, prot.SmallNiche)
	assert.Empty(t, prot.RareStrategy)
	assert.Equal(t, []string{"r1", "r2"}, prot.IDs)
	assert.True(t, prot.Contains("r2"))
	assert.False(t, prot.Contains("m00"))

	stats := p.Stats()
	assert.Equal(t, 50, stats.PopulationSize)
	assert.Equal(t, 1, stats.NicheCount)
	assert.Equal(t, 2, stats.FamilyCount)
	assert.Equal(t, 1, stats.RareFamilyCount)
	assert.Equal(t, 2, stats.RareLineageProt)
	assert.Equal(t, 2, stats.TotalProtected)
}

func TestProtectDiversity_Bound(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	var agents []*population.Agent
	for i := 0; i < 40; i++ {
		// Every agent in its own family: all 40 lineages are rare
		agents = append(agents, agent(fmt.Sprintf("a%02d", i), rng.Float64()*10, fmt.Sprintf("F%03d", i),
			domain.Instinct{FearOfDeath: rng.Float64() * 2, RiskAppetite: rng.Float64()}))
	}

	p := newTestProtector()
	prot, err := p.ProtectDiversity(agents)
	require.NoError(t, err)

	assert.Len(t, prot.RareLineage, 40)
	require.Len(t, prot.IDs, DefaultMaxProtectionCount)

	// The cap keeps the fittest
	ranked := append([]*population.Agent(nil), agents...)
	population.SortByFitness(ranked)
	for i := 0; i < DefaultMaxProtectionCount; i++ {
		assert.Equal(t, ranked[i].ID, prot.IDs[i])
	}
	assert.Equal(t, DefaultMaxProtectionCount, p.Stats().TotalProtected)
}

func TestProtectDiversity_SmallNicheAndRareStrategy(t *testing.T) {
	center := domain.Instinct{FearOfDeath: 1.0, RiskAppetite: 0.5}
	var agents []*population.Agent
	for i := 0; i < 9; i++ {
		agents = append(agents, agent(fmt.Sprintf("c%d", i), float64(i), "F0", center))
	}
	agents = append(agents, agent("outlier", -1, "F0", domain.Instinct{FearOfDeath: 1.95, RiskAppetite: 0.95}))

	p := New(Options{Logger: zerolog.Nop(), RareLineageThreshold: 0.01})
	prot, err := p.ProtectDiversity(agents)
	require.NoError(t, err)

	assert.Equal(t, []string{"outlier"}, prot.SmallNiche)
	assert.Equal(t, []string{"outlier"}, prot.RareStrategy)
	assert.Empty(t, prot.RareLineage)
	assert.Equal(t, []string{"outlier"}, prot.IDs)
}

func TestProtectDiversity_NicheFailureDegrades(t *testing.T) {
	agents := []*population.Agent{
		agent("a", 1, "F0", domain.Instinct{FearOfDeath: math.NaN(), RiskAppetite: 0.5}),
		agent("b", 2, "F1", domain.Instinct{FearOfDeath: 1, RiskAppetite: 0.5}),
	}

	p := newTestProtector()
	prot, err := p.ProtectDiversity(agents)
	require.Error(t, err)
	assert.Equal(t, domain.KindNicheComputationFailure, domain.KindOf(err))
	require.NotNil(t, prot)
	assert.Equal(t, 0, prot.Len())
	assert.Equal(t, 2, p.Stats().PopulationSize)
}

func TestAdjustElimination_WithProtection(t *testing.T) {
	ranking := make([]*population.Agent, 20)
	for i := range ranking {
		ranking[i] = agent(fmt.Sprintf("a%02d", i), float64(20-i), "F0", domain.Instinct{})
	}
	// The three lowest are protected
	prot := NewProtection("a17", "a18", "a19")

	plan := newTestProtector().AdjustElimination(ranking, 5, prot)

	ids := make([]string, len(plan.Eliminated))
	for i, a := range plan.Eliminated {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"a16", "a15", "a14", "a13", "a12"}, ids)
	assert.Equal(t, 3, plan.Backfilled)
	assert.Equal(t, 0, plan.Unfilled)
	for _, a := range plan.Eliminated {
		assert.False(t, prot.Contains(a.ID))
	}
}

func TestAdjustElimination_BackfillLogsWarning(t *testing.T) {
	ranking := []*population.Agent{
		agent("a", 4, "F0", domain.Instinct{}),
		agent("b", 3, "F0", domain.Instinct{}),
		agent("c", 2, "F0", domain.Instinct{}),
		agent("d", 1, "F0", domain.Instinct{}),
	}
	var buf bytes.Buffer
	p := New(Options{Logger: zerolog.New(&buf)})

	plan := p.AdjustElimination(ranking, 2, NewProtection("d"))
	require.Len(t, plan.Eliminated, 2)
	assert.Equal(t, 1, plan.Backfilled)
	assert.Equal(t, 0, plan.Unfilled)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), "log output %q", buf.String())
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "elimination backfilled past protected agents", entry["message"])
	assert.EqualValues(t, 1, entry["backfilled"])

	// Nothing logged when no protected agent was skipped
	buf.Reset()
	p.AdjustElimination(ranking, 2, NewProtection("a"))
	assert.Empty(t, buf.String())
}

func TestAdjustElimination_Shortfall(t *testing.T) {
	ranking := []*population.Agent{
		agent("a", 5, "F0", domain.Instinct{}),
		agent("b", 4, "F0", domain.Instinct{}),
		agent("c", 3, "F0", domain.Instinct{}),
		agent("d", 2, "F0", domain.Instinct{}),
		agent("e", 1, "F0", domain.Instinct{}),
	}
	plan := newTestProtector().AdjustElimination(ranking, 3, NewProtection("b", "c", "d", "e"))

	require.Len(t, plan.Eliminated, 1)
	assert.Equal(t, "a", plan.Eliminated[0].ID)
	assert.Equal(t, 2, plan.Unfilled)
}

func TestAdjustElimination_NoProtection(t *testing.T) {
	ranking := []*population.Agent{
		agent("a", 3, "F0", domain.Instinct{}),
		agent("b", 2, "F0", domain.Instinct{}),
		agent("c", 1, "F0", domain.Instinct{}),
	}
	p := newTestProtector()

	plan := p.AdjustElimination(ranking, 1, nil)
	require.Len(t, plan.Eliminated, 1)
	assert.Equal(t, "c", plan.Eliminated[0].ID)
	assert.Equal(t, 0, plan.Backfilled)

	assert.Empty(t, p.AdjustElimination(ranking, 0, nil).Eliminated)
}

func TestDiverseBreedingPairs(t *testing.T) {
	agents := []*population.Agent{
		agent("A", 1, "F0", domain.Instinct{}, 0, 0),
		agent("B", 1, "F0", domain.Instinct{}, 10, 0),
		agent("C", 1, "F1", domain.Instinct{}, 0, 1),
		agent("D", 1, "F1", domain.Instinct{}, 1, 1),
	}

	pairs, err := newTestProtector().DiverseBreedingPairs(agents, 3)
	require.NoError(t, err)
	require.Len(t, pairs, 2, "four agents give at most two disjoint pairs")

	assert.Equal(t, "B", pairs[0].A.ID)
	assert.Equal(t, "C", pairs[0].B.ID)
	assert.InDelta(t, math.Sqrt(101)*1.5, pairs[0].Score, 1e-9)
	assert.Equal(t, "A", pairs[1].A.ID)
	assert.Equal(t, "D", pairs[1].B.ID)
	assert.InDelta(t, math.Sqrt(2)*1.5, pairs[1].Score, 1e-9)
}

func TestDiverseBreedingPairs_TiesBrokenByID(t *testing.T) {
	agents := []*population.Agent{
		agent("d", 1, "F0", domain.Instinct{}, 1),
		agent("c", 1, "F0", domain.Instinct{}, 1),
		agent("b", 1, "F0", domain.Instinct{}, 0),
		agent("a", 1, "F0", domain.Instinct{}, 0),
	}
	pairs, err := newTestProtector().DiverseBreedingPairs(agents, 2)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, [2]string{"a", "c"}, [2]string{pairs[0].A.ID, pairs[0].B.ID})
	assert.Equal(t, [2]string{"b", "d"}, [2]string{pairs[1].A.ID, pairs[1].B.ID})
}

func TestDiverseBreedingPairs_NonFiniteFallsBack(t *testing.T) {
	agents := []*population.Agent{
		agent("a", 1, "F0", domain.Instinct{}, math.Inf(1)),
		agent("b", 3, "F0", domain.Instinct{}, 0),
		agent("c", 2, "F1", domain.Instinct{}, 1),
	}
	pairs, err := newTestProtector().DiverseBreedingPairs(agents, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneticDistanceFailure)
	assert.False(t, domain.IsFatal(err))

	require.Len(t, pairs, 1)
	assert.Equal(t, "b", pairs[0].A.ID)
	assert.Equal(t, "c", pairs[0].B.ID)
}

func TestDiverseBreedingPairs_DimensionMismatchIsFatal(t *testing.T) {
	agents := []*population.Agent{
		agent("a", 1, "F0", domain.Instinct{}, 0, 0),
		agent("b", 1, "F0", domain.Instinct{}, 0),
	}
	pairs, err := newTestProtector().DiverseBreedingPairs(agents, 1)
	assert.Nil(t, pairs)
	assert.True(t, domain.IsFatal(err))
}

func TestGeneInjectionTargets(t *testing.T) {
	var agents []*population.Agent
	for i := 9; i >= 0; i-- {
		agents = append(agents, agent(fmt.Sprintf("a%d", i), 1, "F0", domain.Instinct{}, float64(i)))
	}

	targets, err := newTestProtector().GeneInjectionTargets(agents)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "a4", targets[0].ID)
	assert.Equal(t, "a5", targets[1].ID)

	// Small populations still get one target
	few := agents[:3]
	targets, err = newTestProtector().GeneInjectionTargets(few)
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestStats_MeanGeneticDistance(t *testing.T) {
	agents := []*population.Agent{
		agent("a", 1, "F0", domain.Instinct{FearOfDeath: 1}, 0),
		agent("b", 1, "F0", domain.Instinct{FearOfDeath: 1}, 3),
		agent("c", 1, "F0", domain.Instinct{FearOfDeath: 1}, 6),
	}
	p := newTestProtector()
	_, err := p.ProtectDiversity(agents)
	require.NoError(t, err)
	// (3 + 6 + 3) / 3
	assert.InDelta(t, 4, p.Stats().MeanGeneticDistance, 1e-12)
}
