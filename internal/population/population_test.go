package population

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-agent-lab/internal/account"
	"trading-agent-lab/internal/domain"
)

func newTestBreeder(seed int64) *Breeder {
	return NewBreeder(BreederOptions{
		RunID:               "run-test",
		Rand:                rand.New(rand.NewSource(seed)),
		GenomeDim:           6,
		Families:            3,
		MutationRate:        0.1,
		MutationStdDev:      0.1,
		BoostedMutationRate: 1.0,
		InstinctMutationStd: 0.05,
		LifespanTicks:       500,
	})
}

func TestGenesis(t *testing.T) {
	b := newTestBreeder(42)
	agents, err := b.Genesis(10, 1000, 0)
	require.NoError(t, err)
	require.Len(t, agents, 10)

	ids := map[string]struct{}{}
	for i, a := range agents {
		assert.Equal(t, 6, a.Genome.Dim())
		for _, g := range a.Genome {
			assert.GreaterOrEqual(t, g, -GeneBound)
			assert.LessOrEqual(t, g, GeneBound)
		}
		require.NoError(t, a.Instinct.Validate())
		assert.Equal(t, FamilyName(i%3), a.Lineage.FamilyID)
		assert.Equal(t, a.Lineage.FamilyID, a.Lineage.DominantFamily)
		assert.Equal(t, 0, a.Generation)
		assert.Equal(t, 1000.0, a.Account.VirtualCapital())
		assert.Equal(t, a.ID, a.Account.AgentID())

		_, dup := ids[a.ID]
		assert.False(t, dup, "duplicate id %s", a.ID)
		ids[a.ID] = struct{}{}
	}
}

func TestGenesis_Deterministic(t *testing.T) {
	a1, err := newTestBreeder(7).Genesis(5, 100, 0)
	require.NoError(t, err)
	a2, err := newTestBreeder(7).Genesis(5, 100, 0)
	require.NoError(t, err)

	for i := range a1 {
		assert.Equal(t, a1[i].ID, a2[i].ID)
		assert.Equal(t, a1[i].Genome, a2[i].Genome)
		assert.Equal(t, a1[i].Instinct, a2[i].Instinct)
	}
}

func TestGenesis_Invalid(t *testing.T) {
	b := newTestBreeder(1)
	_, err := b.Genesis(0, 100, 0)
	assert.ErrorIs(t, err, ErrInvalidGenesis)
	_, err = b.Genesis(3, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidGenesis)
}

func TestReproduce(t *testing.T) {
	b := newTestBreeder(3)
	parents, err := b.Genesis(2, 1000, 0)
	require.NoError(t, err)
	p1, p2 := parents[0], parents[1]
	p1.Fitness, p2.Fitness = 1, 5

	child, err := b.Reproduce(p1, p2, 250, 100)
	require.NoError(t, err)

	assert.Equal(t, 1, child.Generation)
	assert.Equal(t, []string{p1.ID, p2.ID}, child.ParentIDs)
	assert.Equal(t, p2.Lineage.FamilyID, child.Lineage.FamilyID, "family follows the fitter parent")
	assert.Contains(t, []string{p1.Lineage.FamilyID, p2.Lineage.FamilyID}, child.Lineage.DominantFamily)
	assert.Equal(t, int64(100), child.BornAtTick)
	assert.Equal(t, 250.0, child.Account.VirtualCapital())
	require.NoError(t, child.Instinct.Validate())
	assert.NotEqual(t, p1.ID, child.ID)

	// Parent genomes are untouched
	for i := range child.Genome {
		child.Genome[i] = 42
	}
	assert.NotContains(t, []float64(p1.Genome), 42.0)
}

func TestReproduce_NoMutationCopiesParentGenes(t *testing.T) {
	b := NewBreeder(BreederOptions{
		RunID:     "r",
		Rand:      rand.New(rand.NewSource(9)),
		GenomeDim: 4,
		Families:  2,
	})
	parents, err := b.Genesis(2, 100, 0)
	require.NoError(t, err)

	child, err := b.Reproduce(parents[0], parents[1], 10, 1)
	require.NoError(t, err)
	for i, g := range child.Genome {
		if g != parents[0].Genome[i] && g != parents[1].Genome[i] {
			t.Errorf("gene %d = %v came from neither parent", i, g)
		}
	}
}

func TestReproduce_BoostedMutation(t *testing.T) {
	b := newTestBreeder(11)
	parents, err := b.Genesis(2, 100, 0)
	require.NoError(t, err)
	parents[0].MutationBoost = true

	// Boosted rate is 1.0: every gene is perturbed
	child, err := b.Reproduce(parents[0], parents[1], 10, 1)
	require.NoError(t, err)
	for i, g := range child.Genome {
		if g == parents[0].Genome[i] || g == parents[1].Genome[i] {
			t.Errorf("gene %d was not mutated under boost", i)
		}
	}
}

func TestReproduce_DimensionMismatch(t *testing.T) {
	b := newTestBreeder(1)
	p1 := &Agent{ID: "a", Genome: domain.Genome{1, 2}}
	p2 := &Agent{ID: "b", Genome: domain.Genome{1, 2, 3}}

	_, err := b.Reproduce(p1, p2, 10, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGenomeDimension))
	assert.True(t, domain.IsFatal(err))

	_, err = b.Reproduce(nil, p2, 10, 0)
	assert.ErrorIs(t, err, ErrNilParent)
}

func TestAgent_Capabilities(t *testing.T) {
	a := &Agent{ID: "a", BornAtTick: 10, LifespanTicks: 5}
	assert.False(t, a.Expired(14))
	assert.True(t, a.Expired(15))

	immortal := &Agent{ID: "b"}
	assert.False(t, immortal.Expired(1_000_000))

	assert.False(t, a.Fertile(), "no account")
	a.Account = account.New(account.Options{AgentID: "a", InitialCapital: 10})
	assert.True(t, a.Fertile())

	_, holding := a.HeldTicks(20)
	assert.False(t, holding)
	a.MarkEntry(12)
	held, holding := a.HeldTicks(20)
	assert.True(t, holding)
	assert.Equal(t, int64(8), held)
	a.MarkFlat()
	_, holding = a.HeldTicks(20)
	assert.False(t, holding)
}

func TestRoster(t *testing.T) {
	r := NewRoster()
	for _, a := range []*Agent{
		{ID: "c", Fitness: 1},
		{ID: "a", Fitness: 3},
		{ID: "b", Fitness: 3},
	} {
		require.NoError(t, r.Add(a))
	}

	err := r.Add(&Agent{ID: "a"})
	assert.ErrorIs(t, err, ErrDuplicateAgent)
	assert.ErrorIs(t, r.Add(nil), ErrNilAgent)

	list := r.List()
	assert.Equal(t, []string{"c", "a", "b"}, idsOf(list))

	ranked := r.RankByFitness()
	assert.Equal(t, []string{"a", "b", "c"}, idsOf(ranked))

	removed := r.Remove("a")
	require.NotNil(t, removed)
	assert.Equal(t, "a", removed.ID)
	assert.Nil(t, r.Remove("a"))
	assert.Nil(t, r.Get("a"))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"c", "b"}, idsOf(r.List()))
}

func TestRoster_ValidateDimensions(t *testing.T) {
	r := NewRoster()
	require.NoError(t, r.Add(&Agent{ID: "a", Genome: domain.Genome{1, 2, 3}}))
	require.NoError(t, r.ValidateDimensions(3))

	require.NoError(t, r.Add(&Agent{ID: "b", Genome: domain.Genome{1, 2}}))
	err := r.ValidateDimensions(3)
	assert.ErrorIs(t, err, domain.ErrGenomeDimension)
}

func TestGenomeRecord(t *testing.T) {
	a := &Agent{
		ID:        "a",
		Genome:    domain.Genome{0.5},
		Lineage:   domain.Lineage{FamilyID: "F000", DominantFamily: "F001"},
		ParentIDs: []string{"p", "q"},
		Fitness:   2,
	}
	rec := a.GenomeRecord("run", domain.GenomeEventBirth, 7)
	assert.Equal(t, "run", rec.RunID)
	assert.Equal(t, int64(7), rec.Tick)
	assert.Equal(t, "F001", rec.DominantFamily)

	rec.Genome[0] = 9
	rec.ParentIDs[0] = "x"
	assert.Equal(t, 0.5, a.Genome[0])
	assert.Equal(t, "p", a.ParentIDs[0])
}

func idsOf(agents []*Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.ID
	}
	return out
}
