package population

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"trading-agent-lab/internal/account"
	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/idhash"
)

// Breeder errors
var (
	ErrInvalidGenesis = errors.New("invalid genesis parameters")
	ErrNilParent      = errors.New("nil parent")
)

// Gene values are kept in [-GeneBound, GeneBound].
const GeneBound = 1.0

// BreederOptions contains configuration for creating a Breeder.
type BreederOptions struct {
	RunID     string
	Rand      *rand.Rand // required; owns all randomness for genesis and reproduction
	GenomeDim int
	Families  int

	MutationRate        float64 // per-gene mutation probability
	MutationStdDev      float64 // gaussian sigma for gene mutation
	BoostedMutationRate float64 // used when a parent carries MutationBoost
	InstinctMutationStd float64 // sigma as a fraction of each instinct range

	LifespanTicks int64
	Cooldown      time.Duration
}

// Breeder creates agents. It is not safe for concurrent use.
type Breeder struct {
	opts    BreederOptions
	rng     *rand.Rand
	nextSeq map[int]int // per generation
}

// NewBreeder creates a Breeder.
func NewBreeder(opts BreederOptions) *Breeder {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	if opts.Families < 1 {
		opts.Families = 1
	}
	return &Breeder{
		opts:    opts,
		rng:     opts.Rand,
		nextSeq: make(map[int]int),
	}
}

// FamilyName formats a family index.
func FamilyName(i int) string {
	return fmt.Sprintf("F%03d", i)
}

// Genesis creates the initial population. Agent i belongs to family
// i mod Families, genes are uniform in [-1, 1] and instincts uniform in range.
func (b *Breeder) Genesis(size int, capital float64, tick int64) ([]*Agent, error) {
	if size < 1 || b.opts.GenomeDim < 1 {
		return nil, fmt.Errorf("%w: size=%d genome_dim=%d", ErrInvalidGenesis, size, b.opts.GenomeDim)
	}
	if capital <= 0 {
		return nil, fmt.Errorf("%w: capital=%v", ErrInvalidGenesis, capital)
	}

	agents := make([]*Agent, 0, size)
	for i := 0; i < size; i++ {
		genome := make(domain.Genome, b.opts.GenomeDim)
		for g := range genome {
			genome[g] = b.rng.Float64()*2*GeneBound - GeneBound
		}
		family := FamilyName(i % b.opts.Families)

		agents = append(agents, b.newAgent(genome, domain.Lineage{
			FamilyID:       family,
			DominantFamily: family,
		}, domain.Instinct{
			FearOfDeath:  b.rng.Float64() * domain.MaxFearOfDeath,
			RiskAppetite: b.rng.Float64() * domain.MaxRiskAppetite,
		}, 0, nil, capital, tick))
	}
	return agents, nil
}

// Reproduce breeds a child from two parents funded with capital.
//
// Genes come from either parent with equal probability, then mutate with
// gaussian noise. The child inherits the fitter parent's family; its dominant
// family is the one that contributed the most genes. Instincts are the parent
// mean plus noise, clamped to range.
func (b *Breeder) Reproduce(p1, p2 *Agent, capital float64, tick int64) (*Agent, error) {
	if p1 == nil || p2 == nil {
		return nil, ErrNilParent
	}
	if p1.Genome.Dim() != p2.Genome.Dim() {
		return nil, fmt.Errorf("%w: parents %s and %s have %d and %d genes",
			domain.ErrGenomeDimension, p1.ID, p2.ID, p1.Genome.Dim(), p2.Genome.Dim())
	}

	fitter, other := p1, p2
	if p2.Fitness > p1.Fitness {
		fitter, other = p2, p1
	}

	rate := b.opts.MutationRate
	if p1.MutationBoost || p2.MutationBoost {
		rate = b.opts.BoostedMutationRate
	}

	// 1. Uniform crossover with per-family contribution count
	contrib := make(map[string]int, 2)
	genome := make(domain.Genome, p1.Genome.Dim())
	for i := range genome {
		src := p1
		if b.rng.Float64() < 0.5 {
			src = p2
		}
		genome[i] = src.Genome[i]
		contrib[src.Lineage.FamilyID]++
	}

	// 2. Gaussian mutation
	for i := range genome {
		if b.rng.Float64() < rate {
			genome[i] = clamp(genome[i]+b.rng.NormFloat64()*b.opts.MutationStdDev, -GeneBound, GeneBound)
		}
	}

	// 3. Instinct blend
	instinct := domain.Instinct{
		FearOfDeath: (p1.Instinct.FearOfDeath+p2.Instinct.FearOfDeath)/2 +
			b.rng.NormFloat64()*b.opts.InstinctMutationStd*domain.MaxFearOfDeath,
		RiskAppetite: (p1.Instinct.RiskAppetite+p2.Instinct.RiskAppetite)/2 +
			b.rng.NormFloat64()*b.opts.InstinctMutationStd*domain.MaxRiskAppetite,
	}.Clamp()

	// 4. Lineage
	dominant := fitter.Lineage.FamilyID
	if contrib[other.Lineage.FamilyID] > contrib[dominant] {
		dominant = other.Lineage.FamilyID
	}
	lineage := domain.Lineage{FamilyID: fitter.Lineage.FamilyID, DominantFamily: dominant}

	generation := p1.Generation
	if p2.Generation > generation {
		generation = p2.Generation
	}
	generation++

	return b.newAgent(genome, lineage, instinct, generation, []string{p1.ID, p2.ID}, capital, tick), nil
}

func (b *Breeder) newAgent(genome domain.Genome, lineage domain.Lineage, instinct domain.Instinct,
	generation int, parents []string, capital float64, tick int64) *Agent {
	seq := b.nextSeq[generation]
	b.nextSeq[generation] = seq + 1

	id := idhash.ComputeAgentID(b.opts.RunID, generation, seq)
	return &Agent{
		ID:            id,
		Genome:        genome,
		Lineage:       lineage,
		Instinct:      instinct,
		Generation:    generation,
		ParentIDs:     parents,
		BornAtTick:    tick,
		LifespanTicks: b.opts.LifespanTicks,
		Account: account.New(account.Options{
			AgentID:        id,
			InitialCapital: capital,
			Cooldown:       b.opts.Cooldown,
		}),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
