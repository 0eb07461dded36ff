// Package diversity keeps rare strategies and lineages alive through selection.
//
// At every evolution boundary the protector bins agents into instinct niches,
// flags agents worth keeping, and adjusts the elimination list so flagged
// agents survive. It also chooses breeding pairs by genetic distance and picks
// the most redundant agents for boosted mutation.
package diversity

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/metrics"
	"trading-agent-lab/internal/population"
)

// Default protector parameters.
const (
	DefaultMinNicheSize          = 2
	DefaultMaxProtectionCount    = 10
	DefaultLowerPercentile       = 0.10
	DefaultUpperPercentile       = 0.90
	DefaultRareStrategyTopFrac   = 0.20
	DefaultRareLineageThreshold  = 0.10
	DefaultRareLineageTopN       = 2
	DefaultCrossFamilyWeight     = 1.5
	DefaultSameFamilyWeight      = 0.5
	DefaultGeneInjectionFraction = 0.20
	DefaultGridSize              = 5
)

// Options contains configuration for creating a Protector.
// Zero values take the defaults above.
type Options struct {
	MinNicheSize          int     // niches at or below this size protect their best member
	MaxProtectionCount    int     // cap on the protected set
	LowerPercentile       float64 // rare-strategy band
	UpperPercentile       float64
	RareStrategyTopFrac   float64 // fraction of rare-strategy agents protected (min 1)
	RareLineageThreshold  float64 // family share below which a lineage is rare
	RareLineageTopN       int     // members protected per rare lineage
	CrossFamilyWeight     float64
	SameFamilyWeight      float64
	GeneInjectionFraction float64
	GridSize              int
	Logger                zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.MinNicheSize <= 0 {
		o.MinNicheSize = DefaultMinNicheSize
	}
	if o.MaxProtectionCount <= 0 {
		o.MaxProtectionCount = DefaultMaxProtectionCount
	}
	if o.LowerPercentile <= 0 {
		o.LowerPercentile = DefaultLowerPercentile
	}
	if o.UpperPercentile <= 0 {
		o.UpperPercentile = DefaultUpperPercentile
	}
	if o.RareStrategyTopFrac <= 0 {
		o.RareStrategyTopFrac = DefaultRareStrategyTopFrac
	}
	if o.RareLineageThreshold <= 0 {
		o.RareLineageThreshold = DefaultRareLineageThreshold
	}
	if o.RareLineageTopN <= 0 {
		o.RareLineageTopN = DefaultRareLineageTopN
	}
	if o.CrossFamilyWeight <= 0 {
		o.CrossFamilyWeight = DefaultCrossFamilyWeight
	}
	if o.SameFamilyWeight <= 0 {
		o.SameFamilyWeight = DefaultSameFamilyWeight
	}
	if o.GeneInjectionFraction <= 0 {
		o.GeneInjectionFraction = DefaultGeneInjectionFraction
	}
	if o.GridSize <= 0 {
		o.GridSize = DefaultGridSize
	}
	return o
}

// Protection is the outcome of one protection pass.
type Protection struct {
	IDs []string // capped protected set, fitness DESC

	// Per-rule contributions before the cap.
	SmallNiche   []string
	RareStrategy []string
	RareLineage  []string

	set map[string]struct{}
}

// Contains reports whether id is protected.
func (p *Protection) Contains(id string) bool {
	if p == nil {
		return false
	}
	_, ok := p.set[id]
	return ok
}

// Len returns the size of the capped protected set.
func (p *Protection) Len() int {
	if p == nil {
		return 0
	}
	return len(p.IDs)
}

// NewProtection builds a protected set from explicit IDs.
func NewProtection(ids ...string) *Protection {
	p := &Protection{IDs: ids, set: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		p.set[id] = struct{}{}
	}
	return p
}

func emptyProtection() *Protection {
	return NewProtection()
}

// Protector runs the diversity rules. Stats from the latest pass are cached.
type Protector struct {
	opts   Options
	logger zerolog.Logger

	mu    sync.Mutex
	stats domain.DiversityStats
}

// New creates a Protector.
func New(opts Options) *Protector {
	opts = opts.withDefaults()
	return &Protector{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "DiversityProtector").Logger(),
	}
}

// ProtectDiversity computes the protected set for agents.
// A niche computation failure is logged and yields an empty set along with
// an error wrapping domain.ErrNicheComputationFailure; callers continue.
func (p *Protector) ProtectDiversity(agents []*population.Agent) (*Protection, error) {
	prot, stats, err := p.protect(agents)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("kind", string(domain.KindOf(err))).
			Int("population", len(agents)).
			Msg("diversity protection skipped")
		prot = emptyProtection()
		stats = domain.DiversityStats{PopulationSize: len(agents)}
	}

	stats.MeanGeneticDistance = p.meanDistance(agents)

	p.mu.Lock()
	p.stats = stats
	p.mu.Unlock()

	return prot, err
}

// Stats returns the statistics of the latest ProtectDiversity call.
func (p *Protector) Stats() domain.DiversityStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Protector) protect(agents []*population.Agent) (*Protection, domain.DiversityStats, error) {
	stats := domain.DiversityStats{PopulationSize: len(agents)}
	if len(agents) == 0 {
		return emptyProtection(), stats, nil
	}

	// Rule 1: small niches keep their best member
	niches, err := ComputeNiches(agents, p.opts.GridSize)
	if err != nil {
		return nil, stats, err
	}
	stats.NicheCount = len(niches)

	var smallNiche []*population.Agent
	for _, n := range niches {
		if len(n.Members) <= p.opts.MinNicheSize {
			smallNiche = append(smallNiche, n.Members[0])
		}
	}

	// Rule 2: instincts outside the percentile band
	rareStrategy := p.rareStrategy(agents)

	// Rule 3: under-represented dominant families
	rareLineage, families, rareFamilies := p.rareLineage(agents)
	stats.FamilyCount = families
	stats.RareFamilyCount = rareFamilies

	prot := &Protection{
		SmallNiche:   idsOf(smallNiche),
		RareStrategy: idsOf(rareStrategy),
		RareLineage:  idsOf(rareLineage),
		set:          map[string]struct{}{},
	}

	union := make(map[string]*population.Agent)
	for _, group := range [][]*population.Agent{smallNiche, rareStrategy, rareLineage} {
		for _, a := range group {
			union[a.ID] = a
		}
	}
	capped := make([]*population.Agent, 0, len(union))
	for _, a := range union {
		capped = append(capped, a)
	}
	population.SortByFitness(capped)
	if len(capped) > p.opts.MaxProtectionCount {
		capped = capped[:p.opts.MaxProtectionCount]
	}
	for _, a := range capped {
		prot.IDs = append(prot.IDs, a.ID)
		prot.set[a.ID] = struct{}{}
	}

	stats.SmallNicheProtected = len(prot.SmallNiche)
	stats.RareStrategyProt = len(prot.RareStrategy)
	stats.RareLineageProt = len(prot.RareLineage)
	stats.TotalProtected = len(prot.IDs)
	return prot, stats, nil
}

func (p *Protector) rareStrategy(agents []*population.Agent) []*population.Agent {
	fear := make([]float64, len(agents))
	risk := make([]float64, len(agents))
	for i, a := range agents {
		fear[i] = a.Instinct.FearOfDeath
		risk[i] = a.Instinct.RiskAppetite
	}
	sort.Float64s(fear)
	sort.Float64s(risk)

	fearLo, fearHi := metrics.Percentile(fear, p.opts.LowerPercentile), metrics.Percentile(fear, p.opts.UpperPercentile)
	riskLo, riskHi := metrics.Percentile(risk, p.opts.LowerPercentile), metrics.Percentile(risk, p.opts.UpperPercentile)

	var rare []*population.Agent
	for _, a := range agents {
		f, r := a.Instinct.FearOfDeath, a.Instinct.RiskAppetite
		if f < fearLo || f > fearHi || r < riskLo || r > riskHi {
			rare = append(rare, a)
		}
	}
	if len(rare) == 0 {
		return nil
	}

	population.SortByFitness(rare)
	return rare[:topCount(len(rare), p.opts.RareStrategyTopFrac)]
}

func (p *Protector) rareLineage(agents []*population.Agent) (protected []*population.Agent, families, rareFamilies int) {
	byFamily := make(map[string][]*population.Agent)
	for _, a := range agents {
		byFamily[a.Lineage.DominantFamily] = append(byFamily[a.Lineage.DominantFamily], a)
	}

	names := make([]string, 0, len(byFamily))
	for name := range byFamily {
		names = append(names, name)
	}
	sort.Strings(names)

	limit := p.opts.RareLineageThreshold * float64(len(agents))
	for _, name := range names {
		members := byFamily[name]
		if float64(len(members)) >= limit {
			continue
		}
		rareFamilies++
		population.SortByFitness(members)
		n := p.opts.RareLineageTopN
		if n > len(members) {
			n = len(members)
		}
		protected = append(protected, members[:n]...)
	}
	return protected, len(byFamily), rareFamilies
}

// EliminationPlan is the protection-adjusted list of agents to remove.
type EliminationPlan struct {
	Eliminated []*population.Agent
	Backfilled int // protected agents spared and replaced by the next-lowest
	Unfilled   int // requested eliminations that could not be made
}

// AdjustElimination removes count agents from the low end of ranking
// (fitness DESC), skipping protected agents and backfilling from the
// next-lowest unprotected ones.
func (p *Protector) AdjustElimination(ranking []*population.Agent, count int, protected *Protection) EliminationPlan {
	var plan EliminationPlan
	if count <= 0 {
		return plan
	}
	if count > len(ranking) {
		count = len(ranking)
	}

	for i := len(ranking) - 1; i >= 0 && len(plan.Eliminated) < count; i-- {
		a := ranking[i]
		if protected.Contains(a.ID) {
			if len(ranking)-1-i < count {
				plan.Backfilled++
			}
			continue
		}
		plan.Eliminated = append(plan.Eliminated, a)
	}
	plan.Unfilled = count - len(plan.Eliminated)

	if plan.Unfilled > 0 {
		p.logger.Warn().
			Int("requested", count).
			Int("eliminated", len(plan.Eliminated)).
			Int("unfilled", plan.Unfilled).
			Int("protected", protected.Len()).
			Msg("elimination shortfall: not enough unprotected agents")
	} else if plan.Backfilled > 0 {
		p.logger.Warn().
			Int("requested", count).
			Int("backfilled", plan.Backfilled).
			Int("protected", protected.Len()).
			Msg("elimination backfilled past protected agents")
	}
	return plan
}

// Pair is a breeding pair.
type Pair struct {
	A, B  *population.Agent
	Score float64 // family-weighted genetic distance, 0 for fitness pairs
}

// DiverseBreedingPairs picks up to n disjoint pairs maximizing
// family-weighted genetic distance. On a non-finite distance it logs,
// falls back to FitnessPairs and returns an error wrapping
// domain.ErrGeneticDistanceFailure. A genome dimension mismatch is returned
// as is without fallback.
func (p *Protector) DiverseBreedingPairs(agents []*population.Agent, n int) ([]Pair, error) {
	if n <= 0 || len(agents) < 2 {
		return nil, nil
	}

	sorted := sortedByID(agents)
	candidates := make([]Pair, 0, len(sorted)*(len(sorted)-1)/2)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			d, err := a.Genome.Distance(b.Genome)
			if err != nil {
				return nil, err
			}
			if !isFinite(d) {
				err := fmt.Errorf("%w: %s-%s distance %v", domain.ErrGeneticDistanceFailure, a.ID, b.ID, d)
				p.logger.Warn().
					Err(err).
					Str("kind", string(domain.KindGeneticDistanceFailure)).
					Msg("falling back to fitness pairing")
				return FitnessPairs(agents, n), err
			}
			w := p.opts.SameFamilyWeight
			if a.Lineage.FamilyID != b.Lineage.FamilyID {
				w = p.opts.CrossFamilyWeight
			}
			candidates = append(candidates, Pair{A: a, B: b, Score: d * w})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.Score != cj.Score {
			return ci.Score > cj.Score
		}
		if ci.A.ID != cj.A.ID {
			return ci.A.ID < cj.A.ID
		}
		return ci.B.ID < cj.B.ID
	})

	used := make(map[string]struct{})
	var pairs []Pair
	for _, c := range candidates {
		if len(pairs) == n {
			break
		}
		if _, ok := used[c.A.ID]; ok {
			continue
		}
		if _, ok := used[c.B.ID]; ok {
			continue
		}
		used[c.A.ID] = struct{}{}
		used[c.B.ID] = struct{}{}
		pairs = append(pairs, c)
	}
	return pairs, nil
}

// FitnessPairs pairs agents by fitness rank: (1st, 2nd), (3rd, 4th), ...
func FitnessPairs(agents []*population.Agent, n int) []Pair {
	ranked := append([]*population.Agent(nil), agents...)
	population.SortByFitness(ranked)

	var pairs []Pair
	for i := 0; i+1 < len(ranked) && len(pairs) < n; i += 2 {
		pairs = append(pairs, Pair{A: ranked[i], B: ranked[i+1]})
	}
	return pairs
}

// GeneInjectionTargets returns the GeneInjectionFraction (min 1) of agents
// with the lowest mean genetic distance to the rest of the population.
func (p *Protector) GeneInjectionTargets(agents []*population.Agent) ([]*population.Agent, error) {
	if len(agents) < 2 {
		return nil, nil
	}

	type scored struct {
		agent *population.Agent
		mean  float64
	}
	scores := make([]scored, len(agents))
	for i, a := range agents {
		sum := 0.0
		for j, b := range agents {
			if i == j {
				continue
			}
			d, err := a.Genome.Distance(b.Genome)
			if err != nil {
				return nil, err
			}
			sum += d
		}
		mean := sum / float64(len(agents)-1)
		if !isFinite(mean) {
			err := fmt.Errorf("%w: agent %s mean distance %v", domain.ErrGeneticDistanceFailure, a.ID, mean)
			p.logger.Warn().Err(err).Msg("gene injection skipped")
			return nil, err
		}
		scores[i] = scored{agent: a, mean: mean}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].mean != scores[j].mean {
			return scores[i].mean < scores[j].mean
		}
		return scores[i].agent.ID < scores[j].agent.ID
	})

	n := topCount(len(agents), p.opts.GeneInjectionFraction)
	out := make([]*population.Agent, n)
	for i := 0; i < n; i++ {
		out[i] = scores[i].agent
	}
	return out, nil
}

func (p *Protector) meanDistance(agents []*population.Agent) float64 {
	var sum float64
	var pairs int
	for i := 0; i < len(agents); i++ {
		for j := i + 1; j < len(agents); j++ {
			d, err := agents[i].Genome.Distance(agents[j].Genome)
			if err != nil {
				return 0
			}
			if !isFinite(d) {
				continue
			}
			sum += d
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}

func topCount(n int, frac float64) int {
	k := int(math.Floor(float64(n) * frac))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

func sortedByID(agents []*population.Agent) []*population.Agent {
	out := append([]*population.Agent(nil), agents...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func idsOf(agents []*population.Agent) []string {
	if len(agents) == 0 {
		return nil
	}
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.ID
	}
	return out
}
