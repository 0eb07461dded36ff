// Package lifecycle drives the population through market ticks and
// evolution boundaries.
//
// A tick installs the snapshot in the execution interface, computes every
// agent's decision in parallel, then applies the decisions serially in roster
// order. An evolution boundary ranks agents, removes the weakest unprotected
// ones, and funds offspring from the capital pool. Ticks and boundaries
// exclude each other.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"trading-agent-lab/internal/capital"
	"trading-agent-lab/internal/diversity"
	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/execution"
	"trading-agent-lab/internal/feed"
	"trading-agent-lab/internal/metrics"
	"trading-agent-lab/internal/observability"
	"trading-agent-lab/internal/population"
	"trading-agent-lab/internal/storage"
	"trading-agent-lab/internal/strategy"
)

// Coordinator errors
var (
	ErrNoMarket      = errors.New("no market tick processed yet")
	ErrInvalidMarket = errors.New("invalid market snapshot")
	ErrUnknownAgent  = errors.New("unknown agent")
)

// Default coordinator parameters.
const (
	DefaultEvolutionInterval        = 100
	DefaultEliminationRate          = 0.2
	DefaultOffspringCapitalFraction = 0.5
	DefaultWorkers                  = 4
)

// Options contains configuration for creating a Coordinator.
type Options struct {
	RunID string

	Roster    *population.Roster
	Breeder   *population.Breeder
	Protector *diversity.Protector
	Exec      *execution.Interface
	Pool      capital.Pool
	Strategy  strategy.Strategy

	// Optional sinks. Nil stores are skipped.
	GenomeStore          storage.GenomeStore
	TradeStore           storage.TradeRecordStore
	GenerationStatsStore storage.GenerationStatsStore

	Metrics *observability.Metrics
	Logger  zerolog.Logger

	EvolutionInterval        int
	EliminationRate          float64
	OffspringCapitalFraction float64
	MaxSize                  int // population cap, 0 means unlimited
	GenomeDim                int
	Workers                  int
}

// TickResult summarizes one applied tick.
type TickResult struct {
	Tick       int64
	Decisions  int
	Holds      int
	Fills      int
	Closed     []*domain.TradeRecord
	Rejections map[domain.ErrorKind]int
}

// Rejected returns the total number of rejected decisions.
func (r TickResult) Rejected() int {
	n := 0
	for _, c := range r.Rejections {
		n += c
	}
	return n
}

// EvolutionResult summarizes one evolution boundary.
type EvolutionResult struct {
	Eliminated []*population.Agent
	Newborns   []*population.Agent
	Stats      domain.GenerationStats
}

// RunResult summarizes a Run.
type RunResult struct {
	Ticks       int
	Generations int
	Fills       int
	Rejected    int
	EndOfFeed   bool
}

// Coordinator owns the tick loop and evolution boundaries.
type Coordinator struct {
	opts   Options
	logger zerolog.Logger

	mu         sync.Mutex // barrier between Tick and Evolve
	last       *domain.MarketState
	generation int
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	if opts.EvolutionInterval <= 0 {
		opts.EvolutionInterval = DefaultEvolutionInterval
	}
	if opts.EliminationRate < 0 {
		opts.EliminationRate = 0
	}
	if opts.OffspringCapitalFraction <= 0 {
		opts.OffspringCapitalFraction = DefaultOffspringCapitalFraction
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Coordinator{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "LifecycleCoordinator").Str("run_id", opts.RunID).Logger(),
	}
}

// Populate adds the initial agents and persists their BIRTH records.
func (c *Coordinator) Populate(ctx context.Context, agents []*population.Agent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records := make([]*domain.GenomeRecord, 0, len(agents))
	for _, a := range agents {
		if err := c.opts.Roster.Add(a); err != nil {
			return fmt.Errorf("populate: %w", err)
		}
		records = append(records, a.GenomeRecord(c.opts.RunID, domain.GenomeEventBirth, a.BornAtTick))
	}
	return c.saveGenomes(ctx, records)
}

// Tick applies one market snapshot to the population.
// Business rejections are counted in the result; only fatal or
// infrastructure errors are returned.
func (c *Coordinator) Tick(ctx context.Context, state *domain.MarketState) (TickResult, error) {
	if err := ctx.Err(); err != nil {
		return TickResult{}, err
	}
	if state == nil || !(state.Price() > 0) {
		return TickResult{}, ErrInvalidMarket
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()

	// 1. Dimension check
	if c.opts.GenomeDim > 0 {
		if err := c.opts.Roster.ValidateDimensions(c.opts.GenomeDim); err != nil {
			c.logger.Error().Err(err).Int64("tick", state.Tick).Msg("fatal genome dimension mismatch")
			return TickResult{}, err
		}
	}

	// 2. Install snapshot
	c.opts.Exec.UpdateMarket(state)
	c.last = state

	agents := c.opts.Roster.List()
	res := TickResult{
		Tick:       state.Tick,
		Decisions:  len(agents),
		Rejections: make(map[domain.ErrorKind]int),
	}

	// 3. Decisions, read-only and in parallel
	decisions, err := c.decide(ctx, state, agents)
	if err != nil {
		return TickResult{}, err
	}

	// 4. Apply serially in roster order
	for i, a := range agents {
		d := decisions[i]
		var closed []*domain.TradeRecord
		var err error

		switch d.Action {
		case strategy.ActionBuy:
			err = c.applyBuy(ctx, a, d, state)
		case strategy.ActionSell:
			closed, err = c.applySell(ctx, a, state)
		default:
			res.Holds++
			continue
		}

		if err != nil {
			kind := domain.KindOf(err)
			if kind == domain.KindUnknown || ctx.Err() != nil {
				return TickResult{}, fmt.Errorf("apply %s for agent %s: %w", d.Action, a.ID, err)
			}
			res.Rejections[kind]++
			c.opts.Metrics.RecordRejection(string(kind))
			continue
		}
		res.Fills++
		res.Closed = append(res.Closed, closed...)
	}

	if err := c.saveTrades(ctx, res.Closed); err != nil {
		return TickResult{}, err
	}

	// 5. Fitness
	best := c.recomputeFitness(state.Price())

	c.opts.Metrics.RecordTick(time.Since(start).Seconds(), res.Fills, len(agents))
	c.opts.Metrics.SetBestFitness(best)
	return res, nil
}

func (c *Coordinator) decide(ctx context.Context, state *domain.MarketState, agents []*population.Agent) ([]strategy.Decision, error) {
	inputs := make([]*strategy.Input, len(agents))
	for i, a := range agents {
		inputs[i] = c.input(a, state)
	}

	decisions := make([]strategy.Decision, len(agents))
	errs := make([]error, len(agents))

	p := pool.New().WithMaxGoroutines(c.opts.Workers)
	for i := range inputs {
		p.Go(func() {
			decisions[i], errs[i] = c.opts.Strategy.Decide(ctx, inputs[i])
		})
	}
	p.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("decide for agent %s: %w", agents[i].ID, err)
		}
	}
	return decisions, nil
}

func (c *Coordinator) input(a *population.Agent, state *domain.MarketState) *strategy.Input {
	in := &strategy.Input{
		Tick:     state.Tick,
		Market:   state,
		Genome:   a.Genome,
		Instinct: a.Instinct,
		Capital:  a.Account.VirtualCapital(),
	}
	if positions := a.Account.Positions(); len(positions) > 0 {
		in.Holding = true
		in.EntryPrice = positions[0].EntryPrice
		in.PositionSide = positions[0].Side
	}
	if held, ok := a.HeldTicks(state.Tick); ok {
		in.HeldTicks = held
	}
	return in
}

// applyBuy validates against the account at the estimated fill price, submits
// the opening order and records both legs at the fill.
func (c *Coordinator) applyBuy(ctx context.Context, a *population.Agent, d strategy.Decision, state *domain.MarketState) error {
	if !(d.Amount > 0) || math.IsInf(d.Amount, 0) {
		return fmt.Errorf("%w: amount %v", domain.ErrInvalidOrderSize, d.Amount)
	}
	side := domain.OrderSideBuy
	if d.Side == domain.SideShort {
		side = domain.OrderSideSell
	}

	cost, err := c.opts.Exec.EstimateTradeCost(side, d.Amount, state.Price())
	if err != nil {
		return err
	}
	if err := a.Account.CanBuy(d.Amount, cost.EstimatedPrice, state.Timestamp); err != nil {
		return err
	}

	order, err := c.opts.Exec.SubmitOrder(ctx, execution.OrderRequest{
		AgentID:  a.ID,
		Side:     side,
		Quantity: d.Amount,
	})
	if err != nil {
		return err
	}

	fill := order.FilledPrice
	if err := a.Account.RecordVirtualBuy(d.Side, order.FilledQuantity, fill, state.Timestamp, d.Confidence); err != nil {
		return err
	}
	if err := a.Account.RecordRealBuy(d.Side, order.FilledQuantity, fill, state.Timestamp, d.Confidence); err != nil {
		return err
	}
	a.MarkEntry(state.Tick)
	return nil
}

// applySell closes the oldest virtual position and the real slot.
func (c *Coordinator) applySell(ctx context.Context, a *population.Agent, state *domain.MarketState) ([]*domain.TradeRecord, error) {
	if err := a.Account.CanSell(); err != nil {
		return nil, err
	}
	oldest := a.Account.Positions()[0]

	side := domain.OrderSideSell
	if oldest.Side == domain.SideShort {
		side = domain.OrderSideBuy
	}
	order, err := c.opts.Exec.SubmitOrder(ctx, execution.OrderRequest{
		AgentID:  a.ID,
		Side:     side,
		Quantity: oldest.Amount,
	})
	if err != nil {
		return nil, err
	}

	virtual, err := a.Account.RecordVirtualSell(order.FilledPrice, state.Timestamp)
	if err != nil {
		return nil, err
	}
	realized, err := a.Account.RecordRealSell(order.FilledPrice, state.Timestamp)
	if err != nil {
		return nil, err
	}
	if len(a.Account.Positions()) == 0 {
		a.MarkFlat()
	}
	return []*domain.TradeRecord{&virtual, &realized}, nil
}

// recomputeFitness scores every agent and returns the best finite fitness.
func (c *Coordinator) recomputeFitness(price float64) float64 {
	best := math.Inf(-1)
	for _, a := range c.opts.Roster.List() {
		a.Fitness = metrics.Fitness(a.Account.Summary(price))
		if a.Fitness > best {
			best = a.Fitness
		}
	}
	if math.IsInf(best, -1) {
		return 0
	}
	return best
}

// Evolve runs one evolution boundary at the last processed tick.
// It returns the eliminated agents and the newborns.
func (c *Coordinator) Evolve(ctx context.Context) (eliminated, newborns []*population.Agent, err error) {
	res, err := c.EvolveDetailed(ctx)
	if err != nil {
		return nil, nil, err
	}
	return res.Eliminated, res.Newborns, nil
}

// EvolveDetailed is Evolve returning the persisted generation stats too.
func (c *Coordinator) EvolveDetailed(ctx context.Context) (EvolutionResult, error) {
	if err := ctx.Err(); err != nil {
		return EvolutionResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last == nil {
		return EvolutionResult{}, ErrNoMarket
	}
	tick, now, price := c.last.Tick, c.last.Timestamp, c.last.Price()
	c.generation++

	// 1. Rank and protect
	ranked := c.opts.Roster.RankByFitness()
	protection, perr := c.opts.Protector.ProtectDiversity(ranked)
	if perr != nil {
		c.opts.Metrics.RecordDiversityError(string(domain.KindOf(perr)))
	}
	divStats := c.opts.Protector.Stats()

	// 2. Elimination, then natural death
	count := int(math.Floor(float64(len(ranked)) * c.opts.EliminationRate))
	plan := c.opts.Protector.AdjustElimination(ranked, count, protection)
	dead := append([]*population.Agent(nil), plan.Eliminated...)
	marked := make(map[string]struct{}, len(dead))
	for _, a := range dead {
		marked[a.ID] = struct{}{}
	}
	for _, a := range ranked {
		if _, ok := marked[a.ID]; ok {
			continue
		}
		if a.Expired(tick) {
			dead = append(dead, a)
			marked[a.ID] = struct{}{}
		}
	}

	// 3. Liquidate and return capital
	var genomes []*domain.GenomeRecord
	var trades []*domain.TradeRecord
	for _, a := range dead {
		rec, closed, err := c.retire(ctx, a, tick, now, price)
		if err != nil {
			return EvolutionResult{}, err
		}
		genomes = append(genomes, rec)
		trades = append(trades, closed...)
	}

	survivors := c.opts.Roster.List()

	// 4. Gene injection
	for _, a := range survivors {
		a.MutationBoost = false
	}
	targets, err := c.opts.Protector.GeneInjectionTargets(survivors)
	if err != nil {
		if domain.IsFatal(err) {
			return EvolutionResult{}, err
		}
		c.opts.Metrics.RecordDiversityError(string(domain.KindOf(err)))
	}
	for _, a := range targets {
		a.MutationBoost = true
	}

	// 5. Reproduction
	newborns, err := c.breed(ctx, survivors, len(dead), tick)
	if err != nil {
		return EvolutionResult{}, err
	}
	for _, child := range newborns {
		genomes = append(genomes, child.GenomeRecord(c.opts.RunID, domain.GenomeEventBirth, tick))
	}

	// 6. Persist
	balance, err := c.opts.Pool.Balance(ctx)
	if err != nil {
		return EvolutionResult{}, fmt.Errorf("read pool balance: %w", err)
	}
	stats := c.generationStats(tick, len(dead), len(newborns), protection.Len(), plan.Unfilled, divStats, balance)

	if err := c.saveGenomes(ctx, genomes); err != nil {
		return EvolutionResult{}, err
	}
	if err := c.saveTrades(ctx, trades); err != nil {
		return EvolutionResult{}, err
	}
	if c.opts.GenerationStatsStore != nil {
		if err := c.opts.GenerationStatsStore.Insert(ctx, &stats); err != nil {
			return EvolutionResult{}, fmt.Errorf("save generation stats: %w", err)
		}
	}

	c.opts.Metrics.RecordEvolution(len(dead), len(newborns), protection.Len(), plan.Unfilled, divStats.NicheCount, stats.Population)
	c.opts.Metrics.SetPoolBalance(balance)

	c.logger.Info().
		Int("generation", c.generation).
		Int64("tick", tick).
		Int("eliminated", len(dead)).
		Int("born", len(newborns)).
		Int("protected", protection.Len()).
		Int("unfilled", plan.Unfilled).
		Int("population", stats.Population).
		Float64("pool_balance", balance).
		Msg("evolution complete")

	return EvolutionResult{Eliminated: dead, Newborns: newborns, Stats: stats}, nil
}

// retire liquidates a, returns its capital to the pool and removes it.
func (c *Coordinator) retire(ctx context.Context, a *population.Agent, tick, now int64, price float64) (*domain.GenomeRecord, []*domain.TradeRecord, error) {
	vBefore := len(a.Account.VirtualTrades())
	rBefore := len(a.Account.RealTrades())

	final, err := a.Account.Liquidate(price, now)
	if err != nil {
		return nil, nil, fmt.Errorf("liquidate agent %s: %w", a.ID, err)
	}
	if final > 0 {
		if err := c.opts.Pool.Return(ctx, final); err != nil {
			return nil, nil, fmt.Errorf("return capital of agent %s: %w", a.ID, err)
		}
	}
	a.Fitness = metrics.Fitness(a.Account.Summary(price))
	c.opts.Roster.Remove(a.ID)

	var closed []*domain.TradeRecord
	for _, t := range a.Account.VirtualTrades()[vBefore:] {
		closed = append(closed, &t)
	}
	for _, t := range a.Account.RealTrades()[rBefore:] {
		closed = append(closed, &t)
	}

	rec := a.GenomeRecord(c.opts.RunID, domain.GenomeEventDeath, tick)
	rec.FinalCapital = &final
	return rec, closed, nil
}

// breed funds up to want offspring, diverse pairs first.
func (c *Coordinator) breed(ctx context.Context, survivors []*population.Agent, want int, tick int64) ([]*population.Agent, error) {
	if c.opts.MaxSize > 0 {
		if room := c.opts.MaxSize - c.opts.Roster.Len(); room < want {
			want = room
		}
	}
	if want <= 0 {
		return nil, nil
	}

	fertile := make([]*population.Agent, 0, len(survivors))
	for _, a := range survivors {
		if a.Fertile() {
			fertile = append(fertile, a)
		}
	}

	pairs, err := c.opts.Protector.DiverseBreedingPairs(fertile, want)
	if err != nil {
		if domain.IsFatal(err) {
			return nil, err
		}
		c.opts.Metrics.RecordDiversityError(string(domain.KindOf(err)))
	}
	if len(pairs) < want {
		pairs = append(pairs, diversity.FitnessPairs(fertile, want-len(pairs))...)
	}

	var born []*population.Agent
	for _, pair := range pairs {
		if len(born) >= want {
			break
		}
		weaker := pair.A
		if pair.B.Fitness < pair.A.Fitness {
			weaker = pair.B
		}
		amount := c.opts.OffspringCapitalFraction * weaker.Account.VirtualCapital()
		if !(amount > 0) {
			continue
		}

		granted, ok, err := c.opts.Pool.Allocate(ctx, amount)
		if err != nil {
			c.logger.Error().Err(err).Msg("capital pool allocation failed")
			return nil, fmt.Errorf("allocate offspring capital: %w", err)
		}
		if !ok {
			c.logger.Info().
				Float64("requested", amount).
				Int("born", len(born)).
				Msg("capital pool refused allocation, reproduction stopped")
			break
		}

		child, err := c.opts.Breeder.Reproduce(pair.A, pair.B, granted, tick)
		if err != nil {
			if rerr := c.opts.Pool.Return(ctx, granted); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return nil, fmt.Errorf("reproduce %s x %s: %w", pair.A.ID, pair.B.ID, err)
		}
		if err := c.opts.Roster.Add(child); err != nil {
			return nil, fmt.Errorf("add offspring: %w", err)
		}
		born = append(born, child)
	}
	return born, nil
}

func (c *Coordinator) generationStats(tick int64, eliminated, born, protected, unfilled int,
	div domain.DiversityStats, balance float64) domain.GenerationStats {
	s := domain.GenerationStats{
		RunID:               c.opts.RunID,
		Generation:          c.generation,
		Tick:                tick,
		Population:          c.opts.Roster.Len(),
		Eliminated:          eliminated,
		Born:                born,
		Protected:           protected,
		Unfilled:            unfilled,
		NicheCount:          div.NicheCount,
		RareFamilyCount:     div.RareFamilyCount,
		MeanGeneticDistance: div.MeanGeneticDistance,
		PoolBalance:         balance,
	}

	var sum float64
	var n int
	best := math.Inf(-1)
	for _, a := range c.opts.Roster.List() {
		if math.IsInf(a.Fitness, 0) || math.IsNaN(a.Fitness) {
			continue
		}
		sum += a.Fitness
		n++
		best = math.Max(best, a.Fitness)
	}
	if n > 0 {
		s.BestFitness = best
		s.MeanFitness = sum / float64(n)
	}
	return s
}

func (c *Coordinator) saveGenomes(ctx context.Context, records []*domain.GenomeRecord) error {
	if c.opts.GenomeStore == nil || len(records) == 0 {
		return nil
	}
	if err := c.opts.GenomeStore.InsertBulk(ctx, records); err != nil {
		return fmt.Errorf("save genome records: %w", err)
	}
	return nil
}

func (c *Coordinator) saveTrades(ctx context.Context, trades []*domain.TradeRecord) error {
	for _, t := range trades {
		t.RunID = c.opts.RunID
		c.opts.Metrics.RecordTradeClosed(string(t.Ledger), t.OutcomeClass)
	}
	if c.opts.TradeStore == nil || len(trades) == 0 {
		return nil
	}
	if err := c.opts.TradeStore.InsertBulk(ctx, trades); err != nil {
		return fmt.Errorf("save trade records: %w", err)
	}
	return nil
}

// Run pulls up to ticks snapshots from source (unbounded when ticks <= 0)
// and evolves every EvolutionInterval ticks. A source ending early is not
// an error.
func (c *Coordinator) Run(ctx context.Context, source feed.TickSource, ticks int) (RunResult, error) {
	var out RunResult
	for ticks <= 0 || out.Ticks < ticks {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		state, err := source.NextTick(ctx)
		if errors.Is(err, feed.ErrEndOfFeed) {
			out.EndOfFeed = true
			c.logger.Info().Int("ticks", out.Ticks).Msg("tick source exhausted")
			break
		}
		if err != nil {
			return out, fmt.Errorf("next tick: %w", err)
		}

		res, err := c.Tick(ctx, state)
		if err != nil {
			return out, err
		}
		out.Ticks++
		out.Fills += res.Fills
		out.Rejected += res.Rejected()

		if out.Ticks%c.opts.EvolutionInterval == 0 {
			if _, _, err := c.Evolve(ctx); err != nil {
				return out, fmt.Errorf("evolve at tick %d: %w", state.Tick, err)
			}
			out.Generations++
		}
	}
	return out, nil
}

// AgentSummary returns the account summary of a living agent at price.
func (c *Coordinator) AgentSummary(id string, price float64) (domain.AccountSummary, error) {
	a := c.opts.Roster.Get(id)
	if a == nil {
		return domain.AccountSummary{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return a.Account.Summary(price), nil
}

// Summaries returns the account summaries of all living agents at the last
// processed price, in roster order.
func (c *Coordinator) Summaries() ([]domain.AccountSummary, error) {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()
	if last == nil {
		return nil, ErrNoMarket
	}

	agents := c.opts.Roster.List()
	out := make([]domain.AccountSummary, len(agents))
	for i, a := range agents {
		out[i] = a.Account.Summary(last.Price())
	}
	return out, nil
}

// DiversityStats returns the statistics of the latest evolution boundary.
func (c *Coordinator) DiversityStats() domain.DiversityStats {
	return c.opts.Protector.Stats()
}

// LastMarket returns the last processed snapshot, or nil.
func (c *Coordinator) LastMarket() *domain.MarketState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Generation returns the number of completed evolution boundaries.
func (c *Coordinator) Generation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}
