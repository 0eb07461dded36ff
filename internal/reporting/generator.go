package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/metrics"
	"trading-agent-lab/internal/simulation"
	"trading-agent-lab/internal/storage"
)

// Generator produces reports from run results and stored trades.
type Generator struct {
	aggregator *metrics.Aggregator
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(tradeStore storage.TradeRecordStore) *Generator {
	return &Generator{
		aggregator: metrics.NewAggregator(tradeStore),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete run report.
func (g *Generator) Generate(ctx context.Context, res *simulation.Result) (*Report, error) {
	ledgers, err := g.generateLedgers(ctx, res.RunID)
	if err != nil {
		return nil, err
	}

	totalTrades := 0
	for _, l := range ledgers {
		totalTrades += l.TotalTrades
	}

	d := res.Diversity
	return &Report{
		GeneratedAt: g.now(),
		RunID:       res.RunID,
		RunSummary: RunSummary{
			Ticks:       res.Ticks,
			Generations: res.Generations,
			Fills:       res.Fills,
			Rejected:    res.Rejected,
			EndOfFeed:   res.EndOfFeed,
			Population:  len(res.Summaries),
			FinalPrice:  res.FinalPrice,
			PoolBalance: res.PoolBalance,
			TotalTrades: totalTrades,
		},
		Agents:      generateAgents(res.Summaries),
		Generations: generateGenerations(res.Stats),
		Ledgers:     ledgers,
		Diversity: DiversityRow{
			NicheCount:          d.NicheCount,
			FamilyCount:         d.FamilyCount,
			RareFamilyCount:     d.RareFamilyCount,
			TotalProtected:      d.TotalProtected,
			MeanGeneticDistance: d.MeanGeneticDistance,
		},
	}, nil
}

// generateLedgers computes trade statistics for each ledger.
// A ledger without trades yields a zero row.
func (g *Generator) generateLedgers(ctx context.Context, runID string) ([]LedgerRow, error) {
	rows := make([]LedgerRow, 0, 2)
	for _, ledger := range []domain.Ledger{domain.LedgerVirtual, domain.LedgerReal} {
		row := LedgerRow{Ledger: string(ledger)}
		stats, err := g.aggregator.ComputeRunStats(ctx, runID, ledger)
		switch {
		case errors.Is(err, metrics.ErrNoTrades):
		case err != nil:
			return nil, err
		default:
			row.TotalTrades = stats.TotalTrades
			row.Agents = stats.Agents
			row.WinRate = stats.WinRate
			row.PnLTotal = stats.PnLTotal
			row.PnLMean = stats.PnLMean
			row.PnLMedian = stats.PnLMedian
			row.PnLP10 = stats.PnLP10
			row.PnLP90 = stats.PnLP90
			row.MaxDrawdown = stats.MaxDrawdown
			row.MaxConsecutiveLosses = stats.MaxConsecutiveLosses
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func generateAgents(summaries []domain.AccountSummary) []AgentRow {
	rows := make([]AgentRow, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, AgentRow{
			AgentID:         s.AgentID,
			Fitness:         metrics.Fitness(s),
			VirtualCapital:  s.VirtualCapital,
			RealizedPnL:     s.RealizedPnL,
			UnrealizedPnL:   s.UnrealizedPnL,
			TotalPnL:        s.TotalPnL,
			ReturnPct:       s.ReturnPct,
			WinRate:         s.WinRate,
			TradeCount:      s.TradeCount,
			OpenPositions:   s.OpenPositions,
			HasRealPosition: s.HasRealPosition,
		})
	}
	sortAgents(rows)
	return rows
}

func generateGenerations(stats []*domain.GenerationStats) []GenerationRow {
	rows := make([]GenerationRow, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, GenerationRow{
			Generation:          s.Generation,
			Tick:                s.Tick,
			Population:          s.Population,
			Eliminated:          s.Eliminated,
			Born:                s.Born,
			Protected:           s.Protected,
			Unfilled:            s.Unfilled,
			NicheCount:          s.NicheCount,
			MeanGeneticDistance: s.MeanGeneticDistance,
			BestFitness:         s.BestFitness,
			MeanFitness:         s.MeanFitness,
			PoolBalance:         s.PoolBalance,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Generation < rows[j].Generation })
	return rows
}

// sortAgents sorts by fitness DESC, agent_id ASC.
func sortAgents(rows []AgentRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Fitness != rows[j].Fitness {
			return rows[i].Fitness > rows[j].Fitness
		}
		return rows[i].AgentID < rows[j].AgentID
	})
}
