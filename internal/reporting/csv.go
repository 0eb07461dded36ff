package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders agent rows as CSV string.
func RenderCSV(agents []AgentRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("agent_id,fitness,virtual_capital,realized_pnl,unrealized_pnl,total_pnl,")
	sb.WriteString("return_pct,win_rate,trade_count,open_positions,has_real_position\n")

	// Rows
	for _, a := range agents {
		sb.WriteString(fmt.Sprintf("%s,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d,%d,%t\n",
			a.AgentID,
			a.Fitness,
			a.VirtualCapital,
			a.RealizedPnL,
			a.UnrealizedPnL,
			a.TotalPnL,
			a.ReturnPct,
			a.WinRate,
			a.TradeCount,
			a.OpenPositions,
			a.HasRealPosition,
		))
	}

	return sb.String()
}

// RenderGenerationsCSV renders generation rows as CSV string.
func RenderGenerationsCSV(gens []GenerationRow) string {
	var sb strings.Builder
	sb.WriteString("generation,tick,population,eliminated,born,protected,unfilled,")
	sb.WriteString("niche_count,mean_genetic_distance,best_fitness,mean_fitness,pool_balance\n")
	for _, g := range gens {
		sb.WriteString(fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%d,%.6f,%.6f,%.6f,%.6f\n",
			g.Generation, g.Tick, g.Population, g.Eliminated, g.Born, g.Protected, g.Unfilled,
			g.NicheCount, g.MeanGeneticDistance, g.BestFitness, g.MeanFitness, g.PoolBalance))
	}
	return sb.String()
}
