package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	s := r.RunSummary

	// Header
	sb.WriteString("# Simulation Report\n\n")
	sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Run Summary
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Ticks | %d |\n", s.Ticks))
	sb.WriteString(fmt.Sprintf("| Generations | %d |\n", s.Generations))
	sb.WriteString(fmt.Sprintf("| Fills | %d |\n", s.Fills))
	sb.WriteString(fmt.Sprintf("| Rejected Orders | %d |\n", s.Rejected))
	sb.WriteString(fmt.Sprintf("| Closed Trades | %d |\n", s.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Final Population | %d |\n", s.Population))
	sb.WriteString(fmt.Sprintf("| Final Price | %.4f |\n", s.FinalPrice))
	sb.WriteString(fmt.Sprintf("| Pool Balance | %.2f |\n", s.PoolBalance))
	if s.EndOfFeed {
		sb.WriteString("| Feed | exhausted |\n")
	}
	sb.WriteString("\n")

	// Ledgers
	sb.WriteString("## Virtual vs Real Ledger\n\n")
	sb.WriteString("| Ledger | Trades | Agents | WinRate | Total | Mean | Median | P10 | P90 | MaxDD | MaxLoss |\n")
	sb.WriteString("|--------|--------|--------|---------|-------|------|--------|-----|-----|-------|---------|\n")
	for _, l := range r.Ledgers {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %d |\n",
			l.Ledger, l.TotalTrades, l.Agents, l.WinRate, l.PnLTotal, l.PnLMean, l.PnLMedian,
			l.PnLP10, l.PnLP90, l.MaxDrawdown, l.MaxConsecutiveLosses))
	}
	sb.WriteString("\n")

	// Generations
	sb.WriteString("## Generations\n\n")
	if len(r.Generations) > 0 {
		sb.WriteString("| Gen | Tick | Pop | Eliminated | Born | Protected | Unfilled | Niches | Distance | Best | Mean | Pool |\n")
		sb.WriteString("|-----|------|-----|------------|------|-----------|----------|--------|----------|------|------|------|\n")
		for _, g := range r.Generations {
			sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d | %d | %d | %d | %.4f | %.4f | %.4f | %.2f |\n",
				g.Generation, g.Tick, g.Population, g.Eliminated, g.Born, g.Protected, g.Unfilled,
				g.NicheCount, g.MeanGeneticDistance, g.BestFitness, g.MeanFitness, g.PoolBalance))
		}
	} else {
		sb.WriteString("No evolution cycles ran.\n")
	}
	sb.WriteString("\n")

	// Diversity
	d := r.Diversity
	sb.WriteString("## Diversity\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Niches | %d |\n", d.NicheCount))
	sb.WriteString(fmt.Sprintf("| Families | %d |\n", d.FamilyCount))
	sb.WriteString(fmt.Sprintf("| Rare Families | %d |\n", d.RareFamilyCount))
	sb.WriteString(fmt.Sprintf("| Protected | %d |\n", d.TotalProtected))
	sb.WriteString(fmt.Sprintf("| Mean Genetic Distance | %.4f |\n", d.MeanGeneticDistance))
	sb.WriteString("\n")

	// Agents
	sb.WriteString("## Agents\n\n")
	if len(r.Agents) > 0 {
		sb.WriteString("| Agent | Fitness | Capital | Realized | Unrealized | Return | WinRate | Trades | Open | Real |\n")
		sb.WriteString("|-------|---------|---------|----------|------------|--------|---------|--------|------|------|\n")
		for _, a := range r.Agents {
			hasReal := "no"
			if a.HasRealPosition {
				hasReal = "yes"
			}
			sb.WriteString(fmt.Sprintf("| %s | %.4f | %.2f | %.2f | %.2f | %.4f | %.4f | %d | %d | %s |\n",
				a.AgentID, a.Fitness, a.VirtualCapital, a.RealizedPnL, a.UnrealizedPnL,
				a.ReturnPct, a.WinRate, a.TradeCount, a.OpenPositions, hasReal))
		}
	} else {
		sb.WriteString("No surviving agents.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
