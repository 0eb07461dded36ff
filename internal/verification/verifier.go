// Package verification checks that simulation runs are reproducible.
// It replays a config and compares trades and account summaries with a
// stored or a second run.
package verification

import (
	"context"
	"fmt"
	"math"

	"trading-agent-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string // field name, prefixed with the record key where useful
	Expected any    // stored value
	Actual   any    // replayed value
}

// String formats the divergence for logs and reports.
func (d FieldDivergence) String() string {
	return fmt.Sprintf("%s: expected %v, got %v", d.Field, d.Expected, d.Actual)
}

// VerificationResult contains the result of verifying a single trade.
type VerificationResult struct {
	TradeID     string
	Match       bool
	Divergences []FieldDivergence
	StoredPnL   float64
	ReplayedPnL float64
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	RunID           string
	TotalTrades     int // stored trades verified
	MatchedTrades   int
	DivergentTrades int
	ExtraTrades     int // replayed trades absent from the store
	Results         []VerificationResult
}

// Verifier verifies stored trades by replay.
type Verifier interface {
	// VerifyTrade verifies a single trade by ID.
	VerifyTrade(ctx context.Context, tradeID string) (*VerificationResult, error)

	// VerifyAll verifies every stored trade of the run.
	VerifyAll(ctx context.Context) (*VerificationReport, error)
}

type differ struct {
	prefix string
	out    []FieldDivergence
}

func (d *differ) str(field, a, b string) {
	if a != b {
		d.out = append(d.out, FieldDivergence{Field: d.prefix + field, Expected: a, Actual: b})
	}
}

func (d *differ) int64(field string, a, b int64) {
	if a != b {
		d.out = append(d.out, FieldDivergence{Field: d.prefix + field, Expected: a, Actual: b})
	}
}

func (d *differ) float(field string, a, b float64) {
	if !floatEquals(a, b) {
		d.out = append(d.out, FieldDivergence{Field: d.prefix + field, Expected: a, Actual: b})
	}
}

// CompareTradeRecords compares two trade records and returns divergences.
// RunID is not compared so that a replay under another run ID still matches.
func CompareTradeRecords(stored, replayed *domain.TradeRecord) []FieldDivergence {
	d := &differ{}
	d.str("TradeID", stored.TradeID, replayed.TradeID)
	d.str("AgentID", stored.AgentID, replayed.AgentID)
	d.str("Ledger", string(stored.Ledger), string(replayed.Ledger))
	d.str("Side", string(stored.Side), string(replayed.Side))
	d.float("Amount", stored.Amount, replayed.Amount)
	d.float("Confidence", stored.Confidence, replayed.Confidence)

	// Entry and exit
	d.float("EntryPrice", stored.EntryPrice, replayed.EntryPrice)
	d.int64("EntryTime", stored.EntryTime, replayed.EntryTime)
	d.float("ExitPrice", stored.ExitPrice, replayed.ExitPrice)
	d.int64("ExitTime", stored.ExitTime, replayed.ExitTime)

	// Outcome
	d.float("PnL", stored.PnL, replayed.PnL)
	d.str("OutcomeClass", stored.OutcomeClass, replayed.OutcomeClass)
	return d.out
}

// CompareSummaries compares two account summaries of the same agent.
func CompareSummaries(expected, actual domain.AccountSummary) []FieldDivergence {
	d := &differ{prefix: expected.AgentID + "."}
	d.str("AgentID", expected.AgentID, actual.AgentID)
	d.float("VirtualCapital", expected.VirtualCapital, actual.VirtualCapital)
	d.float("RealizedPnL", expected.RealizedPnL, actual.RealizedPnL)
	d.float("UnrealizedPnL", expected.UnrealizedPnL, actual.UnrealizedPnL)
	d.float("TotalPnL", expected.TotalPnL, actual.TotalPnL)
	d.int64("OpenPositions", int64(expected.OpenPositions), int64(actual.OpenPositions))
	d.int64("TradeCount", int64(expected.TradeCount), int64(actual.TradeCount))
	d.int64("WinCount", int64(expected.WinCount), int64(actual.WinCount))
	d.int64("LastTradeTime", expected.LastTradeTime, actual.LastTradeTime)
	if expected.HasRealPosition != actual.HasRealPosition {
		d.out = append(d.out, FieldDivergence{
			Field:    d.prefix + "HasRealPosition",
			Expected: expected.HasRealPosition,
			Actual:   actual.HasRealPosition,
		})
	}
	return d.out
}

// floatEquals compares two float64 values within FloatTolerance.
// NaN equals NaN so that a reproduced NaN is not reported.
func floatEquals(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= FloatTolerance
}
