package execution

import (
	"math"

	"trading-agent-lab/internal/domain"
)

// minLiquidity keeps cost curves finite in a fully drained book.
const minLiquidity = 0.01

// SlippageCurve returns slippage as a fraction of trade value.
// Must be non-decreasing in tradeValue and non-increasing in liquidity.
type SlippageCurve func(tradeValue, liquidity float64) float64

// ImpactFunc returns the absolute market-impact cost of a trade.
// Must be non-decreasing in tradeValue (also per unit of value) and
// non-increasing in liquidity.
type ImpactFunc func(tradeValue, liquidity, spreadPct float64) float64

// LinearSlippage grows linearly with trade value relative to referenceValue
// and inversely with liquidity.
func LinearSlippage(basePct, referenceValue float64) SlippageCurve {
	return func(tradeValue, liquidity float64) float64 {
		if tradeValue <= 0 {
			return 0
		}
		return basePct * (1 + tradeValue/referenceValue) / math.Max(liquidity, minLiquidity)
	}
}

// SquareRootImpact is the square-root impact law scaled by liquidity and spread.
func SquareRootImpact(coefficient, referenceValue float64) ImpactFunc {
	return func(tradeValue, liquidity, spreadPct float64) float64 {
		if tradeValue <= 0 {
			return 0
		}
		pct := coefficient * math.Sqrt(tradeValue/referenceValue) / math.Max(liquidity, minLiquidity) * (1 + spreadPct)
		return tradeValue * pct
	}
}

// computeCost applies the cost model to a trade of value qty*price.
func computeCost(side domain.OrderSide, qty, price, spreadPct, liquidity float64, slip SlippageCurve, impact ImpactFunc) domain.TradeCost {
	tradeValue := qty * price

	var c domain.TradeCost
	c.SpreadCost = tradeValue * spreadPct
	c.SlippageCost = tradeValue * slip(tradeValue, liquidity)
	c.ImpactCost = impact(tradeValue, liquidity, spreadPct)
	c.TotalCost = c.SpreadCost + c.SlippageCost + c.ImpactCost
	if tradeValue > 0 {
		c.TotalCostPct = c.TotalCost / tradeValue
	}

	if side == domain.OrderSideSell {
		c.EstimatedPrice = price * (1 - c.TotalCostPct)
	} else {
		c.EstimatedPrice = price * (1 + c.TotalCostPct)
	}
	return c
}
