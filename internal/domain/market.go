package domain

// MarketState is a single market snapshot. A new value is produced every tick.
type MarketState struct {
	Tick      int64 `json:"tick"`
	Timestamp int64 `json:"timestamp_ms"` // simulated (ms)

	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	SpreadPct  float64 `json:"spread_pct"` // bid/ask spread as a fraction of price
	Liquidity  float64 `json:"liquidity"`  // [0, 1]
	Depth      float64 `json:"depth"`      // quote value resting near the touch
	Volatility float64 `json:"volatility"` // conditional volatility used for this tick
	Return     float64 `json:"return"`     // close-to-close return
	Regime     Regime  `json:"regime"`
	Extreme    bool    `json:"extreme"` // true if the return came from an extreme shock
}

// Price returns the reference price for execution.
func (m *MarketState) Price() float64 {
	return m.Close
}

// MarketStatistics are the measured return-distribution parameters
// the market process reproduces.
type MarketStatistics struct {
	MeanReturn       float64 `json:"mean_return"`
	Volatility       float64 `json:"volatility"`
	Skew             float64 `json:"skew"`
	Kurtosis         float64 `json:"kurtosis"`
	VolPersistence   float64 `json:"vol_persistence"`
	ExtremeFrequency float64 `json:"extreme_frequency"`
	MeanExtremeSize  float64 `json:"mean_extreme_size"`
}

// DefaultMarketStatistics is used when no statistics source is available.
// Values approximate a liquid crypto pair sampled per minute.
var DefaultMarketStatistics = MarketStatistics{
	MeanReturn:       0.0001,
	Volatility:       0.02,
	Skew:             -0.2,
	Kurtosis:         6.0,
	VolPersistence:   0.9,
	ExtremeFrequency: 0.01,
	MeanExtremeSize:  0.05,
}
