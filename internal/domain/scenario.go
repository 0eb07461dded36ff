package domain

// Regime names a market scenario.
type Regime string

// Regime constants
const (
	RegimeBull     Regime = "bull"
	RegimeBear     Regime = "bear"
	RegimeVolatile Regime = "volatile"
	RegimeSideways Regime = "sideways"
)

// IsValid reports whether r is a known regime.
func (r Regime) IsValid() bool {
	_, ok := RegimePresets[r]
	return ok
}

// RegimePreset adjusts measured statistics when a market process is built.
type RegimePreset struct {
	Regime            Regime
	MeanSign          float64 // +1 or -1 forces the drift direction, 0 keeps the measured sign
	MeanMultiplier    float64 // applied to the measured mean
	VolMultiplier     float64 // applied to base volatility
	ExtremeMultiplier float64 // applied to extreme-event frequency
}

// MinRegimeDrift is the smallest |mean| a directional regime will use.
const MinRegimeDrift = 0.0002

// Predefined regime presets
var (
	RegimePresetBull = RegimePreset{
		Regime:            RegimeBull,
		MeanSign:          1,
		MeanMultiplier:    2.0,
		VolMultiplier:     0.8,
		ExtremeMultiplier: 0.5,
	}

	RegimePresetBear = RegimePreset{
		Regime:            RegimeBear,
		MeanSign:          -1,
		MeanMultiplier:    2.0,
		VolMultiplier:     1.2,
		ExtremeMultiplier: 1.5,
	}

	RegimePresetVolatile = RegimePreset{
		Regime:            RegimeVolatile,
		MeanSign:          0,
		MeanMultiplier:    1.0,
		VolMultiplier:     2.0,
		ExtremeMultiplier: 2.0,
	}

	RegimePresetSideways = RegimePreset{
		Regime:            RegimeSideways,
		MeanSign:          0,
		MeanMultiplier:    0,
		VolMultiplier:     0.6,
		ExtremeMultiplier: 0.5,
	}
)

// RegimePresets indexes presets by name.
var RegimePresets = map[Regime]RegimePreset{
	RegimeBull:     RegimePresetBull,
	RegimeBear:     RegimePresetBear,
	RegimeVolatile: RegimePresetVolatile,
	RegimeSideways: RegimePresetSideways,
}
