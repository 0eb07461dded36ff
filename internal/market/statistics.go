package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"trading-agent-lab/internal/domain"
)

// Statistics source errors
var (
	ErrInvalidStatistics = errors.New("invalid market statistics")
)

// StatisticsSource provides measured return statistics.
type StatisticsSource interface {
	Load(ctx context.Context) (domain.MarketStatistics, error)
}

// FileStatisticsSource reads statistics from a JSON file.
type FileStatisticsSource struct {
	Path string
}

var _ StatisticsSource = FileStatisticsSource{}

// Load reads and validates the statistics file.
func (s FileStatisticsSource) Load(_ context.Context) (domain.MarketStatistics, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return domain.MarketStatistics{}, fmt.Errorf("read statistics: %w", err)
	}

	var stats domain.MarketStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		return domain.MarketStatistics{}, fmt.Errorf("decode statistics: %w", err)
	}

	if err := ValidateStatistics(stats); err != nil {
		return domain.MarketStatistics{}, err
	}
	return stats, nil
}

// StaticStatisticsSource returns fixed statistics.
type StaticStatisticsSource domain.MarketStatistics

// Load returns the wrapped statistics.
func (s StaticStatisticsSource) Load(_ context.Context) (domain.MarketStatistics, error) {
	stats := domain.MarketStatistics(s)
	if err := ValidateStatistics(stats); err != nil {
		return domain.MarketStatistics{}, err
	}
	return stats, nil
}

// ValidateStatistics checks that statistics can drive the process.
func ValidateStatistics(s domain.MarketStatistics) error {
	fields := []struct {
		name string
		v    float64
	}{
		{"mean_return", s.MeanReturn},
		{"volatility", s.Volatility},
		{"skew", s.Skew},
		{"kurtosis", s.Kurtosis},
		{"vol_persistence", s.VolPersistence},
		{"extreme_frequency", s.ExtremeFrequency},
		{"mean_extreme_size", s.MeanExtremeSize},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s not finite", ErrInvalidStatistics, f.name)
		}
	}
	if s.Volatility <= 0 {
		return fmt.Errorf("%w: volatility must be > 0", ErrInvalidStatistics)
	}
	if s.VolPersistence < 0 || s.VolPersistence >= 1 {
		return fmt.Errorf("%w: vol_persistence must be in [0,1)", ErrInvalidStatistics)
	}
	if s.ExtremeFrequency < 0 || s.ExtremeFrequency > 1 {
		return fmt.Errorf("%w: extreme_frequency must be in [0,1]", ErrInvalidStatistics)
	}
	if s.MeanExtremeSize < 0 {
		return fmt.Errorf("%w: mean_extreme_size must be >= 0", ErrInvalidStatistics)
	}
	return nil
}

// DegreesOfFreedom derives Student-t degrees of freedom from the target kurtosis.
// Kurtosis <= 3 has no finite fat-tail match and falls back to 5.
func DegreesOfFreedom(kurtosis float64) float64 {
	if kurtosis <= 3 {
		return 5
	}
	return 4 + 6/(kurtosis-3)
}

// applyRegime adjusts measured statistics with a regime preset.
func applyRegime(s domain.MarketStatistics, p domain.RegimePreset) domain.MarketStatistics {
	out := s

	if p.MeanSign == 0 {
		out.MeanReturn = s.MeanReturn * p.MeanMultiplier
	} else {
		mag := math.Abs(s.MeanReturn) * p.MeanMultiplier
		if mag < domain.MinRegimeDrift {
			mag = domain.MinRegimeDrift
		}
		out.MeanReturn = p.MeanSign * mag
	}

	out.Volatility = s.Volatility * p.VolMultiplier
	out.ExtremeFrequency = math.Min(1, s.ExtremeFrequency*p.ExtremeMultiplier)
	return out
}
