package charts

import (
	"fmt"
	"math"

	"fundfolio/internal/api"
)

// SeriesStats summarises a portfolio value series.
type SeriesStats struct {
	InitialValue float64
	FinalValue   float64
	TotalReturn  float64 // percent
	AnnualReturn float64 // percent, geometric
	Volatility   float64 // percent, annualised
	SharpeRatio  float64 // risk-free rate assumed 0
	MaxDrawdown  float64 // percent
	NumDays      int
}

const tradingDaysPerYear = 252.0

// CalculateStats computes return, volatility, Sharpe ratio and max drawdown
// of a value series. The series must hold at least three samples and start
// above zero.
func CalculateStats(series api.ValueSeries) (*SeriesStats, error) {
	if len(series) < 3 {
		return nil, fmt.Errorf("need at least 3 samples for statistics, got %d", len(series))
	}
	values := make([]float64, len(series))
	for i, s := range series {
		values[i] = s.Value
	}
	initialValue := values[0]
	finalValue := values[len(values)-1]
	if initialValue <= 0 {
		return nil, fmt.Errorf("invalid initial value %f", initialValue)
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			returns = append(returns, (values[i]-values[i-1])/values[i-1])
		} else {
			returns = append(returns, 0)
		}
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	// sample variance, N-1
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	annualVolatility := math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)

	years := float64(len(returns)) / tradingDaysPerYear
	var annualReturn float64
	if finalValue > 0 {
		annualReturn = math.Pow(finalValue/initialValue, 1.0/years) - 1.0
	}

	var sharpe float64
	if annualVolatility > 0 {
		sharpe = annualReturn / annualVolatility
	}

	stats := &SeriesStats{
		InitialValue: initialValue,
		FinalValue:   finalValue,
		TotalReturn:  (finalValue - initialValue) / initialValue * 100,
		AnnualReturn: annualReturn * 100,
		Volatility:   annualVolatility * 100,
		SharpeRatio:  sharpe,
		MaxDrawdown:  maxDrawdown(values) * 100,
		NumDays:      len(values),
	}
	for name, v := range map[string]float64{
		"total return":  stats.TotalReturn,
		"annual return": stats.AnnualReturn,
		"volatility":    stats.Volatility,
		"sharpe ratio":  stats.SharpeRatio,
		"max drawdown":  stats.MaxDrawdown,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid %s: %f", name, v)
		}
	}
	return stats, nil
}

// String is the one-line subtitle used under value charts.
func (s *SeriesStats) String() string {
	return fmt.Sprintf("Return: %.2f%% | Sharpe: %.2f | Vol: %.2f%% | MaxDD: %.2f%%",
		s.TotalReturn, s.SharpeRatio, s.Volatility, s.MaxDrawdown)
}

// maxDrawdown is the largest peak-to-trough decline as a fraction of the peak.
func maxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	peak := values[0]
	if peak <= 0 {
		for _, v := range values[1:] {
			if v > 0 {
				peak = v
				break
			}
		}
		if peak <= 0 {
			return 0
		}
	}
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if v >= 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
