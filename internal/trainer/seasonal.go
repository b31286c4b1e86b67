package trainer

import (
	"fmt"
	"math"
	"time"
)

// seasonalParams are the fitted parameters of the seasonal-regression kind:
// a linear trend plus two daily harmonics, estimated by least squares.
type seasonalParams struct {
	Origin      time.Time  `json:"origin"`
	Coeffs      [6]float64 `json:"coeffs"`
	ResidualStd float64    `json:"residual_std"`
}

type seasonalPredictor struct {
	params seasonalParams
}

// seasonalFeatures builds the regression row for one timestamp:
// intercept, hours since origin, and first and second daily harmonics.
func seasonalFeatures(origin, ts time.Time) [6]float64 {
	hours := ts.Sub(origin).Hours()
	dayFrac := 2 * math.Pi * (float64(ts.Hour()) + float64(ts.Minute())/60) / 24
	return [6]float64{
		1,
		hours,
		math.Sin(dayFrac),
		math.Cos(dayFrac),
		math.Sin(2 * dayFrac),
		math.Cos(2 * dayFrac),
	}
}

func fitSeasonalRegression(samples Series) (Predictor, any, error) {
	origin := samples[0].Time

	x := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i := range samples {
		row := seasonalFeatures(origin, samples[i].Time)
		x[i] = row[:]
		y[i] = samples[i].Value
	}

	coeffs, err := leastSquares(x, y)
	if err != nil {
		return nil, nil, fmt.Errorf("seasonal regression fit: %w", err)
	}

	params := seasonalParams{Origin: origin}
	copy(params.Coeffs[:], coeffs)

	residuals := make([]float64, len(samples))
	p := &seasonalPredictor{params: params}
	for i := range samples {
		residuals[i] = samples[i].Value - p.Forecast(nil, samples[i].Time)
	}
	params.ResidualStd = stddev(residuals)
	p.params = params

	if !finite(params.Coeffs[:]...) || !finite(params.ResidualStd) {
		return nil, nil, fmt.Errorf("seasonal regression produced non-finite parameters")
	}

	return p, params, nil
}

// Forecast evaluates the fitted curve at target; recent history is not needed
// for this kind.
func (p *seasonalPredictor) Forecast(_ Series, target time.Time) float64 {
	row := seasonalFeatures(p.params.Origin, target)
	sum := 0.0
	for i := range row {
		sum += p.params.Coeffs[i] * row[i]
	}
	return sum
}

func (p *seasonalPredictor) ResidualStd() float64 {
	return p.params.ResidualStd
}

// finite reports whether all values are finite numbers.
func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
