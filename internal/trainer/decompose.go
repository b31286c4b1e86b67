package trainer

import (
	"fmt"
	"time"
)

// decompositionParams are the fitted parameters of the additive-decomposition
// kind: a linear level/trend component plus hour-of-day seasonal indices
// estimated from detrended residuals.
type decompositionParams struct {
	Origin      time.Time   `json:"origin"`
	Level       float64     `json:"level"`
	SlopePerHr  float64     `json:"slope_per_hour"`
	Seasonal    [24]float64 `json:"seasonal"`
	ResidualStd float64     `json:"residual_std"`
}

type decompositionPredictor struct {
	params decompositionParams
}

func fitAdditiveDecomposition(samples Series) (Predictor, any, error) {
	origin := samples[0].Time

	// trend: least squares on [1, hours since origin]
	x := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i := range samples {
		x[i] = []float64{1, samples[i].Time.Sub(origin).Hours()}
		y[i] = samples[i].Value
	}
	coeffs, err := leastSquares(x, y)
	if err != nil {
		return nil, nil, fmt.Errorf("decomposition trend fit: %w", err)
	}
	level, slope := coeffs[0], coeffs[1]

	// seasonal indices: mean detrended value per hour-of-day bucket,
	// re-centered so the indices sum to zero
	var bucketSum, bucketCount [24]float64
	for i := range samples {
		h := samples[i].Time.Hour()
		detrended := samples[i].Value - (level + slope*samples[i].Time.Sub(origin).Hours())
		bucketSum[h] += detrended
		bucketCount[h]++
	}

	var seasonal [24]float64
	total := 0.0
	filled := 0
	for h := 0; h < 24; h++ {
		if bucketCount[h] > 0 {
			seasonal[h] = bucketSum[h] / bucketCount[h]
			total += seasonal[h]
			filled++
		}
	}
	if filled == 0 {
		return nil, nil, fmt.Errorf("decomposition found no seasonal buckets")
	}
	center := total / float64(filled)
	for h := 0; h < 24; h++ {
		if bucketCount[h] > 0 {
			seasonal[h] -= center
		}
	}
	// the recentering shifts the level by the same amount
	level += center

	params := decompositionParams{
		Origin:     origin,
		Level:      level,
		SlopePerHr: slope,
		Seasonal:   seasonal,
	}

	p := &decompositionPredictor{params: params}
	residuals := make([]float64, len(samples))
	for i := range samples {
		residuals[i] = samples[i].Value - p.Forecast(nil, samples[i].Time)
	}
	params.ResidualStd = stddev(residuals)
	p.params = params

	if !finite(level, slope, params.ResidualStd) {
		return nil, nil, fmt.Errorf("decomposition produced non-finite parameters")
	}

	return p, params, nil
}

func (p *decompositionPredictor) Forecast(_ Series, target time.Time) float64 {
	hours := target.Sub(p.params.Origin).Hours()
	return p.params.Level + p.params.SlopePerHr*hours + p.params.Seasonal[target.Hour()]
}

func (p *decompositionPredictor) ResidualStd() float64 {
	return p.params.ResidualStd
}
