package trainer

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	boostedRounds      = 50
	boostedLearnRate   = 0.1
	boostedLags        = 3
	boostedSplitPoints = 10
)

// stump is one depth-1 regression tree: a single threshold split on one
// feature with constant leaf values (learning rate already applied).
type stump struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
}

// boostedParams are the fitted parameters of the gradient-boosted kind.
type boostedParams struct {
	Base        float64 `json:"base"`
	Stumps      []stump `json:"stumps"`
	ResidualStd float64 `json:"residual_std"`
}

type boostedPredictor struct {
	params boostedParams
}

// boostedFeatures builds the feature vector for predicting the value at
// target from the most recent observed values (newest last):
// three lags plus the fractional hour of day.
func boostedFeatures(lags [boostedLags]float64, target time.Time) [boostedLags + 1]float64 {
	return [boostedLags + 1]float64{
		lags[0],
		lags[1],
		lags[2],
		float64(target.Hour()) + float64(target.Minute())/60,
	}
}

func fitGradientBoosted(samples Series) (Predictor, any, error) {
	if len(samples) <= boostedLags {
		return nil, nil, fmt.Errorf("need more than %d samples for lag features", boostedLags)
	}

	n := len(samples) - boostedLags
	features := make([][boostedLags + 1]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := i + boostedLags
		lags := [boostedLags]float64{
			samples[idx-1].Value,
			samples[idx-2].Value,
			samples[idx-3].Value,
		}
		features[i] = boostedFeatures(lags, samples[idx].Time)
		y[i] = samples[idx].Value
	}

	base := mean(y)
	preds := make([]float64, n)
	for i := range preds {
		preds[i] = base
	}

	residual := make([]float64, n)
	stumps := make([]stump, 0, boostedRounds)

	for round := 0; round < boostedRounds; round++ {
		for i := range residual {
			residual[i] = y[i] - preds[i]
		}

		best, ok := bestStump(features, residual)
		if !ok {
			break
		}

		// fold the learning rate into the stored leaf values
		best.Left *= boostedLearnRate
		best.Right *= boostedLearnRate
		stumps = append(stumps, best)

		for i := range preds {
			preds[i] += best.apply(features[i])
		}
	}

	params := boostedParams{Base: base, Stumps: stumps}

	finalResiduals := make([]float64, n)
	for i := range finalResiduals {
		finalResiduals[i] = y[i] - preds[i]
	}
	params.ResidualStd = stddev(finalResiduals)

	if !finite(base, params.ResidualStd) {
		return nil, nil, fmt.Errorf("boosting produced non-finite parameters")
	}

	return &boostedPredictor{params: params}, params, nil
}

// bestStump finds the single split minimizing squared error against the
// residuals, scanning quantile thresholds for each feature.
func bestStump(features [][boostedLags + 1]float64, residual []float64) (stump, bool) {
	n := len(residual)
	bestSSE := math.Inf(1)
	var best stump
	found := false

	for f := 0; f < boostedLags+1; f++ {
		values := make([]float64, n)
		for i := range features {
			values[i] = features[i][f]
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)

		for s := 1; s <= boostedSplitPoints; s++ {
			threshold := sorted[n*s/(boostedSplitPoints+1)]

			var leftSum, rightSum float64
			var leftN, rightN int
			for i := range values {
				if values[i] <= threshold {
					leftSum += residual[i]
					leftN++
				} else {
					rightSum += residual[i]
					rightN++
				}
			}
			if leftN == 0 || rightN == 0 {
				continue
			}

			leftMean := leftSum / float64(leftN)
			rightMean := rightSum / float64(rightN)

			sse := 0.0
			for i := range values {
				var pred float64
				if values[i] <= threshold {
					pred = leftMean
				} else {
					pred = rightMean
				}
				d := residual[i] - pred
				sse += d * d
			}

			if sse < bestSSE {
				bestSSE = sse
				best = stump{Feature: f, Threshold: threshold, Left: leftMean, Right: rightMean}
				found = true
			}
		}
	}

	return best, found
}

func (s *stump) apply(features [boostedLags + 1]float64) float64 {
	if features[s.Feature] <= s.Threshold {
		return s.Left
	}
	return s.Right
}

// Forecast predicts the value at target using the last observed values as
// lag features. With no recent history the base level is returned.
func (p *boostedPredictor) Forecast(recent Series, target time.Time) float64 {
	var lags [boostedLags]float64
	switch {
	case len(recent) == 0:
		return p.params.Base
	case len(recent) < boostedLags:
		last := recent[len(recent)-1].Value
		lags = [boostedLags]float64{last, last, last}
	default:
		lags = [boostedLags]float64{
			recent[len(recent)-1].Value,
			recent[len(recent)-2].Value,
			recent[len(recent)-3].Value,
		}
	}

	features := boostedFeatures(lags, target)
	sum := p.params.Base
	for i := range p.params.Stumps {
		sum += p.params.Stumps[i].apply(features)
	}
	return sum
}

func (p *boostedPredictor) ResidualStd() float64 {
	return p.params.ResidualStd
}
