package orchestrator

import (
	"fmt"
	"math"

	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
)

// Decision is the outcome of comparing a candidate against the active model.
type Decision struct {
	Promote bool
	Reason  string
}

// Decide applies the promotion rule for one entity: promote when no model is
// active, or when the candidate error is strictly below the active error
// reduced by minImprovement. Equal performance keeps the incumbent, so
// retraining on unchanged data never churns deployments.
//
// A non-finite or negative metric is a contract violation by the caller, not
// a runtime condition, and fails loudly as a validation error.
func Decide(candidateMAE float64, active *datastore.ModelRecord, minImprovement float64) (Decision, error) {
	if !validMetric(candidateMAE) {
		return Decision{}, errors.Newf("candidate metric %v violates the evaluator contract", candidateMAE).
			Component("orchestrator").
			Category(errors.CategoryValidation).
			Build()
	}
	if active == nil {
		return Decision{Promote: true, Reason: "first model for entity"}, nil
	}
	if !validMetric(active.MAE) {
		return Decision{}, errors.Newf("active model v%d carries invalid metric %v", active.Version, active.MAE).
			Component("orchestrator").
			Category(errors.CategoryValidation).
			Context("tag", active.Tag).
			Build()
	}

	required := active.MAE * (1 - minImprovement)
	if candidateMAE < required {
		return Decision{
			Promote: true,
			Reason:  fmt.Sprintf("candidate mae %.6g beats active %.6g", candidateMAE, active.MAE),
		}, nil
	}
	return Decision{
		Promote: false,
		Reason:  fmt.Sprintf("candidate mae %.6g does not improve on active %.6g", candidateMAE, active.MAE),
	}, nil
}

func validMetric(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
