package scoring

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// MeanAbsoluteError is the mean of |predicted - true|.
func MeanAbsoluteError(trueVals, predicted []float64) float64 {
	if len(trueVals) == 0 || len(trueVals) != len(predicted) {
		return math.NaN()
	}
	var sum float64
	for i := range trueVals {
		sum += math.Abs(predicted[i] - trueVals[i])
	}
	return sum / float64(len(trueVals))
}

// MeanSquaredError is the mean of (predicted - true)^2.
func MeanSquaredError(trueVals, predicted []float64) float64 {
	if len(trueVals) == 0 || len(trueVals) != len(predicted) {
		return math.NaN()
	}
	var sum float64
	for i := range trueVals {
		d := predicted[i] - trueVals[i]
		sum += d * d
	}
	return sum / float64(len(trueVals))
}

// R2Score is the coefficient of determination, 1 - SSres/SStot. A constant
// true array scores 1 for a perfect fit and 0 otherwise.
func R2Score(trueVals, predicted []float64) float64 {
	if len(trueVals) == 0 || len(trueVals) != len(predicted) {
		return math.NaN()
	}
	m := mean(trueVals)
	var ssRes, ssTot float64
	for i := range trueVals {
		r := trueVals[i] - predicted[i]
		ssRes += r * r
		t := trueVals[i] - m
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1.0
		}
		return 0.0
	}
	return 1.0 - ssRes/ssTot
}

// ExplainedVariance is 1 - Var(true - predicted)/Var(true), with the same
// degenerate-denominator convention as R2Score.
func ExplainedVariance(trueVals, predicted []float64) float64 {
	if len(trueVals) == 0 || len(trueVals) != len(predicted) {
		return math.NaN()
	}
	residuals := make([]float64, len(trueVals))
	for i := range trueVals {
		residuals[i] = trueVals[i] - predicted[i]
	}
	varTrue := stat.Variance(trueVals, nil)
	varRes := stat.Variance(residuals, nil)
	if varTrue == 0 {
		if varRes == 0 {
			return 1.0
		}
		return 0.0
	}
	return 1.0 - varRes/varTrue
}
