// Package scoring provides the scoring-function registry used by the results
// store: named scalar metrics computed from (true, predicted) target arrays.
// Classification labels are numerically encoded class values; regression
// targets are plain floats. Scorers return NaN for inputs they cannot score
// (empty or length-mismatched arrays) so unset cells stay missing.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Scorer maps (true, predicted) target arrays to a scalar score.
type Scorer func(trueVals, predicted []float64) float64

// Metric is a named scorer, the unit of registration in a results store.
type Metric struct {
	Name  string
	Score Scorer
}

var registry = map[string]Scorer{
	"accuracy":            Accuracy,
	"balanced_accuracy":   BalancedAccuracy,
	"f1_weighted":         F1Weighted,
	"mean_absolute_error": MeanAbsoluteError,
	"mean_squared_error":  MeanSquaredError,
	"r2_score":            R2Score,
	"explained_variance":  ExplainedVariance,
}

// Names returns the registered metric names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the scorer registered under name, if any.
func Lookup(name string) (Scorer, bool) {
	s, ok := registry[strings.ToLower(name)]
	return s, ok
}

// ByName resolves metric names against the registry, preserving order.
func ByName(names ...string) ([]Metric, error) {
	metrics := make([]Metric, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(name)
		scorer, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unrecognized metric %q: must be one of %s",
				name, strings.Join(Names(), ", "))
		}
		metrics = append(metrics, Metric{Name: name, Score: scorer})
	}
	return metrics, nil
}

// DefaultClassification is the metric set used when a classification store
// is constructed without one.
func DefaultClassification() []Metric {
	return []Metric{
		{Name: "balanced_accuracy", Score: BalancedAccuracy},
		{Name: "accuracy", Score: Accuracy},
	}
}

// DefaultRegression is the metric set used when a regression store is
// constructed without one.
func DefaultRegression() []Metric {
	return []Metric{
		{Name: "mean_absolute_error", Score: MeanAbsoluteError},
		{Name: "mean_squared_error", Score: MeanSquaredError},
		{Name: "r2_score", Score: R2Score},
	}
}

// Accuracy is the fraction of predictions matching the true labels.
func Accuracy(trueVals, predicted []float64) float64 {
	if len(trueVals) == 0 || len(trueVals) != len(predicted) {
		return math.NaN()
	}
	correct := 0
	for i := range trueVals {
		if trueVals[i] == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(trueVals))
}

// BalancedAccuracy is the mean per-class recall, insensitive to class
// imbalance. Chance level is 1/numClasses.
func BalancedAccuracy(trueVals, predicted []float64) float64 {
	if len(trueVals) == 0 || len(trueVals) != len(predicted) {
		return math.NaN()
	}
	classes := Classes(trueVals)
	cm := ConfusionMatrix(trueVals, predicted, classes)
	var recallSum float64
	for i := range classes {
		var rowTotal float64
		for j := range classes {
			rowTotal += cm[i][j]
		}
		recallSum += safeDivide(cm[i][i], rowTotal)
	}
	return recallSum / float64(len(classes))
}

// F1Weighted is the support-weighted mean of per-class F1 scores.
func F1Weighted(trueVals, predicted []float64) float64 {
	if len(trueVals) == 0 || len(trueVals) != len(predicted) {
		return math.NaN()
	}
	classes := Classes(trueVals, predicted)
	cm := ConfusionMatrix(trueVals, predicted, classes)

	var weighted, totalSupport float64
	for i := range classes {
		tp := cm[i][i]
		var fp, fn, support float64
		for j := range classes {
			support += cm[i][j]
			if j != i {
				fp += cm[j][i]
				fn += cm[i][j]
			}
		}
		precision := safeDivide(tp, tp+fp)
		recall := safeDivide(tp, tp+fn)
		f1 := safeDivide(2*precision*recall, precision+recall)
		weighted += f1 * support
		totalSupport += support
	}
	return safeDivide(weighted, totalSupport)
}

// Classes returns the sorted distinct values across the given arrays.
func Classes(arrays ...[]float64) []float64 {
	seen := make(map[float64]struct{})
	for _, arr := range arrays {
		for _, v := range arr {
			seen[v] = struct{}{}
		}
	}
	classes := make([]float64, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Float64s(classes)
	return classes
}

// ConfusionMatrix counts predicted vs true labels: rows are true classes,
// columns predicted, both in the order given by classes. Labels outside
// classes are ignored.
func ConfusionMatrix(trueVals, predicted []float64, classes []float64) [][]float64 {
	idx := make(map[float64]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	cm := make([][]float64, len(classes))
	for i := range cm {
		cm[i] = make([]float64, len(classes))
	}
	n := len(trueVals)
	if len(predicted) < n {
		n = len(predicted)
	}
	for i := 0; i < n; i++ {
		ti, tok := idx[trueVals[i]]
		pi, pok := idx[predicted[i]]
		if tok && pok {
			cm[ti][pi]++
		}
	}
	return cm
}

// Misclassified returns the ids of samplets whose prediction differs from
// the true label. When ids is nil, positional ids "samplet-<i>" are used.
func Misclassified(ids []string, trueVals, predicted []float64) []string {
	n := len(trueVals)
	if len(predicted) < n {
		n = len(predicted)
	}
	var missed []string
	for i := 0; i < n; i++ {
		if trueVals[i] == predicted[i] {
			continue
		}
		if ids != nil && i < len(ids) {
			missed = append(missed, ids[i])
		} else {
			missed = append(missed, fmt.Sprintf("samplet-%d", i))
		}
	}
	return missed
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0.0
	}
	result := numerator / denominator
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0.0
	}
	return result
}

func mean(vals []float64) float64 {
	return stat.Mean(vals, nil)
}
