// Package results implements the accumulation store for repeated
// cross-validation experiments: per-repetition, per-dataset metric values,
// free-form attributes, experiment metadata, and raw prediction arrays,
// together with checkpoint dump/load and summary statistics. A store is
// owned and mutated by exactly one evaluation loop; it does no locking of
// its own.
package results

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/raamana/psy/scoring"
)

var (
	// ErrNotImplemented marks operations that are declared but deliberately
	// unimplemented. Callers must not depend on them.
	ErrNotImplemented = errors.New("not implemented")

	// ErrBadSnapshot marks checkpoint files whose schema version or kind
	// does not match what the loader expects.
	ErrBadSnapshot = errors.New("incompatible results snapshot")
)

// Store kinds, recorded in checkpoints and reports.
const (
	KindBase     = "base"
	KindClassify = "classify"
	KindRegress  = "regress"
)

// DefaultNumRep is the repetition count used when a caller passes zero.
const DefaultNumRep = 10

// RunKey is the composite (dataset, run) key under which diagnostics,
// attributes and raw target arrays are stored.
type RunKey struct {
	Dataset string
	Run     int
}

// CVResults accumulates the results of one cross-validation experiment.
type CVResults struct {
	id        string
	kind      string
	createdAt time.Time

	numRep      int
	datasetIDs  []string
	metricNames []string
	metricSet   map[string]scoring.Scorer
	metricVal   map[string]map[string][]float64

	attr map[string]map[RunKey]any
	meta map[string]any

	trueTargets      map[RunKey][]float64
	predictedTargets map[RunKey][]float64

	count    int
	observer Observer
}

// New constructs a base store for numRep repetitions over the given
// datasets. A numRep of zero selects DefaultNumRep; negative values are
// rejected. Empty datasetIDs defaults to a single "dataset1". The metric
// set must be non-empty with unique names and non-nil scorers.
func New(metricSet []scoring.Metric, numRep int, datasetIDs []string) (*CVResults, error) {
	if numRep == 0 {
		numRep = DefaultNumRep
	}
	if numRep < 1 {
		return nil, fmt.Errorf("num_rep must be a positive integer, got %d", numRep)
	}
	if len(metricSet) == 0 {
		return nil, errors.New("metric set must contain at least one metric")
	}
	if len(datasetIDs) == 0 {
		datasetIDs = []string{"dataset1"}
	}

	seen := make(map[string]struct{}, len(datasetIDs))
	for _, id := range datasetIDs {
		if id == "" {
			return nil, errors.New("dataset ids must be non-empty")
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate dataset id %q", id)
		}
		seen[id] = struct{}{}
	}

	r := &CVResults{
		id:               uuid.New().String(),
		kind:             KindBase,
		createdAt:        time.Now(),
		numRep:           numRep,
		datasetIDs:       append([]string(nil), datasetIDs...),
		metricSet:        make(map[string]scoring.Scorer, len(metricSet)),
		metricVal:        make(map[string]map[string][]float64, len(metricSet)),
		attr:             make(map[string]map[RunKey]any),
		meta:             make(map[string]any),
		trueTargets:      make(map[RunKey][]float64),
		predictedTargets: make(map[RunKey][]float64),
	}

	for _, m := range metricSet {
		name := strings.ToLower(strings.TrimSpace(m.Name))
		if name == "" {
			return nil, errors.New("metric names must be non-empty")
		}
		if m.Score == nil {
			return nil, fmt.Errorf("metric %q has a nil scorer", name)
		}
		if _, dup := r.metricSet[name]; dup {
			return nil, fmt.Errorf("duplicate metric %q", name)
		}
		r.metricSet[name] = m.Score
		r.metricNames = append(r.metricNames, name)
		r.initMetric(name)
	}

	return r, nil
}

// initMetric allocates the all-NaN value slices for one metric.
func (r *CVResults) initMetric(name string) {
	if _, ok := r.metricVal[name]; ok {
		return
	}
	perDS := make(map[string][]float64, len(r.datasetIDs))
	for _, id := range r.datasetIDs {
		vals := make([]float64, r.numRep)
		for i := range vals {
			vals[i] = math.NaN()
		}
		perDS[id] = vals
	}
	r.metricVal[name] = perDS
}

// ID returns the experiment identifier assigned at construction.
func (r *CVResults) ID() string { return r.id }

// Kind reports which variant the store is: base, classify or regress.
func (r *CVResults) Kind() string { return r.kind }

// CreatedAt returns the construction (or original construction, after a
// load) timestamp.
func (r *CVResults) CreatedAt() time.Time { return r.createdAt }

// NumRep returns the repetition count the store was sized for.
func (r *CVResults) NumRep() int { return r.numRep }

// Count returns the number of Add calls so far.
func (r *CVResults) Count() int { return r.count }

// DatasetIDs returns the dataset identifiers in registration order.
func (r *CVResults) DatasetIDs() []string {
	return append([]string(nil), r.datasetIDs...)
}

// MetricNames returns the metric names in registration order.
func (r *CVResults) MetricNames() []string {
	return append([]string(nil), r.metricNames...)
}

// SetObserver registers a progress sink notified after every Add. A nil
// observer disables notification.
func (r *CVResults) SetObserver(obs Observer) { r.observer = obs }

func (r *CVResults) checkKey(runID int, datasetID string) error {
	if runID < 0 || runID >= r.numRep {
		return fmt.Errorf("run id %d out of range [0, %d)", runID, r.numRep)
	}
	if !r.hasDataset(datasetID) {
		return fmt.Errorf("unknown dataset %q: choose from %s",
			datasetID, strings.Join(r.datasetIDs, ", "))
	}
	return nil
}

func (r *CVResults) hasDataset(id string) bool {
	for _, d := range r.datasetIDs {
		if d == id {
			return true
		}
	}
	return false
}

// Add records one repetition's predictions for one dataset: the raw arrays
// are kept as passed (the store does not copy), every registered metric
// with a bound scorer is computed and stored at its (metric, dataset, run)
// cell, and the observer, if any, is notified. Value-only metrics
// registered through AddMetric are left untouched.
func (r *CVResults) Add(runID int, datasetID string, predicted, trueVals []float64) error {
	if err := r.checkKey(runID, datasetID); err != nil {
		return err
	}

	key := RunKey{Dataset: datasetID, Run: runID}
	r.trueTargets[key] = trueVals
	r.predictedTargets[key] = predicted

	scores := make(map[string]float64, len(r.metricNames))
	ev := log.Info().Int("run", runID).Str("dataset", datasetID)
	for _, name := range r.metricNames {
		scorer := r.metricSet[name]
		if scorer == nil {
			continue
		}
		score := scorer(trueVals, predicted)
		r.metricVal[name][datasetID][runID] = score
		scores[name] = score
		ev = ev.Float64(name, score)
	}
	ev.Msg("cv run scored")

	r.count++

	if r.observer != nil {
		r.observer.RunScored(RunScore{
			ExperimentID: r.id,
			Run:          runID,
			Dataset:      datasetID,
			Scores:       scores,
			Count:        r.count,
			Timestamp:    time.Now(),
		})
	}
	return nil
}

// AddMetric sets one metric cell directly, bypassing scorer computation.
// An unseen name is lazily registered as a value-only metric with all
// other cells missing.
func (r *CVResults) AddMetric(runID int, datasetID string, name string, value float64) error {
	if err := r.checkKey(runID, datasetID); err != nil {
		return err
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return errors.New("metric name must be non-empty")
	}
	if _, ok := r.metricVal[name]; !ok {
		r.metricSet[name] = nil
		r.metricNames = append(r.metricNames, name)
		r.initMetric(name)
	}
	r.metricVal[name][datasetID][runID] = value
	return nil
}

// AddAttr stores a free-form value for post-hoc analyses under the
// composite (dataset, run) key. Keys are not validated against the
// store's grid.
func (r *CVResults) AddAttr(runID int, datasetID string, name string, value any) {
	if _, ok := r.attr[name]; !ok {
		r.attr[name] = make(map[RunKey]any)
	}
	r.attr[name][RunKey{Dataset: datasetID, Run: runID}] = value
}

// AddMeta stores an experiment-wide value, e.g. the class set or the model
// and optimization strategies used.
func (r *CVResults) AddMeta(name string, value any) {
	r.meta[name] = value
}

// Attr returns the per-run values stored under name.
func (r *CVResults) Attr(name string) (map[RunKey]any, bool) {
	m, ok := r.attr[name]
	return m, ok
}

// Meta returns the experiment-wide value stored under name.
func (r *CVResults) Meta(name string) (any, bool) {
	v, ok := r.meta[name]
	return v, ok
}

// MetaKeys returns the names of all stored meta values, sorted.
func (r *CVResults) MetaKeys() []string {
	keys := make([]string, 0, len(r.meta))
	for k := range r.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TrueTargets returns the raw true-target array recorded for one run.
func (r *CVResults) TrueTargets(runID int, datasetID string) ([]float64, bool) {
	v, ok := r.trueTargets[RunKey{Dataset: datasetID, Run: runID}]
	return v, ok
}

// PredictedTargets returns the raw predictions recorded for one run.
func (r *CVResults) PredictedTargets(runID int, datasetID string) ([]float64, bool) {
	v, ok := r.predictedTargets[RunKey{Dataset: datasetID, Run: runID}]
	return v, ok
}

// ToArray consolidates one metric into a dense [numRep][len(ids)] matrix
// whose column i holds the values for ids[i], together with the resolved
// dataset order. Nil dsIDs selects all datasets in registration order. An
// unregistered metric or unknown dataset id is an error listing the valid
// choices.
func (r *CVResults) ToArray(metric string, dsIDs []string) ([][]float64, []string, error) {
	metric = strings.ToLower(metric)
	perDS, ok := r.metricVal[metric]
	if !ok {
		return nil, nil, fmt.Errorf("unrecognized metric %q: must be one of %s",
			metric, strings.Join(r.metricNames, ", "))
	}

	if dsIDs == nil {
		dsIDs = r.datasetIDs
	} else {
		for _, id := range dsIDs {
			if !r.hasDataset(id) {
				return nil, nil, fmt.Errorf("dataset %q not recognized: choose from %s",
					id, strings.Join(r.datasetIDs, ", "))
			}
		}
	}

	out := make([][]float64, r.numRep)
	for rep := 0; rep < r.numRep; rep++ {
		row := make([]float64, len(dsIDs))
		for i, id := range dsIDs {
			row[i] = perDS[id][rep]
		}
		out[rep] = row
	}
	resolved := append([]string(nil), dsIDs...)
	return out, resolved, nil
}

// Export converts the results to a portable format. Deliberately
// unimplemented.
func (r *CVResults) Export() error {
	return fmt.Errorf("export: %w", ErrNotImplemented)
}

// String summarizes the store: registered metrics, run and dataset counts,
// and per metric per dataset median and SD over the finite values.
func (r *CVResults) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Metrics : %s\n", strings.Join(r.metricNames, ", "))
	fmt.Fprintf(&b, " # runs : %d, # datasets : %d\n", r.count, len(r.datasetIDs))
	b.WriteString(r.metricSummary())
	return b.String()
}

func (r *CVResults) metricSummary() string {
	if r.count == 0 {
		return "no results added so far\n"
	}

	wDS := 0
	for _, id := range r.datasetIDs {
		if len(id) > wDS {
			wDS = len(id)
		}
	}

	var b strings.Builder
	for _, name := range r.metricNames {
		fmt.Fprintf(&b, "%s\n", name)
		for _, id := range r.datasetIDs {
			vals := finiteValues(r.metricVal[name][id])
			if len(vals) == 0 {
				fmt.Fprintf(&b, "\t%*s  : no values\n", wDS, id)
				continue
			}
			fmt.Fprintf(&b, "\t%*s  : median %-7.4f SD %-7.4f\n",
				wDS, id, nanMedian(vals), stat.PopStdDev(vals, nil))
		}
	}
	return b.String()
}

// MetricSummary is one (metric, dataset) row of a summary: median and
// population SD over the n finite values recorded so far.
type MetricSummary struct {
	Metric  string  `json:"metric"`
	Dataset string  `json:"dataset"`
	Median  float64 `json:"median"`
	SD      float64 `json:"sd"`
	N       int     `json:"n"`
}

// Summary is the portable summary model consumed by reports, the archive,
// the tracker and the monitor. Rows exist only for (metric, dataset) pairs
// with at least one finite value, keeping the model JSON-safe.
type Summary struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	CreatedAt   time.Time         `json:"created_at"`
	NumRep      int               `json:"num_rep"`
	DatasetIDs  []string          `json:"dataset_ids"`
	MetricNames []string          `json:"metric_names"`
	Count       int               `json:"count"`
	Metrics     []MetricSummary   `json:"metrics"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Summary builds the portable summary of the current state.
func (r *CVResults) Summary() Summary {
	s := Summary{
		ID:          r.id,
		Kind:        r.kind,
		CreatedAt:   r.createdAt,
		NumRep:      r.numRep,
		DatasetIDs:  r.DatasetIDs(),
		MetricNames: r.MetricNames(),
		Count:       r.count,
	}
	for _, name := range r.metricNames {
		for _, id := range r.datasetIDs {
			vals := finiteValues(r.metricVal[name][id])
			if len(vals) == 0 {
				continue
			}
			s.Metrics = append(s.Metrics, MetricSummary{
				Metric:  name,
				Dataset: id,
				Median:  nanMedian(vals),
				SD:      stat.PopStdDev(vals, nil),
				N:       len(vals),
			})
		}
	}
	if len(r.meta) > 0 {
		s.Meta = make(map[string]string, len(r.meta))
		for k, v := range r.meta {
			s.Meta[k] = fmt.Sprint(v)
		}
	}
	return s
}

// finiteValues filters NaN and infinities out of vals.
func finiteValues(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// nanMedian is the median of the given finite values: the midpoint of the
// two central elements for even lengths.
func nanMedian(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
