package results

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raamana/psy/scoring"
)

const (
	snapshotSchemaVersion = 1
	checkpointPrefix      = "cvresults"
	checkpointExt         = ".gob"
	timestampLayout       = "20060102-150405"
)

// snapshot is the on-disk checkpoint schema. Scorer functions are not
// serializable; metric names are stored instead and rebound against the
// scoring registry on load. Fields only one variant uses stay nil for the
// others.
type snapshot struct {
	SchemaVersion int
	Kind          string
	ID            string
	CreatedAt     time.Time

	NumRep      int
	DatasetIDs  []string
	MetricNames []string
	MetricVals  map[string]map[string][]float64

	Attr map[string]map[RunKey]any
	Meta map[string]any

	TrueTargets map[RunKey][]float64
	PredTargets map[RunKey][]float64
	Count       int

	ConfusionMat map[RunKey][][]float64
	Misclfd      map[RunKey][]string
	Residuals    map[RunKey][]float64
}

func init() {
	// Concrete types that may travel inside attr/meta values. Callers
	// storing other types must gob.Register them before Dump.
	gob.Register(time.Time{})
	gob.Register([]float64(nil))
	gob.Register([]string(nil))
	gob.Register([]int(nil))
	gob.Register(map[string]float64(nil))
	gob.Register(map[string]string(nil))
}

func (r *CVResults) snapshot() *snapshot {
	return &snapshot{
		SchemaVersion: snapshotSchemaVersion,
		Kind:          r.kind,
		ID:            r.id,
		CreatedAt:     r.createdAt,
		NumRep:        r.numRep,
		DatasetIDs:    r.datasetIDs,
		MetricNames:   r.metricNames,
		MetricVals:    r.metricVal,
		Attr:          r.attr,
		Meta:          r.meta,
		TrueTargets:   r.trueTargets,
		PredTargets:   r.predictedTargets,
		Count:         r.count,
	}
}

// restore rebuilds the base fields from a snapshot, rebinding scorers from
// the registry by name. Names the registry does not know stay value-only.
func (r *CVResults) restore(snap *snapshot) {
	r.id = snap.ID
	r.kind = snap.Kind
	r.createdAt = snap.CreatedAt
	r.numRep = snap.NumRep
	r.datasetIDs = snap.DatasetIDs
	r.metricNames = snap.MetricNames
	r.metricVal = snap.MetricVals
	r.attr = snap.Attr
	r.meta = snap.Meta
	r.trueTargets = snap.TrueTargets
	r.predictedTargets = snap.PredTargets
	r.count = snap.Count

	r.metricSet = make(map[string]scoring.Scorer, len(snap.MetricNames))
	for _, name := range snap.MetricNames {
		if scorer, ok := scoring.Lookup(name); ok {
			r.metricSet[name] = scorer
		} else {
			r.metricSet[name] = nil
		}
	}
	if r.attr == nil {
		r.attr = make(map[string]map[RunKey]any)
	}
	if r.meta == nil {
		r.meta = make(map[string]any)
	}
	if r.trueTargets == nil {
		r.trueTargets = make(map[RunKey][]float64)
	}
	if r.predictedTargets == nil {
		r.predictedTargets = make(map[RunKey][]float64)
	}
}

// dump writes the snapshot to outDir as cvresults_<timestamp>.gob via a
// temp file and rename, returning the final path.
func (r *CVResults) dump(outDir string, snap *snapshot) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(outDir, checkpointPrefix+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create checkpoint temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close checkpoint temp file: %w", err)
	}

	name := fmt.Sprintf("%s_%s%s", checkpointPrefix,
		time.Now().Format(timestampLayout), checkpointExt)
	outPath := filepath.Join(outDir, name)
	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return "", fmt.Errorf("finalize checkpoint: %w", err)
	}

	log.Info().Str("file", outPath).Str("kind", snap.Kind).
		Int("count", snap.Count).Msg("Checkpoint written")

	if co, ok := r.observer.(CheckpointObserver); ok {
		co.CheckpointWritten(outPath)
	}
	return outPath, nil
}

// Dump checkpoints the base store into outDir.
func (r *CVResults) Dump(outDir string) (string, error) {
	return r.dump(outDir, r.snapshot())
}

// Dump checkpoints the classification store, including confusion matrices
// and misclassified samplet ids.
func (c *ClassifyCVResults) Dump(outDir string) (string, error) {
	snap := c.snapshot()
	snap.ConfusionMat = c.confusionMat
	snap.Misclfd = c.misclfdSamplets
	return c.dump(outDir, snap)
}

// Dump checkpoints the regression store, including residuals.
func (r *RegressCVResults) Dump(outDir string) (string, error) {
	snap := r.snapshot()
	snap.Residuals = r.residuals
	return r.dump(outDir, snap)
}

func readSnapshot(path string) (*snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("malformed checkpoint %s: %w", path, err)
	}
	if snap.SchemaVersion != snapshotSchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d, supported %d",
			ErrBadSnapshot, snap.SchemaVersion, snapshotSchemaVersion)
	}
	return &snap, nil
}

// LoadClassify reloads a classification store from a checkpoint file.
func LoadClassify(path string) (*ClassifyCVResults, error) {
	snap, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	if snap.Kind != KindClassify {
		return nil, fmt.Errorf("%w: kind %q, want %q", ErrBadSnapshot, snap.Kind, KindClassify)
	}
	return classifyFromSnapshot(snap), nil
}

func classifyFromSnapshot(snap *snapshot) *ClassifyCVResults {
	c := &ClassifyCVResults{
		confusionMat:    snap.ConfusionMat,
		misclfdSamplets: snap.Misclfd,
	}
	c.restore(snap)
	if c.confusionMat == nil {
		c.confusionMat = make(map[RunKey][][]float64)
	}
	if c.misclfdSamplets == nil {
		c.misclfdSamplets = make(map[RunKey][]string)
	}
	return c
}

// LoadRegress reloads a regression store from a checkpoint file.
func LoadRegress(path string) (*RegressCVResults, error) {
	snap, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	if snap.Kind != KindRegress {
		return nil, fmt.Errorf("%w: kind %q, want %q", ErrBadSnapshot, snap.Kind, KindRegress)
	}
	return regressFromSnapshot(snap), nil
}

func regressFromSnapshot(snap *snapshot) *RegressCVResults {
	r := &RegressCVResults{residuals: snap.Residuals}
	r.restore(snap)
	if r.residuals == nil {
		r.residuals = make(map[RunKey][]float64)
	}
	return r
}

// Store is the read-and-report surface common to all variants, used by
// consumers that work with checkpoints of either kind.
type Store interface {
	ID() string
	Kind() string
	CreatedAt() time.Time
	NumRep() int
	Count() int
	DatasetIDs() []string
	MetricNames() []string
	ToArray(metric string, dsIDs []string) ([][]float64, []string, error)
	Summary() Summary
	String() string
	Dump(outDir string) (string, error)
	SetObserver(obs Observer)
}

// LoadCheckpoint reloads a checkpoint of any kind, dispatching on the kind
// recorded in the snapshot.
func LoadCheckpoint(path string) (Store, error) {
	snap, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	switch snap.Kind {
	case KindClassify:
		return classifyFromSnapshot(snap), nil
	case KindRegress:
		return regressFromSnapshot(snap), nil
	case KindBase:
		r := &CVResults{}
		r.restore(snap)
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrBadSnapshot, snap.Kind)
	}
}

// LatestCheckpoint returns the newest checkpoint file in dir, by the
// timestamp embedded in the name.
func LatestCheckpoint(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("scan checkpoint dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, checkpointPrefix+"_") && strings.HasSuffix(name, checkpointExt) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no checkpoints found in %s", dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
