// Package archive provides persistent storage for completed experiments.
// It uses BoltDB as the underlying storage engine and keeps two buckets:
// one for experiment records and one for the individual run scores, keyed
// for efficient per-experiment range queries.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/raamana/psy/results"
)

const (
	experimentsBucket = "experiments" // Bucket name for experiment records
	runScoresBucket   = "run_scores"  // Bucket name for per-run score records
)

// ErrNotFound marks lookups of experiments that were never archived.
var ErrNotFound = errors.New("experiment not found")

// ExperimentRecord is the archived form of one experiment: identity, shape
// and the per-metric per-dataset summaries at archive time.
type ExperimentRecord struct {
	ID          string                  `json:"id"`
	Kind        string                  `json:"kind"`
	CreatedAt   time.Time               `json:"created_at"`
	ArchivedAt  time.Time               `json:"archived_at"`
	NumRep      int                     `json:"num_rep"`
	DatasetIDs  []string                `json:"dataset_ids"`
	MetricNames []string                `json:"metric_names"`
	Count       int                     `json:"count"`
	Summaries   []results.MetricSummary `json:"summaries"`
	Meta        map[string]string       `json:"meta,omitempty"`
}

// Store provides persistent storage for experiment results using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new archive at the given database file path, creating the
// parent directory and the buckets as needed.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(experimentsBucket)); err != nil {
			return fmt.Errorf("create experiments bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(runScoresBucket)); err != nil {
			return fmt.Errorf("create run_scores bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreExperiment archives one experiment record together with its run
// scores in a single transaction. A zero ArchivedAt is stamped with the
// current time.
func (s *Store) StoreExperiment(rec ExperimentRecord, scores []RunScoreRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("experiment record has no id")
	}
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(experimentsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal experiment record: %w", err)
		}
		if err := b.Put([]byte(rec.ID), data); err != nil {
			return fmt.Errorf("store experiment record: %w", err)
		}

		sb := tx.Bucket([]byte(runScoresBucket))
		for _, score := range scores {
			data, err := json.Marshal(score)
			if err != nil {
				return fmt.Errorf("marshal run score: %w", err)
			}
			key := runScoreKey(rec.ID, score.Metric, score.Dataset, score.Run)
			if err := sb.Put([]byte(key), data); err != nil {
				return fmt.Errorf("store run score: %w", err)
			}
		}
		return nil
	})
}

// GetExperiment retrieves one archived experiment by id.
func (s *Store) GetExperiment(id string) (ExperimentRecord, error) {
	var rec ExperimentRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(experimentsBucket))
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &rec)
	})

	return rec, err
}

// ListExperiments returns all archived experiments, newest first.
func (s *Store) ListExperiments() ([]ExperimentRecord, error) {
	var records []ExperimentRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(experimentsBucket))
		return b.ForEach(func(k, v []byte) error {
			var rec ExperimentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // Skip malformed records
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ArchivedAt.After(records[j].ArchivedAt)
	})
	return records, nil
}
