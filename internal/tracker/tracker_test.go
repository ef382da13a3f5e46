package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raamana/psy/results"
	"github.com/raamana/psy/scoring"
)

// MockFailureCounter implements FailureCounter for testing
type MockFailureCounter struct {
	mu sync.Mutex
	n  int
}

func (m *MockFailureCounter) Inc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
}

func (m *MockFailureCounter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

func sampleReport() ExperimentReport {
	return ExperimentReport{
		ID:          "exp-42",
		Kind:        results.KindClassify,
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		PublishedAt: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
		NumRep:      10,
		DatasetIDs:  []string{"thickness"},
		MetricNames: []string{"accuracy"},
		Count:       10,
		Summaries: []results.MetricSummary{
			{Metric: "accuracy", Dataset: "thickness", Median: 0.8, SD: 0.05, N: 10},
		},
	}
}

func TestPublish_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotReport ExperimentReport

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReport))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":0,"msg":"ok"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-key", 2*time.Second)
	counter := &MockFailureCounter{}
	client.SetFailureCounter(counter)

	err := client.Publish(context.Background(), sampleReport())
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/experiments", gotPath)
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "exp-42", gotReport.ID)
	assert.Equal(t, results.KindClassify, gotReport.Kind)
	assert.Len(t, gotReport.Summaries, 1)
	assert.Equal(t, 0.8, gotReport.Summaries[0].Median)
	assert.Equal(t, 0, counter.Count())
}

func TestPublish_StampsPublishedAt(t *testing.T) {
	var gotReport ExperimentReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReport)
		w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "", time.Second)
	report := sampleReport()
	report.PublishedAt = time.Time{}

	require.NoError(t, client.Publish(context.Background(), report))
	assert.False(t, gotReport.PublishedAt.IsZero())
}

func TestPublish_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":1003,"msg":"duplicate experiment"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "key", time.Second)
	counter := &MockFailureCounter{}
	client.SetFailureCounter(counter)

	err := client.Publish(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1003")
	assert.Contains(t, err.Error(), "duplicate experiment")
	assert.Equal(t, 1, counter.Count())
}

func TestPublish_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, "key", time.Second)
	counter := &MockFailureCounter{}
	client.SetFailureCounter(counter)

	err := client.Publish(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, 1, counter.Count())
}

func TestPublish_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Refuse connections

	client := New(srv.URL, "key", time.Second)
	counter := &MockFailureCounter{}
	client.SetFailureCounter(counter)

	err := client.Publish(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Equal(t, 1, counter.Count())
}

func TestPublish_NoCounterSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(srv.URL, "key", time.Second)

	// Must not panic without a counter.
	err := client.Publish(context.Background(), sampleReport())
	require.Error(t, err)
}

func TestPublish_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "key", 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.Publish(ctx, sampleReport())
	require.Error(t, err)
}

func TestNew_DefaultTimeout(t *testing.T) {
	client := New("http://localhost:9", "key", 0)
	assert.Equal(t, 5*time.Second, client.rest.GetClient().Timeout)
}

func TestBuildReport(t *testing.T) {
	cv, err := results.NewClassify([]scoring.Metric{{Name: "accuracy", Score: scoring.Accuracy}}, 2, []string{"thickness"})
	require.NoError(t, err)
	require.NoError(t, cv.Add(0, "thickness", []float64{1, 0}, []float64{1, 0}))
	cv.AddMeta("atlas", "fsaverage")

	report := BuildReport(cv)

	assert.Equal(t, cv.ID(), report.ID)
	assert.Equal(t, results.KindClassify, report.Kind)
	assert.Equal(t, 2, report.NumRep)
	assert.Equal(t, []string{"thickness"}, report.DatasetIDs)
	assert.Equal(t, 1, report.Count)
	assert.False(t, report.PublishedAt.IsZero())

	var acc *results.MetricSummary
	for i := range report.Summaries {
		if report.Summaries[i].Metric == "accuracy" {
			acc = &report.Summaries[i]
		}
	}
	require.NotNil(t, acc)
	assert.Equal(t, 1.0, acc.Median)
	assert.Equal(t, "fsaverage", report.Meta["atlas"])
}
