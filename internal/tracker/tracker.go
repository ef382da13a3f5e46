// Package tracker publishes experiment summaries to an external experiment
// tracking service over its REST API.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/raamana/psy/results"
)

const publishPath = "/api/v1/experiments"

// FailureCounter defines the single metric the client reports: publish
// attempts that did not reach the service or were rejected by it.
type FailureCounter interface {
	Inc()
}

// Client talks to the experiment tracking service.
type Client struct {
	base   string
	apiKey string
	rest   *resty.Client

	mu       sync.Mutex
	failures FailureCounter
}

// New creates a tracker client for the service at baseURL.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	return &Client{base: baseURL, apiKey: apiKey, rest: r}
}

// SetFailureCounter sets the counter bumped on failed publishes.
func (c *Client) SetFailureCounter(fc FailureCounter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = fc
}

// ExperimentReport is the payload sent to the tracking service.
type ExperimentReport struct {
	ID          string                  `json:"id"`
	Kind        string                  `json:"kind"`
	CreatedAt   time.Time               `json:"created_at"`
	PublishedAt time.Time               `json:"published_at"`
	NumRep      int                     `json:"num_rep"`
	DatasetIDs  []string                `json:"dataset_ids"`
	MetricNames []string                `json:"metric_names"`
	Count       int                     `json:"count"`
	Summaries   []results.MetricSummary `json:"summaries"`
	Meta        map[string]string       `json:"meta,omitempty"`
}

type publishResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// BuildReport converts a results store into a publishable report.
func BuildReport(store results.Store) ExperimentReport {
	s := store.Summary()
	return ExperimentReport{
		ID:          s.ID,
		Kind:        s.Kind,
		CreatedAt:   s.CreatedAt,
		PublishedAt: time.Now(),
		NumRep:      s.NumRep,
		DatasetIDs:  s.DatasetIDs,
		MetricNames: s.MetricNames,
		Count:       s.Count,
		Summaries:   s.Metrics,
		Meta:        s.Meta,
	}
}

// Publish sends one experiment report to the service. A non-200 status or
// a non-zero code in the response body is an error.
func (c *Client) Publish(ctx context.Context, report ExperimentReport) error {
	if report.PublishedAt.IsZero() {
		report.PublishedAt = time.Now()
	}

	body := &publishResp{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("api-key", c.apiKey).
		SetBody(report).
		SetResult(body).
		Post(c.base + publishPath)
	if err != nil {
		c.countFailure()
		return fmt.Errorf("publish request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		c.countFailure()
		return fmt.Errorf("tracker: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	if body.Code != 0 {
		c.countFailure()
		return fmt.Errorf("tracker: %d %s", body.Code, body.Msg)
	}

	log.Info().
		Str("experiment", report.ID).
		Str("url", c.base).
		Msg("Experiment published")
	return nil
}

func (c *Client) countFailure() {
	c.mu.Lock()
	fc := c.failures
	c.mu.Unlock()
	if fc != nil {
		fc.Inc()
	}
}
