// Package trend persists run history and answers windowed queries over it.
package trend

import (
	"context"
	"time"

	"github.com/boyarskiy/runledger/internal/model"
)

// Store is the append-only run history.
//
// Implementations must be safe for concurrent use. Writes are serialized;
// reads see a consistent snapshot and never observe a partially written run.
type Store interface {
	// Write appends a run and returns its id. Writing a run id that is already
	// stored returns the id without modifying history.
	Write(ctx context.Context, run *model.TestRun) (string, error)

	// QueryWindow returns runs with timestamp >= now - days*24h, oldest first.
	QueryWindow(ctx context.Context, days int) ([]Record, error)

	// Get returns one run by id.
	Get(ctx context.Context, runID string) (*Record, error)

	Close() error
}

// Record is the persisted form of a TestRun. Failure payloads are reduced to
// their summary line and signature.
type Record struct {
	RunID       string                        `json:"run_id"`
	Timestamp   time.Time                     `json:"timestamp"`
	Summary     model.Summary                 `json:"summary"`
	BySuite     map[model.Suite]model.Summary `json:"by_suite,omitempty"`
	Performance *model.PerformanceMetric      `json:"performance,omitempty"`
	Metadata    model.Metadata                `json:"metadata"`
	Outcomes    []Outcome                     `json:"outcomes"`
}

// Outcome is one test observation within a stored run.
type Outcome struct {
	Suite      model.Suite            `json:"suite"`
	Name       string                 `json:"name"`
	Outcome    model.Outcome          `json:"outcome"`
	DurationMS float64                `json:"duration_ms"`
	Signature  model.FailureSignature `json:"signature,omitempty"`
	Message    string                 `json:"message,omitempty"`
}

// Key returns the test identity of the observation.
func (o Outcome) Key() model.TestKey {
	return model.TestKey{Suite: o.Suite, Name: o.Name}
}

// NewRecord converts a run into its persisted form.
func NewRecord(run *model.TestRun) Record {
	outcomes := make([]Outcome, 0, len(run.Results))
	for _, r := range run.Results {
		o := Outcome{
			Suite:      r.Suite,
			Name:       r.Name,
			Outcome:    r.Outcome,
			DurationMS: r.DurationMS,
		}
		if r.Failure != nil {
			o.Signature = r.Failure.Signature
			o.Message = r.Failure.Message
		}
		outcomes = append(outcomes, o)
	}

	return Record{
		RunID:       run.RunID,
		Timestamp:   run.Timestamp.UTC(),
		Summary:     run.Summary,
		BySuite:     run.BySuite,
		Performance: run.Performance,
		Metadata:    run.Metadata,
		Outcomes:    outcomes,
	}
}
