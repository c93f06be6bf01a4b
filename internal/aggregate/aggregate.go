// Package aggregate derives a TestRun from a normalized result set.
package aggregate

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/boyarskiy/runledger/internal/clock"
	"github.com/boyarskiy/runledger/internal/model"
	"github.com/boyarskiy/runledger/internal/normalize"
)

// Options carries the run identity and provenance.
type Options struct {
	// RunID defaults to a new UUIDv7.
	RunID string

	// Timestamp defaults to Clock.Now().
	Timestamp time.Time

	// Clock defaults to the system clock.
	Clock clock.Clock

	Metadata model.Metadata
}

// Aggregate builds an immutable TestRun. Aggregating the same output twice
// with the same options yields identical runs.
func Aggregate(out *normalize.Output, opts Options) *model.TestRun {
	runID := opts.RunID
	if runID == "" {
		runID = newRunID()
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		c := opts.Clock
		if c == nil {
			c = clock.RealClock{}
		}
		ts = c.Now()
	}

	results := make([]model.TestResult, len(out.Results))
	copy(results, out.Results)

	bySuite := make(map[model.Suite]model.Summary, len(out.Suites))
	for _, suite := range out.Suites {
		bySuite[suite] = Summarize(filter(results, suite))
	}

	var perf *model.PerformanceMetric
	if out.Performance != nil {
		p := *out.Performance
		perf = &p
	}

	return &model.TestRun{
		RunID:       runID,
		Timestamp:   ts.UTC(),
		Summary:     Summarize(results),
		BySuite:     bySuite,
		Performance: perf,
		Metadata:    opts.Metadata,
		Warnings:    append([]model.Warning(nil), out.Warnings...),
		Results:     results,
	}
}

// Summarize counts outcomes. Skipped tests are excluded from the pass-rate
// denominator; a run with nothing executed has a pass rate of 0.
func Summarize(results []model.TestResult) model.Summary {
	var s model.Summary
	for _, r := range results {
		s.Total++
		s.DurationMS += r.DurationMS
		switch r.Outcome {
		case model.OutcomePassed:
			s.Passed++
		case model.OutcomeFailed:
			s.Failed++
		case model.OutcomeSkipped:
			s.Skipped++
		}
	}

	if executed := s.Total - s.Skipped; executed > 0 {
		s.PassRate = round(float64(s.Passed)/float64(executed), 4)
	}
	s.DurationMS = round(s.DurationMS, 3)

	return s
}

func filter(results []model.TestResult, suite model.Suite) []model.TestResult {
	var out []model.TestResult
	for _, r := range results {
		if r.Suite == suite {
			out = append(out, r)
		}
	}
	return out
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
