// Package classify detects flaky tests in the trend history and ranks them
// by severity and impact.
package classify

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/model"
	"github.com/boyarskiy/runledger/internal/trend"
)

// Weights scale the inputs of the impact score. All weights must be positive
// so that the score rises with each input.
type Weights struct {
	FailureRate float64 `mapstructure:"failure_rate" yaml:"failure_rate" json:"failure_rate"`
	TotalRuns   float64 `mapstructure:"total_runs" yaml:"total_runs" json:"total_runs"`
	Failures    float64 `mapstructure:"failures" yaml:"failures" json:"failures"`
}

// DefaultWeights returns the default impact weighting: a fully flaky test
// outranks one with up to 200 more runs of exposure.
func DefaultWeights() Weights {
	return Weights{FailureRate: 100, TotalRuns: 0.5, Failures: 2}
}

// Validate checks that every weight is positive.
func (w Weights) Validate() error {
	if w.FailureRate <= 0 || w.TotalRuns <= 0 || w.Failures <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"impact weights must be positive, got failure_rate=%g total_runs=%g failures=%g",
			w.FailureRate, w.TotalRuns, w.Failures)
	}
	return nil
}

// Detector runs flaky detection against a trend store.
type Detector struct {
	Store   trend.Store
	Weights Weights
}

// Detect loads the window and classifies every test observed in it.
// Running it twice on an unchanged store yields identical output.
func (d *Detector) Detect(ctx context.Context, days, minRuns int) ([]model.FlakyTestRecord, error) {
	if minRuns < 1 {
		return nil, errors.Wrapf(errors.ErrEmptyValue, "min runs must be at least 1, got %d", minRuns)
	}
	if err := d.Weights.Validate(); err != nil {
		return nil, err
	}

	records, err := d.Store.QueryWindow(ctx, days)
	if err != nil {
		return nil, err
	}

	return Classify(records, minRuns, d.Weights), nil
}

// history accumulates observations of one test across runs.
type history struct {
	key         model.TestKey
	passes      int
	failures    int
	firstSeen   time.Time
	lastSeen    time.Time
	lastFailure string
	signatures  map[model.FailureSignature]int
}

// Classify derives flaky records from runs ordered oldest first. Skipped
// observations do not count as runs. Tests with fewer than minRuns runs, or
// whose outcome never changed, are excluded.
func Classify(records []trend.Record, minRuns int, w Weights) []model.FlakyTestRecord {
	histories := make(map[model.TestKey]*history)

	for _, record := range records {
		for _, o := range record.Outcomes {
			if o.Outcome != model.OutcomePassed && o.Outcome != model.OutcomeFailed {
				continue
			}

			h, ok := histories[o.Key()]
			if !ok {
				h = &history{
					key:        o.Key(),
					firstSeen:  record.Timestamp,
					signatures: make(map[model.FailureSignature]int),
				}
				histories[o.Key()] = h
			}
			h.lastSeen = record.Timestamp

			if o.Outcome == model.OutcomePassed {
				h.passes++
				continue
			}

			h.failures++
			h.lastFailure = o.Message
			sig := o.Signature
			if sig == "" {
				sig = model.SignatureUnknown
			}
			h.signatures[sig]++
		}
	}

	flaky := make([]model.FlakyTestRecord, 0)
	for _, h := range histories {
		total := h.passes + h.failures
		if total < minRuns || h.passes == 0 || h.failures == 0 {
			continue
		}
		flaky = append(flaky, build(h, w))
	}

	sortRecords(flaky)
	return flaky
}

func build(h *history, w Weights) model.FlakyTestRecord {
	total := h.passes + h.failures
	rate := float64(h.failures) / float64(total)
	severity := Severity(rate, total)
	sig := dominantSignature(h.signatures)

	return model.FlakyTestRecord{
		Key:               h.key,
		TotalRuns:         total,
		Failures:          h.failures,
		Passes:            h.passes,
		FailureRate:       round(rate),
		Severity:          severity,
		ImpactScore:       ImpactScore(rate, total, h.failures, w),
		FirstSeen:         h.firstSeen,
		LastSeen:          h.lastSeen,
		LastFailure:       h.lastFailure,
		DominantSignature: sig,
		Recommendation:    Recommend(severity, sig),
	}
}

// Severity buckets a flaky test. Rules apply top to bottom:
//
//	critical  rate >= 0.50 and runs >= 10
//	high      rate >= 0.30 or runs >= 20
//	medium    rate >= 0.20
//	low       otherwise
//
// A test in the critical rate band without enough runs for critical only
// reaches high through the run-count branch; below that it is medium.
func Severity(rate float64, totalRuns int) model.Severity {
	switch {
	case rate >= 0.50 && totalRuns >= 10:
		return model.SeverityCritical
	case rate >= 0.50:
		if totalRuns >= 20 {
			return model.SeverityHigh
		}
		return model.SeverityMedium
	case rate >= 0.30 || totalRuns >= 20:
		return model.SeverityHigh
	case rate >= 0.20:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// ImpactScore combines failure rate, exposure and raw failures. The result is
// rounded to four decimals.
func ImpactScore(rate float64, totalRuns, failures int, w Weights) float64 {
	return round(w.FailureRate*rate + w.TotalRuns*float64(totalRuns) + w.Failures*float64(failures))
}

// dominantSignature returns the most frequent signature, ties broken by name.
func dominantSignature(counts map[model.FailureSignature]int) model.FailureSignature {
	var (
		best      model.FailureSignature
		bestCount int
	)
	for sig, n := range counts {
		if n > bestCount || (n == bestCount && sig < best) {
			best, bestCount = sig, n
		}
	}
	return best
}

// sortRecords orders by impact descending. Tie-breakers: suite asc -> name asc.
func sortRecords(records []model.FlakyTestRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].ImpactScore != records[j].ImpactScore {
			return records[i].ImpactScore > records[j].ImpactScore
		}
		return records[i].Key.Less(records[j].Key)
	})
}

// Top returns up to n records, preserving order.
func Top(records []model.FlakyTestRecord, n int) []model.FlakyTestRecord {
	if len(records) <= n {
		return records
	}
	return records[:n]
}

// SeverityCounts counts records per severity.
func SeverityCounts(records []model.FlakyTestRecord) map[model.Severity]int {
	counts := make(map[model.Severity]int)
	for _, r := range records {
		counts[r.Severity]++
	}
	return counts
}

// SignatureSummary counts dominant signatures across records.
func SignatureSummary(records []model.FlakyTestRecord) map[string]int {
	summary := make(map[string]int)
	for _, r := range records {
		if r.DominantSignature != "" {
			summary[string(r.DominantSignature)]++
		}
	}
	return summary
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}
