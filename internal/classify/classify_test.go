package classify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boyarskiy/runledger/internal/clock"
	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/model"
	"github.com/boyarskiy/runledger/internal/trend"
)

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// sequence maps a test name to its outcome per run, e.g. "PPFPF".
type sequence map[string]string

// buildRecords converts sequences into runs. Runs beyond a test's sequence
// do not observe it.
func buildRecords(suite model.Suite, seqs sequence) []trend.Record {
	runs := 0
	for _, s := range seqs {
		runs = max(runs, len(s))
	}

	records := make([]trend.Record, runs)
	for i := range records {
		records[i] = trend.Record{
			RunID:     fmt.Sprintf("run-%02d", i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
	}

	for name, s := range seqs {
		for i, c := range s {
			o := trend.Outcome{Suite: suite, Name: name}
			switch c {
			case 'P':
				o.Outcome = model.OutcomePassed
			case 'F':
				o.Outcome = model.OutcomeFailed
				o.Message = fmt.Sprintf("failure in run %d", i)
				o.Signature = model.SignatureTimeout
			case 'S':
				o.Outcome = model.OutcomeSkipped
			default:
				continue
			}
			records[i].Outcomes = append(records[i].Outcomes, o)
		}
	}

	return records
}

func repeat(pattern string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += pattern
	}
	return out
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		total    int
		expected model.Severity
	}{
		{name: "rate 0.50 over 10 runs is critical", failures: 5, total: 10, expected: model.SeverityCritical},
		{name: "critical rate over 9 runs falls to medium", failures: 5, total: 9, expected: model.SeverityMedium},
		{name: "critical rate over 20 runs is critical", failures: 10, total: 20, expected: model.SeverityCritical},
		{name: "rate 0.30 is high", failures: 3, total: 10, expected: model.SeverityHigh},
		{name: "rate 0.44 over 9 runs is high", failures: 4, total: 9, expected: model.SeverityHigh},
		{name: "20 runs at low rate is high", failures: 1, total: 20, expected: model.SeverityHigh},
		{name: "rate 0.20 is medium", failures: 2, total: 10, expected: model.SeverityMedium},
		{name: "rate below 0.20 is low", failures: 1, total: 10, expected: model.SeverityLow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rate := float64(tc.failures) / float64(tc.total)
			assert.Equal(t, tc.expected, Severity(rate, tc.total))
		})
	}
}

func TestClassifyExclusions(t *testing.T) {
	records := buildRecords(model.SuiteWorkflow, sequence{
		"always passes":   repeat("P", 20),
		"always fails":    repeat("F", 20),
		"too few runs":    "PFP",
		"skips not runs":  "PFSSSSSS",
		"flaky":           "PPFPF",
		"skipped flakily": "SSPFPFP",
	})

	flaky := Classify(records, 5, DefaultWeights())

	names := make([]string, 0, len(flaky))
	for _, f := range flaky {
		names = append(names, f.Key.Name)
	}
	assert.ElementsMatch(t, []string{"flaky", "skipped flakily"}, names)
}

func TestClassifyRecordFields(t *testing.T) {
	records := buildRecords(model.SuiteContract, sequence{"api": "PFPFPFPFPF"})

	flaky := Classify(records, 5, DefaultWeights())
	require.Len(t, flaky, 1)

	f := flaky[0]
	assert.Equal(t, model.TestKey{Suite: model.SuiteContract, Name: "api"}, f.Key)
	assert.Equal(t, 10, f.TotalRuns)
	assert.Equal(t, 5, f.Failures)
	assert.Equal(t, 5, f.Passes)
	assert.InDelta(t, 0.5, f.FailureRate, 0.00001)
	assert.Equal(t, model.SeverityCritical, f.Severity)
	assert.InDelta(t, 100*0.5+0.5*10+2*5, f.ImpactScore, 0.00001)
	assert.Equal(t, base, f.FirstSeen)
	assert.Equal(t, base.Add(9*time.Hour), f.LastSeen)
	assert.Equal(t, "failure in run 9", f.LastFailure)
	assert.Equal(t, model.SignatureTimeout, f.DominantSignature)
	assert.Contains(t, f.Recommendation, "Quarantine")
	assert.Contains(t, f.Recommendation, "readiness checks")
}

func TestClassifyOrdering(t *testing.T) {
	records := buildRecords(model.SuiteWorkflow, sequence{
		"b-tie":    "PPPPF",
		"a-tie":    "PPPPF",
		"worst":    "PFFFF",
		"mid":      "PPPFF",
		"c-unique": "PPPPPPPPPF",
	})

	flaky := Classify(records, 5, DefaultWeights())
	require.Len(t, flaky, 5)

	assert.Equal(t, "worst", flaky[0].Key.Name)
	assert.Equal(t, "mid", flaky[1].Key.Name)
	assert.Equal(t, "a-tie", flaky[2].Key.Name)
	assert.Equal(t, "b-tie", flaky[3].Key.Name)
	assert.Equal(t, "c-unique", flaky[4].Key.Name)

	for i := 1; i < len(flaky); i++ {
		assert.GreaterOrEqual(t, flaky[i-1].ImpactScore, flaky[i].ImpactScore)
	}
}

func TestClassifySuiteTieBreak(t *testing.T) {
	records := append(
		buildRecords(model.SuiteWorkflow, sequence{"same": "PPPPF"}),
		buildRecords(model.SuiteContract, sequence{"same": "PPPPF"})...,
	)

	flaky := Classify(records, 5, DefaultWeights())
	require.Len(t, flaky, 2)
	assert.Equal(t, model.SuiteContract, flaky[0].Key.Suite)
	assert.Equal(t, model.SuiteWorkflow, flaky[1].Key.Suite)
}

func TestImpactScoreMonotonic(t *testing.T) {
	w := DefaultWeights()
	baseline := ImpactScore(0.3, 10, 3, w)

	assert.Greater(t, ImpactScore(0.4, 10, 3, w), baseline)
	assert.Greater(t, ImpactScore(0.3, 11, 3, w), baseline)
	assert.Greater(t, ImpactScore(0.3, 10, 4, w), baseline)
}

func TestDominantSignatureTieBreak(t *testing.T) {
	counts := map[model.FailureSignature]int{
		model.SignatureTimeout:   2,
		model.SignatureNetwork:   2,
		model.SignatureAssertion: 1,
	}
	assert.Equal(t, model.SignatureNetwork, dominantSignature(counts))
	assert.Equal(t, model.FailureSignature(""), dominantSignature(nil))
}

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())

	err := Weights{FailureRate: 1, TotalRuns: 0, Failures: 1}.Validate()
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
}

func TestDetectDeterministic(t *testing.T) {
	ctx := context.Background()
	now := base.Add(48 * time.Hour)

	store, err := trend.Open(trend.InMemoryConfig(clock.Fixed(now)))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	records := buildRecords(model.SuiteWorkflow, sequence{
		"login":    "PFPFPFPFPFPF",
		"checkout": "PPPPPPFPPPPF",
		"search":   "PPFPPFPPFPPF",
		"stable":   "PPPPPPPPPPPP",
	})
	for _, r := range records {
		run := &model.TestRun{RunID: r.RunID, Timestamp: r.Timestamp}
		for _, o := range r.Outcomes {
			res := model.TestResult{Suite: o.Suite, Name: o.Name, Outcome: o.Outcome}
			if o.Outcome == model.OutcomeFailed {
				res.Failure = &model.FailureDetail{Message: o.Message, Signature: o.Signature}
			}
			run.Results = append(run.Results, res)
		}
		_, err := store.Write(ctx, run)
		require.NoError(t, err)
	}

	d := &Detector{Store: store, Weights: DefaultWeights()}

	first, err := d.Detect(ctx, 30, 5)
	require.NoError(t, err)
	require.Len(t, first, 3)

	for i := 0; i < 5; i++ {
		again, err := d.Detect(ctx, 30, 5)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDetectValidation(t *testing.T) {
	store, err := trend.Open(trend.InMemoryConfig(clock.Fixed(base)))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = (&Detector{Store: store, Weights: DefaultWeights()}).Detect(context.Background(), 30, 0)
	assert.ErrorIs(t, err, errors.ErrEmptyValue)

	_, err = (&Detector{Store: store}).Detect(context.Background(), 30, 5)
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)

	_, err = (&Detector{Store: store, Weights: DefaultWeights()}).Detect(context.Background(), 0, 5)
	assert.ErrorIs(t, err, errors.ErrEmptyValue)
}

func TestTopAndCounts(t *testing.T) {
	records := []model.FlakyTestRecord{
		{Severity: model.SeverityCritical, DominantSignature: model.SignatureTimeout},
		{Severity: model.SeverityLow, DominantSignature: model.SignatureTimeout},
		{Severity: model.SeverityLow, DominantSignature: model.SignatureNetwork},
	}

	assert.Len(t, Top(records, 2), 2)
	assert.Len(t, Top(records, 10), 3)
	assert.Equal(t, map[model.Severity]int{model.SeverityCritical: 1, model.SeverityLow: 2}, SeverityCounts(records))
	assert.Equal(t, map[string]int{"TIMEOUT": 2, "NETWORK": 1}, SignatureSummary(records))
}

func TestRecommendUnknownSignature(t *testing.T) {
	got := Recommend(model.SeverityLow, "")
	assert.Equal(t, "Monitor. Capture more diagnostics on failure to identify the cause.", got)
}
