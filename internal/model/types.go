// Package model defines the canonical data types shared by every runledger component.
package model

import (
	"fmt"
	"time"
)

// Suite identifies the kind of runner that produced a result.
type Suite string

const (
	SuiteWorkflow Suite = "workflow"
	SuiteContract Suite = "contract"
	SuiteVisual   Suite = "visual"
	SuiteLoad     Suite = "load"
)

// Suites returns every suite in canonical order. Results and breakdowns are
// always emitted in this order.
func Suites() []Suite {
	return []Suite{SuiteWorkflow, SuiteContract, SuiteVisual, SuiteLoad}
}

// ParseSuite converts a suite name into a Suite.
func ParseSuite(s string) (Suite, error) {
	for _, suite := range Suites() {
		if string(suite) == s {
			return suite, nil
		}
	}
	return "", fmt.Errorf("unknown suite %q: expected one of workflow, contract, visual, load", s)
}

// Rank returns the position of the suite in canonical order.
func (s Suite) Rank() int {
	for i, suite := range Suites() {
		if suite == s {
			return i
		}
	}
	return len(Suites())
}

// Outcome represents the result of a single test execution.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// FailureSignature represents a categorized failure type.
type FailureSignature string

const (
	SignatureTimeout    FailureSignature = "TIMEOUT"
	SignatureSelector   FailureSignature = "SELECTOR"
	SignatureNetwork    FailureSignature = "NETWORK"
	SignatureDOMDetach  FailureSignature = "DOM_DETACH"
	SignatureVisualDiff FailureSignature = "VISUAL_DIFF"
	SignatureThreshold  FailureSignature = "THRESHOLD"
	SignatureAssertion  FailureSignature = "ASSERTION"
	SignatureUnknown    FailureSignature = "UNKNOWN"
)

// FailureDetail carries the suite-native failure payload verbatim.
type FailureDetail struct {
	Message   string           `json:"message"`
	Trace     string           `json:"trace,omitempty"`
	Artifacts []string         `json:"artifacts,omitempty"`
	Signature FailureSignature `json:"signature"`
}

// TestResult is one executed test case.
// Failure is set if and only if Outcome is OutcomeFailed.
type TestResult struct {
	Suite      Suite          `json:"suite"`
	Name       string         `json:"name"`
	Outcome    Outcome        `json:"outcome"`
	DurationMS float64        `json:"duration_ms"`
	Failure    *FailureDetail `json:"failure_detail,omitempty"`
}

// Key returns the identity of the test across runs.
func (r TestResult) Key() TestKey {
	return TestKey{Suite: r.Suite, Name: r.Name}
}

// TestKey identifies a test across runs.
type TestKey struct {
	Suite Suite  `json:"suite"`
	Name  string `json:"name"`
}

// String formats the key as suite::name.
func (k TestKey) String() string {
	return string(k.Suite) + "::" + k.Name
}

// Less orders keys lexically by suite, then name.
func (k TestKey) Less(other TestKey) bool {
	if k.Suite != other.Suite {
		return k.Suite < other.Suite
	}
	return k.Name < other.Name
}

// PerformanceMetric is one load-test observation attached to a run.
type PerformanceMetric struct {
	Throughput   float64 `json:"throughput" validate:"gte=0"`
	P50LatencyMS float64 `json:"p50_latency_ms" validate:"gte=0"`
	P95LatencyMS float64 `json:"p95_latency_ms" validate:"gte=0,gtefield=P50LatencyMS"`
	ErrorRate    float64 `json:"error_rate" validate:"gte=0,lte=1"`
}

// SuiteResult is what an adapter produces from one suite document.
type SuiteResult struct {
	Suite       Suite
	Results     []TestResult
	Performance *PerformanceMetric
}

// Summary holds derived run statistics.
// PassRate is passed / (total - skipped), or 0 when that denominator is 0.
type Summary struct {
	Total      int     `json:"total"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	PassRate   float64 `json:"pass_rate"`
	DurationMS float64 `json:"duration_ms"`
}

// Metadata is opaque provenance passed through unmodified.
type Metadata struct {
	Revision string            `json:"revision,omitempty"`
	Branch   string            `json:"branch,omitempty"`
	CIRunID  string            `json:"ci_run_id,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// WarningKind categorizes an ingestion warning.
type WarningKind string

const (
	WarningMissing WarningKind = "missing"
	WarningParse   WarningKind = "parse"
	WarningEmpty   WarningKind = "empty"
)

// Warning records why a suite contributed nothing (or nothing usable) to a run.
type Warning struct {
	Suite   Suite       `json:"suite"`
	Kind    WarningKind `json:"kind"`
	Path    string      `json:"path"`
	Message string      `json:"message"`
}

// String renders the warning for summaries and logs.
func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (%s): %s", w.Suite, w.Kind, w.Path, w.Message)
}

// TestRun is one invocation of the reporting pipeline. It is immutable once aggregated.
type TestRun struct {
	RunID       string             `json:"run_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Summary     Summary            `json:"summary"`
	BySuite     map[Suite]Summary  `json:"by_suite"`
	Performance *PerformanceMetric `json:"performance,omitempty"`
	Metadata    Metadata           `json:"metadata"`
	Warnings    []Warning          `json:"ingestion_warnings,omitempty"`
	Results     []TestResult       `json:"results"`
}

// Severity is the urgency bucket of a flaky test.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// FlakyTestRecord is derived from the trend history on every detection pass.
type FlakyTestRecord struct {
	Key               TestKey          `json:"test_key"`
	TotalRuns         int              `json:"total_runs"`
	Failures          int              `json:"failures"`
	Passes            int              `json:"passes"`
	FailureRate       float64          `json:"failure_rate"`
	Severity          Severity         `json:"severity"`
	ImpactScore       float64          `json:"impact_score"`
	FirstSeen         time.Time        `json:"first_seen"`
	LastSeen          time.Time        `json:"last_seen"`
	LastFailure       string           `json:"last_failure,omitempty"`
	DominantSignature FailureSignature `json:"dominant_signature,omitempty"`
	Recommendation    string           `json:"recommendation"`
}

// TrendPoint is one run in a trend window.
type TrendPoint struct {
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	Total      int       `json:"total"`
	Failed     int       `json:"failed"`
	PassRate   float64   `json:"pass_rate"`
	DurationMS float64   `json:"duration_ms"`
}

// TrendSummary condenses a window of stored runs.
type TrendSummary struct {
	WindowDays      int          `json:"window_days"`
	Runs            int          `json:"runs"`
	AvgPassRate     float64      `json:"avg_pass_rate"`
	MinPassRate     float64      `json:"min_pass_rate"`
	MaxPassRate     float64      `json:"max_pass_rate"`
	FirstPassRate   float64      `json:"first_pass_rate"`
	LatestPassRate  float64      `json:"latest_pass_rate"`
	PassRateDelta   float64      `json:"pass_rate_delta"`
	TotalFailed     int          `json:"total_failed"`
	AvgDurationMS   float64      `json:"avg_duration_ms"`
	AvgThroughput   float64      `json:"avg_throughput,omitempty"`
	AvgP95LatencyMS float64      `json:"avg_p95_latency_ms,omitempty"`
	Points          []TrendPoint `json:"points"`
}

// Adapter maps one suite's native result document into canonical results.
type Adapter interface {
	// Suite returns the suite this adapter handles.
	Suite() Suite

	// Parse reads the document at path. A malformed document returns an error;
	// a well-formed document with no tests returns an empty result set.
	Parse(path string) (*SuiteResult, error)
}
