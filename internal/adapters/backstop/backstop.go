// Package backstop implements the visual-suite adapter for BackstopJS JSON reports
// (backstop_data/json_report/jsonReport.json).
package backstop

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/boyarskiy/runledger/internal/adapters"
	"github.com/boyarskiy/runledger/internal/model"
)

const tool = "BackstopJS (report: [\"json\"])"

// Report is the BackstopJS JSON report.
type Report struct {
	TestSuite string  `json:"testSuite"`
	ID        string  `json:"id"`
	Tests     []*Test `json:"tests"`
}

// Test is one compared pair.
type Test struct {
	Pair    Pair   `json:"pair"`
	Status  string `json:"status"`
	Skipped bool   `json:"skipped"`
}

// Pair describes the reference and test captures of one scenario.
type Pair struct {
	Reference     string `json:"reference"`
	Test          string `json:"test"`
	DiffImage     string `json:"diffImage"`
	Selector      string `json:"selector"`
	Label         string `json:"label"`
	ViewportLabel string `json:"viewportLabel"`
	URL           string `json:"url"`
	Threshold     any    `json:"misMatchThreshold"`
	Diff          *Diff  `json:"diff"`
	Error         string `json:"error"`
	EngineError   string `json:"engineErrorMsg"`
}

// Diff is the image comparison summary.
type Diff struct {
	IsSameDimensions   bool `json:"isSameDimensions"`
	MisMatchPercentage any  `json:"misMatchPercentage"`
}

// Adapter implements model.Adapter for BackstopJS.
type Adapter struct{}

// New creates a new BackstopJS adapter.
func New() *Adapter {
	return &Adapter{}
}

// Suite returns model.SuiteVisual.
func (a *Adapter) Suite() model.Suite {
	return model.SuiteVisual
}

// Parse reads a BackstopJS report. BackstopJS does not report timings, so
// every result has a zero duration.
func (a *Adapter) Parse(path string) (*model.SuiteResult, error) {
	data, err := adapters.ReadDocument(path, tool)
	if err != nil {
		return nil, err
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, adapters.Malformed(path,
			"Ensure BackstopJS wrote its JSON report completely.",
			"invalid JSON: %v", err)
	}
	if report.Tests == nil {
		return nil, adapters.Malformed(path,
			"This does not look like a BackstopJS JSON report.",
			"tests is missing")
	}

	collector := adapters.NewCollector()
	for i, test := range report.Tests {
		if test == nil {
			return nil, adapters.Malformed(path, "Each test entry must be an object.", "tests[%d] is null", i)
		}

		name := buildName(test.Pair)
		if name == "" {
			return nil, adapters.Malformed(path,
				"Each scenario must carry a label.",
				"tests[%d].pair.label is missing or empty", i)
		}

		outcome, err := mapStatus(test)
		if err != nil {
			return nil, adapters.Malformed(path,
				"Expected status 'pass' or 'fail'.",
				"tests[%d].status: %v", i, err)
		}

		result := model.TestResult{
			Suite:   model.SuiteVisual,
			Name:    name,
			Outcome: outcome,
		}
		if outcome == model.OutcomeFailed {
			result.Failure = buildFailure(test.Pair)
		}

		collector.Add(result)
	}

	return &model.SuiteResult{
		Suite:   model.SuiteVisual,
		Results: collector.Results(),
	}, nil
}

// buildName formats a scenario as "label [viewport] selector".
func buildName(p Pair) string {
	label := strings.TrimSpace(p.Label)
	if label == "" {
		return ""
	}

	parts := []string{label}
	if p.ViewportLabel != "" {
		parts = append(parts, "["+p.ViewportLabel+"]")
	}
	if p.Selector != "" {
		parts = append(parts, p.Selector)
	}

	return strings.Join(parts, " ")
}

func mapStatus(t *Test) (model.Outcome, error) {
	if t.Skipped {
		return model.OutcomeSkipped, nil
	}

	switch t.Status {
	case "pass":
		return model.OutcomePassed, nil
	case "fail":
		return model.OutcomeFailed, nil
	case "":
		return "", fmt.Errorf("missing or empty")
	default:
		return "", fmt.Errorf("unknown value %q", t.Status)
	}
}

func buildFailure(p Pair) *model.FailureDetail {
	var lines []string
	if p.Diff != nil && p.Diff.MisMatchPercentage != nil {
		msg := fmt.Sprintf("image mismatch %v%%", p.Diff.MisMatchPercentage)
		if p.Threshold != nil {
			msg += fmt.Sprintf(" exceeds threshold %v%%", p.Threshold)
		}
		lines = append(lines, msg)
		if !p.Diff.IsSameDimensions {
			lines = append(lines, "image dimensions differ")
		}
	}
	if p.Error != "" {
		lines = append(lines, p.Error)
	}
	if p.EngineError != "" {
		lines = append(lines, p.EngineError)
	}
	if len(lines) == 0 {
		lines = append(lines, "visual comparison failed")
	}

	var artifacts []string
	for _, a := range []string{p.Reference, p.Test, p.DiffImage} {
		if a != "" {
			artifacts = append(artifacts, a)
		}
	}

	return &model.FailureDetail{
		Message:   lines[0],
		Trace:     strings.Join(lines, "\n"),
		Artifacts: artifacts,
	}
}
