// Package jest implements the contract-suite adapter for Jest JSON reports.
package jest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/boyarskiy/runledger/internal/adapters"
	"github.com/boyarskiy/runledger/internal/model"
)

const tool = "Jest (--json --outputFile)"

// Adapter implements model.Adapter for Jest.
type Adapter struct{}

// New creates a new Jest adapter.
func New() *Adapter {
	return &Adapter{}
}

// Suite returns model.SuiteContract.
func (a *Adapter) Suite() model.Suite {
	return model.SuiteContract
}

// Parse reads the Jest JSON output at path and returns test results.
func (a *Adapter) Parse(path string) (*model.SuiteResult, error) {
	data, err := adapters.ReadDocument(path, tool)
	if err != nil {
		return nil, err
	}

	var output Output
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, adapters.Malformed(path,
			"Ensure Jest produced valid JSON output. The file may be corrupted or incomplete.",
			"invalid JSON: %v", err)
	}

	if output.TestResults == nil {
		return nil, adapters.Malformed(path,
			"This does not look like Jest --json output.",
			"testResults is missing")
	}

	collector := adapters.NewCollector()
	if err := extractTests(&output, path, collector); err != nil {
		return nil, err
	}

	return &model.SuiteResult{
		Suite:   model.SuiteContract,
		Results: collector.Results(),
	}, nil
}

// extractTests converts Jest output into canonical results.
func extractTests(output *Output, path string, collector *adapters.Collector) error {
	for i, file := range output.TestResults {
		if file.Name == "" {
			return adapters.Malformed(path,
				"Each test result must have a 'name' field containing the file path.",
				"testResults[%d].name is missing or empty", i)
		}

		for j, assertion := range file.AssertionResults {
			if assertion.FullName == "" {
				return adapters.Malformed(path,
					"Each assertion result must have a 'fullName' field.",
					"testResults[%d].assertionResults[%d].fullName is missing or empty", i, j)
			}

			outcome, err := mapStatus(assertion.Status)
			if err != nil {
				return adapters.Malformed(path,
					"Expected 'passed', 'failed', 'pending', 'skipped', 'todo' or 'disabled'.",
					"testResults[%d].assertionResults[%d].status: %v", i, j, err)
			}

			if !adapters.ValidDuration(assertion.Duration) {
				return adapters.Malformed(path,
					"Durations must be non-negative milliseconds.",
					"testResults[%d].assertionResults[%d].duration is %v", i, j, assertion.Duration)
			}

			result := model.TestResult{
				Suite:      model.SuiteContract,
				Name:       fmt.Sprintf("%s::%s", file.Name, assertion.FullName),
				Outcome:    outcome,
				DurationMS: assertion.Duration,
			}

			if outcome == model.OutcomeFailed {
				result.Failure = buildFailure(assertion.FailureMessages)
			}

			collector.Add(result)
		}
	}

	return nil
}

// mapStatus converts Jest status strings to model.Outcome.
func mapStatus(status string) (model.Outcome, error) {
	switch status {
	case "passed":
		return model.OutcomePassed, nil
	case "failed":
		return model.OutcomeFailed, nil
	case "pending", "skipped", "todo", "disabled":
		return model.OutcomeSkipped, nil
	case "":
		return "", fmt.Errorf("missing or empty")
	default:
		return "", fmt.Errorf("unknown value %q", status)
	}
}

func buildFailure(messages []string) *model.FailureDetail {
	trace := strings.Join(messages, "\n")

	var msg string
	for _, line := range strings.Split(trace, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			msg = line
			break
		}
	}

	return &model.FailureDetail{
		Message: msg,
		Trace:   trace,
	}
}

// Output represents the top-level Jest JSON output structure.
type Output struct {
	NumFailedTests  int          `json:"numFailedTests"`
	NumPassedTests  int          `json:"numPassedTests"`
	NumPendingTests int          `json:"numPendingTests"`
	NumTotalTests   int          `json:"numTotalTests"`
	Success         bool         `json:"success"`
	TestResults     []FileResult `json:"testResults"`
}

// FileResult represents a Jest test file result.
type FileResult struct {
	Name             string            `json:"name"`
	Status           string            `json:"status"`
	AssertionResults []AssertionResult `json:"assertionResults"`
}

// AssertionResult represents a single Jest test assertion.
type AssertionResult struct {
	FullName        string   `json:"fullName"`
	Status          string   `json:"status"`
	Title           string   `json:"title"`
	Duration        float64  `json:"duration"`
	FailureMessages []string `json:"failureMessages"`
}
