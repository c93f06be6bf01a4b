package junit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/model"
)

const (
	passingXML = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="cypress/e2e/login.cy.js" tests="2" failures="0" errors="0" skipped="0" time="1.5">
    <testcase name="should display login form" classname="cypress/e2e/login.cy.js" time="0.5"/>
    <testcase name="should login successfully" classname="cypress/e2e/login.cy.js" time="1.0"/>
  </testsuite>
</testsuites>`

	failingXML = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="cypress/e2e/checkout.cy.js" tests="2" failures="1">
    <testcase name="should add item to cart" classname="cypress/e2e/checkout.cy.js" time="0.8"/>
    <testcase name="should complete purchase" classname="cypress/e2e/checkout.cy.js" time="1.2">
      <failure message="AssertionError: expected button to be visible" type="AssertionError">AssertionError: expected button to be visible
    at Context.eval (cypress/e2e/checkout.cy.js:15:10)</failure>
      <system-out>[[ATTACHMENT|screenshots/checkout -- purchase (failed).png]]</system-out>
      <properties>
        <property name="screenshot" value="screenshots/purchase-final.png"/>
      </properties>
    </testcase>
  </testsuite>
</testsuites>`

	mixedXML = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="settings">
    <testcase name="should load settings" classname="settings" time="0.5"/>
    <testcase name="should delete account" classname="settings" time="0">
      <skipped message="Test skipped"/>
    </testcase>
    <testcase name="error test" classname="settings" time="0.25">
      <error type="RuntimeError">RuntimeError: Script error
    at eval</error>
    </testcase>
  </testsuite>
</testsuites>`

	retriesXML = `<testsuites>
  <testsuite name="flaky">
    <testcase name="flaky test" classname="flaky.cy.js" time="1.0">
      <failure message="Timeout waiting for element">Timeout</failure>
    </testcase>
    <testcase name="stable test" classname="flaky.cy.js" time="0.5"/>
    <testcase name="flaky test" classname="flaky.cy.js" time="1.5"/>
  </testsuite>
</testsuites>`

	singleSuiteXML = `<testsuite name="single">
  <testcase name="single test" time="0.5"/>
</testsuite>`

	emptyXML = `<testsuites name="nothing ran"></testsuites>`

	missingNameXML = `<testsuites><testsuite><testcase classname="x" time="1"/></testsuite></testsuites>`

	negativeTimeXML = `<testsuites><testsuite><testcase name="clock skew" classname="x" time="-1"/></testsuite></testsuites>`

	verbatimXML = `<testsuites>
  <testsuite name="verbatim">
    <testcase name="keeps attribute" classname="v" time="0.1"><failure message="  Expected 3 to equal 4  ">
    Expected 3 to equal 4
    at spec.js:3
</failure></testcase>
    <testcase name="derives message" classname="v" time="0.1"><failure message=" ">
    Expected 3 to equal 4
</failure></testcase>
  </testsuite>
</testsuites>`
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestAdapterSuite(t *testing.T) {
	assert.Equal(t, model.SuiteWorkflow, New().Suite())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		fixture  string
		expected []model.TestResult
	}{
		{
			name:    "passing tests",
			fixture: passingXML,
			expected: []model.TestResult{
				{Suite: model.SuiteWorkflow, Name: "cypress/e2e/login.cy.js::should display login form", Outcome: model.OutcomePassed, DurationMS: 500},
				{Suite: model.SuiteWorkflow, Name: "cypress/e2e/login.cy.js::should login successfully", Outcome: model.OutcomePassed, DurationMS: 1000},
			},
		},
		{
			name:    "retries keep first position and last outcome",
			fixture: retriesXML,
			expected: []model.TestResult{
				{Suite: model.SuiteWorkflow, Name: "flaky.cy.js::flaky test", Outcome: model.OutcomePassed, DurationMS: 1500},
				{Suite: model.SuiteWorkflow, Name: "flaky.cy.js::stable test", Outcome: model.OutcomePassed, DurationMS: 500},
			},
		},
		{
			name:    "single testsuite root without classname",
			fixture: singleSuiteXML,
			expected: []model.TestResult{
				{Suite: model.SuiteWorkflow, Name: "single test", Outcome: model.OutcomePassed, DurationMS: 500},
			},
		},
		{
			name:     "well-formed document with no tests",
			fixture:  emptyXML,
			expected: []model.TestResult{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := New().Parse(writeFixture(t, tc.fixture))
			require.NoError(t, err)
			assert.Equal(t, model.SuiteWorkflow, result.Suite)
			assert.Nil(t, result.Performance)
			assert.Equal(t, tc.expected, result.Results)
		})
	}
}

func TestParseFailureDetail(t *testing.T) {
	result, err := New().Parse(writeFixture(t, failingXML))
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	failed := result.Results[1]
	assert.Equal(t, model.OutcomeFailed, failed.Outcome)
	require.NotNil(t, failed.Failure)
	assert.Equal(t, "AssertionError: expected button to be visible", failed.Failure.Message)
	assert.Contains(t, failed.Failure.Trace, "at Context.eval (cypress/e2e/checkout.cy.js:15:10)")
	assert.Equal(t, []string{
		"screenshots/checkout -- purchase (failed).png",
		"screenshots/purchase-final.png",
	}, failed.Failure.Artifacts)

	assert.Nil(t, result.Results[0].Failure)
}

func TestParseKeepsFailureTextVerbatim(t *testing.T) {
	result, err := New().Parse(writeFixture(t, verbatimXML))
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	kept := result.Results[0].Failure
	require.NotNil(t, kept)
	assert.Equal(t, "  Expected 3 to equal 4  ", kept.Message)
	assert.Equal(t, "\n    Expected 3 to equal 4\n    at spec.js:3\n", kept.Trace)

	derived := result.Results[1].Failure
	require.NotNil(t, derived)
	assert.Equal(t, "Expected 3 to equal 4", derived.Message)
	assert.Equal(t, "\n    Expected 3 to equal 4\n", derived.Trace)
}

func TestParseSkippedAndErrorElements(t *testing.T) {
	result, err := New().Parse(writeFixture(t, mixedXML))
	require.NoError(t, err)
	require.Len(t, result.Results, 3)

	assert.Equal(t, model.OutcomePassed, result.Results[0].Outcome)
	assert.Equal(t, model.OutcomeSkipped, result.Results[1].Outcome)
	assert.Nil(t, result.Results[1].Failure)

	errored := result.Results[2]
	assert.Equal(t, model.OutcomeFailed, errored.Outcome)
	require.NotNil(t, errored.Failure)
	assert.Equal(t, "RuntimeError: Script error", errored.Failure.Message)
	assert.InDelta(t, 250.0, errored.DurationMS, 0.001)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name          string
		fixture       string
		errorContains string
	}{
		{name: "invalid XML", fixture: "this is not xml", errorContains: "invalid JUnit format"},
		{name: "empty file", fixture: "", errorContains: "file is empty"},
		{name: "missing name", fixture: missingNameXML, errorContains: "missing its name attribute"},
		{name: "negative time", fixture: negativeTimeXML, errorContains: `"x::clock skew" has invalid time -1`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New().Parse(writeFixture(t, tc.fixture))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrMalformedDocument)
			assert.Contains(t, err.Error(), tc.errorContains)
		})
	}
}

func TestParseDeterministicOutput(t *testing.T) {
	path := writeFixture(t, retriesXML)

	first, err := New().Parse(path)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := New().Parse(path)
		require.NoError(t, err)
		assert.Equal(t, first.Results, again.Results)
	}
}
