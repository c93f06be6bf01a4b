// Package junit implements the workflow-suite adapter for JUnit XML reports,
// as written by Cypress, Playwright and most browser workflow runners.
package junit

import (
	"encoding/xml"
	"regexp"
	"strings"

	"github.com/boyarskiy/runledger/internal/adapters"
	"github.com/boyarskiy/runledger/internal/model"
)

const tool = "the workflow runner"

// attachmentPattern matches the Jenkins attachment convention in system-out.
var attachmentPattern = regexp.MustCompile(`\[\[ATTACHMENT\|([^\]]+)\]\]`)

// TestSuites represents the root element of JUnit XML.
type TestSuites struct {
	XMLName    xml.Name    `xml:"testsuites"`
	TestSuites []TestSuite `xml:"testsuite"`
}

// TestSuite represents a test suite in JUnit XML.
type TestSuite struct {
	XMLName   xml.Name   `xml:"testsuite"`
	Name      string     `xml:"name,attr"`
	Tests     int        `xml:"tests,attr"`
	Failures  int        `xml:"failures,attr"`
	Errors    int        `xml:"errors,attr"`
	Skipped   int        `xml:"skipped,attr"`
	Time      float64    `xml:"time,attr"`
	TestCases []TestCase `xml:"testcase"`
}

// TestCase represents a single test case in JUnit XML.
type TestCase struct {
	Name       string     `xml:"name,attr"`
	Classname  string     `xml:"classname,attr"`
	Time       float64    `xml:"time,attr"`
	Failure    *Problem   `xml:"failure"`
	Error      *Problem   `xml:"error"`
	Skipped    *Skipped   `xml:"skipped"`
	SystemOut  string     `xml:"system-out"`
	Properties []Property `xml:"properties>property"`
}

// Problem is a <failure> or <error> element.
type Problem struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// Skipped represents a skipped test.
type Skipped struct {
	Message string `xml:"message,attr"`
}

// Property is a name/value pair attached to a test case.
type Property struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Adapter implements model.Adapter for JUnit XML.
type Adapter struct{}

// New creates a new JUnit adapter.
func New() *Adapter {
	return &Adapter{}
}

// Suite returns model.SuiteWorkflow.
func (a *Adapter) Suite() model.Suite {
	return model.SuiteWorkflow
}

// Parse reads a JUnit XML document. If the same test appears multiple times
// (retries), the last occurrence wins.
func (a *Adapter) Parse(path string) (*model.SuiteResult, error) {
	data, err := adapters.ReadDocument(path, tool)
	if err != nil {
		return nil, err
	}

	testCases, err := decode(path, data)
	if err != nil {
		return nil, err
	}

	collector := adapters.NewCollector()
	for i, tc := range testCases {
		name := buildName(tc.Classname, tc.Name)
		if name == "" {
			return nil, adapters.Malformed(path,
				"Each <testcase> must carry a name attribute.",
				"testcase[%d] is missing its name attribute", i)
		}

		if !adapters.ValidDuration(tc.Time) {
			return nil, adapters.Malformed(path,
				"The time attribute must be a non-negative number of seconds.",
				"testcase %q has invalid time %v", name, tc.Time)
		}

		result := model.TestResult{
			Suite:      model.SuiteWorkflow,
			Name:       name,
			Outcome:    determineOutcome(tc),
			DurationMS: tc.Time * 1000,
		}

		if result.Outcome == model.OutcomeFailed {
			problem := tc.Failure
			if problem == nil {
				problem = tc.Error
			}
			result.Failure = buildFailure(problem, tc)
		}

		collector.Add(result)
	}

	return &model.SuiteResult{
		Suite:   model.SuiteWorkflow,
		Results: collector.Results(),
	}, nil
}

// decode accepts either a <testsuites> root or a single <testsuite> root.
func decode(path string, data []byte) ([]TestCase, error) {
	var suites TestSuites
	if err := xml.Unmarshal(data, &suites); err == nil {
		var all []TestCase
		for _, suite := range suites.TestSuites {
			all = append(all, suite.TestCases...)
		}
		return all, nil
	}

	var single TestSuite
	if err := xml.Unmarshal(data, &single); err != nil {
		return nil, adapters.Malformed(path,
			"Ensure the runner uses a JUnit reporter and the file was fully written.",
			"invalid JUnit format: %v", err)
	}

	return single.TestCases, nil
}

// buildName constructs the test name from classname and name.
// Format: <classname>::<name>, or <name> alone when classname is empty.
func buildName(classname, name string) string {
	classname = strings.TrimSpace(classname)
	name = strings.TrimSpace(name)

	if name == "" {
		return ""
	}
	if classname == "" {
		return name
	}

	return classname + "::" + name
}

// determineOutcome determines the test outcome from a JUnit test case.
func determineOutcome(tc TestCase) model.Outcome {
	if tc.Skipped != nil {
		return model.OutcomeSkipped
	}
	if tc.Failure != nil || tc.Error != nil {
		return model.OutcomeFailed
	}
	return model.OutcomePassed
}

// buildFailure keeps the failure text as reported. The body is the trace and
// the message attribute the message; a blank attribute falls back to the
// first non-blank line of the body.
func buildFailure(p *Problem, tc TestCase) *model.FailureDetail {
	msg := p.Message
	if strings.TrimSpace(msg) == "" {
		msg = firstLine(p.Content)
	}

	return &model.FailureDetail{
		Message:   msg,
		Trace:     p.Content,
		Artifacts: collectArtifacts(tc),
	}
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func collectArtifacts(tc TestCase) []string {
	var artifacts []string
	for _, m := range attachmentPattern.FindAllStringSubmatch(tc.SystemOut, -1) {
		artifacts = append(artifacts, strings.TrimSpace(m[1]))
	}
	for _, p := range tc.Properties {
		if strings.EqualFold(p.Name, "screenshot") && p.Value != "" {
			artifacts = append(artifacts, p.Value)
		}
	}
	return artifacts
}
