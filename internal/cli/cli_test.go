package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boyarskiy/runledger/internal/config"
	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/model"
	"github.com/boyarskiy/runledger/internal/report"
)

func junitDoc(fail bool) string {
	checkout := `<testcase name="pays" classname="checkout.cy.js" time="1.0"/>`
	if fail {
		checkout = `<testcase name="pays" classname="checkout.cy.js" time="2.0"><failure message="cy.get() could not find element">CypressError</failure></testcase>`
	}
	return `<testsuites><testsuite name="e2e">
  <testcase name="signs in" classname="login.cy.js" time="0.5"/>
  ` + checkout + `
</testsuite></testsuites>`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute runs the CLI without reading any config file from the host.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(BuildInfo{Version: "test"}, config.Paths{})

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRun_Success(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	input := writeFile(t, dir, "junit.xml", junitDoc(false))

	stdout, err := execute(t, "run", "--input", "workflow="+input, "--out", out,
		"--format", "json,markdown", "--branch", "main", "--meta", "env=staging")
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, ExitCode(err))

	assert.Contains(t, stdout, "Runledger")
	assert.Contains(t, stdout, "2 total")
	assert.FileExists(t, filepath.Join(out, "report.json"))
	assert.FileExists(t, filepath.Join(out, "report.md"))
	assert.NoFileExists(t, filepath.Join(out, "report.html"))

	data, err := os.ReadFile(filepath.Join(out, "report.json"))
	require.NoError(t, err)
	var doc struct {
		Run model.TestRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "main", doc.Run.Metadata.Branch)
	assert.Equal(t, "staging", doc.Run.Metadata.Extra["env"])
}

func TestRun_WarningsExitTwo(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "junit.xml", junitDoc(true))

	stdout, err := execute(t, "run",
		"--input", "workflow="+input,
		"--input", "visual="+filepath.Join(dir, "missing.json"),
		"--out", filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Equal(t, ExitWarnings, ExitCode(err))
	assert.Contains(t, stdout, "visual: missing")
}

func TestRun_HardFailures(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "run", "--out", filepath.Join(dir, "out"))
	assert.True(t, errors.Is(err, errors.ErrNoInput))
	assert.Equal(t, ExitError, ExitCode(err))

	_, err = execute(t, "run", "--input", "unit=foo.xml", "--out", filepath.Join(dir, "out"))
	assert.True(t, errors.Is(err, errors.ErrInvalidSuite))

	_, err = execute(t, "run", "--input", "workflow", "--out", filepath.Join(dir, "out"))
	assert.True(t, errors.Is(err, errors.ErrInvalidSuite))

	_, err = execute(t, "run", "--input", "workflow=x.xml", "--format", "docx")
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid))

	_, err = execute(t, "flaky", "--store", filepath.Join(dir, "no-store"))
	assert.True(t, errors.Is(err, errors.ErrStoreUnavailable))
	assert.Equal(t, ExitError, ExitCode(err))
}

func TestRun_PersistThenQuery(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "store")

	for i, fail := range []bool{true, false, true, false, false} {
		input := writeFile(t, dir, fmt.Sprintf("junit-%d.xml", i), junitDoc(fail))
		_, err := execute(t, "run", "--input", "workflow="+input,
			"--out", filepath.Join(dir, fmt.Sprintf("out-%d", i)),
			"--format", "json", "--persist", "--store", store, "--run-id", fmt.Sprintf("run-%d", i))
		require.NoError(t, err, "run %d", i)
	}

	stdout, err := execute(t, "flaky", "--store", store, "--json")
	require.NoError(t, err)
	var records []model.FlakyTestRecord
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "workflow::checkout.cy.js::pays", records[0].Key.String())
	assert.Equal(t, model.SignatureSelector, records[0].DominantSignature)

	stdout, err = execute(t, "flaky", "--store", store, "--min-runs", "6")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No flaky tests detected.")

	stdout, err = execute(t, "trend", "--store", store, "--days", "7")
	require.NoError(t, err)
	var export report.TrendExport
	require.NoError(t, json.Unmarshal([]byte(stdout), &export))
	require.NotNil(t, export.Summary)
	assert.Equal(t, 5, export.Summary.Runs)
	assert.Equal(t, 7, export.Summary.WindowDays)
	require.Len(t, export.Runs, 5)
	assert.Equal(t, "run-0", export.Runs[0].RunID)
	require.NotEmpty(t, export.Runs[0].Outcomes)
	var failed int
	for _, o := range export.Runs[0].Outcomes {
		if o.Outcome == model.OutcomeFailed {
			failed++
			assert.Equal(t, model.SignatureSelector, o.Signature)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Contains(t, export.Runs[0].BySuite, model.SuiteWorkflow)

	exported := filepath.Join(dir, "exports", "trend.json")
	stdout, err = execute(t, "trend", "--store", store, "--out", exported)
	require.NoError(t, err)
	assert.Contains(t, stdout, "5 runs written to")
	assert.FileExists(t, exported)
}

func TestRun_FlakyFlagRunsDetection(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "junit.xml", junitDoc(false))
	out := filepath.Join(dir, "out")

	_, err := execute(t, "run", "--input", "workflow="+input, "--out", out, "--format", "json",
		"--persist", "--flaky", "--store", filepath.Join(dir, "store"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "flaky.json"))
	assert.FileExists(t, filepath.Join(out, "trend.json"))
}

func TestConfigShow(t *testing.T) {
	t.Setenv("RUNLEDGER_INFLUX_TOKEN", "secret")
	t.Setenv("RUNLEDGER_TREND_WINDOW_DAYS", "14")

	stdout, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "window_days: 14")
	assert.Contains(t, stdout, "lock_timeout: 10s")
	assert.Contains(t, stdout, "********")
	assert.NotContains(t, stdout, "secret")
}

func TestConfigFileFlag(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "runledger.yaml", "trend:\n  window_days: 0\n")

	_, err := execute(t, "--config", cfgPath, "config", "show")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
}

func TestShow(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "report.md", "# Runledger Report\n\n## Summary\n\n| Metric | Value |\n|---|---|\n| Total | 2 |\n")

	stdout, err := execute(t, "show", "--style", "notty", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Runledger Report")
	assert.Contains(t, stdout, "Summary")

	_, err = execute(t, "show", filepath.Join(dir, "missing.md"))
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitWarnings, ExitCode(errCompletedWithWarnings))
	assert.Equal(t, ExitError, ExitCode(errors.ErrNoInput))
	assert.Equal(t, ExitError, ExitCode(assert.AnError))
}

func TestParseInputs(t *testing.T) {
	inputs, err := parseInputs([]string{"load = k6.json", "contract=jest.json"})
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, model.SuiteLoad, inputs[0].Suite)
	assert.Equal(t, "k6.json", inputs[0].Path)
	assert.Equal(t, model.SuiteContract, inputs[1].Suite)

	_, err = parseInputs([]string{"workflow="})
	assert.True(t, errors.Is(err, errors.ErrInvalidSuite))
}

func TestParseMetadata(t *testing.T) {
	md, err := parseMetadata(&runFlags{revision: "abc", meta: []string{"env=staging", "url=http://x?a=b"}})
	require.NoError(t, err)
	assert.Equal(t, "abc", md.Revision)
	assert.Equal(t, map[string]string{"env": "staging", "url": "http://x?a=b"}, md.Extra)

	_, err = parseMetadata(&runFlags{meta: []string{"novalue"}})
	assert.Error(t, err)

	md, err = parseMetadata(&runFlags{})
	require.NoError(t, err)
	assert.Nil(t, md.Extra)
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "dev (commit: none, built: unknown)", formatVersion(BuildInfo{}))
	assert.Equal(t, "1.2.0 (commit: abc, built: today)", formatVersion(BuildInfo{Version: "1.2.0", Commit: "abc", Date: "today"}))
}
