package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/boyarskiy/runledger/internal/classify"
	"github.com/boyarskiy/runledger/internal/model"
)

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}
	colorError   = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#585858", Dark: "#6C6C6C"}

	styleTitle   = lipgloss.NewStyle().Bold(true).Underline(true)
	styleHeader  = lipgloss.NewStyle().Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
)

// TerminalSummary is what the CLI prints after a run.
type TerminalSummary struct {
	Run       *model.TestRun
	Trend     *model.TrendSummary
	Flaky     []model.FlakyTestRecord
	Artifacts []string
	Warnings  []string
}

// TerminalConfig holds configuration for terminal output.
type TerminalConfig struct {
	Writer io.Writer
	TopN   int // Number of flaky tests to show (default: 5)
}

// DefaultTerminalConfig returns the default terminal configuration.
func DefaultTerminalConfig(w io.Writer) *TerminalConfig {
	return &TerminalConfig{
		Writer: w,
		TopN:   5,
	}
}

// RenderTerminal writes the terminal summary to the configured writer.
func RenderTerminal(cfg *TerminalConfig, s *TerminalSummary) error {
	if cfg.Writer == nil {
		return fmt.Errorf("writer is required")
	}
	if s == nil || s.Run == nil {
		return fmt.Errorf("summary is required")
	}

	topN := cfg.TopN
	if topN <= 0 {
		topN = 5
	}

	var b strings.Builder
	run := s.Run

	b.WriteString(styleTitle.Render("Runledger") + "  " + styleMuted.Render(run.RunID) + "\n\n")

	passStyle := styleSuccess
	if run.Summary.Failed > 0 {
		passStyle = styleError
	}
	fmt.Fprintf(&b, "%s %d total, %s, %d failed, %d skipped  %s\n\n",
		styleHeader.Render("Tests:"),
		run.Summary.Total,
		styleSuccess.Render(fmt.Sprintf("%d passed", run.Summary.Passed)),
		run.Summary.Failed,
		run.Summary.Skipped,
		passStyle.Render(formatPercent(run.Summary.PassRate)),
	)

	if len(run.BySuite) > 0 {
		b.WriteString(suiteTable(run) + "\n\n")
	}

	if perf := run.Performance; perf != nil {
		fmt.Fprintf(&b, "%s %.2f req/s, p50 %.1fms, p95 %.1fms, errors %s\n\n",
			styleHeader.Render("Load:"), perf.Throughput, perf.P50LatencyMS, perf.P95LatencyMS, formatPercent(perf.ErrorRate))
	}

	if t := s.Trend; t != nil {
		fmt.Fprintf(&b, "%s %d runs in %d days, avg pass rate %s (%+.1f pts)\n\n",
			styleHeader.Render("Trend:"), t.Runs, t.WindowDays, formatPercent(t.AvgPassRate), t.PassRateDelta*100)
	}

	if s.Flaky != nil {
		writeTerminalFlaky(&b, s.Flaky, topN)
	}

	if len(s.Warnings) > 0 {
		b.WriteString(styleWarning.Render("Warnings:") + "\n")
		for _, w := range s.Warnings {
			b.WriteString("  " + styleWarning.Render("!") + " " + w + "\n")
		}
		b.WriteString("\n")
	}

	if len(s.Artifacts) > 0 {
		b.WriteString(styleHeader.Render("Artifacts:") + "\n")
		for _, a := range s.Artifacts {
			b.WriteString("  " + a + "\n")
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(cfg.Writer, b.String())
	return err
}

// RenderFlaky writes only the flaky section, for store-only detection.
func RenderFlaky(cfg *TerminalConfig, records []model.FlakyTestRecord) error {
	if cfg.Writer == nil {
		return fmt.Errorf("writer is required")
	}
	topN := cfg.TopN
	if topN <= 0 {
		topN = 5
	}

	var b strings.Builder
	writeTerminalFlaky(&b, records, topN)
	_, err := io.WriteString(cfg.Writer, b.String())
	return err
}

func suiteTable(run *model.TestRun) string {
	titleCase := cases.Title(language.English)
	rows := []string{styleHeader.Render(fmt.Sprintf("%-10s %6s %6s %6s %7s %9s", "SUITE", "TOTAL", "PASS", "FAIL", "SKIP", "RATE"))}
	for _, suite := range model.Suites() {
		s, ok := run.BySuite[suite]
		if !ok {
			continue
		}
		line := fmt.Sprintf("%-10s %6d %6d %6d %7d %9s", titleCase.String(string(suite)), s.Total, s.Passed, s.Failed, s.Skipped, formatPercent(s.PassRate))
		if s.Failed > 0 {
			line = styleError.Render(line)
		}
		rows = append(rows, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func writeTerminalFlaky(b *strings.Builder, records []model.FlakyTestRecord, topN int) {
	if len(records) == 0 {
		b.WriteString(styleSuccess.Render("No flaky tests detected.") + "\n\n")
		return
	}

	fmt.Fprintf(b, "%s %d (top %d by impact)\n", styleHeader.Render("Flaky tests:"), len(records), min(topN, len(records)))
	for i, r := range classify.Top(records, topN) {
		fmt.Fprintf(b, "  %d. %s %s\n", i+1, r.Key.String(), severityStyle(r.Severity).Render("["+string(r.Severity)+"]"))
		fmt.Fprintf(b, "     Failure Rate: %s (%d/%d failed), impact %.2f\n",
			formatPercent(r.FailureRate), r.Failures, r.TotalRuns, r.ImpactScore)
		if r.LastFailure != "" {
			fmt.Fprintf(b, "     Last failure: %s\n", truncateForTerminal(r.LastFailure, 80))
		}
	}
	b.WriteString("\n")
}

func severityStyle(s model.Severity) lipgloss.Style {
	switch s {
	case model.SeverityCritical, model.SeverityHigh:
		return styleError
	case model.SeverityMedium:
		return styleWarning
	default:
		return styleMuted
	}
}

// truncateForTerminal collapses an excerpt onto one line and cuts it to maxLen.
func truncateForTerminal(s string, maxLen int) string {
	s = oneLine(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
