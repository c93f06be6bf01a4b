package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/boyarskiy/runledger/internal/classify"
	"github.com/boyarskiy/runledger/internal/model"
)

// RenderMarkdown renders the report as a Markdown string.
func RenderMarkdown(doc *Document) string {
	if doc == nil || doc.Run == nil {
		return ""
	}

	run := doc.Run
	var sb strings.Builder

	sb.WriteString("# Runledger Report\n\n")
	writeProvenance(&sb, doc)

	// Summary section
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total | %d |\n", run.Summary.Total))
	sb.WriteString(fmt.Sprintf("| Passed | %d |\n", run.Summary.Passed))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", run.Summary.Failed))
	sb.WriteString(fmt.Sprintf("| Skipped | %d |\n", run.Summary.Skipped))
	sb.WriteString(fmt.Sprintf("| Pass Rate | %s |\n", formatPercent(run.Summary.PassRate)))
	sb.WriteString(fmt.Sprintf("| Duration | %s |\n", formatDuration(run.Summary.DurationMS)))
	sb.WriteString("\n")

	writeSuites(&sb, run)
	writePerformance(&sb, run.Performance)
	writeWarnings(&sb, run.Warnings)
	writeFailures(&sb, run.Results)

	if doc.Trend != nil {
		writeTrend(&sb, doc.Trend)
	}
	if doc.flakyComputed {
		writeFlaky(&sb, doc.Flaky)
	}

	return sb.String()
}

func writeProvenance(sb *strings.Builder, doc *Document) {
	run := doc.Run
	sb.WriteString(fmt.Sprintf("- **Run:** `%s`\n", run.RunID))
	sb.WriteString(fmt.Sprintf("- **Timestamp:** %s\n", run.Timestamp.Format("2006-01-02 15:04:05 MST")))
	if run.Metadata.Revision != "" {
		sb.WriteString(fmt.Sprintf("- **Revision:** `%s`\n", run.Metadata.Revision))
	}
	if run.Metadata.Branch != "" {
		sb.WriteString(fmt.Sprintf("- **Branch:** %s\n", escapeMarkdown(run.Metadata.Branch)))
	}
	if run.Metadata.CIRunID != "" {
		sb.WriteString(fmt.Sprintf("- **CI Run:** %s\n", escapeMarkdown(run.Metadata.CIRunID)))
	}

	keys := make([]string, 0, len(run.Metadata.Extra))
	for k := range run.Metadata.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("- **%s:** %s\n", escapeMarkdown(k), escapeMarkdown(run.Metadata.Extra[k])))
	}
	sb.WriteString("\n")
}

func writeSuites(sb *strings.Builder, run *model.TestRun) {
	if len(run.BySuite) == 0 {
		return
	}

	sb.WriteString("## Suites\n\n")
	sb.WriteString("| Suite | Total | Passed | Failed | Skipped | Pass Rate | Duration |\n")
	sb.WriteString("|-------|-------|--------|--------|---------|-----------|----------|\n")
	for _, suite := range model.Suites() {
		s, ok := run.BySuite[suite]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %s | %s |\n",
			suite, s.Total, s.Passed, s.Failed, s.Skipped,
			formatPercent(s.PassRate), formatDuration(s.DurationMS)))
	}
	sb.WriteString("\n")
}

func writePerformance(sb *strings.Builder, perf *model.PerformanceMetric) {
	if perf == nil {
		return
	}

	sb.WriteString("## Performance\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Throughput | %.2f req/s |\n", perf.Throughput))
	sb.WriteString(fmt.Sprintf("| p50 Latency | %.1f ms |\n", perf.P50LatencyMS))
	sb.WriteString(fmt.Sprintf("| p95 Latency | %.1f ms |\n", perf.P95LatencyMS))
	sb.WriteString(fmt.Sprintf("| Error Rate | %s |\n", formatPercent(perf.ErrorRate)))
	sb.WriteString("\n")
}

func writeWarnings(sb *strings.Builder, warnings []model.Warning) {
	if len(warnings) == 0 {
		return
	}

	sb.WriteString("## Ingestion Warnings\n\n")
	for _, w := range warnings {
		sb.WriteString(fmt.Sprintf("- **%s** (%s) `%s`: %s\n", w.Suite, w.Kind, w.Path, escapeMarkdown(oneLine(w.Message))))
	}
	sb.WriteString("\n")
}

func writeFailures(sb *strings.Builder, results []model.TestResult) {
	var failed []model.TestResult
	for _, r := range results {
		if r.Outcome == model.OutcomeFailed {
			failed = append(failed, r)
		}
	}

	sb.WriteString("## Failures\n\n")
	if len(failed) == 0 {
		sb.WriteString("No failed tests.\n\n")
		return
	}

	for _, r := range failed {
		sb.WriteString(fmt.Sprintf("### %s\n\n", escapeMarkdown(r.Key().String())))
		if r.Failure == nil {
			continue
		}

		sb.WriteString(fmt.Sprintf("- **Signature:** %s\n", r.Failure.Signature))
		sb.WriteString(fmt.Sprintf("- **Duration:** %s\n", formatDuration(r.DurationMS)))
		if r.Failure.Message != "" {
			sb.WriteString(fmt.Sprintf("- **Message:** %s\n", escapeMarkdown(oneLine(r.Failure.Message))))
		}
		sb.WriteString("\n")

		if strings.TrimSpace(r.Failure.Trace) != "" {
			fence := codeFence(r.Failure.Trace)
			sb.WriteString(fence + "\n" + r.Failure.Trace + "\n" + fence + "\n\n")
		}

		if len(r.Failure.Artifacts) > 0 {
			sb.WriteString("**Artifacts:**\n\n")
			for _, a := range r.Failure.Artifacts {
				sb.WriteString(fmt.Sprintf("- `%s`\n", a))
			}
			sb.WriteString("\n")
		}
	}
}

func writeTrend(sb *strings.Builder, t *model.TrendSummary) {
	sb.WriteString(fmt.Sprintf("## Trend (last %d days)\n\n", t.WindowDays))
	if t.Runs == 0 {
		sb.WriteString("No runs stored in this window.\n\n")
		return
	}

	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Runs | %d |\n", t.Runs))
	sb.WriteString(fmt.Sprintf("| Average Pass Rate | %s |\n", formatPercent(t.AvgPassRate)))
	sb.WriteString(fmt.Sprintf("| Pass Rate Range | %s to %s |\n", formatPercent(t.MinPassRate), formatPercent(t.MaxPassRate)))
	sb.WriteString(fmt.Sprintf("| Pass Rate Change | %+.1f pts |\n", t.PassRateDelta*100))
	sb.WriteString(fmt.Sprintf("| Total Failures | %d |\n", t.TotalFailed))
	sb.WriteString(fmt.Sprintf("| Average Duration | %s |\n", formatDuration(t.AvgDurationMS)))
	if t.AvgThroughput > 0 || t.AvgP95LatencyMS > 0 {
		sb.WriteString(fmt.Sprintf("| Average Throughput | %.2f req/s |\n", t.AvgThroughput))
		sb.WriteString(fmt.Sprintf("| Average p95 Latency | %.1f ms |\n", t.AvgP95LatencyMS))
	}
	sb.WriteString("\n")

	sb.WriteString("| Run | Timestamp | Total | Failed | Pass Rate |\n")
	sb.WriteString("|-----|-----------|-------|--------|-----------|\n")
	for _, p := range t.Points {
		sb.WriteString(fmt.Sprintf("| `%s` | %s | %d | %d | %s |\n",
			p.RunID, p.Timestamp.Format("2006-01-02 15:04"), p.Total, p.Failed, formatPercent(p.PassRate)))
	}
	sb.WriteString("\n")
}

func writeFlaky(sb *strings.Builder, records []model.FlakyTestRecord) {
	sb.WriteString("## Flaky Tests\n\n")
	if len(records) == 0 {
		sb.WriteString("No flaky tests detected.\n\n")
		return
	}

	sb.WriteString("Ranked by impact score.\n\n")
	sb.WriteString("| # | Test | Severity | Failure Rate | Runs | Impact | Signature |\n")
	sb.WriteString("|---|------|----------|--------------|------|--------|-----------|\n")
	for i, r := range records {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s (%d/%d) | %d | %.2f | %s |\n",
			i+1, escapeMarkdown(r.Key.String()), r.Severity,
			formatPercent(r.FailureRate), r.Failures, r.TotalRuns,
			r.TotalRuns, r.ImpactScore, r.DominantSignature))
	}
	sb.WriteString("\n")

	sb.WriteString("### Recommendations\n\n")
	for _, r := range records {
		sb.WriteString(fmt.Sprintf("- **%s** (%s): %s\n", escapeMarkdown(r.Key.String()), r.Severity, r.Recommendation))
		if r.LastFailure != "" {
			sb.WriteString(fmt.Sprintf("  - Last failure: %s\n", escapeMarkdown(oneLine(r.LastFailure))))
		}
	}
	sb.WriteString("\n")

	if summary := classify.SignatureSummary(records); len(summary) > 0 {
		sb.WriteString("### Failure Signatures\n\n")
		sb.WriteString("| Signature | Count |\n")
		sb.WriteString("|-----------|-------|\n")
		for _, sig := range sortedSignatures(summary) {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", sig.Name, sig.Count))
		}
		sb.WriteString("\n")
	}
}

// signatureCount holds a signature name and its count.
type signatureCount struct {
	Name  string
	Count int
}

// sortedSignatures returns signatures sorted by count (descending), then name (ascending).
func sortedSignatures(summary map[string]int) []signatureCount {
	result := make([]signatureCount, 0, len(summary))
	for name, count := range summary {
		result = append(result, signatureCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// codeFence returns a backtick fence longer than any backtick run in s.
func codeFence(s string) string {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

// oneLine collapses whitespace so text fits a list item or table cell.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// markdownSpecial lists the characters escaped in free text. A backslash
// before any of them renders it literally, so test names and failure
// messages survive conversion to HTML unchanged.
const markdownSpecial = "\\`*_{}[]()<>#+!|~&"

// escapeMarkdown escapes special Markdown characters in a string.
func escapeMarkdown(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownSpecial, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
