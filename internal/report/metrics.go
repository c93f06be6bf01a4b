package report

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/boyarskiy/runledger/internal/classify"
	"github.com/boyarskiy/runledger/internal/model"
)

const namespace = "runledger"

// RenderMetrics renders the run as a Prometheus text exposition suitable for
// the node_exporter textfile collector.
func RenderMetrics(doc *Document) ([]byte, error) {
	if doc == nil || doc.Run == nil {
		return nil, fmt.Errorf("report is required")
	}
	run := doc.Run

	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"run_id": run.RunID}
	newGauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, labels)
		reg.MustRegister(g)
		return g
	}

	tests := newGauge("tests", "Tests by suite and outcome.", "suite", "outcome")
	passRate := newGauge("pass_rate", "Passed over executed tests.", "suite")
	duration := newGauge("duration_milliseconds", "Summed test duration.", "suite")

	record := func(suite string, s model.Summary) {
		tests.WithLabelValues(suite, string(model.OutcomePassed)).Set(float64(s.Passed))
		tests.WithLabelValues(suite, string(model.OutcomeFailed)).Set(float64(s.Failed))
		tests.WithLabelValues(suite, string(model.OutcomeSkipped)).Set(float64(s.Skipped))
		passRate.WithLabelValues(suite).Set(s.PassRate)
		duration.WithLabelValues(suite).Set(s.DurationMS)
	}
	record("all", run.Summary)
	for _, suite := range model.Suites() {
		if s, ok := run.BySuite[suite]; ok {
			record(string(suite), s)
		}
	}

	newGauge("run_timestamp_seconds", "Unix time of the run.").
		WithLabelValues().Set(float64(run.Timestamp.Unix()))
	newGauge("ingestion_warnings", "Suites skipped or empty during ingestion.").
		WithLabelValues().Set(float64(len(run.Warnings)))

	if perf := run.Performance; perf != nil {
		newGauge("throughput_requests_per_second", "Load test throughput.").WithLabelValues().Set(perf.Throughput)
		latency := newGauge("latency_milliseconds", "Load test latency percentiles.", "quantile")
		latency.WithLabelValues("0.5").Set(perf.P50LatencyMS)
		latency.WithLabelValues("0.95").Set(perf.P95LatencyMS)
		newGauge("error_rate", "Load test error rate.").WithLabelValues().Set(perf.ErrorRate)
	}

	if doc.Trend != nil {
		newGauge("trend_runs", "Runs in the trend window.").WithLabelValues().Set(float64(doc.Trend.Runs))
		newGauge("trend_avg_pass_rate", "Average pass rate over the trend window.").WithLabelValues().Set(doc.Trend.AvgPassRate)
	}

	if doc.flakyComputed {
		flaky := newGauge("flaky_tests", "Flaky tests by severity.", "severity")
		counts := classify.SeverityCounts(doc.Flaky)
		for _, sev := range []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow} {
			flaky.WithLabelValues(string(sev)).Set(float64(counts[sev]))
		}
	}

	families, err := reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}
