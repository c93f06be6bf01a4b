// Package k6 implements the load-suite adapter for k6 --summary-export documents.
//
// Each threshold becomes one result named metric::expression, and each check
// becomes one result named check::<group path>::<check name>. The headline
// latency and throughput figures become the run's PerformanceMetric.
package k6

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/boyarskiy/runledger/internal/adapters"
	"github.com/boyarskiy/runledger/internal/model"
)

const tool = "k6 (--summary-export)"

// Summary is the k6 summary-export document.
type Summary struct {
	RootGroup *Group                    `json:"root_group"`
	Metrics   map[string]map[string]any `json:"metrics"`
}

// Group is a k6 group. Groups and checks are objects keyed by name in the
// summary export and arrays in the handleSummary data; both are accepted.
type Group struct {
	Name   string          `json:"name"`
	Path   string          `json:"path"`
	Groups json.RawMessage `json:"groups"`
	Checks json.RawMessage `json:"checks"`
}

// Check is a k6 check with its pass and fail counters.
type Check struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Passes int    `json:"passes"`
	Fails  int    `json:"fails"`
}

// Adapter implements model.Adapter for k6.
type Adapter struct{}

// New creates a new k6 adapter.
func New() *Adapter {
	return &Adapter{}
}

// Suite returns model.SuiteLoad.
func (a *Adapter) Suite() model.Suite {
	return model.SuiteLoad
}

// Parse reads a k6 summary export.
func (a *Adapter) Parse(path string) (*model.SuiteResult, error) {
	data, err := adapters.ReadDocument(path, tool)
	if err != nil {
		return nil, err
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, adapters.Malformed(path,
			"Ensure k6 was run with --summary-export and finished writing.",
			"invalid JSON: %v", err)
	}
	if summary.Metrics == nil {
		return nil, adapters.Malformed(path,
			"This does not look like a k6 summary export.",
			"metrics is missing")
	}

	collector := adapters.NewCollector()
	if err := collectThresholds(path, summary.Metrics, collector); err != nil {
		return nil, err
	}

	if summary.RootGroup != nil {
		if err := collectChecks(path, summary.RootGroup, collector); err != nil {
			return nil, err
		}
	}

	return &model.SuiteResult{
		Suite:       model.SuiteLoad,
		Results:     collector.Results(),
		Performance: performance(summary.Metrics),
	}, nil
}

func collectThresholds(path string, metrics map[string]map[string]any, collector *adapters.Collector) error {
	iterationAvg, _ := number(metrics, "iteration_duration", "avg")
	if !adapters.ValidDuration(iterationAvg) {
		return adapters.Malformed(path,
			"iteration_duration must be a non-negative number of milliseconds.",
			"metrics.iteration_duration.avg is %v", iterationAvg)
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, metric := range names {
		raw, ok := metrics[metric]["thresholds"]
		if !ok {
			continue
		}
		thresholds, ok := raw.(map[string]any)
		if !ok {
			return adapters.Malformed(path,
				"Thresholds must be an object of expression to boolean.",
				"metrics.%s.thresholds has type %T", metric, raw)
		}

		exprs := make([]string, 0, len(thresholds))
		for expr := range thresholds {
			exprs = append(exprs, expr)
		}
		sort.Strings(exprs)

		for _, expr := range exprs {
			crossed, err := thresholdCrossed(thresholds[expr])
			if err != nil {
				return adapters.Malformed(path,
					"Threshold values must be booleans.",
					"metrics.%s.thresholds[%q]: %v", metric, expr, err)
			}

			result := model.TestResult{
				Suite:      model.SuiteLoad,
				Name:       metric + "::" + expr,
				Outcome:    model.OutcomePassed,
				DurationMS: iterationAvg,
			}
			if crossed {
				result.Outcome = model.OutcomeFailed
				result.Failure = &model.FailureDetail{
					Message: fmt.Sprintf("threshold %s crossed on %s", expr, metric),
					Trace:   describeMetric(metric, metrics[metric]),
				}
			}
			collector.Add(result)
		}
	}

	return nil
}

// thresholdCrossed accepts the summary-export boolean and the handleSummary
// {"ok": bool} object.
func thresholdCrossed(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case map[string]any:
		ok, isBool := t["ok"].(bool)
		if !isBool {
			return false, fmt.Errorf("object without boolean ok")
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("unexpected type %T", v)
	}
}

func collectChecks(path string, g *Group, collector *adapters.Collector) error {
	checks, err := decodeCollection[Check](g.Checks)
	if err != nil {
		return adapters.Malformed(path, "Checks must be an object or an array.", "group %q checks: %v", g.Path, err)
	}

	for _, c := range checks {
		name := checkName(g, c)
		if name == "" {
			return adapters.Malformed(path, "Each check must carry a name.", "group %q has a check without a name", g.Path)
		}

		result := model.TestResult{
			Suite:   model.SuiteLoad,
			Name:    name,
			Outcome: model.OutcomePassed,
		}
		if c.Fails > 0 {
			result.Outcome = model.OutcomeFailed
			result.Failure = &model.FailureDetail{
				Message: fmt.Sprintf("check %q failed %d of %d times", c.Name, c.Fails, c.Passes+c.Fails),
			}
		}
		collector.Add(result)
	}

	groups, err := decodeCollection[Group](g.Groups)
	if err != nil {
		return adapters.Malformed(path, "Groups must be an object or an array.", "group %q groups: %v", g.Path, err)
	}
	for i := range groups {
		if err := collectChecks(path, &groups[i], collector); err != nil {
			return err
		}
	}

	return nil
}

func checkName(g *Group, c Check) string {
	if c.Path != "" {
		return "check" + c.Path
	}
	if c.Name == "" {
		return ""
	}
	return "check" + g.Path + "::" + c.Name
}

// decodeCollection decodes either a JSON array or an object keyed by name.
// Object entries are returned in key order.
func decodeCollection[T any](raw json.RawMessage) ([]T, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var keyed map[string]T
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]T, 0, len(keys))
	for _, k := range keys {
		items = append(items, keyed[k])
	}
	return items, nil
}

// performance extracts throughput and latency. It returns nil when the
// document carries no HTTP metrics.
func performance(metrics map[string]map[string]any) *model.PerformanceMetric {
	_, hasReqs := metrics["http_reqs"]
	_, hasDuration := metrics["http_req_duration"]
	if !hasReqs && !hasDuration {
		return nil
	}

	perf := &model.PerformanceMetric{}
	perf.Throughput, _ = number(metrics, "http_reqs", "rate")
	perf.P50LatencyMS, _ = number(metrics, "http_req_duration", "med")
	perf.P95LatencyMS, _ = number(metrics, "http_req_duration", "p(95)")
	if rate, ok := number(metrics, "http_req_failed", "value"); ok {
		perf.ErrorRate = rate
	} else {
		perf.ErrorRate, _ = number(metrics, "http_req_failed", "rate")
	}

	return perf
}

// number reads a numeric field. handleSummary data nests fields under "values".
func number(metrics map[string]map[string]any, metric, field string) (float64, bool) {
	m, ok := metrics[metric]
	if !ok {
		return 0, false
	}
	if v, ok := m[field].(float64); ok {
		return v, true
	}
	if values, ok := m["values"].(map[string]any); ok {
		if v, ok := values[field].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

func describeMetric(name string, m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if _, ok := v.(float64); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, m[k])
	}
	return b.String()
}
