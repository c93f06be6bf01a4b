// Package normalize turns heterogeneous suite documents into one canonical
// result set. Every supplied suite is parsed independently; a missing or
// malformed document degrades the run to a warning instead of aborting it.
package normalize

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/boyarskiy/runledger/internal/adapters/backstop"
	"github.com/boyarskiy/runledger/internal/adapters/jest"
	"github.com/boyarskiy/runledger/internal/adapters/junit"
	"github.com/boyarskiy/runledger/internal/adapters/k6"
	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/model"
	"github.com/boyarskiy/runledger/internal/signature"
)

// Input names one suite document.
type Input struct {
	Suite model.Suite
	Path  string
}

// Output is the canonical result set of one pipeline invocation.
type Output struct {
	// Results in canonical suite order, then document order within a suite.
	Results []model.TestResult

	// Performance is nil when neither a load document nor a metrics document
	// contributed figures.
	Performance *model.PerformanceMetric

	Warnings []model.Warning

	// Suites lists the suites whose documents parsed, in canonical order.
	Suites []model.Suite
}

// Option customizes a Normalize call.
type Option func(*options)

type options struct {
	metricsPath string
}

// WithMetricsDocument supplies a standalone performance document that
// overrides figures derived from the load suite.
func WithMetricsDocument(path string) Option {
	return func(o *options) {
		o.metricsPath = path
	}
}

// Normalizer dispatches suite documents to their adapters.
type Normalizer struct {
	adapters map[model.Suite]model.Adapter
	validate *validator.Validate
}

// New creates a Normalizer from the given adapters. A later adapter for the
// same suite replaces an earlier one.
func New(adapterList ...model.Adapter) *Normalizer {
	n := &Normalizer{
		adapters: make(map[model.Suite]model.Adapter, len(adapterList)),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, a := range adapterList {
		n.adapters[a.Suite()] = a
	}
	return n
}

// Default returns a Normalizer with the built-in adapter for every suite.
func Default() *Normalizer {
	return New(junit.New(), jest.New(), backstop.New(), k6.New())
}

// parsed is the outcome of one suite document.
type parsed struct {
	input   Input
	result  *model.SuiteResult
	warning *model.Warning
}

// Normalize parses every input concurrently and assembles the canonical result
// set. It returns errors.ErrNoInput when no input was supplied or when none
// of the supplied documents could be parsed.
func (n *Normalizer) Normalize(ctx context.Context, inputs []Input, opts ...Option) (*Output, error) {
	log := zerolog.Ctx(ctx)

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if len(inputs) == 0 {
		return nil, errors.Wrap(errors.ErrNoInput, "no suite documents supplied")
	}

	ordered, err := n.order(inputs)
	if err != nil {
		return nil, err
	}

	slots := make([]parsed, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range ordered {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = n.parseOne(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Output{Results: []model.TestResult{}}
	for _, p := range slots {
		if p.warning != nil {
			log.Warn().
				Str("suite", string(p.warning.Suite)).
				Str("kind", string(p.warning.Kind)).
				Str("path", p.warning.Path).
				Msg(p.warning.Message)
			out.Warnings = append(out.Warnings, *p.warning)
		}
		if p.result == nil {
			continue
		}

		out.Suites = append(out.Suites, p.input.Suite)
		for _, r := range p.result.Results {
			out.Results = append(out.Results, tag(r))
		}
		if p.result.Performance != nil {
			out.Performance = p.result.Performance
		}

		log.Debug().
			Str("suite", string(p.input.Suite)).
			Str("path", p.input.Path).
			Int("results", len(p.result.Results)).
			Msg("suite document parsed")
	}

	if len(out.Suites) == 0 {
		return nil, errors.Wrapf(errors.ErrNoInput, "none of %d suite documents could be parsed", len(inputs))
	}

	if o.metricsPath != "" {
		perf, warning := n.loadMetrics(o.metricsPath)
		if warning != nil {
			log.Warn().Str("path", warning.Path).Msg(warning.Message)
			out.Warnings = append(out.Warnings, *warning)
		} else {
			out.Performance = perf
		}
	}

	if out.Performance != nil {
		if err := n.validate.Struct(out.Performance); err != nil {
			out.Warnings = append(out.Warnings, model.Warning{
				Suite:   model.SuiteLoad,
				Kind:    model.WarningParse,
				Message: "performance figures out of range and dropped: " + err.Error(),
			})
			out.Performance = nil
		}
	}

	return out, nil
}

// order validates inputs and sorts them into canonical suite order.
func (n *Normalizer) order(inputs []Input) ([]Input, error) {
	seen := make(map[model.Suite]bool, len(inputs))
	ordered := make([]Input, 0, len(inputs))

	for _, in := range inputs {
		if _, ok := n.adapters[in.Suite]; !ok {
			return nil, errors.Wrapf(errors.ErrInvalidSuite, "no adapter for suite %q", in.Suite)
		}
		if seen[in.Suite] {
			return nil, errors.Wrapf(errors.ErrInvalidSuite, "suite %q supplied more than once", in.Suite)
		}
		if strings.TrimSpace(in.Path) == "" {
			return nil, errors.Wrapf(errors.ErrEmptyValue, "path for suite %q", in.Suite)
		}
		seen[in.Suite] = true
		ordered = append(ordered, in)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Suite.Rank() < ordered[j].Suite.Rank()
	})

	return ordered, nil
}

func (n *Normalizer) parseOne(in Input) parsed {
	result, err := n.adapters[in.Suite].Parse(in.Path)
	if err != nil {
		kind := model.WarningParse
		if errors.Is(err, fs.ErrNotExist) {
			kind = model.WarningMissing
		}
		return parsed{input: in, warning: &model.Warning{
			Suite:   in.Suite,
			Kind:    kind,
			Path:    in.Path,
			Message: err.Error(),
		}}
	}

	p := parsed{input: in, result: result}
	if len(result.Results) == 0 && result.Performance == nil {
		p.warning = &model.Warning{
			Suite:   in.Suite,
			Kind:    model.WarningEmpty,
			Path:    in.Path,
			Message: "document is well-formed but contains no tests",
		}
	}
	return p
}

// tag attaches a failure signature. The failure text itself is left untouched.
func tag(r model.TestResult) model.TestResult {
	if r.Failure == nil {
		return r
	}

	detail := *r.Failure
	detail.Signature = signature.Detect(detail.Message + "\n" + detail.Trace)
	r.Failure = &detail
	return r
}

// metricsDocument mirrors model.PerformanceMetric with presence tracking.
type metricsDocument struct {
	Throughput   *float64 `json:"throughput" validate:"required"`
	P50LatencyMS *float64 `json:"p50_latency_ms" validate:"required"`
	P95LatencyMS *float64 `json:"p95_latency_ms" validate:"required"`
	ErrorRate    *float64 `json:"error_rate" validate:"required"`
}

func (n *Normalizer) loadMetrics(path string) (*model.PerformanceMetric, *model.Warning) {
	warn := func(kind model.WarningKind, msg string) *model.Warning {
		return &model.Warning{Suite: model.SuiteLoad, Kind: kind, Path: path, Message: msg}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, warn(model.WarningMissing, "metrics document not found")
		}
		return nil, warn(model.WarningParse, "failed to read metrics document: "+err.Error())
	}

	var doc metricsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, warn(model.WarningParse, "invalid metrics JSON: "+err.Error())
	}
	if err := n.validate.Struct(doc); err != nil {
		return nil, warn(model.WarningParse, "incomplete metrics document: "+err.Error())
	}

	perf := &model.PerformanceMetric{
		Throughput:   *doc.Throughput,
		P50LatencyMS: *doc.P50LatencyMS,
		P95LatencyMS: *doc.P95LatencyMS,
		ErrorRate:    *doc.ErrorRate,
	}
	if err := n.validate.Struct(perf); err != nil {
		return nil, warn(model.WarningParse, "metrics out of range: "+err.Error())
	}

	return perf, nil
}
