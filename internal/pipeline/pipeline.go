// Package pipeline drives one reporting invocation: ingest, aggregate,
// persist, analyze, render, write.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/boyarskiy/runledger/internal/aggregate"
	"github.com/boyarskiy/runledger/internal/classify"
	"github.com/boyarskiy/runledger/internal/clock"
	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/model"
	"github.com/boyarskiy/runledger/internal/normalize"
	"github.com/boyarskiy/runledger/internal/report"
	"github.com/boyarskiy/runledger/internal/trend"
)

// Status is the outcome of a pipeline run that did not hard-fail.
type Status string

const (
	StatusSuccess             Status = "success"
	StatusSuccessWithWarnings Status = "success_with_warnings"
)

// Config holds the configuration for one invocation.
type Config struct {
	Inputs      []normalize.Input
	MetricsPath string

	OutDir      string
	Formats     []report.Format
	LockTimeout time.Duration

	// Persist appends the run to the trend store and reports the trend window.
	Persist   bool
	TrendDays int

	// Flaky runs detection over FlakyDays of stored history.
	Flaky     bool
	FlakyDays int
	MinRuns   int
	Weights   classify.Weights

	RunID     string
	Timestamp time.Time
	Metadata  model.Metadata
}

// Exporter ships a finished run to an external system.
type Exporter interface {
	Export(ctx context.Context, run *model.TestRun) error
}

// StoreOpener opens the trend store. readOnly is true when the invocation
// only queries history.
type StoreOpener func(readOnly bool) (trend.Store, error)

// Deps are the collaborators of a run. Only Normalizer is required.
type Deps struct {
	Normalizer *normalize.Normalizer
	OpenStore  StoreOpener
	Archiver   report.Archiver
	Exporter   Exporter
	Clock      clock.Clock
}

// Result holds everything the invocation produced.
type Result struct {
	Run       *model.TestRun
	Trend     *model.TrendSummary
	History   []trend.Record
	Flaky     []model.FlakyTestRecord
	Artifacts []string
	Warnings  []string
	Status    Status
}

// Run executes the pipeline. Hard failures (no usable input, store
// unavailable, output directory locked or unwritable) are returned as
// errors and leave the output directory untouched. Everything else is
// reported through Result.Warnings.
func Run(ctx context.Context, cfg *Config, deps Deps) (*Result, error) {
	if err := validate(cfg, deps); err != nil {
		return nil, err
	}

	log := zerolog.Ctx(ctx)
	c := deps.Clock
	if c == nil {
		c = clock.RealClock{}
	}

	var opts []normalize.Option
	if cfg.MetricsPath != "" {
		opts = append(opts, normalize.WithMetricsDocument(cfg.MetricsPath))
	}
	out, err := deps.Normalizer.Normalize(ctx, cfg.Inputs, opts...)
	if err != nil {
		return nil, err
	}

	run := aggregate.Aggregate(out, aggregate.Options{
		RunID:     cfg.RunID,
		Timestamp: cfg.Timestamp,
		Clock:     c,
		Metadata:  cfg.Metadata,
	})
	log.Info().
		Str("run_id", run.RunID).
		Int("total", run.Summary.Total).
		Int("failed", run.Summary.Failed).
		Float64("pass_rate", run.Summary.PassRate).
		Msg("run aggregated")

	result := &Result{Run: run}
	for _, w := range run.Warnings {
		result.Warnings = append(result.Warnings, w.String())
	}

	if cfg.Persist || cfg.Flaky {
		if err := analyze(ctx, cfg, deps, result); err != nil {
			return nil, err
		}
	}

	renderer := &report.Renderer{Archiver: deps.Archiver, Clock: c}
	rendered, err := renderer.Render(ctx, report.Input{
		Run:     run,
		Trend:   result.Trend,
		History: result.History,
		Flaky:   result.Flaky,
	}, cfg.Formats)
	if err != nil {
		return nil, err
	}
	for _, f := range rendered.Failures {
		result.Warnings = append(result.Warnings, "render "+f.String())
	}

	paths, err := report.WriteArtifacts(ctx, cfg.OutDir, rendered.Artifacts, cfg.LockTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "failed to write artifacts")
	}
	result.Artifacts = paths

	if deps.Exporter != nil {
		if err := deps.Exporter.Export(ctx, run); err != nil {
			log.Warn().Err(err).Msg("export failed")
			result.Warnings = append(result.Warnings, "export: "+err.Error())
		}
	}

	result.Status = StatusSuccess
	if len(result.Warnings) > 0 {
		result.Status = StatusSuccessWithWarnings
	}
	return result, nil
}

// analyze persists the run and computes the trend and flaky sections.
func analyze(ctx context.Context, cfg *Config, deps Deps, result *Result) (err error) {
	log := zerolog.Ctx(ctx)

	store, err := deps.OpenStore(!cfg.Persist)
	if err != nil {
		return errors.Wrap(err, "failed to open trend store")
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close trend store")
		}
	}()

	if cfg.Persist {
		id, err := store.Write(ctx, result.Run)
		if err != nil {
			return errors.Wrap(err, "failed to persist run")
		}
		log.Info().Str("run_id", id).Msg("run persisted")

		records, err := store.QueryWindow(ctx, cfg.TrendDays)
		if err != nil {
			return errors.Wrap(err, "failed to query trend window")
		}
		result.Trend = trend.Summarize(records, cfg.TrendDays)
		result.History = records
	}

	if cfg.Flaky {
		d := &classify.Detector{Store: store, Weights: cfg.Weights}
		flaky, err := d.Detect(ctx, cfg.FlakyDays, cfg.MinRuns)
		if err != nil {
			return errors.Wrap(err, "flaky detection failed")
		}
		result.Flaky = flaky
		log.Info().Int("flaky", len(flaky)).Int("window_days", cfg.FlakyDays).Msg("flaky detection finished")
	}

	return nil
}

func validate(cfg *Config, deps Deps) error {
	if cfg == nil {
		return errors.Wrap(errors.ErrEmptyValue, "pipeline config is required")
	}
	if deps.Normalizer == nil {
		return errors.Wrap(errors.ErrEmptyValue, "normalizer is required")
	}
	if cfg.OutDir == "" {
		return errors.Wrap(errors.ErrEmptyValue, "output directory is required")
	}
	if cfg.Persist || cfg.Flaky {
		if deps.OpenStore == nil {
			return errors.Wrap(errors.ErrStoreUnavailable, "no trend store configured")
		}
	}
	if cfg.Persist && cfg.TrendDays <= 0 {
		return errors.Wrapf(errors.ErrEmptyValue, "--days must be a positive integer, got %d", cfg.TrendDays)
	}
	if cfg.Flaky {
		if cfg.FlakyDays <= 0 {
			return errors.Wrapf(errors.ErrEmptyValue, "flaky window must be a positive number of days, got %d", cfg.FlakyDays)
		}
		if cfg.MinRuns < 1 {
			return errors.Wrapf(errors.ErrEmptyValue, "--min-runs must be a positive integer, got %d", cfg.MinRuns)
		}
	}
	return nil
}

// Summary renders a one-line status for logs.
func (r *Result) Summary() string {
	return fmt.Sprintf("%s: %d tests, %d failed, %d artifacts, %d warnings",
		r.Status, r.Run.Summary.Total, r.Run.Summary.Failed, len(r.Artifacts), len(r.Warnings))
}
