package cli

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/boyarskiy/runledger/internal/clock"
	"github.com/boyarskiy/runledger/internal/config"
	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/export"
	"github.com/boyarskiy/runledger/internal/model"
	"github.com/boyarskiy/runledger/internal/normalize"
	"github.com/boyarskiy/runledger/internal/pipeline"
	"github.com/boyarskiy/runledger/internal/report"
	"github.com/boyarskiy/runledger/internal/trend"
)

// runFlags holds flags that do not map onto configuration keys.
type runFlags struct {
	inputs   []string
	metrics  string
	runID    string
	revision string
	branch   string
	ciRunID  string
	meta     []string
	topN     int
}

func newRunCmd(a *app) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Aggregate suite results into a run and render reports",
		Long: `Ingest the result documents of a completed test run and render reports.

Each --input names a suite and its result document:
  workflow=<junit.xml>       UI workflow runner (Cypress, Playwright) JUnit XML
  contract=<jest.json>       API contract suite, Jest --json output
  visual=<backstop.json>     BackstopJS report JSON
  load=<k6-summary.json>     k6 --summary-export JSON

Missing or malformed documents are skipped with a warning; the run fails only
when no document could be used.`,
		Example: `  runledger run --input workflow=results/junit.xml --input contract=results/jest.json
  runledger run --input load=k6.json --persist --flaky --min-runs 5 --format json,html,pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, a, flags)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&flags.inputs, "input", "i", nil, "suite result document as <suite>=<path> (repeatable)")
	f.StringVar(&flags.metrics, "metrics", "", "performance metrics JSON overriding the load suite figures")
	f.StringVar(&flags.runID, "run-id", "", "run identifier (default: generated UUIDv7)")
	f.StringVar(&flags.revision, "revision", "", "source revision under test")
	f.StringVar(&flags.branch, "branch", "", "branch under test")
	f.StringVar(&flags.ciRunID, "ci-id", "", "CI pipeline run identifier")
	f.StringArrayVar(&flags.meta, "meta", nil, "extra provenance as <key>=<value> (repeatable)")
	f.IntVar(&flags.topN, "top", 5, "number of flaky tests to list in the summary")

	f.StringP("out", "o", config.DefaultOutputDir, "output directory")
	f.StringSlice("format", config.DefaultFormats(), "report formats: json, markdown, html, pdf, metrics")
	f.Bool("persist", false, "append the run to the trend store")
	f.String("store", config.DefaultStorePath, "trend store directory")
	f.Bool("flaky", false, "detect flaky tests over the stored history")
	f.Int("min-runs", config.DefaultMinRuns, "minimum observations before a test is classified")
	f.Int("days", config.DefaultWindowDays, "trend and flaky window in days")

	bindKey(cmd, "out", "output.dir")
	bindKey(cmd, "format", "output.formats")
	bindKey(cmd, "persist", "store.enabled")
	bindKey(cmd, "store", "store.path")
	bindKey(cmd, "flaky", "flaky.enabled")
	bindKey(cmd, "min-runs", "flaky.min_runs")
	bindKey(cmd, "days", "trend.window_days")

	return cmd
}

func runRun(cmd *cobra.Command, a *app, flags *runFlags) error {
	ctx := cmd.Context()
	cfg := a.cfg
	log := zerolog.Ctx(ctx)

	inputs, err := parseInputs(flags.inputs)
	if err != nil {
		return err
	}
	metadata, err := parseMetadata(flags)
	if err != nil {
		return err
	}
	formats, err := report.ParseFormats(cfg.Output.Formats)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Normalizer: normalize.Default(),
		OpenStore:  storeOpener(cfg, *log),
		Archiver:   report.NewCommandArchiver(cfg.Archival.Command, cfg.Archival.Timeout),
		Clock:      clock.RealClock{},
	}
	if cfg.Influx.Enabled() {
		exp, err := export.NewInflux(cfg.Influx)
		if err != nil {
			return err
		}
		defer exp.Close()
		deps.Exporter = exp
	}

	result, err := pipeline.Run(ctx, &pipeline.Config{
		Inputs:      inputs,
		MetricsPath: flags.metrics,
		OutDir:      cfg.Output.Dir,
		Formats:     formats,
		LockTimeout: cfg.Store.LockTimeout,
		Persist:     cfg.Store.Enabled,
		TrendDays:   cfg.Trend.WindowDays,
		Flaky:       cfg.Flaky.Enabled,
		FlakyDays:   cfg.FlakyWindowDays(),
		MinRuns:     cfg.Flaky.MinRuns,
		Weights:     cfg.Flaky.Weights,
		RunID:       flags.runID,
		Metadata:    metadata,
	}, deps)
	if err != nil {
		return err
	}
	log.Info().Msg(result.Summary())

	err = report.RenderTerminal(&report.TerminalConfig{Writer: cmd.OutOrStdout(), TopN: flags.topN}, &report.TerminalSummary{
		Run:       result.Run,
		Trend:     result.Trend,
		Flaky:     result.Flaky,
		Artifacts: result.Artifacts,
		Warnings:  result.Warnings,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to render terminal summary")
	}

	if result.Status == pipeline.StatusSuccessWithWarnings {
		return errCompletedWithWarnings
	}
	return nil
}

// storeOpener opens the on-disk trend store configured in cfg.
func storeOpener(cfg *config.Config, logger zerolog.Logger) pipeline.StoreOpener {
	return func(readOnly bool) (trend.Store, error) {
		sc := trend.DefaultConfig(cfg.Store.Path)
		sc.ReadOnly = readOnly
		sc.Logger = logger
		sc.LockTimeout = cfg.Store.LockTimeout
		store, err := trend.Open(sc)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// parseInputs converts <suite>=<path> arguments into normalizer inputs.
func parseInputs(args []string) ([]normalize.Input, error) {
	inputs := make([]normalize.Input, 0, len(args))
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(path) == "" {
			return nil, errors.Wrapf(errors.ErrInvalidSuite, "--input %q must be <suite>=<path>", arg)
		}
		suite, err := model.ParseSuite(strings.TrimSpace(name))
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidSuite, err.Error())
		}
		inputs = append(inputs, normalize.Input{Suite: suite, Path: strings.TrimSpace(path)})
	}
	return inputs, nil
}

// parseMetadata collects provenance flags.
func parseMetadata(flags *runFlags) (model.Metadata, error) {
	md := model.Metadata{
		Revision: flags.revision,
		Branch:   flags.branch,
		CIRunID:  flags.ciRunID,
	}
	for _, kv := range flags.meta {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return md, fmt.Errorf("--meta %q must be <key>=<value>", kv)
		}
		if md.Extra == nil {
			md.Extra = make(map[string]string)
		}
		md.Extra[strings.TrimSpace(k)] = v
	}
	return md, nil
}
