package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/boyarskiy/runledger/internal/classify"
	"github.com/boyarskiy/runledger/internal/config"
	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/report"
)

func newFlakyCmd(a *app) *cobra.Command {
	var (
		asJSON bool
		topN   int
	)

	cmd := &cobra.Command{
		Use:   "flaky",
		Short: "Detect flaky tests in the stored history",
		Long: `Classify every test observed in the trend window. A test is flaky when it
both passed and failed with at least --min-runs observations; skipped runs are
ignored. Results are ranked by impact score.

The store is opened read-only, so detection can run while no writer holds it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			cfg := a.cfg

			store, err := storeOpener(cfg, *zerolog.Ctx(ctx))(true)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, store.Close())
			}()

			d := &classify.Detector{Store: store, Weights: cfg.Flaky.Weights}
			records, err := d.Detect(ctx, cfg.FlakyWindowDays(), cfg.Flaky.MinRuns)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(records, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal flaky tests: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return report.RenderFlaky(&report.TerminalConfig{Writer: cmd.OutOrStdout(), TopN: topN}, records)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&asJSON, "json", false, "print every record as JSON")
	f.IntVar(&topN, "top", 10, "number of flaky tests to list")
	f.String("store", config.DefaultStorePath, "trend store directory")
	f.Int("days", config.DefaultWindowDays, "detection window in days")
	f.Int("min-runs", config.DefaultMinRuns, "minimum observations before a test is classified")

	bindKey(cmd, "store", "store.path")
	bindKey(cmd, "days", "flaky.window_days")
	bindKey(cmd, "min-runs", "flaky.min_runs")

	return cmd
}
