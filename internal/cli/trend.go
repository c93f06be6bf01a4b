package cli

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/boyarskiy/runledger/internal/config"
	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/report"
	"github.com/boyarskiy/runledger/internal/trend"
)

func newTrendCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Export the trend summary of the stored history",
		Long: `Summarize every run stored inside the window and print the summary together
with the stored runs and their per-test outcomes as JSON, or write it to --out.
The window is inclusive: a run exactly --days old is counted.`,
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

			records, err := store.QueryWindow(ctx, cfg.Trend.WindowDays)
			if err != nil {
				return err
			}
			summary := trend.Summarize(records, cfg.Trend.WindowDays)

			data, err := report.MarshalTrend(summary, records)
			if err != nil {
				return err
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			paths, err := report.WriteArtifacts(ctx, filepath.Dir(out), []report.Artifact{
				{Name: filepath.Base(out), Data: data},
			}, cfg.Store.LockTimeout)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d runs written to %s\n", summary.Runs, paths[0])
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&out, "out", "", "write the summary to this file instead of stdout")
	f.String("store", config.DefaultStorePath, "trend store directory")
	f.Int("days", config.DefaultWindowDays, "window in days")

	bindKey(cmd, "store", "store.path")
	bindKey(cmd, "days", "trend.window_days")

	return cmd
}
