// Package cli provides the command-line interface for runledger.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/boyarskiy/runledger/internal/config"
	"github.com/boyarskiy/runledger/internal/logging"
)

// BuildInfo contains version information set at build time via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// viperKeyAnnotation marks a flag as an override of a config key.
const viperKeyAnnotation = "runledger/config-key"

// app carries state shared by every command of one invocation.
type app struct {
	flags  GlobalFlags
	v      *viper.Viper
	paths  config.Paths
	cfg    *config.Config
	logger *logging.Logger
}

// newRootCmd creates the root command. paths locates the config files; tests
// point it at temporary files.
func newRootCmd(info BuildInfo, paths config.Paths) *cobra.Command {
	a := &app{v: config.NewViper(), paths: paths}

	cmd := &cobra.Command{
		Use:   "runledger",
		Short: "Aggregate test suite results into reports, trends and flaky-test findings",
		Long: `runledger ingests the result documents of a completed test run (UI workflow,
API contract, visual regression and load suites), aggregates them into one run,
optionally appends it to a local trend store and detects flaky tests across
stored history, then renders the run as structured and human-readable reports.

Exit codes:
  0  success
  1  hard failure (no usable input, store unavailable, invalid usage)
  2  success with warnings (a suite was skipped or a format failed)`,
		Version: formatVersion(info),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	AddGlobalFlags(cmd, &a.flags)

	cmd.AddCommand(
		newRunCmd(a),
		newFlakyCmd(a),
		newTrendCmd(a),
		newShowCmd(),
		newConfigCmd(a),
	)

	return cmd
}

// init binds the executing command's flags, loads configuration and builds
// the logger. The logger is attached to the command context.
func (a *app) init(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[viperKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		bindErr = a.v.BindPFlag(keys[0], f)
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	paths := a.paths
	if a.flags.ConfigFile != "" {
		paths.Project = a.flags.ConfigFile
	}

	cfg, err := config.Load(cmd.Context(), a.v, paths)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{
		Verbose:    a.flags.Verbose,
		Quiet:      a.flags.Quiet,
		Console:    cmd.ErrOrStderr(),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	a.logger = logger

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logger.WithContext(ctx))
	return nil
}

// bindKey marks flag name on cmd as an override of config key.
func bindKey(cmd *cobra.Command, name, key string) {
	_ = cmd.Flags().SetAnnotation(name, viperKeyAnnotation, []string{key})
}

// formatVersion creates the version string from build info.
func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
}

// Execute runs the root command with the provided context and arguments and
// returns the process exit code.
func Execute(ctx context.Context, info BuildInfo, args []string) int {
	cmd := newRootCmd(info, config.DefaultPaths())
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return reportError(cmd, err)
}
