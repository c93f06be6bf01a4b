package cli

import (
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"
)

// Exit codes for the CLI.
const (
	// ExitSuccess indicates the run completed without warnings.
	ExitSuccess = 0
	// ExitError indicates a hard failure or invalid usage.
	ExitError = 1
	// ExitWarnings indicates the run completed but a suite was skipped or a
	// format failed to render.
	ExitWarnings = 2
)

// errCompletedWithWarnings is returned by commands that finished and already
// reported their warnings.
var errCompletedWithWarnings = stderrors.New("completed with warnings")

// GlobalFlags holds flags available to all commands.
type GlobalFlags struct {
	// Verbose enables debug-level logging.
	Verbose bool
	// Quiet suppresses non-essential output (warn level only).
	Quiet bool
	// ConfigFile replaces the project config file.
	ConfigFile string
}

// AddGlobalFlags adds global flags to a command.
func AddGlobalFlags(cmd *cobra.Command, flags *GlobalFlags) {
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "log warnings and errors only")
	cmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "config file (default ./.runledger.yaml)")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case stderrors.Is(err, errCompletedWithWarnings):
		return ExitWarnings
	default:
		return ExitError
	}
}

// reportError prints hard failures to stderr and returns the exit code.
func reportError(cmd *cobra.Command, err error) int {
	code := ExitCode(err)
	if code == ExitError {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return code
}
