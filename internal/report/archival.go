package report

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/boyarskiy/runledger/internal/errors"
)

// Archiver renders the print/archival artifact from the HTML report.
type Archiver interface {
	// Name identifies the archiver in warnings.
	Name() string

	// Available reports why the archiver cannot run, or nil.
	Available() error

	// Archive converts an HTML page into the archival format.
	Archive(ctx context.Context, html []byte) ([]byte, error)
}

// DefaultArchiveCommand reads HTML on stdin and writes PDF on stdout.
func DefaultArchiveCommand() []string {
	return []string{"wkhtmltopdf", "--quiet", "-", "-"}
}

// CommandArchiver pipes HTML through an external converter.
type CommandArchiver struct {
	Command []string
	Timeout time.Duration
}

// NewCommandArchiver creates an archiver for command. An empty command uses
// DefaultArchiveCommand.
func NewCommandArchiver(command []string, timeout time.Duration) *CommandArchiver {
	if len(command) == 0 {
		command = DefaultArchiveCommand()
	}
	return &CommandArchiver{Command: command, Timeout: timeout}
}

// Name returns the converter executable name.
func (a *CommandArchiver) Name() string {
	if len(a.Command) == 0 {
		return ""
	}
	return a.Command[0]
}

// Available probes PATH for the converter.
func (a *CommandArchiver) Available() error {
	if len(a.Command) == 0 {
		return errors.Wrap(errors.ErrArchiverUnavailable, "no archive command configured")
	}
	if _, err := exec.LookPath(a.Command[0]); err != nil {
		return errors.Wrapf(errors.ErrArchiverUnavailable, "%s not found in PATH", a.Command[0])
	}
	return nil
}

// Archive runs the converter. Output is returned only when the command
// exits cleanly with a non-empty result.
func (a *CommandArchiver) Archive(ctx context.Context, html []byte) ([]byte, error) {
	if err := a.Available(); err != nil {
		return nil, err
	}

	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.Command[0], a.Command[1:]...) //nolint:gosec // command comes from configuration
	cmd.Stdin = bytes.NewReader(html)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timed out: %w", a.Name(), ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w: %s", a.Name(), err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s produced no output", a.Name())
	}

	return stdout.Bytes(), nil
}
