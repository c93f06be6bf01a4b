// Package logging builds the zerolog logger used by every runledger command.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/boyarskiy/runledger/internal/errors"
)

// Options selects the level and destinations of the logger.
type Options struct {
	Verbose bool
	Quiet   bool

	// Console receives human-facing log output. Defaults to os.Stderr.
	Console io.Writer

	// File enables a rotating JSON log file alongside the console.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger bundles the logger with the file it may hold open.
type Logger struct {
	zerolog.Logger
	file io.Closer
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// New creates a logger. Console output is colorized when it is a terminal
// and NO_COLOR is unset, JSON lines otherwise.
func New(opts Options) (*Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var writer io.Writer = selectOutput(console)
	l := &Logger{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o750); err != nil {
			return nil, errors.Wrapf(err, "failed to create log directory for %s", opts.File)
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		l.file = lj
		writer = zerolog.MultiLevelWriter(writer, lj)
	}

	l.Logger = zerolog.New(writer).
		Level(selectLevel(opts.Verbose, opts.Quiet)).
		With().Timestamp().Logger()
	return l, nil
}

// selectLevel determines the appropriate log level based on flags.
func selectLevel(verbose, quiet bool) zerolog.Level {
	switch {
	case verbose:
		return zerolog.DebugLevel
	case quiet:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// selectOutput wraps terminals in a console writer.
func selectOutput(w io.Writer) io.Writer {
	f, ok := w.(*os.File)
	if ok && term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == "" {
		return zerolog.ConsoleWriter{
			Out:        f,
			TimeFormat: time.Kitchen,
		}
	}
	return w
}
