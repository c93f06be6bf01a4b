package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, selectLevel(true, false))
	assert.Equal(t, zerolog.WarnLevel, selectLevel(false, true))
	assert.Equal(t, zerolog.InfoLevel, selectLevel(false, false))
}

func TestNew_JSONToNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Console: &buf})
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	l.Debug().Msg("hidden")
	l.Info().Str("run_id", "run-1").Msg("run aggregated")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "run aggregated", entry["message"])
}

func TestNew_QuietDropsInfo(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Console: &buf, Quiet: true})
	require.NoError(t, err)

	l.Info().Msg("hidden")
	l.Warn().Msg("visual suite missing")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visual suite missing")
}

func TestNew_WritesRotatingFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "runledger.log")

	l, err := New(Options{Console: &buf, Verbose: true, File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	l.Debug().Msg("store opened")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "store opened")
	assert.Contains(t, buf.String(), "store opened")
}
