package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/boyarskiy/runledger/internal/classify"
	"github.com/boyarskiy/runledger/internal/report"
)

// Default values shared by DefaultConfig and the viper defaults.
const (
	DefaultOutputDir       = "runledger-out"
	DefaultStorePath       = ".runledger/trend"
	DefaultLockTimeout     = 10 * time.Second
	DefaultWindowDays      = 30
	DefaultMinRuns         = 5
	DefaultArchivalTimeout = 60 * time.Second
	DefaultInfluxTimeout   = 10 * time.Second
	DefaultLogMaxSizeMB    = 10
	DefaultLogMaxBackups   = 3
	DefaultLogMaxAgeDays   = 28
)

// DefaultFormats returns the formats rendered when none are configured.
func DefaultFormats() []string {
	return []string{string(report.FormatJSON), string(report.FormatHTML)}
}

// DefaultConfig returns a Config populated with built-in defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Output.Dir = DefaultOutputDir
	cfg.Output.Formats = DefaultFormats()
	cfg.Store.Path = DefaultStorePath
	cfg.Store.LockTimeout = DefaultLockTimeout
	cfg.Trend.WindowDays = DefaultWindowDays
	cfg.Flaky.MinRuns = DefaultMinRuns
	cfg.Flaky.Weights = classify.DefaultWeights()
	cfg.Archival.Command = report.DefaultArchiveCommand()
	cfg.Archival.Timeout = DefaultArchivalTimeout
	cfg.Influx.Timeout = DefaultInfluxTimeout
	cfg.Log.MaxSizeMB = DefaultLogMaxSizeMB
	cfg.Log.MaxBackups = DefaultLogMaxBackups
	cfg.Log.MaxAgeDays = DefaultLogMaxAgeDays
	return cfg
}

// setDefaults configures all default values on the Viper instance.
// Keys must match the mapstructure tag names exactly.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.formats", d.Output.Formats)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.lock_timeout", d.Store.LockTimeout.String())

	v.SetDefault("trend.window_days", d.Trend.WindowDays)

	v.SetDefault("flaky.enabled", false)
	v.SetDefault("flaky.min_runs", d.Flaky.MinRuns)
	v.SetDefault("flaky.window_days", 0)
	v.SetDefault("flaky.weights.failure_rate", d.Flaky.Weights.FailureRate)
	v.SetDefault("flaky.weights.total_runs", d.Flaky.Weights.TotalRuns)
	v.SetDefault("flaky.weights.failures", d.Flaky.Weights.Failures)

	v.SetDefault("archival.command", d.Archival.Command)
	v.SetDefault("archival.timeout", d.Archival.Timeout.String())

	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")
	v.SetDefault("influx.timeout", d.Influx.Timeout.String())

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}
