// Package config provides configuration management for runledger.
//
// Configuration is layered with viper. Sources are applied in order of
// precedence (highest first):
//  1. CLI flags
//  2. Environment variables (RUNLEDGER_* prefix)
//  3. Project config (./.runledger.yaml)
//  4. User config ($XDG_CONFIG_HOME/runledger/config.yaml)
//  5. Built-in defaults
package config

import (
	"time"

	"github.com/boyarskiy/runledger/internal/classify"
	"github.com/boyarskiy/runledger/internal/export"
)

// Config is the complete runledger configuration.
type Config struct {
	Output   OutputConfig        `yaml:"output" mapstructure:"output"`
	Store    StoreConfig         `yaml:"store" mapstructure:"store"`
	Trend    TrendConfig         `yaml:"trend" mapstructure:"trend"`
	Flaky    FlakyConfig         `yaml:"flaky" mapstructure:"flaky"`
	Archival ArchivalConfig      `yaml:"archival" mapstructure:"archival"`
	Influx   export.InfluxConfig `yaml:"influx" mapstructure:"influx"`
	Log      LogConfig           `yaml:"log" mapstructure:"log"`
}

// OutputConfig controls where artifacts go and which formats are rendered.
type OutputConfig struct {
	// Dir receives every artifact of a run.
	Dir string `yaml:"dir" mapstructure:"dir" validate:"required"`

	// Formats lists the requested report formats (json, markdown, html, pdf, metrics).
	Formats []string `yaml:"formats" mapstructure:"formats" validate:"required,min=1,dive,required"`
}

// StoreConfig locates the trend store.
type StoreConfig struct {
	// Path is the Badger directory.
	Path string `yaml:"path" mapstructure:"path" validate:"required"`

	// Enabled persists every run. Equivalent to --persist.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// LockTimeout bounds how long artifact writing waits for the output lock
	// and how long opening the trend store waits for another handle to close.
	LockTimeout time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
}

// TrendConfig controls the trend window.
type TrendConfig struct {
	WindowDays int `yaml:"window_days" mapstructure:"window_days" validate:"min=1,max=3650"`
}

// FlakyConfig controls flaky detection.
type FlakyConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// MinRuns is the minimum number of passed+failed observations before a
	// test can be classified.
	MinRuns int `yaml:"min_runs" mapstructure:"min_runs" validate:"min=1"`

	// WindowDays overrides trend.window_days for detection. Zero falls back.
	WindowDays int `yaml:"window_days" mapstructure:"window_days" validate:"min=0,max=3650"`

	Weights classify.Weights `yaml:"weights" mapstructure:"weights"`
}

// ArchivalConfig configures the external HTML to PDF converter.
type ArchivalConfig struct {
	Command []string      `yaml:"command" mapstructure:"command"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LogConfig configures the optional rotating log file.
type LogConfig struct {
	// File enables file logging when set.
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days" validate:"min=0"`
}

// FlakyWindowDays returns the detection window, falling back to the trend window.
func (c *Config) FlakyWindowDays() int {
	if c.Flaky.WindowDays > 0 {
		return c.Flaky.WindowDays
	}
	return c.Trend.WindowDays
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Influx.Token != "" {
		out.Influx.Token = "********"
	}
	return &out
}
