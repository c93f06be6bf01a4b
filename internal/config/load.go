package config

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/boyarskiy/runledger/internal/errors"
)

const (
	// EnvPrefix prefixes every environment override (RUNLEDGER_OUTPUT_DIR, ...).
	EnvPrefix = "RUNLEDGER"

	// ProjectConfigFile is read from the working directory.
	ProjectConfigFile = ".runledger.yaml"

	appDir         = "runledger"
	userConfigFile = "config.yaml"
)

// NewViper creates a Viper instance with runledger defaults and environment
// overrides. Callers bind CLI flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Paths names the config files to merge. Empty entries are skipped, as are
// files that do not exist.
type Paths struct {
	User    string
	Project string
}

// DefaultPaths returns the user and project config locations.
func DefaultPaths() Paths {
	p := Paths{Project: ProjectConfigFile}
	if dir, err := os.UserConfigDir(); err == nil {
		p.User = filepath.Join(dir, appDir, userConfigFile)
	}
	return p
}

// Load merges config files into v (user first, project over it), decodes the
// result and validates it. A nil v gets a fresh NewViper.
func Load(ctx context.Context, v *viper.Viper, paths Paths) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Logger()

	for _, path := range []string{paths.User, paths.Project} {
		if path == "" || !fileExists(path) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
			return nil, errors.Wrapf(errors.ErrConfigInvalid, "failed to read config file %s: %v", path, err)
		}
		logger.Debug().Str("path", path).Msg("config file merged")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrapf(errors.ErrConfigInvalid, "failed to decode config: %v", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	logger.Debug().
		Str("output.dir", cfg.Output.Dir).
		Strs("output.formats", cfg.Output.Formats).
		Str("store.path", cfg.Store.Path).
		Int("trend.window_days", cfg.Trend.WindowDays).
		Msg("configuration loaded")

	return &cfg, nil
}

// viperDecoderOption decodes duration strings and comma-separated lists
// coming from the environment.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)
}

// isConfigNotFoundError returns true if the error is a viper config file not found error.
func isConfigNotFoundError(err error) bool {
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
