package config

import (
	stderrors "errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/report"
)

// newValidator reports fields by their config key rather than their Go name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks the configuration. Every failure wraps errors.ErrConfigInvalid
// and names the offending key.
//
// Rules beyond the struct tags:
//   - output formats must be known report formats
//   - flaky weights must all be positive
//   - lock and archival timeouts must not be negative
//   - influx org and bucket are required once influx.url is set
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.Wrap(errors.ErrConfigInvalid, "config is nil")
	}

	if err := newValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			key := strings.TrimPrefix(fe.Namespace(), "Config.")
			return errors.Wrapf(errors.ErrConfigInvalid, "%s failed %q (got %v)", key, ruleOf(fe), fe.Value())
		}
		return errors.Wrap(errors.ErrConfigInvalid, err.Error())
	}

	if _, err := report.ParseFormats(cfg.Output.Formats); err != nil {
		return errors.Wrapf(errors.ErrConfigInvalid, "output.formats: %v", err)
	}

	if err := cfg.Flaky.Weights.Validate(); err != nil {
		return errors.Wrap(err, "flaky.weights")
	}

	if cfg.Store.LockTimeout < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "store.lock_timeout must not be negative, got %s", cfg.Store.LockTimeout)
	}
	if cfg.Archival.Timeout < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "archival.timeout must not be negative, got %s", cfg.Archival.Timeout)
	}

	if cfg.Influx.Enabled() && (cfg.Influx.Org == "" || cfg.Influx.Bucket == "") {
		return errors.Wrap(errors.ErrConfigInvalid, "influx.org and influx.bucket are required when influx.url is set")
	}

	return nil
}

func ruleOf(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
