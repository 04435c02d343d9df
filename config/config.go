// Package config loads host settings from the environment.
package config

import (
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/votepoll/domain/errors"
)

// validate is a package-level singleton for better performance.
var validate = validator.New()

// Config holds the host settings. Command-line flags override the
// environment before Validate is called.
type Config struct {
	ModulePath       string `env:"VOTEPOLL_MODULE_PATH" validate:"required,file"`
	LogLevel         string `env:"VOTEPOLL_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat        string `env:"VOTEPOLL_LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
	MemoryLimitPages uint32 `env:"VOTEPOLL_MEMORY_LIMIT_PAGES" envDefault:"16384" validate:"gte=1,lte=65536"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, &errors.ConfigError{Err: fmt.Errorf("parse env: %w", err)}
	}
	return cfg, nil
}

// LoadFrom reads the configuration from the given variables instead of the
// process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, &errors.ConfigError{Err: fmt.Errorf("parse env: %w", err)}
	}
	return cfg, nil
}

// Validate checks every field and reports the first failure as a
// *errors.ConfigError naming the field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if stdErrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &errors.ConfigError{
			Field: fe.Field(),
			Err:   fmt.Errorf("value %v failed %q check", fe.Value(), fieldCheck(fe)),
		}
	}
	return &errors.ConfigError{Err: err}
}

func fieldCheck(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values map to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the host logger described by LogLevel and LogFormat.
// A nil writer logs to stderr.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
