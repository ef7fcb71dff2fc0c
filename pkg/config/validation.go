package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the configuration for errors. It combines struct tag
// validation with checks the tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validateLogging(cfg); err != nil {
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}

	// The session secret is validated again by the JWT service; checking
	// here surfaces the problem before anything else starts.
	if len(cfg.Auth.Secret) < 32 {
		return fmt.Errorf("auth.secret must be at least 32 characters (set GENBU_AUTH_SECRET)")
	}

	return nil
}

func validateLogging(cfg *Config) error {
	switch strings.ToUpper(cfg.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid logging level %q: must be one of DEBUG, INFO, WARN, ERROR", cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q: must be text or json", cfg.Logging.Format)
	}

	return nil
}
