package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// Exactly one job provider
	switch {
	case cfg.JobsFile == "" && cfg.DatabaseURL == "":
		errs = append(errs, ValidationError{
			Field:   "CRONCAL_JOBS_FILE",
			Message: "one of CRONCAL_JOBS_FILE or CRONCAL_DATABASE_URL is required",
		})
	case cfg.JobsFile != "" && cfg.DatabaseURL != "":
		errs = append(errs, ValidationError{
			Field:   "CRONCAL_DATABASE_URL",
			Message: "cannot be combined with CRONCAL_JOBS_FILE",
		})
	}

	if cfg.DefaultTimezone != "" {
		if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
			errs = append(errs, ValidationError{
				Field:   "CRONCAL_DEFAULT_TIMEZONE",
				Message: fmt.Sprintf("unknown timezone %q", cfg.DefaultTimezone),
			})
		}
	}

	if cfg.LastEvents < 0 {
		errs = append(errs, ValidationError{
			Field:   "CRONCAL_LAST_EVENTS",
			Message: "must not be negative",
		})
	}

	if cfg.MetricsEnabled && !strings.HasPrefix(cfg.MetricsPath, "/") {
		errs = append(errs, ValidationError{
			Field:   "CRONCAL_METRICS_PATH",
			Message: fmt.Sprintf("must start with '/', got %q", cfg.MetricsPath),
		})
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, ValidationError{
			Field:   "CRONCAL_LOG_LEVEL",
			Message: "must be one of debug, info, warn, error",
		})
	}

	if cfg.DBMaxOpenConns <= 0 {
		errs = append(errs, ValidationError{
			Field:   "CRONCAL_DB_MAX_OPEN_CONNS",
			Message: "must be positive",
		})
	}

	if cfg.DBBreakerThreshold < 0 {
		errs = append(errs, ValidationError{
			Field:   "CRONCAL_DB_BREAKER_THRESHOLD",
			Message: "must not be negative",
		})
	}

	errs = validateDuration(errs, "CRONCAL_HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr)
	errs = validateDuration(errs, "CRONCAL_DB_OP_TIMEOUT", cfg.DBOpTimeoutStr)
	errs = validateDuration(errs, "CRONCAL_RELOAD_DEBOUNCE", cfg.ReloadDebounceStr)
	errs = validateDuration(errs, "CRONCAL_DB_BREAKER_COOLDOWN", cfg.DBBreakerCooldownStr)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateDuration requires a parseable, positive duration when set.
func validateDuration(errs ValidationErrors, field, value string) ValidationErrors {
	if value == "" {
		return errs
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	}
	if d <= 0 {
		return append(errs, ValidationError{
			Field:   field,
			Message: "must be positive",
		})
	}
	return errs
}
