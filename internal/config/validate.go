package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minBatchSize      = 1
	maxBatchSize      = 1000
	minRequestTimeout = 1 * time.Second
)

// Validate checks all configuration values and returns all errors found,
// so a user can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBatchSize(cfg.BatchSize)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)

	return errors.Join(errs...)
}

// ValidateResolved checks the final values after env and CLI overrides.
func ValidateResolved(r *Resolved) error {
	var errs []error

	errs = append(errs, validateBatchSize(r.BatchSize)...)

	if r.RequestTimeout < minRequestTimeout {
		errs = append(errs, fmt.Errorf("request_timeout: must be >= %s, got %s", minRequestTimeout, r.RequestTimeout))
	}

	return errors.Join(errs...)
}

func validateBatchSize(n int) []error {
	if n < minBatchSize || n > maxBatchSize {
		return []error{fmt.Errorf("batch_size: must be between %d and %d, got %d", minBatchSize, maxBatchSize, n)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("request_timeout", n.RequestTimeout, minRequestTimeout)...)

	if n.APIBaseURL != "" {
		u, err := url.Parse(n.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("api_base_url: must be an http(s) URL, got %q", n.APIBaseURL))
		}
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}
