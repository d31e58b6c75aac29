package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a config validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation failures.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("config validation failed:\n")
	for _, err := range e {
		b.WriteString("  - ")
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	return b.String()
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for errors.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if cfg.SourceDir == "" {
		errs = append(errs, ValidationError{Field: "source_dir", Message: "must not be empty"})
	}
	if cfg.OutputDir == "" {
		errs = append(errs, ValidationError{Field: "output_dir", Message: "must not be empty"})
	}

	if cfg.MinWidth < 1 {
		errs = append(errs, ValidationError{
			Field:   "min_width",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.MinWidth),
		})
	}
	if cfg.MaxWidth < cfg.MinWidth {
		errs = append(errs, ValidationError{
			Field:   "max_width",
			Message: fmt.Sprintf("must be at least min_width (%d), got %d", cfg.MinWidth, cfg.MaxWidth),
		})
	}
	if cfg.MaxBytes < 1 {
		errs = append(errs, ValidationError{
			Field:   "max_bytes",
			Message: fmt.Sprintf("must be positive, got %d", cfg.MaxBytes),
		})
	}
	if cfg.ResizeStep <= 0 || cfg.ResizeStep >= 1 {
		errs = append(errs, ValidationError{
			Field:   "resize_step",
			Message: fmt.Sprintf("must be between 0 and 1 exclusive, got %g", cfg.ResizeStep),
		})
	}

	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		errs = append(errs, ValidationError{
			Field:   "jpeg_quality",
			Message: fmt.Sprintf("must be between 1 and 100, got %d", cfg.JPEGQuality),
		})
	}
	if cfg.WebPQuality < 1 || cfg.WebPQuality > 100 {
		errs = append(errs, ValidationError{
			Field:   "webp_quality",
			Message: fmt.Sprintf("must be between 1 and 100, got %d", cfg.WebPQuality),
		})
	}

	if cfg.RemoteMaxBytes < 1 {
		errs = append(errs, ValidationError{
			Field:   "remote_max_bytes",
			Message: fmt.Sprintf("must be positive, got %d", cfg.RemoteMaxBytes),
		})
	}
	if cfg.RemoteTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "remote_timeout",
			Message: fmt.Sprintf("must be positive, got %s", cfg.RemoteTimeout),
		})
	}

	if cfg.Workers < 0 {
		errs = append(errs, ValidationError{
			Field:   "workers",
			Message: fmt.Sprintf("must be non-negative, got %d", cfg.Workers),
		})
	}

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error; got %q", cfg.LogLevel),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
