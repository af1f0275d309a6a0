package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateRun(&c.Run)...)
	errs = append(errs, validateReport(&c.Report)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateRun(r *RunConfig) ValidationErrors {
	var errs ValidationErrors

	if r.Source == "" {
		errs = append(errs, *RequiredFieldError("run.source"))
	} else if info, err := os.Stat(r.Source); err != nil || !info.IsDir() {
		errs = append(errs, ValidationError{
			Field:   "run.source",
			Message: fmt.Sprintf("source is not a directory: %s", r.Source),
		})
	}

	if r.Destination == "" {
		errs = append(errs, *RequiredFieldError("run.destination"))
	}

	if r.Basename == "" {
		errs = append(errs, *RequiredFieldError("run.basename"))
	} else if strings.ContainsAny(r.Basename, `/\`) {
		errs = append(errs, ValidationError{
			Field:   "run.basename",
			Message: "basename must not contain path separators",
		})
	}

	switch r.HashAlgorithm {
	case "md5", "sha1", "sha256", "sha512", HashNone:
	default:
		errs = append(errs, ValidationError{
			Field:   "run.hash_algorithm",
			Message: fmt.Sprintf("invalid hash algorithm: %s (valid: md5, sha1, sha256, sha512, none)", r.HashAlgorithm),
		})
	}

	return errs
}

func validateReport(r *ReportConfig) ValidationErrors {
	var errs ValidationErrors

	if r.RegistryHost == "" {
		errs = append(errs, *RequiredFieldError("report.registry_host"))
	} else if strings.Contains(r.RegistryHost, "/") {
		errs = append(errs, ValidationError{
			Field:   "report.registry_host",
			Message: "registry host must be a bare host name",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, *RangeError("logging.max_size_mb", 1, "unbounded"))
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}

// RequiredFieldError creates a validation error for a missing required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for a value outside its range.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
