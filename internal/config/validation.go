package config

import (
	"errors"
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

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidateConfig checks every section of the configuration. The returned
// error is a ValidationErrors holding warnings as well as errors.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateDictionary(&c.Dictionary)...)
	errs = append(errs, validateUserDict(&c.UserDict)...)
	errs = append(errs, validateFilters(&c.Filters)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIBus(&c.IBus)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors
	if e.PageSize < 1 || e.PageSize > 10 {
		errs = append(errs, *RangeError("engine.page_size", 1, 10))
	}
	for name := range e.Options {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, ValidationError{
				Field:   "engine.options",
				Message: "option name cannot be empty",
			})
		}
	}
	return errs
}

func validateDictionary(d *DictionaryConfig) ValidationErrors {
	var errs ValidationErrors

	// Missing tables are warnings; they might be installed later.
	for i, path := range d.Tables {
		field := fmt.Sprintf("dictionary.tables[%d]", i)
		if path == "" {
			errs = append(errs, ValidationError{Field: field, Message: "path cannot be empty"})
			continue
		}
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("table not found: %s", path)})
		}
	}

	if d.CompletionLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "dictionary.completion_limit",
			Message: "completion limit cannot be negative",
		})
	}
	return errs
}

func validateUserDict(u *UserDictConfig) ValidationErrors {
	var errs ValidationErrors
	if !u.Enabled {
		return errs
	}
	if u.Path == "" {
		errs = append(errs, *RequiredFieldError("userdict.path"))
	}
	if u.CacheTTLSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "userdict.cache_ttl_sec",
			Message: "cache ttl cannot be negative",
		})
	}
	if u.Boost < 0 {
		errs = append(errs, ValidationError{
			Field:   "userdict.boost",
			Message: "boost cannot be negative",
		})
	}
	return errs
}

func validateFilters(f *FiltersConfig) ValidationErrors {
	var errs ValidationErrors

	if f.Width.Enabled {
		switch f.Width.Mode {
		case "full", "half", "fold":
		default:
			errs = append(errs, ValidationError{
				Field:   "filters.width.mode",
				Message: fmt.Sprintf("invalid width mode: %s (valid: full, half, fold)", f.Width.Mode),
			})
		}
	}

	if f.Convert.Enabled {
		if f.Convert.MapPath == "" {
			errs = append(errs, *RequiredFieldError("filters.convert.map_path"))
		}
		switch f.Convert.Tips {
		case "", "none", "char", "all":
		default:
			errs = append(errs, ValidationError{
				Field:   "filters.convert.tips",
				Message: fmt.Sprintf("invalid tips level: %s (valid: none, char, all)", f.Convert.Tips),
			})
		}
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

func validateIBus(i *IBusConfig) ValidationErrors {
	var errs ValidationErrors
	if i.EngineName == "" {
		errs = append(errs, *RequiredFieldError("ibus.engine_name"))
	}
	if i.BusName != "" && strings.Count(i.BusName, ".") < 1 {
		errs = append(errs, ValidationError{
			Field:   "ibus.bus_name",
			Message: fmt.Sprintf("bus name must have at least two elements: %s", i.BusName),
		})
	}
	return errs
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	warningFields := []string{
		"dictionary.tables",
	}
	for _, f := range warningFields {
		if strings.HasPrefix(e.Field, f) && !strings.HasSuffix(e.Message, "cannot be empty") {
			return true
		}
	}
	return false
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// Fatal returns err when it carries at least one non-warning issue, and
// nil otherwise.
func Fatal(err error) error {
	var verrs ValidationErrors
	if errors.As(err, &verrs) && !verrs.HasErrors() {
		return nil
	}
	return err
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
