package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "services[0].port").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
//
// Validate expects defaults to have been applied.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateListener(cfg)...)
	errs = append(errs, validateServices(cfg)...)
	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateReload(&cfg.Reload)...)
	errs = append(errs, validateHistory(&cfg.History)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateListener(cfg *Config) []FieldError {
	var errs []FieldError

	if ip := net.ParseIP(cfg.Addr); ip == nil || ip.To4() == nil {
		errs = append(errs, FieldError{
			Field:   "addr",
			Message: fmt.Sprintf("invalid IPv4 address %q", cfg.Addr),
		})
	}

	if !validPort(cfg.Port) {
		errs = append(errs, FieldError{
			Field:   "port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		})
	}

	if strings.ContainsAny(cfg.IncipitHost, " /") {
		errs = append(errs, FieldError{
			Field:   "incipit_host",
			Message: fmt.Sprintf("invalid host %q", cfg.IncipitHost),
		})
	}

	return errs
}

func validateServices(cfg *Config) []FieldError {
	var errs []FieldError

	names := make(map[string]bool, len(cfg.Services))
	for i, svc := range cfg.Services {
		field := fmt.Sprintf("services[%d]", i)

		if svc.Name == "" {
			errs = append(errs, FieldError{
				Field:   field + ".name",
				Message: "service name is required",
			})
		} else if names[svc.Name] {
			errs = append(errs, FieldError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate service name %q", svc.Name),
			})
		}
		names[svc.Name] = true

		if !validPort(svc.Port) {
			errs = append(errs, FieldError{
				Field:   field + ".port",
				Message: fmt.Sprintf("port must be between 1 and 65535, got %d", svc.Port),
			})
		}

		if svc.Host == "" {
			errs = append(errs, FieldError{
				Field:   field + ".host",
				Message: "host is required when domain is not set",
			})
		} else if strings.ContainsAny(svc.Host, " /") {
			errs = append(errs, FieldError{
				Field:   field + ".host",
				Message: fmt.Sprintf("invalid host %q", svc.Host),
			})
		}

		if svc.Repo != nil && svc.Repo.URL == "" {
			errs = append(errs, FieldError{
				Field:   field + ".repo.url",
				Message: "repository URL is required when repo is set",
			})
		}
	}

	return errs
}

func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	durations := []struct {
		field string
		value int64
	}{
		{"proxy.connect_timeout", int64(cfg.ConnectTimeout)},
		{"proxy.handshake_timeout", int64(cfg.HandshakeTimeout)},
		{"proxy.response_header_timeout", int64(cfg.ResponseHeaderTimeout)},
		{"proxy.read_header_timeout", int64(cfg.ReadHeaderTimeout)},
		{"proxy.idle_timeout", int64(cfg.IdleTimeout)},
		{"proxy.shutdown_timeout", int64(cfg.ShutdownTimeout)},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, FieldError{
				Field:   d.field,
				Message: "timeout must not be negative",
			})
		}
	}

	if cfg.MaxConnections < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_connections",
			Message: "max connections must not be negative",
		})
	}

	return errs
}

func validateReload(cfg *ReloadConfig) []FieldError {
	var errs []FieldError

	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{
			Field:   "reload.debounce",
			Message: "debounce must not be negative",
		})
	}

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "reload.schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
			})
		}
	}

	return errs
}

func validateHistory(cfg *HistoryConfig) []FieldError {
	var errs []FieldError

	validDrivers := map[string]bool{"sqlite": true, "sqlite3": true, "memory": true}
	if !validDrivers[cfg.Driver] {
		errs = append(errs, FieldError{
			Field:   "history.driver",
			Message: fmt.Sprintf("invalid driver %q: must be 'sqlite', 'sqlite3', or 'memory'", cfg.Driver),
		})
	}

	if cfg.BufferSize < 0 {
		errs = append(errs, FieldError{
			Field:   "history.buffer_size",
			Message: "buffer size must not be negative",
		})
	}

	if cfg.RetentionDays < KeepHistoryForever {
		errs = append(errs, FieldError{
			Field:   "history.retention_days",
			Message: "retention days must be positive, or -1 to keep records forever",
		})
	}

	if cfg.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "history.max_records",
			Message: "max records must not be negative",
		})
	}

	if cfg.Enabled {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "history.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.PruneSchedule, err),
			})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.IsEnabled() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/' when metrics are enabled",
		})
	}

	return errs
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
