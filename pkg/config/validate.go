package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/exporter/pkg/export"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "store.sqlite.path").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "configuration validation failed"
	case 1:
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateExport(&cfg.Export)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateSinks(cfg.Sinks)...)
	errs = append(errs, validateJobs(cfg.Jobs, cfg)...)
	errs = append(errs, validateSpool(&cfg.Spool, cfg)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateCollector(&cfg.Collector)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateExport(cfg *ExportConfig) []FieldError {
	var errs []FieldError

	if cfg.Workers < 1 {
		errs = append(errs, FieldError{
			Field:   "export.workers",
			Message: "workers must be at least 1",
		})
	}
	if cfg.FollowTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "export.follow_timeout",
			Message: "follow timeout must be positive",
		})
	}
	if cfg.MaxFollowDepth < 0 || cfg.MaxFollowDepth > 32 {
		errs = append(errs, FieldError{
			Field:   "export.max_follow_depth",
			Message: "max follow depth must be between 1 and 32",
		})
	}
	for i, a := range cfg.Annotations {
		if a == "" || strings.Contains(a, export.ListDelimiter) {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("export.annotations[%d]", i),
				Message: fmt.Sprintf("annotation must be non-empty and must not contain %q", export.ListDelimiter),
			})
		}
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.path",
				Message: "SQLite path is required when backend is 'sqlite'",
			})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.max_idle_conns",
				Message: "max idle connections must not exceed max open connections",
			})
		}
	case "memory":
	case "":
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: "backend is required",
		})
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'sqlite' or 'memory'", cfg.Backend),
		})
	}

	if cfg.Query.DefaultLimit < 1 {
		errs = append(errs, FieldError{
			Field:   "store.query.default_limit",
			Message: "default limit must be at least 1",
		})
	}
	if cfg.Query.MaxLimit < cfg.Query.DefaultLimit {
		errs = append(errs, FieldError{
			Field:   "store.query.max_limit",
			Message: "max limit must be at least the default limit",
		})
	}

	return errs
}

func validateSinks(sinks []SinkConfig) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool)

	for i, s := range sinks {
		prefix := fmt.Sprintf("sinks[%d]", i)

		if s.Name == "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "sink name is required"})
		} else if seen[s.Name] {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: fmt.Sprintf("duplicate sink name %q", s.Name)})
		}
		seen[s.Name] = true

		switch s.Type {
		case SinkJSON, SinkJSONL, SinkCSV, SinkSQLite:
			if s.Path == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".path",
					Message: fmt.Sprintf("path is required for %s sinks", s.Type),
				})
			}
		case SinkAMQP:
			errs = append(errs, validateAMQP(prefix+".amqp", &s.AMQP)...)
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("invalid sink type %q: must be 'json', 'jsonl', 'csv', 'sqlite', or 'amqp'", s.Type),
			})
		}
	}

	return errs
}

func validateAMQP(prefix string, cfg *AMQPConfig) []FieldError {
	var errs []FieldError

	if cfg.URL == "" {
		return append(errs, FieldError{Field: prefix + ".url", Message: "broker URL is required for amqp sinks"})
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   prefix + ".url",
			Message: "broker URL must be an amqp:// or amqps:// URL with a host",
		})
	}

	validTypes := map[string]bool{"direct": true, "fanout": true, "topic": true, "headers": true}
	if !validTypes[cfg.ExchangeType] {
		errs = append(errs, FieldError{
			Field:   prefix + ".exchange_type",
			Message: fmt.Sprintf("invalid exchange type %q", cfg.ExchangeType),
		})
	}
	if cfg.PublishTimeout < 0 {
		errs = append(errs, FieldError{Field: prefix + ".publish_timeout", Message: "publish timeout must be positive"})
	}

	return errs
}

func validateJobs(jobs []JobConfig, cfg *Config) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool)

	for i, j := range jobs {
		prefix := fmt.Sprintf("jobs[%d]", i)

		if j.Name == "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "job name is required"})
		} else if seen[j.Name] {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: fmt.Sprintf("duplicate job name %q", j.Name)})
		}
		seen[j.Name] = true

		if _, err := cron.ParseStandard(j.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   prefix + ".schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", j.Schedule, err),
			})
		}
		if j.Window < 0 {
			errs = append(errs, FieldError{Field: prefix + ".window", Message: "window must be positive"})
		}
		for k, kind := range j.Kinds {
			if kind == "" {
				errs = append(errs, FieldError{Field: fmt.Sprintf("%s.kinds[%d]", prefix, k), Message: "kind must be non-empty"})
			}
		}
		errs = append(errs, validateSinkRefs(prefix+".sinks", j.Sinks, cfg)...)
	}

	return errs
}

func validateSpool(spool *SpoolConfig, cfg *Config) []FieldError {
	if !spool.Enabled {
		return nil
	}

	var errs []FieldError
	if spool.Dir == "" {
		errs = append(errs, FieldError{Field: "spool.dir", Message: "spool directory is required when the spool is enabled"})
	}
	if spool.Debounce < 0 || spool.Debounce > time.Minute {
		errs = append(errs, FieldError{Field: "spool.debounce", Message: "debounce must be between 0 and 1m"})
	}
	errs = append(errs, validateSinkRefs("spool.sinks", spool.Sinks, cfg)...)
	return errs
}

func validateSinkRefs(field string, names []string, cfg *Config) []FieldError {
	var errs []FieldError
	if len(names) == 0 {
		return append(errs, FieldError{Field: field, Message: "at least one sink is required"})
	}
	for _, name := range names {
		if _, ok := cfg.Sink(name); !ok {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("unknown sink %q", name)})
		}
	}
	return errs
}

func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "retention.days",
			Message: "retention days must be non-negative",
		})
	}
	if cfg.Days > 3650 {
		errs = append(errs, FieldError{
			Field:   "retention.days",
			Message: "retention days exceeds reasonable limit (3650 days / 10 years)",
		})
	}
	if cfg.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "retention.max_records",
			Message: "max records must be non-negative",
		})
	}
	if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "retention.prune_schedule",
			Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.PruneSchedule, err),
		})
	}
	if cfg.ArchiveBeforeDelete && cfg.ArchivePath == "" {
		errs = append(errs, FieldError{
			Field:   "retention.archive_path",
			Message: "archive path is required when archiving is enabled",
		})
	}

	return errs
}

func validateCollector(cfg *CollectorConfig) []FieldError {
	var errs []FieldError

	for i, kind := range cfg.Kinds {
		switch export.Kind(kind) {
		case export.KindProcess, export.KindNetworkConnection, export.KindNetworkInterface:
		default:
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("collector.kinds[%d]", i),
				Message: fmt.Sprintf("invalid kind %q: must be 'Process', 'NetworkConnection' or 'NetworkInterface'", kind),
			})
		}
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: "collector.timeout", Message: "timeout must be positive"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text', or 'console'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.ListenAddress == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: "listen address is required when metrics are enabled",
			})
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path must start with /",
			})
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if cfg.Tracing.Enabled && !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if cfg.Health.Enabled {
		paths := map[string]string{
			"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
			"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
			"telemetry.health.version_path":   cfg.Health.VersionPath,
		}
		for _, field := range []string{
			"telemetry.health.liveness_path",
			"telemetry.health.readiness_path",
			"telemetry.health.version_path",
		} {
			if !strings.HasPrefix(paths[field], "/") {
				errs = append(errs, FieldError{Field: field, Message: "path must start with /"})
			}
		}
		if cfg.Health.CheckTimeout < 0 || cfg.Health.CheckTimeout > 60*time.Second {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.check_timeout",
				Message: "check timeout must be between 0 and 60s",
			})
		}
	}

	return errs
}
