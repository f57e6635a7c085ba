package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "MERCATOR_EXPORT_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration and applies defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention MERCATOR_EXPORT_SECTION_FIELD (e.g., MERCATOR_EXPORT_STORE_SQLITE_PATH).
// Environment variables always take precedence over file-based configuration.
//
// An empty path loads the defaults, so the binary runs without a file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefault()
	} else {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Export overrides
	envInt("WORKERS", &cfg.Export.Workers)
	envBool("FILES_CONTENTS", &cfg.Export.FilesContents)
	if val, ok := lookupEnv("FILES_HASHES"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Export.FilesHashes = &b
		}
	}
	envBool("FOLLOW_URNS", &cfg.Export.FollowURNs)
	envBool("VALIDATE_RECORDS", &cfg.Export.ValidateRecords)
	envDuration("FOLLOW_TIMEOUT", &cfg.Export.FollowTimeout)
	envInt("MAX_FOLLOW_DEPTH", &cfg.Export.MaxFollowDepth)
	if val, ok := lookupEnv("ANNOTATIONS"); ok {
		cfg.Export.Annotations = splitEnvList(val)
	}

	// Store overrides
	envString("STORE_BACKEND", &cfg.Store.Backend)
	envString("STORE_SQLITE_PATH", &cfg.Store.SQLite.Path)
	envDuration("STORE_SQLITE_BUSY_TIMEOUT", &cfg.Store.SQLite.BusyTimeout)
	envInt("STORE_QUERY_MAX_LIMIT", &cfg.Store.Query.MaxLimit)

	// Sink overrides by name: MERCATOR_EXPORT_SINKS_<NAME>_PATH, _AMQP_URL
	for i := range cfg.Sinks {
		applySinkEnvOverrides(&cfg.Sinks[i])
	}

	// Spool overrides
	envBool("SPOOL_ENABLED", &cfg.Spool.Enabled)
	envString("SPOOL_DIR", &cfg.Spool.Dir)
	envDuration("SPOOL_DEBOUNCE", &cfg.Spool.Debounce)

	// Retention overrides
	envInt("RETENTION_DAYS", &cfg.Retention.Days)
	envString("RETENTION_PRUNE_SCHEDULE", &cfg.Retention.PruneSchedule)
	envString("RETENTION_ARCHIVE_PATH", &cfg.Retention.ArchivePath)
	if val, ok := lookupEnv("RETENTION_MAX_RECORDS"); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Retention.MaxRecords = i
		}
	}

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val, ok := lookupEnv("TELEMETRY_TRACING_SAMPLE_RATIO"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

// applySinkEnvOverrides applies overrides for a single sink. The sink name is
// upper-cased and dashes become underscores.
func applySinkEnvOverrides(s *SinkConfig) {
	name := strings.ToUpper(strings.ReplaceAll(s.Name, "-", "_"))
	prefix := "SINKS_" + name + "_"

	envString(prefix+"PATH", &s.Path)
	envString(prefix+"AMQP_URL", &s.AMQP.URL)
	envString(prefix+"AMQP_EXCHANGE", &s.AMQP.Exchange)
}

func lookupEnv(key string) (string, bool) {
	val := os.Getenv(EnvPrefix + key)
	return val, val != ""
}

func envString(key string, dst *string) {
	if val, ok := lookupEnv(key); ok {
		*dst = val
	}
}

func envBool(key string, dst *bool) {
	if val, ok := lookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if val, ok := lookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val, ok := lookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func splitEnvList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
