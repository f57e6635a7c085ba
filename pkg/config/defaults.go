package config

import (
	"runtime"
	"time"

	"mercator-hq/exporter/pkg/export"
)

// Default values for configuration fields.
const (
	// Store defaults
	DefaultStoreBackend         = "sqlite"
	DefaultSQLitePath           = "data/records.db"
	DefaultSQLiteMaxOpenConns   = 10
	DefaultSQLiteMaxIdleConns   = 5
	DefaultSQLiteBusyTimeout    = 5 * time.Second
	DefaultQueryDefaultLimit    = 1000
	DefaultQueryMaxLimit        = 100000
	DefaultQueryTimeout         = 30 * time.Second
	DefaultAMQPExchange         = "mercator.export"
	DefaultAMQPExchangeType     = "topic"
	DefaultAMQPPublishTimeout   = 5 * time.Second
	DefaultSpoolDir             = "data/spool"
	DefaultSpoolDebounce        = 500 * time.Millisecond
	DefaultRetentionDays        = 30
	DefaultRetentionSchedule    = "0 3 * * *"
	DefaultRetentionArchivePath = "data/archives/"
	DefaultCollectorTimeout     = 30 * time.Second
	DefaultFollowTimeout        = export.DefaultFollowTimeout
	DefaultMaxFollowDepth       = export.DefaultMaxFollowDepth

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultMetricsListen       = "127.0.0.1:9464"
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "mercator"
	DefaultMetricsSubsystem    = "export"
	DefaultTracingSampler      = "ratio"
	DefaultTracingSamplingRate = 1.0
	DefaultTracingServiceName  = "mercator-export"
	DefaultTracingTimeout      = 10 * time.Second
	DefaultHealthLivenessPath  = "/health"
	DefaultHealthReadinessPath = "/ready"
	DefaultHealthVersionPath   = "/version"
	DefaultHealthCheckTimeout  = 5 * time.Second
)

// DefaultCollectorKinds are collected when collector.kinds is empty.
var DefaultCollectorKinds = []string{string(export.KindProcess), string(export.KindNetworkConnection)}

// DefaultBatchDurationBuckets are the batch duration histogram buckets in seconds.
var DefaultBatchDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Export defaults
	if cfg.Export.Workers == 0 {
		cfg.Export.Workers = runtime.NumCPU()
	}
	if cfg.Export.FilesHashes == nil {
		hashes := true
		cfg.Export.FilesHashes = &hashes
	}
	if cfg.Export.FollowTimeout == 0 {
		cfg.Export.FollowTimeout = DefaultFollowTimeout
	}
	if cfg.Export.MaxFollowDepth == 0 {
		cfg.Export.MaxFollowDepth = DefaultMaxFollowDepth
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Store.SQLite.MaxOpenConns == 0 {
		cfg.Store.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Store.SQLite.MaxIdleConns == 0 {
		cfg.Store.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Store.Query.DefaultLimit == 0 {
		cfg.Store.Query.DefaultLimit = DefaultQueryDefaultLimit
	}
	if cfg.Store.Query.MaxLimit == 0 {
		cfg.Store.Query.MaxLimit = DefaultQueryMaxLimit
	}
	if cfg.Store.Query.Timeout == 0 {
		cfg.Store.Query.Timeout = DefaultQueryTimeout
	}

	// Sink defaults, applied to each AMQP sink
	for i := range cfg.Sinks {
		s := &cfg.Sinks[i]
		if s.Type != SinkAMQP {
			continue
		}
		if s.AMQP.Exchange == "" {
			s.AMQP.Exchange = DefaultAMQPExchange
		}
		if s.AMQP.ExchangeType == "" {
			s.AMQP.ExchangeType = DefaultAMQPExchangeType
		}
		if s.AMQP.PublishTimeout == 0 {
			s.AMQP.PublishTimeout = DefaultAMQPPublishTimeout
		}
	}

	// Spool defaults
	if cfg.Spool.Dir == "" {
		cfg.Spool.Dir = DefaultSpoolDir
	}
	if cfg.Spool.Debounce == 0 {
		cfg.Spool.Debounce = DefaultSpoolDebounce
	}

	// Retention defaults
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = DefaultRetentionDays
	}
	if cfg.Retention.PruneSchedule == "" {
		cfg.Retention.PruneSchedule = DefaultRetentionSchedule
	}
	if cfg.Retention.ArchivePath == "" {
		cfg.Retention.ArchivePath = DefaultRetentionArchivePath
	}

	// Collector defaults
	if len(cfg.Collector.Kinds) == 0 {
		cfg.Collector.Kinds = append([]string(nil), DefaultCollectorKinds...)
	}
	if cfg.Collector.Timeout == 0 {
		cfg.Collector.Timeout = DefaultCollectorTimeout
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsListen
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Metrics.BatchDurationBuckets) == 0 {
		cfg.Metrics.BatchDurationBuckets = append([]float64(nil), DefaultBatchDurationBuckets...)
	}

	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}

	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = DefaultHealthLivenessPath
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = DefaultHealthReadinessPath
	}
	if cfg.Health.VersionPath == "" {
		cfg.Health.VersionPath = DefaultHealthVersionPath
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

// NewDefault returns a configuration with every default applied. It is what
// the CLI uses when no configuration file is given.
func NewDefault() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
