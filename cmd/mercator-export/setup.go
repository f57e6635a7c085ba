package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mercator-hq/exporter/pkg/cli"
	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/telemetry/logging"
	"mercator-hq/exporter/pkg/telemetry/tracing"
)

// loadConfig loads the configuration, applies flag overrides and installs
// the default logger. Components capture slog.Default when they are built,
// so this runs before anything else in a command.
func loadConfig(overrides ...func(*config.Config)) (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()
	for _, o := range overrides {
		o(cfg)
	}

	logCfg := logging.FromConfig(cfg.Telemetry.Logging, os.Stderr)
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	logger.SetDefault()

	return cfg, nil
}

// setupTracing installs the configured tracer. The returned func flushes
// pending spans.
func setupTracing(cfg *config.Config) (func(), error) {
	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.tracing", err.Error())
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}, nil
}

// parseTimeRange parses an RFC 3339 "start/end" interval. Either side may be
// empty.
func parseTimeRange(s string) (since, until *time.Time, err error) {
	if s == "" {
		return nil, nil, nil
	}
	start, end, ok := strings.Cut(s, "/")
	if !ok {
		return nil, nil, fmt.Errorf("invalid time range %q (expected: start/end)", s)
	}
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start time: %w", err)
		}
		since = &t
	}
	if end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid end time: %w", err)
		}
		until = &t
	}
	if since != nil && until != nil && !since.Before(*until) {
		return nil, nil, fmt.Errorf("invalid time range %q: start must be before end", s)
	}
	return since, until, nil
}

// sinkTypeFor infers a file sink type from the output path.
func sinkTypeFor(path string) string {
	name := strings.TrimSuffix(strings.ToLower(path), ".lz4")
	switch filepath.Ext(name) {
	case ".json":
		return config.SinkJSON
	case ".jsonl", ".ndjson":
		return config.SinkJSONL
	case ".db", ".sqlite", ".sqlite3":
		return config.SinkSQLite
	case "":
		return config.SinkCSV
	default:
		return config.SinkJSONL
	}
}
