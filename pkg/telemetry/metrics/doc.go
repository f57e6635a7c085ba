// Package metrics provides Prometheus metrics collection for Mercator Export.
//
// # Overview
//
// A single Collector registers every exporter metric on its own registry and
// exposes them through Handler. All Collector methods accept a nil receiver,
// so the batch exporter, sinks, store and retention pruner take an optional
// *Collector.
//
// # Metrics Categories
//
//   - Batch Metrics: batches, duration, records processed / exported / failed
//   - Sink Metrics: write attempts and latency per sink
//   - Store Metrics: store size, query latency, retention pruning, spool files
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.RecordProcessed("StatEntry")
//	collector.RecordExported("ExportedFile")
//	collector.RecordFailure("schema_mismatch")
//	collector.RecordBatch("hourly", metrics.StatusSuccess, 3*time.Second)
//
// # Prometheus Endpoint
//
//	# HELP mercator_export_records_exported_total Total number of exported records written
//	# TYPE mercator_export_records_exported_total counter
//	mercator_export_records_exported_total{shape="ExportedFile"} 1234
//
// # Cardinality Management
//
// Shapes, error kinds, sinks and jobs come from code or configuration and are
// bounded. Raw record kinds come from data: after 1000 distinct values further
// kinds are recorded as "other".
package metrics
