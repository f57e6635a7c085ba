package metrics

import (
	"sync"
	"time"

	"mercator-hq/exporter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// overflowLabel replaces label values once the cardinality limit is reached.
const overflowLabel = "other"

// Collector owns every Prometheus metric recorded by the exporter.
//
// All methods are safe to call on a nil *Collector, so packages can take an
// optional collector without guarding each call site.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	batchMetrics *BatchMetrics
	sinkMetrics  *SinkMetrics
	storeMetrics *StoreMetrics

	// Raw record kinds come from collected data, so they are bounded here.
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector and registers its metrics with registry.
// A nil registry gets a fresh one.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "mercator",
//		Subsystem: "export",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.BatchDurationBuckets) == 0 {
		cfg.BatchDurationBuckets = append([]float64(nil), config.DefaultBatchDurationBuckets...)
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		batchMetrics:       NewBatchMetrics(cfg, registry),
		sinkMetrics:        NewSinkMetrics(cfg, registry),
		storeMetrics:       NewStoreMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordBatch records a finished batch.
//
// Parameters:
//   - job: Scheduled job name, or "adhoc" for CLI and spool batches
//   - status: StatusSuccess, or StatusError when the batch aborted
//   - duration: Wall time from first read to sink close
func (c *Collector) RecordBatch(job, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.batchMetrics.RecordBatch(job, status, duration)
}

// RecordProcessed counts a raw record taken from the source.
func (c *Collector) RecordProcessed(kind string) {
	if !c.enabled() {
		return
	}
	if !c.cardinalityLimiter.Allow(kind) {
		kind = overflowLabel
	}
	c.batchMetrics.RecordProcessed(kind)
}

// RecordExported counts an exported record of shape.
func (c *Collector) RecordExported(shape string) {
	if !c.enabled() {
		return
	}
	c.batchMetrics.RecordExported(shape)
}

// RecordFailure counts a failed raw record by report error kind.
func (c *Collector) RecordFailure(errorKind string) {
	if !c.enabled() {
		return
	}
	c.batchMetrics.RecordFailure(errorKind)
}

// RecordWarning counts a non-fatal problem, such as an unresolved reference.
func (c *Collector) RecordWarning(errorKind string) {
	if !c.enabled() {
		return
	}
	c.batchMetrics.RecordWarning(errorKind)
}

// RecordSinkWrite records one delivery attempt to a sink.
func (c *Collector) RecordSinkWrite(sink, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.sinkMetrics.RecordWrite(sink, status, duration)
}

// UpdateStoreRecords sets the number of raw records in the store.
func (c *Collector) UpdateStoreRecords(n int64) {
	if !c.enabled() {
		return
	}
	c.storeMetrics.UpdateRecords(n)
}

// RecordStoreQuery records a store query.
func (c *Collector) RecordStoreQuery(status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.storeMetrics.RecordQuery(status, duration)
}

// RecordPruned counts raw records removed by retention.
func (c *Collector) RecordPruned(n int64) {
	if !c.enabled() || n <= 0 {
		return
	}
	c.storeMetrics.RecordPruned(n)
}

// RecordSpoolFile counts a processed spool file by outcome.
func (c *Collector) RecordSpoolFile(status string) {
	if !c.enabled() {
		return
	}
	c.storeMetrics.RecordSpoolFile(status)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
