package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/exporter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Helper function to create test config
func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:              true,
		Namespace:            "test",
		Subsystem:            "metrics",
		BatchDurationBuckets: []float64{0.1, 0.5, 1.0, 5.0},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if collector.config != cfg {
		t.Error("Collector config not set correctly")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
}

func TestCollector_NewCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	NewCollector(cfg, nil)

	if cfg.Namespace != "mercator" || cfg.Subsystem != "export" {
		t.Errorf("namespace/subsystem = %s/%s, want mercator/export", cfg.Namespace, cfg.Subsystem)
	}
	if len(cfg.BatchDurationBuckets) == 0 {
		t.Error("BatchDurationBuckets not defaulted")
	}
}

func TestCollector_BatchMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordBatch("hourly", StatusSuccess, 1200*time.Millisecond)
	collector.RecordBatch("hourly", StatusSuccess, 300*time.Millisecond)
	collector.RecordBatch("adhoc", StatusError, time.Second)

	if got := testutil.ToFloat64(collector.batchMetrics.batchesTotal.WithLabelValues("hourly", StatusSuccess)); got != 2 {
		t.Errorf("batches_total{hourly,success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.batchMetrics.batchesTotal.WithLabelValues("adhoc", StatusError)); got != 1 {
		t.Errorf("batches_total{adhoc,error} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(collector.batchMetrics.batchDuration); got != 2 {
		t.Errorf("batch_duration_seconds series = %d, want 2", got)
	}
}

func TestCollector_RecordMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordProcessed("StatEntry")
	collector.RecordProcessed("StatEntry")
	collector.RecordExported("ExportedFile")
	collector.RecordFailure("schema_mismatch")
	collector.RecordWarning("reference_resolution")

	tests := []struct {
		name   string
		metric prometheus.Collector
		want   float64
	}{
		{"processed", collector.batchMetrics.processedTotal.WithLabelValues("StatEntry"), 2},
		{"exported", collector.batchMetrics.exportedTotal.WithLabelValues("ExportedFile"), 1},
		{"failures", collector.batchMetrics.failuresTotal.WithLabelValues("schema_mismatch"), 1},
		{"warnings", collector.batchMetrics.warningsTotal.WithLabelValues("reference_resolution"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.metric); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollector_SinkMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordSinkWrite("archive", StatusSuccess, time.Millisecond)
	collector.RecordSinkWrite("siem", StatusError, 2*time.Second)

	if got := testutil.ToFloat64(collector.sinkMetrics.writesTotal.WithLabelValues("archive", StatusSuccess)); got != 1 {
		t.Errorf("sink_writes_total{archive,success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.sinkMetrics.writesTotal.WithLabelValues("siem", StatusError)); got != 1 {
		t.Errorf("sink_writes_total{siem,error} = %v, want 1", got)
	}
}

func TestCollector_StoreMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.UpdateStoreRecords(42)
	collector.RecordStoreQuery(StatusSuccess, 5*time.Millisecond)
	collector.RecordPruned(7)
	collector.RecordPruned(0)
	collector.RecordSpoolFile("done")

	if got := testutil.ToFloat64(collector.storeMetrics.records); got != 42 {
		t.Errorf("store_records = %v, want 42", got)
	}
	if got := testutil.ToFloat64(collector.storeMetrics.queriesTotal.WithLabelValues(StatusSuccess)); got != 1 {
		t.Errorf("store_queries_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.storeMetrics.prunedTotal); got != 7 {
		t.Errorf("retention_pruned_total = %v, want 7", got)
	}
	if got := testutil.ToFloat64(collector.storeMetrics.spoolFiles.WithLabelValues("done")); got != 1 {
		t.Errorf("spool_files_total{done} = %v, want 1", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, nil)

	collector.RecordExported("ExportedFile")
	collector.RecordBatch("hourly", StatusSuccess, time.Second)

	if got := testutil.ToFloat64(collector.batchMetrics.exportedTotal.WithLabelValues("ExportedFile")); got != 0 {
		t.Errorf("disabled collector recorded %v exports", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var collector *Collector

	// None of these may panic.
	collector.RecordBatch("hourly", StatusSuccess, time.Second)
	collector.RecordProcessed("Process")
	collector.RecordExported("ExportedProcess")
	collector.RecordFailure("internal")
	collector.RecordWarning("reference_resolution")
	collector.RecordSinkWrite("archive", StatusSuccess, time.Millisecond)
	collector.UpdateStoreRecords(1)
	collector.RecordStoreQuery(StatusSuccess, time.Millisecond)
	collector.RecordPruned(1)
	collector.RecordSpoolFile("failed")
}

func TestCollector_KindCardinality(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.cardinalityLimiter = NewCardinalityLimiter(2)

	collector.RecordProcessed("Process")
	collector.RecordProcessed("StatEntry")
	collector.RecordProcessed("SomethingNew")

	if got := testutil.ToFloat64(collector.batchMetrics.processedTotal.WithLabelValues(overflowLabel)); got != 1 {
		t.Errorf("records_processed_total{other} = %v, want 1", got)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	limiter := NewCardinalityLimiter(3)

	for _, v := range []string{"a", "b", "c"} {
		if !limiter.Allow(v) {
			t.Errorf("Allow(%q) = false within limit", v)
		}
	}
	if !limiter.Allow("a") {
		t.Error("Allow() rejected an existing value")
	}
	if limiter.Allow("d") {
		t.Error("Allow() accepted a value past the limit")
	}
	if limiter.Count() != 3 {
		t.Errorf("Count() = %d, want 3", limiter.Count())
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.RecordExported("ExportedFile")

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `test_metrics_records_exported_total{shape="ExportedFile"} 1`) {
		t.Errorf("exposition missing exported counter:\n%s", body)
	}
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				collector.RecordProcessed("Process")
				collector.RecordExported("ExportedProcess")
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(collector.batchMetrics.exportedTotal.WithLabelValues("ExportedProcess")); got != 1000 {
		t.Errorf("records_exported_total = %v, want 1000", got)
	}
}
