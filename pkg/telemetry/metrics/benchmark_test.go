package metrics

import (
	"testing"
	"time"
)

// Benchmark_Collector_RecordExported benchmarks the per-record hot path
func Benchmark_Collector_RecordExported(b *testing.B) {
	collector := NewCollector(testConfig(), nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordProcessed("StatEntry")
		collector.RecordExported("ExportedFile")
	}
}

// Benchmark_Collector_RecordExported_Parallel benchmarks the hot path under
// a worker pool
func Benchmark_Collector_RecordExported_Parallel(b *testing.B) {
	collector := NewCollector(testConfig(), nil)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			collector.RecordProcessed("StatEntry")
			collector.RecordExported("ExportedFile")
		}
	})
}

// Benchmark_Collector_RecordSinkWrite benchmarks sink write recording
func Benchmark_Collector_RecordSinkWrite(b *testing.B) {
	collector := NewCollector(testConfig(), nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordSinkWrite("archive", StatusSuccess, time.Millisecond)
	}
}

// Benchmark_Collector_Disabled benchmarks the disabled fast path
func Benchmark_Collector_Disabled(b *testing.B) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordExported("ExportedFile")
	}
}
