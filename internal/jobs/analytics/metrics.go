package analytics

import (
	"runtime"
	"time"
)

// MetricsSource provides the process telemetry sampled by the
// performanceMetrics task. Injectable so tests use a fixed sample.
type MetricsSource interface {
	Sample() MetricsSample
}

type MetricsSample struct {
	Goroutines      int
	HeapBytes       uint64
	TotalAllocBytes uint64
	GCCycles        uint32
	Uptime          time.Duration
}

type runtimeMetrics struct {
	started time.Time
}

// RuntimeMetrics samples the Go runtime: goroutine count, heap usage, GC
// cycles and process uptime.
func RuntimeMetrics() MetricsSource {
	return &runtimeMetrics{started: time.Now()}
}

func (r *runtimeMetrics) Sample() MetricsSample {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MetricsSample{
		Goroutines:      runtime.NumGoroutine(),
		HeapBytes:       m.HeapAlloc,
		TotalAllocBytes: m.TotalAlloc,
		GCCycles:        m.NumGC,
		Uptime:          time.Since(r.started),
	}
}
