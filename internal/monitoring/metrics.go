// Package monitoring records how long each pipeline stage took and how many rows it produced.
package monitoring

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

// StageMetrics represents the measurements of one pipeline stage run.
type StageMetrics struct {
	Stage         string        `json:"stage"`
	Duration      time.Duration `json:"duration"`
	RowsProcessed int64         `json:"rows_processed"`
	MemoryUsed    int64         `json:"memory_used"`
	Failed        bool          `json:"failed"`
}

// MetricsCollector collects and stores stage metrics. It is safe for concurrent use.
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics []StageMetrics
	enabled bool
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(enabled bool) *MetricsCollector {
	return &MetricsCollector{
		metrics: make([]StageMetrics, 0),
		enabled: enabled,
	}
}

// IsEnabled returns whether metrics collection is enabled.
func (mc *MetricsCollector) IsEnabled() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.enabled
}

// SetEnabled enables or disables metrics collection.
func (mc *MetricsCollector) SetEnabled(enabled bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.enabled = enabled
}

// RecordStage executes fn and records its duration, the row count it reports
// and the heap growth observed around it. Metrics are recorded on error too.
func (mc *MetricsCollector) RecordStage(stage string, fn func() (int, error)) error {
	if !mc.IsEnabled() {
		_, err := fn()
		return err
	}

	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)
	start := time.Now()

	rows, err := fn()

	duration := time.Since(start)
	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)

	// A collection during fn can shrink the heap
	var memoryUsed int64
	if memAfter.Alloc > memBefore.Alloc {
		memoryUsed = int64(memAfter.Alloc - memBefore.Alloc) //nolint:gosec // bounded by heap size
	}

	mc.mu.Lock()
	mc.metrics = append(mc.metrics, StageMetrics{
		Stage:         stage,
		Duration:      duration,
		RowsProcessed: int64(rows),
		MemoryUsed:    memoryUsed,
		Failed:        err != nil,
	})
	mc.mu.Unlock()

	return err
}

// GetMetrics returns a copy of all collected metrics.
func (mc *MetricsCollector) GetMetrics() []StageMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make([]StageMetrics, len(mc.metrics))
	copy(result, mc.metrics)
	return result
}

// Clear removes all collected metrics.
func (mc *MetricsCollector) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = mc.metrics[:0]
}

// GetSummary returns a summary of collected metrics.
func (mc *MetricsCollector) GetSummary() MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if len(mc.metrics) == 0 {
		return MetricsSummary{}
	}

	var totalDuration time.Duration
	var totalMemory int64
	var totalRows int64
	failures := 0
	stageCounts := make(map[string]int)

	for _, metric := range mc.metrics {
		totalDuration += metric.Duration
		totalMemory += metric.MemoryUsed
		totalRows += metric.RowsProcessed
		stageCounts[metric.Stage]++
		if metric.Failed {
			failures++
		}
	}

	return MetricsSummary{
		TotalStages:     len(mc.metrics),
		TotalDuration:   totalDuration,
		TotalMemory:     totalMemory,
		TotalRows:       totalRows,
		Failures:        failures,
		StageCounts:     stageCounts,
		AverageDuration: totalDuration / time.Duration(len(mc.metrics)),
	}
}

// MetricsSummary provides aggregate statistics for collected metrics.
type MetricsSummary struct {
	TotalStages     int            `json:"total_stages"`
	TotalDuration   time.Duration  `json:"total_duration"`
	TotalMemory     int64          `json:"total_memory"`
	TotalRows       int64          `json:"total_rows"`
	Failures        int            `json:"failures"`
	StageCounts     map[string]int `json:"stage_counts"`
	AverageDuration time.Duration  `json:"average_duration"`
}

// Table renders metrics as an aligned text table for the CLI
func Table(metrics []StageMetrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %12s %10s\n", "STAGE", "DURATION", "ROWS")
	for _, m := range metrics {
		status := ""
		if m.Failed {
			status = " (failed)"
		}
		fmt.Fprintf(&b, "%-24s %12s %10d%s\n", m.Stage, m.Duration.Round(time.Microsecond), m.RowsProcessed, status)
	}
	return b.String()
}
