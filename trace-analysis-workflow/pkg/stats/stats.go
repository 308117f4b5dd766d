// =============================================================================
// pkg/stats/stats.go - Batch Statistics and Progress Tracking
// =============================================================================
//
// This package provides statistical utilities for the ingest phase:
//   - Batch-level statistics (lines parsed, records written, timings)
//   - Cumulative statistics across all batches
//   - Progress tracking with ETA calculations
//
// =============================================================================

package stats

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/cf"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
)

// =============================================================================
// BatchStats - Statistics for a Single Batch
// =============================================================================

// BatchStats tracks statistics for a single batch of trace lines.
//
// A batch is typically 50,000 lines. Statistics include:
//   - Parse time (classifying lines and building records)
//   - Write time (committing the batch to the record store)
//   - Record counts per column family
type BatchStats struct {
	// BatchNumber is the sequential batch number (1-based)
	BatchNumber int

	// StartLine is the first trace line in this batch
	StartLine uint32

	// EndLine is the last trace line in this batch
	EndLine uint32

	// ParseTime is the total time spent classifying lines
	ParseTime time.Duration

	// WriteTime is the total time spent writing to the record store
	WriteTime time.Duration

	// LineCount is the number of trace lines processed in this batch
	LineCount int

	// RecordCount is the total number of records emitted in this batch
	RecordCount int

	// RecordsByCF tracks record counts per column family
	RecordsByCF map[string]int
}

// NewBatchStats creates a new BatchStats for the given batch.
func NewBatchStats(batchNum int, startLine uint32) *BatchStats {
	return &BatchStats{
		BatchNumber: batchNum,
		StartLine:   startLine,
		RecordsByCF: make(map[string]int),
	}
}

// TotalTime returns the total time for this batch (parse + write).
func (bs *BatchStats) TotalTime() time.Duration {
	return bs.ParseTime + bs.WriteTime
}

// LinesPerSecond returns the processing rate.
func (bs *BatchStats) LinesPerSecond() float64 {
	totalSec := bs.TotalTime().Seconds()
	if totalSec == 0 {
		return 0
	}
	return float64(bs.LineCount) / totalSec
}

// LogSummary logs a summary of the batch to the logger.
func (bs *BatchStats) LogSummary(logger interfaces.Logger) {
	logger.Info("Batch %d: lines %d-%d | %d records | parse=%v write=%v | %.0f lines/sec",
		bs.BatchNumber, bs.StartLine, bs.EndLine,
		bs.RecordCount, bs.ParseTime.Truncate(time.Microsecond),
		bs.WriteTime.Truncate(time.Microsecond), bs.LinesPerSecond())
}

// LogCFBreakdown logs the record count per column family.
func (bs *BatchStats) LogCFBreakdown(logger interfaces.Logger) {
	var parts []string
	for _, cfName := range cf.Names {
		parts = append(parts, fmt.Sprintf("%s:%d", cfName, bs.RecordsByCF[cfName]))
	}
	logger.Verbose("  CF breakdown: %s", strings.Join(parts, " "))
}

// =============================================================================
// AggregatedStats - Cumulative Statistics Across Batches
// =============================================================================

// AggregatedStats accumulates statistics across all ingest batches.
type AggregatedStats struct {
	mu sync.Mutex

	// TotalBatches is the number of batches processed
	TotalBatches int

	// TotalLines is the total number of trace lines processed
	TotalLines int64

	// TotalRecords is the total number of records written
	TotalRecords int64

	// TotalParseTime is the cumulative parse time
	TotalParseTime time.Duration

	// TotalWriteTime is the cumulative write time
	TotalWriteTime time.Duration

	// RecordsByCF tracks cumulative record counts per CF
	RecordsByCF map[string]uint64

	// StartTime is when processing started
	StartTime time.Time

	// LastBatchEnd is when the last batch completed
	LastBatchEnd time.Time
}

// NewAggregatedStats creates a new AggregatedStats.
func NewAggregatedStats() *AggregatedStats {
	counts := make(map[string]uint64)
	for _, cfName := range cf.Names {
		counts[cfName] = 0
	}
	return &AggregatedStats{
		RecordsByCF: counts,
		StartTime:   time.Now(),
	}
}

// AddBatch adds a batch's statistics to the aggregate.
func (as *AggregatedStats) AddBatch(batch *BatchStats) {
	as.mu.Lock()
	defer as.mu.Unlock()

	as.TotalBatches++
	as.TotalLines += int64(batch.LineCount)
	as.TotalRecords += int64(batch.RecordCount)
	as.TotalParseTime += batch.ParseTime
	as.TotalWriteTime += batch.WriteTime
	as.LastBatchEnd = time.Now()

	for cfName, count := range batch.RecordsByCF {
		as.RecordsByCF[cfName] += uint64(count)
	}
}

// ElapsedTime returns the total elapsed time since start.
func (as *AggregatedStats) ElapsedTime() time.Duration {
	as.mu.Lock()
	defer as.mu.Unlock()
	return time.Since(as.StartTime)
}

// OverallLinesPerSecond returns the overall processing rate.
func (as *AggregatedStats) OverallLinesPerSecond() float64 {
	as.mu.Lock()
	defer as.mu.Unlock()

	elapsed := as.LastBatchEnd.Sub(as.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(as.TotalLines) / elapsed
}

// LogSummary logs an aggregated summary to the logger.
func (as *AggregatedStats) LogSummary(logger interfaces.Logger) {
	as.mu.Lock()
	defer as.mu.Unlock()

	elapsed := time.Since(as.StartTime)
	logger.Separator()
	logger.Info("                    INGEST SUMMARY")
	logger.Separator()
	logger.Info("")
	logger.Info("TOTALS:")
	logger.Info("  Batches:          %d", as.TotalBatches)
	logger.Info("  Trace Lines:      %d", as.TotalLines)
	logger.Info("  Records:          %d", as.TotalRecords)
	logger.Info("")
	logger.Info("TIME:")
	logger.Info("  Parse Time:       %v", as.TotalParseTime.Truncate(time.Millisecond))
	logger.Info("  Write Time:       %v", as.TotalWriteTime.Truncate(time.Millisecond))
	logger.Info("  Total Time:       %v", elapsed.Truncate(time.Millisecond))
	logger.Info("")
	if elapsed.Seconds() > 0 {
		logger.Info("THROUGHPUT:")
		logger.Info("  Lines/sec:        %.0f", float64(as.TotalLines)/elapsed.Seconds())
		logger.Info("  Records/sec:      %.0f", float64(as.TotalRecords)/elapsed.Seconds())
		logger.Info("")
	}
}

// LogCFSummary logs the per-CF record counts.
func (as *AggregatedStats) LogCFSummary(logger interfaces.Logger) {
	as.mu.Lock()
	defer as.mu.Unlock()

	logger.Info("RECORDS BY COLUMN FAMILY:")
	for _, cfName := range cf.Names {
		count := as.RecordsByCF[cfName]
		var pct float64
		if as.TotalRecords > 0 {
			pct = float64(count) / float64(as.TotalRecords) * 100
		}
		logger.Info("  CF %-8s %12d (%.2f%%)", cfName+":", count, pct)
	}
	logger.Info("")
}

// =============================================================================
// ProgressTracker - Track and Report Progress
// =============================================================================

// ProgressTracker tracks progress through the trace file with ETA
// calculations. Total is in bytes; zero total (compressed input, unknown
// uncompressed size) suppresses percentage and ETA.
type ProgressTracker struct {
	mu sync.Mutex

	// Total is the total number of bytes to process (0 if unknown)
	Total int64

	// Completed is the number of bytes processed
	Completed int64

	// StartTime is when tracking started
	StartTime time.Time
}

// NewProgressTracker creates a new ProgressTracker.
func NewProgressTracker(totalBytes int64) *ProgressTracker {
	return &ProgressTracker{
		Total:     totalBytes,
		StartTime: time.Now(),
	}
}

// Advance adds to the completed byte count.
func (pt *ProgressTracker) Advance(n int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.Completed += n
}

// Percentage returns the completion percentage (0-100), clamped at 100.
func (pt *ProgressTracker) Percentage() float64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.Total <= 0 {
		return 0
	}
	pct := float64(pt.Completed) / float64(pt.Total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// ETA returns the estimated time to completion, or 0 when unknown.
func (pt *ProgressTracker) ETA() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if pt.Total <= 0 || pt.Completed <= 0 {
		return 0
	}
	remaining := pt.Total - pt.Completed
	if remaining <= 0 {
		return 0
	}
	rate := float64(pt.Completed) / time.Since(pt.StartTime).Seconds()
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / rate * float64(time.Second))
}

// LogProgress logs the current progress with ETA.
func (pt *ProgressTracker) LogProgress(logger interfaces.Logger, lines int64) {
	pt.mu.Lock()
	completed, total := pt.Completed, pt.Total
	elapsed := time.Since(pt.StartTime)
	pt.mu.Unlock()

	if total > 0 {
		pct := float64(completed) / float64(total) * 100
		if pct > 100 {
			pct = 100
		}
		logger.Info("Progress: %d lines (%.1f%%) | elapsed=%v | ETA=%v",
			lines, pct, elapsed.Truncate(time.Second), pt.ETA().Truncate(time.Second))
		return
	}
	logger.Info("Progress: %d lines | elapsed=%v", lines, elapsed.Truncate(time.Second))
}
