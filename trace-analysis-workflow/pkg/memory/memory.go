// =============================================================================
// pkg/memory/memory.go - RAM Monitoring and Memory Utilities
// =============================================================================
//
// This package provides utilities for monitoring process memory usage:
//   - RSS (Resident Set Size) monitoring at batch boundaries
//   - Memory threshold warnings
//   - Point-in-time memory snapshots for phase boundaries
//
// The design intent of the whole pipeline is that memory scales with the
// largest single cursor's footprint, not with the trace file: the monitor
// makes violations of that visible during long runs.
//
// =============================================================================

package memory

import (
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/amitxsaroha/trcprof/helpers"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// CheckIntervalBatches is how often the ingest driver samples memory
// (every N batches).
const CheckIntervalBatches = 10

// =============================================================================
// Monitor - Track Process Memory Usage
// =============================================================================

// Monitor tracks and reports process memory usage.
//
// USAGE:
//
//	monitor := memory.NewMonitor(logger, 8) // 8 GB threshold
//
//	// At batch boundaries:
//	monitor.Check()
//
//	// At the end of the run:
//	monitor.LogSummary()
type Monitor struct {
	mu sync.Mutex

	// logger for warnings and the final summary
	logger interfaces.Logger

	// warningThresholdGB is the RSS threshold for warnings
	warningThresholdGB float64

	// warningLogged tracks if we've logged a warning (to avoid spam)
	warningLogged bool

	// peakRSSBytes is the maximum RSS observed
	peakRSSBytes int64

	// checkCount is the number of checks performed
	checkCount int
}

// Compile-time interface check
var _ interfaces.MemoryMonitor = (*Monitor)(nil)

// NewMonitor creates a new memory Monitor.
//
// PARAMETERS:
//   - logger: Logger for warning messages
//   - warningThresholdGB: RSS threshold in GB for warnings
func NewMonitor(logger interfaces.Logger, warningThresholdGB float64) *Monitor {
	return &Monitor{
		logger:             logger,
		warningThresholdGB: warningThresholdGB,
	}
}

// Check samples current memory usage and logs a warning if the configured
// threshold is exceeded. The warning is logged once per breach.
func (m *Monitor) Check() {
	m.mu.Lock()
	defer m.mu.Unlock()

	rss := GetRSSBytes()
	m.checkCount++

	if rss > m.peakRSSBytes {
		m.peakRSSBytes = rss
	}

	rssGB := float64(rss) / float64(types.GB)
	if rssGB > m.warningThresholdGB && !m.warningLogged {
		m.logger.Error("MEMORY WARNING: RSS %.2f GB exceeds threshold %.0f GB",
			rssGB, m.warningThresholdGB)
		m.warningLogged = true
	}

	// Reset the warning latch once usage drops well below the threshold.
	if rssGB < m.warningThresholdGB*0.9 {
		m.warningLogged = false
	}
}

// PeakRSSGB returns the peak RSS observed in gigabytes.
func (m *Monitor) PeakRSSGB() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.peakRSSBytes) / float64(types.GB)
}

// LogSummary logs a summary of memory usage.
func (m *Monitor) LogSummary() {
	m.mu.Lock()
	defer m.mu.Unlock()

	currentRSS := GetRSSBytes()
	m.logger.Info("MEMORY SUMMARY:")
	m.logger.Info("  Current RSS:       %.2f GB", float64(currentRSS)/float64(types.GB))
	m.logger.Info("  Peak RSS:          %.2f GB", float64(m.peakRSSBytes)/float64(types.GB))
	m.logger.Info("  Warning Threshold: %.0f GB", m.warningThresholdGB)
	m.logger.Info("  Checks Performed:  %d", m.checkCount)
	m.logger.Info("")
}

// =============================================================================
// Snapshot - Point-in-Time Memory Snapshot
// =============================================================================

// Snapshot captures memory statistics at a point in time.
//
// Useful for logging detailed breakdowns at phase boundaries (before and
// after ingest, before and after reporting).
type Snapshot struct {
	// Timestamp when snapshot was taken
	Timestamp time.Time

	// RSS is Resident Set Size in bytes (actual RAM used)
	RSS int64

	// HeapAlloc is Go heap allocation in bytes
	HeapAlloc uint64

	// HeapSys is Go heap system memory in bytes
	HeapSys uint64

	// NumGC is the number of completed GC cycles
	NumGC uint32

	// GCPauseTotal is the total GC pause time
	GCPauseTotal time.Duration
}

// TakeSnapshot captures current memory statistics.
func TakeSnapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Snapshot{
		Timestamp:    time.Now(),
		RSS:          GetRSSBytes(),
		HeapAlloc:    memStats.HeapAlloc,
		HeapSys:      memStats.HeapSys,
		NumGC:        memStats.NumGC,
		GCPauseTotal: time.Duration(memStats.PauseTotalNs),
	}
}

// Log logs the snapshot to the logger.
func (s *Snapshot) Log(logger interfaces.Logger, label string) {
	logger.Info("%s Memory Snapshot:", label)
	logger.Info("  RSS:          %s (%.2f GB)", helpers.FormatBytes(s.RSS), float64(s.RSS)/float64(types.GB))
	logger.Info("  Heap Alloc:   %s", helpers.FormatBytes(int64(s.HeapAlloc)))
	logger.Info("  Heap Sys:     %s", helpers.FormatBytes(int64(s.HeapSys)))
	logger.Info("  GC Cycles:    %d", s.NumGC)
	logger.Info("  GC Pause:     %v total", s.GCPauseTotal)
}

// =============================================================================
// Platform-Specific RSS Reading
// =============================================================================

// GetRSSBytes returns the current Resident Set Size in bytes.
//
// PLATFORM BEHAVIOR:
//   - Darwin/Linux: Uses syscall.Getrusage for accurate RSS
//   - Other: Falls back to runtime.MemStats (less accurate)
//
// NOTE:
//
//	On macOS, Getrusage returns RSS in bytes.
//	On Linux, Getrusage returns RSS in kilobytes (we multiply by 1024).
func GetRSSBytes() int64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		return int64(memStats.Sys)
	}

	rss := rusage.Maxrss
	if runtime.GOOS == "linux" {
		rss *= 1024
	}
	return rss
}
