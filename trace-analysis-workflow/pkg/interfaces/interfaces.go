// =============================================================================
// pkg/interfaces/interfaces.go - Core Interfaces
// =============================================================================
//
// This package defines the interfaces used across the trace-analysis-workflow.
// Concrete implementations live in pkg/store (RocksDB record store),
// the workflow package (MDBX meta store), pkg/logging, and pkg/memory.
//
// Interfaces are defined here, in a dependency-free package, so that
// implementations and consumers do not import each other.
//
// =============================================================================

package interfaces

import (
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// =============================================================================
// Iterator Interface
// =============================================================================

// Iterator abstracts iteration over an ordered key-value range.
//
// USAGE:
//
//	iter := store.NewScanIteratorCF("records")
//	defer iter.Close()
//	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
//	    key := iter.Key()
//	    value := iter.Value()
//	    // key/value are only valid until the next call to Next()
//	}
//	if err := iter.Error(); err != nil { ... }
type Iterator interface {
	// SeekToFirst positions the iterator at the first key.
	SeekToFirst()

	// Seek positions the iterator at the first key >= target.
	Seek(target []byte)

	// Valid returns true if the iterator points at a key-value pair.
	Valid() bool

	// Next advances the iterator.
	Next()

	// Key returns the current key. Valid until the next Next() call.
	Key() []byte

	// Value returns the current value. Valid until the next Next() call.
	Value() []byte

	// Error returns any accumulated error.
	Error() error

	// Close releases iterator resources.
	Close()
}

// =============================================================================
// RecordStore Interface
// =============================================================================

// RecordStore is the sorted store the two phases communicate through.
// Ingest writes normalized records batched per column family; reporting
// consumes them with ordered scans. Keys are big-endian composites, so
// store order equals report order by construction.
type RecordStore interface {
	// WriteBatch writes entries to multiple column families atomically.
	WriteBatch(entriesByCF map[string][]types.Entry) error

	// NewIteratorCF creates an iterator for point lookups and short
	// prefix scans (fills the block cache).
	NewIteratorCF(cfName string) Iterator

	// NewScanIteratorCF creates an iterator tuned for one full ordered
	// pass (readahead on, cache fill off).
	NewScanIteratorCF(cfName string) Iterator

	// FlushAll flushes all memtables to SST files and waits.
	FlushAll() error

	// CompactAll runs a full manual compaction on every column family.
	CompactAll() error

	// GetAllCFStats returns statistics for all column families.
	GetAllCFStats() []types.CFStats

	// Close releases all store resources.
	Close()

	// Path returns the filesystem path of the store.
	Path() string
}

// =============================================================================
// MetaStore Interface
// =============================================================================

// MetaStore persists run metadata: the workflow phase, the identity of the
// trace file the workspace was built from, and the end-of-ingest summary.
// It is the source of truth for crash recovery and -resume.
type MetaStore interface {
	// SetTraceIdentity records which trace file this workspace belongs to.
	SetTraceIdentity(id types.TraceIdentity) error

	// GetTraceIdentity returns the stored identity. found is false on a
	// fresh workspace.
	GetTraceIdentity() (id types.TraceIdentity, found bool, err error)

	// SetPhase stores the current workflow phase.
	SetPhase(phase types.Phase) error

	// GetPhase returns the stored phase (PhaseIngesting on a fresh
	// workspace).
	GetPhase() (types.Phase, error)

	// SetSummary stores the end-of-ingest run summary.
	SetSummary(summary types.RunSummary) error

	// GetSummary returns the stored summary. found is false if ingest
	// never completed.
	GetSummary() (summary types.RunSummary, found bool, err error)

	// CheckResumability decides whether an existing workspace can be
	// reused for the given trace identity, and from which phase.
	CheckResumability(id types.TraceIdentity) (canResume bool, phase types.Phase, err error)

	// LogState logs the current metadata for diagnostics.
	LogState(logger Logger)

	// Close releases meta store resources.
	Close()
}

// =============================================================================
// Logger Interface
// =============================================================================

// Logger is the minimal logging interface used by all components.
type Logger interface {
	// Info logs an informational message to the run log.
	Info(format string, args ...interface{})

	// Error logs an error message to both the run log and the error log.
	Error(format string, args ...interface{})

	// Verbose logs a message only when verbose logging is enabled.
	Verbose(format string, args ...interface{})

	// Separator writes a visual separator line to the run log.
	Separator()

	// Sync flushes buffered log data to disk.
	Sync()

	// Close closes the underlying log files.
	Close()
}

// =============================================================================
// MemoryMonitor Interface
// =============================================================================

// MemoryMonitor watches process RSS during ingest.
type MemoryMonitor interface {
	// Check samples current memory usage and logs a warning if the
	// configured threshold is exceeded.
	Check()

	// PeakRSSGB returns the peak resident set size observed, in GB.
	PeakRSSGB() float64

	// LogSummary logs peak memory statistics.
	LogSummary()
}
