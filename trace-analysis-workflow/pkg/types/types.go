// =============================================================================
// pkg/types/types.go - Core Data Types
// =============================================================================
//
// This package contains pure data types shared across the trace-analysis-workflow.
// These types have no external dependencies beyond the standard library.
//
// INTERNAL TIME UNIT:
//
//	All trace times are normalized to "ticks". One tick is 1/10000 of a
//	centisecond, which is exactly one microsecond. Oracle releases 9.0 and
//	later emit microsecond fields (divisor 10000), so their values pass
//	through unchanged; releases 8.1 and earlier emit centiseconds
//	(divisor 1), which are multiplied up. Integer arithmetic end to end
//	avoids the precision loss that float parsing introduces on very large
//	tim= fields.
//
// =============================================================================

package types

import (
	"encoding/binary"
	"fmt"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MB is megabytes in bytes
	MB = 1024 * 1024

	// GB is gigabytes in bytes
	GB = 1024 * 1024 * 1024

	// LinesPerBatch is the number of trace lines processed before a
	// record-store batch commit.
	LinesPerBatch = 50000

	// TicksPerCenti is the number of internal ticks in one centisecond.
	TicksPerCenti = 10000

	// TicksPerSecond is the number of internal ticks in one second.
	TicksPerSecond = 1000000

	// GapNoiseTicks is the threshold below which a timing gap is treated
	// as rounding noise and clamped to zero (2 centiseconds).
	GapNoiseTicks = 2 * TicksPerCenti

	// DivisorCentiseconds marks a trace whose time fields are centiseconds
	// (Oracle 8.1 and earlier).
	DivisorCentiseconds = 1

	// DivisorMicroseconds marks a trace whose time fields are microseconds
	// (Oracle 9.0 and later).
	DivisorMicroseconds = 10000

	// GapErrorPercent is the share of wall-clock time above which the
	// accumulated Timing Gap Error gets an explanatory note in the report.
	GapErrorPercent = 20

	// UnaccountedPercent is the share of elapsed time above which
	// unaccounted-for time gets an explanatory note in the report.
	UnaccountedPercent = 10

	// TopWaitStatements is how many statements are listed individually per
	// wait event before the remainder is folded into an "others" line.
	TopWaitStatements = 5

	// CursorZeroIndex is the reserved index for trace cursor #0
	// (background and cursorless activity).
	CursorZeroIndex = 0

	// CursorUnaccountedIndex is the reserved index for activity that
	// references a cursor number never introduced by a PARSING IN CURSOR
	// line (for example a trace truncated at the start).
	CursorUnaccountedIndex = 9999

	// DefaultRAMWarningGB is the RSS threshold that triggers a memory
	// warning during ingest.
	DefaultRAMWarningGB = 8
)

// =============================================================================
// Phase Enum
// =============================================================================

// Phase represents the current workflow phase.
// Phases progress linearly: INGESTING -> REPORTING -> COMPLETE
//
// CRASH RECOVERY BEHAVIOR BY PHASE:
//
//	INGESTING:
//	  - Ingest is restarted from the beginning of the trace file.
//	  - The record store write-ahead log is disabled during bulk load, so a
//	    partially ingested workspace is discarded rather than repaired.
//
//	REPORTING:
//	  - The record store is complete and flushed; reporting re-runs from
//	    the top of the sorted scan. Re-reporting is idempotent.
//
//	COMPLETE:
//	  - With -resume, the workflow regenerates the report from the existing
//	    workspace without re-parsing the trace.
type Phase string

const (
	PhaseIngesting Phase = "INGESTING"
	PhaseReporting Phase = "REPORTING"
	PhaseComplete  Phase = "COMPLETE"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// =============================================================================
// Entry - Key-Value Pair for Batch Writes
// =============================================================================

// Entry is one key-value pair destined for a record-store column family.
type Entry struct {
	Key   []byte
	Value []byte
}

// =============================================================================
// Record Store Keys
// =============================================================================
//
// Keys are big-endian composites so that the LSM iteration order of the
// record store is exactly the ordering contract the aggregation phase
// relies on: cursor index, then record kind, then original trace line.
// Records written late (for example buffered waits attached after their
// cursor finally appears) still sort into place.

// RecordKey builds the key for the main records column family.
func RecordKey(cursorIdx uint32, kind byte, line uint32) []byte {
	key := make([]byte, 9)
	binary.BigEndian.PutUint32(key[0:4], cursorIdx)
	key[4] = kind
	binary.BigEndian.PutUint32(key[5:9], line)
	return key
}

// SplitRecordKey decodes a records-CF key back into its components.
func SplitRecordKey(key []byte) (cursorIdx uint32, kind byte, line uint32, err error) {
	if len(key) != 9 {
		return 0, 0, 0, fmt.Errorf("malformed record key: %d bytes", len(key))
	}
	return binary.BigEndian.Uint32(key[0:4]), key[4], binary.BigEndian.Uint32(key[5:9]), nil
}

// CursorKey builds the key for the cursor-descriptor column family.
func CursorKey(cursorIdx uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, cursorIdx)
	return key
}

// BindKey builds the key for the bind-values column family.
// seq preserves the order bind values appeared in the trace.
func BindKey(cursorIdx uint32, seq uint32) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint32(key[0:4], cursorIdx)
	binary.BigEndian.PutUint32(key[4:8], seq)
	return key
}

// BindKeyPrefix builds the per-cursor prefix for bind-value range scans.
func BindKeyPrefix(cursorIdx uint32) []byte {
	return CursorKey(cursorIdx)
}

// RPCKey builds the key for the RPC column family (trace line order).
func RPCKey(line uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, line)
	return key
}

// =============================================================================
// Trace Identity
// =============================================================================

// TraceIdentity pins a workspace to the trace file it was built from.
// A resumed run must match on all three fields or the workspace is stale.
type TraceIdentity struct {
	Path    string
	Size    int64
	ModTime int64 // Unix seconds
}

// Equal reports whether two identities refer to the same trace content.
func (t TraceIdentity) Equal(other TraceIdentity) bool {
	return t.Path == other.Path && t.Size == other.Size && t.ModTime == other.ModTime
}

// =============================================================================
// Run Summary
// =============================================================================

// RunSummary holds the end-of-ingest metrics the report phase needs without
// re-deriving them from the record store.
type RunSummary struct {
	// FirstTim and LastTim are the first and highest timestamps observed,
	// in ticks.
	FirstTim int64
	LastTim  int64

	// BaselineOffset is the accumulated discontinuity across duplicate
	// trace headers (appended files), in ticks. Wall clock =
	// LastTim - FirstTim - BaselineOffset.
	BaselineOffset int64

	// Divisor is DivisorCentiseconds or DivisorMicroseconds.
	Divisor int64

	// OracleRelease is the release banner major number (0 if not found).
	OracleRelease int64

	// LineCount is the number of raw trace lines consumed.
	LineCount int64

	// RecordCount is the number of normalized records written.
	RecordCount int64

	// CursorCount is the number of cursors allocated (sentinels included).
	CursorCount int64

	// DuplicateHeaders counts trace-file headers found after the first.
	DuplicateHeaders int64

	// Truncated is set when a "DUMP FILE SIZE IS LIMITED" marker was seen.
	Truncated bool

	// UnprocessedLines counts lines matching no known pattern after the
	// header region.
	UnprocessedLines int64

	// ZeroWaits counts WAIT lines with ela=0 (observed but not retained).
	ZeroWaits int64

	// PendingFoldedWaits and PendingFoldedTicks describe waits that never
	// found an owning cursor and were folded into the unaccounted bucket.
	PendingFoldedWaits int64
	PendingFoldedTicks int64

	// ServiceName and SessionDate are header markers carried into the
	// report banner ("" when absent).
	ServiceName string
	SessionDate string

	// HasRPC is set when legacy RPC CALL/BIND/EXEC lines were present.
	HasRPC bool
}

// WallClock returns the wall-clock span of the trace in ticks.
func (s RunSummary) WallClock() int64 {
	wall := s.LastTim - s.FirstTim - s.BaselineOffset
	if wall < 0 {
		return 0
	}
	return wall
}

// =============================================================================
// CFStats - Per-Column Family Statistics
// =============================================================================

// CFLevelStats holds per-level statistics for a column family.
type CFLevelStats struct {
	Level     int
	FileCount int64
	Size      int64
}

// CFStats holds statistics for a single record-store column family.
type CFStats struct {
	Name          string
	EstimatedKeys int64
	TotalSize     int64
	TotalFiles    int64
	LevelStats    []CFLevelStats
}

// =============================================================================
// RocksDBSettings - Tunable Record Store Parameters
// =============================================================================

// RocksDBSettings contains tunable record-store parameters. The defaults fit
// the workload: bulk sequential writes during ingest, one big ordered scan
// during reporting.
type RocksDBSettings struct {
	WriteBufferSizeMB           int `toml:"write_buffer_size_mb"`
	MaxWriteBufferNumber        int `toml:"max_write_buffer_number"`
	MinWriteBufferNumberToMerge int `toml:"min_write_buffer_number_to_merge"`
	TargetFileSizeMB            int `toml:"target_file_size_mb"`
	MaxBackgroundJobs           int `toml:"max_background_jobs"`
	BlockCacheSizeMB            int `toml:"block_cache_size_mb"`
	MaxOpenFiles                int `toml:"max_open_files"`
}

// DefaultRocksDBSettings returns the default record-store settings.
func DefaultRocksDBSettings() RocksDBSettings {
	return RocksDBSettings{
		WriteBufferSizeMB:           64,
		MaxWriteBufferNumber:        2,
		MinWriteBufferNumberToMerge: 1,
		TargetFileSizeMB:            128,
		MaxBackgroundJobs:           4,
		BlockCacheSizeMB:            256,
		MaxOpenFiles:                -1,
	}
}
