// =============================================================================
// meta_store.go - Workflow State Store
// =============================================================================
//
// This file implements the MetaStore interface on a single-file MDBX
// environment. The meta store persists:
//   - The trace identity the workspace was built from (path, size, mtime)
//   - The current workflow phase
//   - The end-of-ingest run summary
//
// MDBX fits this job: a few dozen tiny keys, fully transactional, one
// file, and crash-safe without any WAL tuning. The bulk record data goes
// to RocksDB; the state that decides resumability goes here.
//
// STORAGE FORMAT:
//
//	Keys are string constants. Values:
//	  - strings: UTF-8 bytes
//	  - integers: decimal strings (all values are tiny; readability in
//	    an mdbx dump beats binary compactness here)
//	  - run summary: "field=value" lines
//
// CRASH RECOVERY SCENARIOS:
//
//	1. Crash during ingestion:
//	   - Phase is still INGESTING and the record store WAL is off, so
//	     the workspace is discarded and ingest restarts from line 1.
//
//	2. Crash during reporting:
//	   - The record store is complete and flushed. Reporting re-runs
//	     from the top of the scan; the report is regenerated in full.
//
//	3. COMPLETE + --resume:
//	   - The report is regenerated from the existing record store
//	     without re-parsing the trace.
//
// =============================================================================

package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// =============================================================================
// Key Constants
// =============================================================================

const (
	// metaKeyTracePath stores the absolute trace file path
	metaKeyTracePath = "config:trace_path"

	// metaKeyTraceSize stores the trace file size in bytes
	metaKeyTraceSize = "config:trace_size"

	// metaKeyTraceModTime stores the trace file mtime (unix seconds)
	metaKeyTraceModTime = "config:trace_modtime"

	// metaKeyPhase stores the current workflow phase
	metaKeyPhase = "state:phase"

	// metaKeySummary stores the end-of-ingest run summary
	metaKeySummary = "state:summary"

	// metaKeyInitialized marks the store as initialized
	metaKeyInitialized = "meta:initialized"
)

// Geometry bounds for the environment. The store holds a handful of tiny
// keys; 64 MB upper is already generous.
const (
	metaGeometryLower = 1 * types.MB
	metaGeometryUpper = 64 * types.MB
	metaGeometryStep  = 1 * types.MB
)

// =============================================================================
// MDBXMetaStore Implementation
// =============================================================================

// MDBXMetaStore implements the MetaStore interface using MDBX.
type MDBXMetaStore struct {
	mu sync.Mutex

	env *mdbx.Env
	dbi mdbx.DBI

	// path is the environment file path (NoSubdir mode)
	path string
}

// OpenMDBXMetaStore opens or creates the meta store at the given file
// path.
func OpenMDBXMetaStore(path string) (*MDBXMetaStore, error) {
	env, err := mdbx.NewEnv(mdbx.Default)
	if err != nil {
		return nil, errors.Wrap(err, "creating mdbx environment")
	}

	if err := env.SetGeometry(metaGeometryLower, -1, metaGeometryUpper, metaGeometryStep, -1, 4096); err != nil {
		env.Close()
		return nil, errors.Wrap(err, "setting mdbx geometry")
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(1)); err != nil {
		env.Close()
		return nil, errors.Wrap(err, "setting mdbx max DBs")
	}

	if err := env.Open(path, mdbx.NoSubdir|mdbx.LifoReclaim|mdbx.WriteMap, 0644); err != nil {
		env.Close()
		return nil, errors.Wrapf(err, "opening mdbx environment at %s", path)
	}

	var dbi mdbx.DBI
	err = env.Update(func(txn *mdbx.Txn) error {
		var err error
		dbi, err = txn.OpenDBI("meta", mdbx.Create, nil, nil)
		return err
	})
	if err != nil {
		env.Close()
		return nil, errors.Wrap(err, "opening mdbx DBI")
	}

	return &MDBXMetaStore{env: env, dbi: dbi, path: path}, nil
}

// =============================================================================
// Low-Level Get/Put
// =============================================================================

func (m *MDBXMetaStore) put(key, value string) error {
	err := m.env.Update(func(txn *mdbx.Txn) error {
		return txn.Put(m.dbi, []byte(key), []byte(value), mdbx.Upsert)
	})
	return errors.Wrapf(err, "meta store put %s", key)
}

// putAll writes several keys in one transaction.
func (m *MDBXMetaStore) putAll(kv map[string]string) error {
	err := m.env.Update(func(txn *mdbx.Txn) error {
		for key, value := range kv {
			if err := txn.Put(m.dbi, []byte(key), []byte(value), mdbx.Upsert); err != nil {
				return errors.Wrapf(err, "put %s", key)
			}
		}
		return nil
	})
	return errors.Wrap(err, "meta store batch put")
}

func (m *MDBXMetaStore) get(key string) (string, bool, error) {
	var value string
	found := false
	err := m.env.View(func(txn *mdbx.Txn) error {
		val, err := txn.Get(m.dbi, []byte(key))
		if err != nil {
			if mdbx.IsNotFound(err) {
				return nil
			}
			return err
		}
		value = string(val)
		found = true
		return nil
	})
	if err != nil {
		return "", false, errors.Wrapf(err, "meta store get %s", key)
	}
	return value, found, nil
}

// =============================================================================
// MetaStore Interface
// =============================================================================

// SetTraceIdentity records which trace file this workspace belongs to.
func (m *MDBXMetaStore) SetTraceIdentity(id types.TraceIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putAll(map[string]string{
		metaKeyTracePath:    id.Path,
		metaKeyTraceSize:    strconv.FormatInt(id.Size, 10),
		metaKeyTraceModTime: strconv.FormatInt(id.ModTime, 10),
		metaKeyInitialized:  "1",
	})
}

// GetTraceIdentity returns the stored identity.
func (m *MDBXMetaStore) GetTraceIdentity() (types.TraceIdentity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var id types.TraceIdentity
	path, found, err := m.get(metaKeyTracePath)
	if err != nil || !found {
		return id, false, err
	}
	id.Path = path

	sizeStr, _, err := m.get(metaKeyTraceSize)
	if err != nil {
		return id, false, err
	}
	modStr, _, err := m.get(metaKeyTraceModTime)
	if err != nil {
		return id, false, err
	}
	id.Size, _ = strconv.ParseInt(sizeStr, 10, 64)
	id.ModTime, _ = strconv.ParseInt(modStr, 10, 64)
	return id, true, nil
}

// SetPhase stores the current workflow phase.
func (m *MDBXMetaStore) SetPhase(phase types.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(metaKeyPhase, string(phase))
}

// GetPhase returns the stored phase (PhaseIngesting on a fresh workspace).
func (m *MDBXMetaStore) GetPhase() (types.Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, found, err := m.get(metaKeyPhase)
	if err != nil {
		return types.PhaseIngesting, err
	}
	if !found {
		return types.PhaseIngesting, nil
	}
	return types.Phase(value), nil
}

// SetSummary stores the end-of-ingest run summary.
func (m *MDBXMetaStore) SetSummary(summary types.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(metaKeySummary, encodeSummary(summary))
}

// GetSummary returns the stored summary.
func (m *MDBXMetaStore) GetSummary() (types.RunSummary, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, found, err := m.get(metaKeySummary)
	if err != nil || !found {
		return types.RunSummary{}, false, err
	}
	summary, err := decodeSummary(value)
	if err != nil {
		return types.RunSummary{}, false, err
	}
	return summary, true, nil
}

// CheckResumability decides whether an existing workspace can be reused
// for the given trace identity.
//
// A workspace is resumable only when the stored identity matches on path,
// size, and mtime. An INGESTING workspace is never resumable mid-file
// (bulk load runs without a WAL), so ingest restarts from the beginning.
func (m *MDBXMetaStore) CheckResumability(id types.TraceIdentity) (bool, types.Phase, error) {
	stored, found, err := m.GetTraceIdentity()
	if err != nil {
		return false, types.PhaseIngesting, err
	}
	if !found {
		return false, types.PhaseIngesting, nil
	}
	if !stored.Equal(id) {
		return false, types.PhaseIngesting, nil
	}

	phase, err := m.GetPhase()
	if err != nil {
		return false, types.PhaseIngesting, err
	}
	if phase == types.PhaseIngesting {
		// Identity matches but ingest never finished.
		return false, types.PhaseIngesting, nil
	}
	return true, phase, nil
}

// LogState logs the current metadata for diagnostics.
func (m *MDBXMetaStore) LogState(logger interfaces.Logger) {
	id, found, err := m.GetTraceIdentity()
	if err != nil {
		logger.Error("Meta store read failed: %v", err)
		return
	}
	if !found {
		logger.Info("Meta store exists but is not initialized.")
		logger.Info("")
		return
	}
	phase, _ := m.GetPhase()

	logger.Info("Stored State:")
	logger.Info("  Trace Path:    %s", id.Path)
	logger.Info("  Trace Size:    %d bytes", id.Size)
	logger.Info("  Trace ModTime: %d", id.ModTime)
	logger.Info("  Phase:         %s", phase)
	if summary, ok, _ := m.GetSummary(); ok {
		logger.Info("  Lines:         %d", summary.LineCount)
		logger.Info("  Records:       %d", summary.RecordCount)
		logger.Info("  Cursors:       %d", summary.CursorCount)
	}
	logger.Info("")
}

// Close releases meta store resources.
func (m *MDBXMetaStore) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.env != nil {
		m.env.Close()
		m.env = nil
	}
}

// Path returns the environment file path.
func (m *MDBXMetaStore) Path() string {
	return m.path
}

// =============================================================================
// Run Summary Codec
// =============================================================================
//
// The summary is a flat struct of integers, strings, and booleans; it is
// stored as "field=value" lines. Unknown fields are ignored on decode so
// old workspaces survive tool upgrades.

func encodeSummary(s types.RunSummary) string {
	var b strings.Builder
	writeInt := func(name string, v int64) {
		fmt.Fprintf(&b, "%s=%d\n", name, v)
	}
	writeInt("first_tim", s.FirstTim)
	writeInt("last_tim", s.LastTim)
	writeInt("baseline_offset", s.BaselineOffset)
	writeInt("divisor", s.Divisor)
	writeInt("oracle_release", s.OracleRelease)
	writeInt("line_count", s.LineCount)
	writeInt("record_count", s.RecordCount)
	writeInt("cursor_count", s.CursorCount)
	writeInt("duplicate_headers", s.DuplicateHeaders)
	writeInt("unprocessed_lines", s.UnprocessedLines)
	writeInt("zero_waits", s.ZeroWaits)
	writeInt("pending_folded_waits", s.PendingFoldedWaits)
	writeInt("pending_folded_ticks", s.PendingFoldedTicks)
	if s.Truncated {
		writeInt("truncated", 1)
	}
	if s.HasRPC {
		writeInt("has_rpc", 1)
	}
	// Strings go last; values may not contain newlines in trace headers,
	// but escape them anyway.
	fmt.Fprintf(&b, "service_name=%s\n", escapeValue(s.ServiceName))
	fmt.Fprintf(&b, "session_date=%s\n", escapeValue(s.SessionDate))
	return b.String()
}

func decodeSummary(data string) (types.RunSummary, error) {
	var s types.RunSummary
	for _, line := range strings.Split(data, "\n") {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return s, errors.Errorf("malformed summary line %q", line)
		}
		switch name {
		case "first_tim":
			s.FirstTim, _ = strconv.ParseInt(value, 10, 64)
		case "last_tim":
			s.LastTim, _ = strconv.ParseInt(value, 10, 64)
		case "baseline_offset":
			s.BaselineOffset, _ = strconv.ParseInt(value, 10, 64)
		case "divisor":
			s.Divisor, _ = strconv.ParseInt(value, 10, 64)
		case "oracle_release":
			s.OracleRelease, _ = strconv.ParseInt(value, 10, 64)
		case "line_count":
			s.LineCount, _ = strconv.ParseInt(value, 10, 64)
		case "record_count":
			s.RecordCount, _ = strconv.ParseInt(value, 10, 64)
		case "cursor_count":
			s.CursorCount, _ = strconv.ParseInt(value, 10, 64)
		case "duplicate_headers":
			s.DuplicateHeaders, _ = strconv.ParseInt(value, 10, 64)
		case "unprocessed_lines":
			s.UnprocessedLines, _ = strconv.ParseInt(value, 10, 64)
		case "zero_waits":
			s.ZeroWaits, _ = strconv.ParseInt(value, 10, 64)
		case "pending_folded_waits":
			s.PendingFoldedWaits, _ = strconv.ParseInt(value, 10, 64)
		case "pending_folded_ticks":
			s.PendingFoldedTicks, _ = strconv.ParseInt(value, 10, 64)
		case "truncated":
			s.Truncated = value == "1"
		case "has_rpc":
			s.HasRPC = value == "1"
		case "service_name":
			s.ServiceName = unescapeValue(value)
		case "session_date":
			s.SessionDate = unescapeValue(value)
		}
	}
	return s, nil
}

func escapeValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func unescapeValue(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	return strings.ReplaceAll(s, `\\`, `\`)
}
