// =============================================================================
// ingest.go - Phase 1: Trace Ingestion
// =============================================================================
//
// This file implements the ingestion phase: read the trace file line by
// line, normalize every recognized line into a record, and bulk-load the
// records into the record store.
//
// PIPELINE:
//
//	LineReader → Parser → batchSink → RecordStore.WriteBatch
//
//	The LineReader handles compression (gzip/zstd) and memory-maps plain
//	files. The Parser is the classification state machine. The batchSink
//	buffers normalized entries per column family and commits them every
//	LinesPerBatch trace lines, so RocksDB sees large sorted-ish batches
//	instead of single puts.
//
// PRE-SCAN:
//
//	Before any writes, the file is scanned for a trace marker. Files that
//	are not extended SQL trace dumps are rejected outright; this catches
//	alert logs, listener logs, and plain garbage before a workspace is
//	half-built. The pre-scan also detects over-long lines and switches
//	the main pass to raw reading mode when needed.
//
// =============================================================================

package main

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/amitxsaroha/trcprof/helpers"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/cf"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/memory"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/record"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/stats"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/trace"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// =============================================================================
// Batch Sink
// =============================================================================

// batchSink implements trace.Sink. It buffers entries per column family
// and hands them to the record store in one WriteBatch per trace batch.
type batchSink struct {
	entries map[string][]types.Entry
	records int
}

func newBatchSink() *batchSink {
	return &batchSink{entries: make(map[string][]types.Entry)}
}

func (s *batchSink) Record(cursorIdx uint32, kind record.Kind, line uint32, payload []byte) {
	s.entries[cf.Records] = append(s.entries[cf.Records], types.Entry{
		Key:   types.RecordKey(cursorIdx, byte(kind), line),
		Value: payload,
	})
	s.records++
}

func (s *batchSink) Bind(cursorIdx uint32, seq uint32, text string) {
	s.entries[cf.Binds] = append(s.entries[cf.Binds], types.Entry{
		Key:   types.BindKey(cursorIdx, seq),
		Value: []byte(text),
	})
	s.records++
}

func (s *batchSink) RPC(line uint32, payload []byte) {
	s.entries[cf.RPC] = append(s.entries[cf.RPC], types.Entry{
		Key:   types.RPCKey(line),
		Value: payload,
	})
	s.records++
}

// flush commits the buffered entries and resets the sink.
func (s *batchSink) flush(store interfaces.RecordStore, batch *stats.BatchStats) error {
	if s.records == 0 {
		return nil
	}
	writeStart := time.Now()
	if err := store.WriteBatch(s.entries); err != nil {
		return errors.Wrap(err, "committing record batch")
	}
	if batch != nil {
		batch.WriteTime += time.Since(writeStart)
		for cfName, entries := range s.entries {
			batch.RecordsByCF[cfName] += len(entries)
		}
		batch.RecordCount += s.records
	}
	s.entries = make(map[string][]types.Entry)
	s.records = 0
	return nil
}

// =============================================================================
// Ingestor
// =============================================================================

// Ingestor drives the ingestion phase and tracks its progress for
// SIGHUP snapshots.
type Ingestor struct {
	config *Config
	store  interfaces.RecordStore
	meta   interfaces.MetaStore
	log    interfaces.Logger
	memory interfaces.MemoryMonitor

	progress *stats.ProgressTracker
	agg      *stats.AggregatedStats
}

// NewIngestor creates the ingestion phase driver.
func NewIngestor(config *Config, store interfaces.RecordStore, meta interfaces.MetaStore,
	logger interfaces.Logger, mem interfaces.MemoryMonitor) *Ingestor {
	return &Ingestor{
		config: config,
		store:  store,
		meta:   meta,
		log:    logger,
		memory: mem,
		agg:    stats.NewAggregatedStats(),
	}
}

// LogProgress logs a progress snapshot (SIGHUP handler).
func (ing *Ingestor) LogProgress() {
	if ing.progress == nil {
		ing.log.Info("Ingestion has not started yet")
		return
	}
	ing.progress.LogProgress(ing.log, ing.agg.TotalLines)
}

// Run executes the full ingestion phase.
func (ing *Ingestor) Run() (types.RunSummary, error) {
	rawMode, err := ing.preScan()
	if err != nil {
		return types.RunSummary{}, err
	}

	fi, err := os.Stat(ing.config.TracePath)
	if err != nil {
		return types.RunSummary{}, errors.Wrap(err, "stat trace file")
	}
	ing.progress = stats.NewProgressTracker(fi.Size())

	reader, err := trace.OpenLineReader(ing.config.TracePath, rawMode)
	if err != nil {
		return types.RunSummary{}, errors.Wrap(err, "opening trace file")
	}
	defer reader.Close()

	sink := newBatchSink()
	parser := trace.NewParser(sink, ing.log)

	batchNum := 1
	batch := stats.NewBatchStats(batchNum, 1)
	linesInBatch := 0

	commit := func() error {
		batch.EndLine = reader.LineNo()
		if err := sink.flush(ing.store, batch); err != nil {
			return err
		}
		ing.agg.AddBatch(batch)
		if batchNum%memory.CheckIntervalBatches == 0 {
			ing.memory.Check()
			ing.progress.LogProgress(ing.log, ing.agg.TotalLines)
		}
		batchNum++
		batch = stats.NewBatchStats(batchNum, reader.LineNo()+1)
		linesInBatch = 0
		return nil
	}

	for {
		line, ok, err := reader.Next()
		if err != nil {
			if trace.IsLineTooLong(err) {
				// The pre-scan uses the same buffer limit, so this
				// indicates the file changed underneath us.
				return types.RunSummary{}, errors.Wrap(err, "trace file changed during ingest")
			}
			return types.RunSummary{}, errors.Wrap(err, "reading trace file")
		}
		if !ok {
			break
		}

		parseStart := time.Now()
		parser.ProcessLine(reader.LineNo(), line)
		batch.ParseTime += time.Since(parseStart)
		batch.LineCount++
		linesInBatch++
		ing.progress.Advance(int64(len(line)) + 1)

		if linesInBatch >= types.LinesPerBatch {
			if err := commit(); err != nil {
				return types.RunSummary{}, err
			}
		}
	}

	parser.Finish()

	// Cursor descriptors are written once, at the end, when their parse
	// metadata is complete.
	for _, info := range parser.Cursors() {
		desc := info.Desc
		sink.entries[cf.Cursors] = append(sink.entries[cf.Cursors], types.Entry{
			Key:   types.CursorKey(desc.Index),
			Value: record.EncodeCursor(&desc),
		})
		sink.records++
	}
	if err := commit(); err != nil {
		return types.RunSummary{}, err
	}

	summary := parser.Summary()

	ing.log.Info("")
	ing.log.Info("Flushing and compacting record store...")
	if err := ing.store.FlushAll(); err != nil {
		return types.RunSummary{}, errors.Wrap(err, "flushing record store")
	}
	if err := ing.store.CompactAll(); err != nil {
		return types.RunSummary{}, errors.Wrap(err, "compacting record store")
	}

	ing.logCompletion(summary)
	return summary, nil
}

// preScan validates the input before any workspace writes, and decides
// the line reading mode.
func (ing *Ingestor) preScan() (rawMode bool, err error) {
	found, rawNeeded, err := trace.ContainsTraceMarker(ing.config.TracePath)
	if err != nil {
		return false, errors.Wrap(err, "pre-scanning trace file")
	}
	rawMode = ing.config.RawInput || rawNeeded
	if rawNeeded {
		ing.log.Info("Trace contains over-long lines; switching to raw reading mode")
	}
	if !found {
		return false, errors.Errorf("%s does not look like an extended SQL trace dump (no PARSING IN CURSOR, WAIT, or call lines found)", ing.config.TracePath)
	}
	return rawMode, nil
}

// logCompletion logs the end-of-ingest summary and record store shape.
func (ing *Ingestor) logCompletion(summary types.RunSummary) {
	ing.log.Info("")
	ing.agg.LogSummary(ing.log)
	ing.agg.LogCFSummary(ing.log)

	ing.log.Info("TRACE FACTS:")
	ing.log.Info("  Oracle Release:    %d", summary.OracleRelease)
	divisorName := "microseconds"
	if summary.Divisor == types.DivisorCentiseconds {
		divisorName = "centiseconds"
	}
	ing.log.Info("  Time Unit:         %s", divisorName)
	ing.log.Info("  Wall Clock:        %ss", helpers.FormatSeconds(summary.WallClock()))
	ing.log.Info("  Cursors:           %s", helpers.FormatNumber(summary.CursorCount))
	ing.log.Info("  Duplicate Headers: %d", summary.DuplicateHeaders)
	ing.log.Info("  Truncated:         %v", summary.Truncated)
	ing.log.Info("  Unprocessed Lines: %s", helpers.FormatNumber(summary.UnprocessedLines))
	ing.log.Info("")

	ing.log.Info("RECORD STORE:")
	for _, cfStats := range ing.store.GetAllCFStats() {
		ing.log.Info("  CF %-10s keys=%-12s size=%-10s files=%d",
			cfStats.Name,
			helpers.FormatCount(cfStats.EstimatedKeys),
			helpers.FormatBytes(cfStats.TotalSize),
			cfStats.TotalFiles)
	}
	ing.log.Info("")
	ing.log.Sync()
}
