// =============================================================================
// workflow.go - Phase Orchestration and Workflow Management
// =============================================================================
//
// This file implements the main workflow orchestrator that coordinates
// both phases of the trace analysis pipeline:
//
//   Phase 1: INGESTING  - Parse the trace dump, write records to RocksDB
//   Phase 2: REPORTING  - Scan the sorted record store, emit the report
//   Phase 3: COMPLETE   - Done
//
// USAGE:
//
//	workflow, err := NewWorkflow(config, logger)
//	if err != nil {
//	    // handle error
//	}
//	defer workflow.Close()
//
//	if err := workflow.Run(); err != nil {
//	    // handle error
//	}
//
// WORKFLOW DESIGN:
//
//   The MetaStore tracks the current phase. Resume semantics differ per
//   phase because the record store is written with the WAL disabled:
//
//     INGESTING:
//       - NOT resumable. A crash mid-ingest leaves the record store in
//         an undefined state, so --resume restarts ingestion from scratch.
//
//     REPORTING:
//       - Resumable. The record store is complete and immutable; report
//         generation is idempotent and simply re-runs.
//
//     COMPLETE:
//       - --resume regenerates the report from the existing record store
//         (only possible if the workspace was kept).
//
//   Without --resume any existing workspace state is discarded and the
//   workflow starts fresh.
//
// SIGNAL HANDLING:
//
//   SIGHUP triggers LogProgressSnapshot() (progress during ingestion).
//   Graceful shutdown (SIGINT/SIGTERM) is handled in main.go.
//
// The Workflow uses a scoped logger with [WORKFLOW] prefix and each phase
// creates its own scoped logger (e.g., [INGEST], [REPORT]).
//
// =============================================================================

package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/amitxsaroha/trcprof/helpers"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/logging"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/memory"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/store"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// =============================================================================
// Workflow - Main Orchestrator
// =============================================================================

// Workflow orchestrates the full trace analysis pipeline.
//
// The Workflow coordinates both phases and manages:
//   - Store lifecycle (RocksDB record store, MDBX meta store)
//   - Phase transitions and resume logic
//   - Workspace cleanup after a successful run
//   - Overall statistics and logging
type Workflow struct {
	// config is the main configuration
	config *Config

	// log is the workflow-scoped logger with [WORKFLOW] prefix
	log interfaces.Logger

	// parentLogger is the original logger (for creating phase-scoped loggers)
	parentLogger *logging.DualLogger

	// store is the RocksDB record store
	store interfaces.RecordStore

	// meta is the meta store for phase tracking
	meta interfaces.MetaStore

	// memory is the memory monitor
	memory interfaces.MemoryMonitor

	// ingestor is non-nil while the ingestion phase is active (SIGHUP)
	ingestor *Ingestor

	// stats tracks overall workflow statistics
	stats *WorkflowStats

	// startPhase is the phase Run starts from (resume support)
	startPhase types.Phase

	// completed is set when Run finishes successfully; gates cleanup
	completed bool

	// startTime is when the workflow started
	startTime time.Time
}

// WorkflowStats tracks overall workflow statistics.
type WorkflowStats struct {
	// StartTime when workflow began
	StartTime time.Time

	// EndTime when workflow completed
	EndTime time.Time

	// TotalTime is the total workflow duration
	TotalTime time.Duration

	// IsResume indicates if this was a resumed workflow
	IsResume bool

	// ResumedFromPhase is the phase we resumed from
	ResumedFromPhase types.Phase

	// IngestTime is the time spent in the ingestion phase
	IngestTime time.Duration

	// ReportTime is the time spent in the reporting phase
	ReportTime time.Duration

	// LineCount is the number of trace lines processed
	LineCount int64

	// RecordCount is the number of records written to the store
	RecordCount int64

	// CursorCount is the number of distinct cursors seen
	CursorCount int64
}

// NewWorkflow creates a new Workflow orchestrator.
//
// This decides fresh-vs-resume, opens the stores, and initializes all
// components. The resume decision has to happen here, before the record
// store is opened: a fresh start wipes the workspace state directories,
// which cannot be done once RocksDB holds them open.
//
// PARAMETERS:
//   - config: Validated configuration
//   - logger: Logger instance (parent logger)
//
// RETURNS:
//   - A new Workflow instance
//   - An error if initialization fails
func NewWorkflow(config *Config, logger *logging.DualLogger) (*Workflow, error) {
	log := logger.WithScope("WORKFLOW")

	stats := &WorkflowStats{}
	startPhase := types.PhaseIngesting

	var meta interfaces.MetaStore
	if config.Resume && helpers.FileExists(config.MetaStorePath) {
		log.Info("Opening meta store...")
		m, err := OpenMDBXMetaStore(config.MetaStorePath)
		if err != nil {
			return nil, errors.Wrap(err, "opening meta store")
		}
		canResume, phase, err := m.CheckResumability(config.Identity)
		if err != nil {
			m.Close()
			return nil, errors.Wrap(err, "checking resumability")
		}
		if canResume {
			meta = m
			startPhase = phase
			stats.IsResume = true
			stats.ResumedFromPhase = phase
		} else {
			log.Info("Workspace is not resumable (trace changed or ingest incomplete); starting fresh")
			m.Close()
		}
	} else if config.Resume {
		log.Info("--resume requested but no workspace found at %s; starting fresh", config.WorkDir)
	}

	if meta == nil {
		if err := resetWorkspaceState(config); err != nil {
			return nil, err
		}
		log.Info("Opening meta store...")
		m, err := OpenMDBXMetaStore(config.MetaStorePath)
		if err != nil {
			return nil, errors.Wrap(err, "opening meta store")
		}
		if err := m.SetTraceIdentity(config.Identity); err != nil {
			m.Close()
			return nil, errors.Wrap(err, "recording trace identity")
		}
		if err := m.SetPhase(types.PhaseIngesting); err != nil {
			m.Close()
			return nil, errors.Wrap(err, "setting initial phase")
		}
		meta = m
	}

	log.Info("Opening record store...")
	recordStore, err := store.OpenRocksDBRecordStore(config.RecordStorePath, config.RocksDB, logger)
	if err != nil {
		meta.Close()
		return nil, errors.Wrap(err, "opening record store")
	}

	memMon := memory.NewMonitor(logger.WithScope("MEMORY"), config.RAMWarningGB)

	return &Workflow{
		config:       config,
		log:          log,
		parentLogger: logger,
		store:        recordStore,
		meta:         meta,
		memory:       memMon,
		stats:        stats,
		startPhase:   startPhase,
		startTime:    time.Now(),
	}, nil
}

// resetWorkspaceState removes any stale state directories and recreates
// them empty. Logs are deliberately left alone.
func resetWorkspaceState(config *Config) error {
	dirs := []string{
		config.RecordStorePath,
		filepath.Dir(config.MetaStorePath),
		config.EtlTmpPath,
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return errors.Wrapf(err, "clearing %s", dir)
		}
		if err := helpers.EnsureDir(dir); err != nil {
			return errors.Wrapf(err, "creating %s", dir)
		}
	}
	return nil
}

// Run executes the workflow from the current state.
//
// This is the main entry point that runs all phases in sequence,
// handling resume logic and phase transitions.
func (w *Workflow) Run() error {
	w.stats.StartTime = time.Now()

	w.log.Separator()
	w.log.Info("                    TRACE ANALYSIS WORKFLOW")
	w.log.Separator()
	w.log.Info("")
	w.log.Info("Start Time: %s", w.stats.StartTime.Format("2006-01-02 15:04:05"))
	w.log.Info("Trace File: %s (%s)", w.config.TracePath, helpers.FormatBytes(w.config.Identity.Size))
	w.log.Info("")

	if w.stats.IsResume {
		w.log.Info("Resuming from phase: %s", w.stats.ResumedFromPhase)
		w.meta.LogState(w.log)
		w.log.Info("")
	}

	snapshot := memory.TakeSnapshot()
	snapshot.Log(w.log, "Initial")

	if err := w.runFromPhase(w.startPhase); err != nil {
		return err
	}

	w.stats.EndTime = time.Now()
	w.stats.TotalTime = time.Since(w.stats.StartTime)
	w.completed = true

	w.logFinalSummary()

	return nil
}

// runFromPhase executes the workflow from a specific phase.
func (w *Workflow) runFromPhase(startPhase types.Phase) error {
	switch startPhase {
	case types.PhaseIngesting:
		if err := w.runIngest(); err != nil {
			return err
		}
		fallthrough

	case types.PhaseReporting:
		return w.runReport()

	case types.PhaseComplete:
		w.log.Info("Workflow already complete. Regenerating report from the existing record store.")
		w.log.Info("")
		return w.runReport()
	}

	return nil
}

// =============================================================================
// Phase Execution Methods
// =============================================================================

// runIngest executes the ingestion phase.
func (w *Workflow) runIngest() error {
	w.log.Separator()
	w.log.Info("                    PHASE 1: INGESTION")
	w.log.Separator()
	w.log.Info("")

	phaseStart := time.Now()

	ingestor := NewIngestor(w.config, w.store, w.meta, w.parentLogger.WithScope("INGEST"), w.memory)
	w.ingestor = ingestor
	summary, err := ingestor.Run()
	w.ingestor = nil
	if err != nil {
		return errors.Wrap(err, "ingestion failed")
	}

	w.stats.IngestTime = time.Since(phaseStart)
	w.stats.LineCount = summary.LineCount
	w.stats.RecordCount = summary.RecordCount
	w.stats.CursorCount = summary.CursorCount

	if err := w.meta.SetSummary(summary); err != nil {
		return errors.Wrap(err, "saving run summary")
	}
	if err := w.meta.SetPhase(types.PhaseReporting); err != nil {
		return errors.Wrap(err, "setting phase to REPORTING")
	}

	w.log.Info("")
	w.log.Info("Ingestion phase completed in %s", helpers.FormatDuration(w.stats.IngestTime))
	w.log.Info("Lines processed: %s", helpers.FormatNumber(summary.LineCount))
	w.log.Info("Records written: %s", helpers.FormatNumber(summary.RecordCount))
	w.log.Info("")
	w.log.Sync()

	return nil
}

// runReport executes the reporting phase.
func (w *Workflow) runReport() error {
	w.log.Separator()
	w.log.Info("                    PHASE 2: REPORT GENERATION")
	w.log.Separator()
	w.log.Info("")

	phaseStart := time.Now()

	if err := RunReport(w.config, w.store, w.meta, w.parentLogger.WithScope("REPORT")); err != nil {
		return err
	}

	w.stats.ReportTime = time.Since(phaseStart)

	if err := w.meta.SetPhase(types.PhaseComplete); err != nil {
		return errors.Wrap(err, "setting phase to COMPLETE")
	}

	w.log.Info("")
	w.log.Info("Report phase completed in %s", helpers.FormatDuration(w.stats.ReportTime))
	w.log.Info("")
	w.log.Sync()

	return nil
}

// =============================================================================
// SIGHUP Support
// =============================================================================

// LogProgressSnapshot logs current progress. Called from the SIGHUP handler,
// so it must be safe to call from another goroutine at any time.
func (w *Workflow) LogProgressSnapshot() {
	w.log.Separator()
	w.log.Info("PROGRESS SNAPSHOT (SIGHUP)")
	if ing := w.ingestor; ing != nil {
		ing.LogProgress()
	} else {
		phase, err := w.meta.GetPhase()
		if err != nil {
			w.log.Error("Cannot read current phase: %v", err)
		} else {
			w.log.Info("Current phase: %s", phase)
		}
	}
	w.log.Info("Elapsed: %s", helpers.FormatDuration(time.Since(w.startTime)))
	w.log.Separator()
	w.log.Sync()
}

// =============================================================================
// Summary and Cleanup
// =============================================================================

// logFinalSummary logs the final workflow summary.
func (w *Workflow) logFinalSummary() {
	w.log.Separator()
	w.log.Info("                    WORKFLOW COMPLETE")
	w.log.Separator()
	w.log.Info("")

	w.log.Info("OVERALL STATISTICS:")
	w.log.Info("  Start Time:        %s", w.stats.StartTime.Format("2006-01-02 15:04:05"))
	w.log.Info("  End Time:          %s", w.stats.EndTime.Format("2006-01-02 15:04:05"))
	w.log.Info("  Total Duration:    %s", helpers.FormatDuration(w.stats.TotalTime))
	w.log.Info("")

	if w.stats.IsResume {
		w.log.Info("  Resumed From:      %s", w.stats.ResumedFromPhase)
		w.log.Info("")
	}

	w.log.Info("PHASE DURATIONS:")
	w.log.Info("  Ingestion:         %s", helpers.FormatDuration(w.stats.IngestTime))
	w.log.Info("  Report:            %s", helpers.FormatDuration(w.stats.ReportTime))
	w.log.Info("")

	if w.stats.LineCount > 0 {
		w.log.Info("DATA STATISTICS:")
		w.log.Info("  Trace Lines:       %s", helpers.FormatNumber(w.stats.LineCount))
		w.log.Info("  Records:           %s", helpers.FormatNumber(w.stats.RecordCount))
		w.log.Info("  Cursors:           %s", helpers.FormatNumber(w.stats.CursorCount))
		w.log.Info("")
	}

	w.memory.LogSummary()

	w.log.Info("OUTPUT LOCATIONS:")
	w.log.Info("  Report:            %s", w.config.ReportPath)
	w.log.Info("  Workspace:         %s (%s)", w.config.WorkDir,
		helpers.FormatBytes(helpers.GetDirSize(w.config.WorkDir)))
	w.log.Info("  Logs:              %s", w.config.LogDir)
	w.log.Info("")

	w.log.Separator()
	w.log.Info("                    SUCCESS")
	w.log.Separator()
	w.log.Info("")

	w.log.Sync()
}

// Close releases all resources held by the workflow and, after a
// successful run, removes the workspace state (logs are kept).
//
// This must be called when done with the workflow (use defer).
func (w *Workflow) Close() {
	w.log.Info("Shutting down workflow...")

	if w.store != nil {
		w.store.Close()
	}
	if w.meta != nil {
		w.meta.Close()
	}

	if w.completed && !w.config.KeepWorkspace {
		w.cleanupWorkspace()
	} else if !w.completed {
		w.log.Info("Workspace kept at %s (workflow did not complete)", w.config.WorkDir)
	} else {
		w.log.Info("Workspace kept at %s (--keep-workspace)", w.config.WorkDir)
	}

	w.log.Info("Workflow shutdown complete")
	w.log.Sync()
}

// cleanupWorkspace removes the state directories. The log directory
// survives, as does the WorkDir itself if anything else lives in it.
func (w *Workflow) cleanupWorkspace() {
	for _, dir := range []string{
		w.config.RecordStorePath,
		filepath.Dir(w.config.MetaStorePath),
		w.config.EtlTmpPath,
	} {
		if err := os.RemoveAll(dir); err != nil {
			w.log.Error("Failed to remove %s: %v", dir, err)
		}
	}
	// Removes WorkDir only if it is now empty (e.g. logs elsewhere).
	_ = os.Remove(w.config.WorkDir)
	w.log.Info("Workspace state removed (logs kept at %s)", w.config.LogDir)
}
