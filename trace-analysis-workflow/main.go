// =============================================================================
// main.go - Entry Point for trace-analysis-workflow
// =============================================================================
//
// This is the entry point for the trace-analysis-workflow tool. It handles:
//   - Command-line flag parsing
//   - Signal handling (SIGHUP for progress snapshots, SIGINT/SIGTERM for
//     graceful shutdown)
//   - Logger initialization
//   - Workflow orchestration
//
// USAGE:
//
//	trace-analysis-workflow [options] TRACE_FILE
//
//	trace-analysis-workflow \
//	  --report /tmp/prod_ora_1234.report.txt \
//	  --work-dir /scratch/prod_ora_1234.trcprof \
//	  --line-numbers \
//	  /data/traces/prod_ora_1234.trc
//
// SIGNAL HANDLING:
//
//	SIGHUP:
//	  - Logs a progress snapshot (lines read, records written, ETA)
//	  - Useful for long traces: kill -HUP <pid>
//
//	SIGINT / SIGTERM:
//	  - Graceful shutdown; the workspace is left behind for --resume
//
// EXIT CODES:
//
//	0 - Success (or already complete)
//	2 - Configuration or usage error
//	1 - Runtime error
//	130 - Interrupted by SIGINT
//	143 - Terminated by SIGTERM
//
// =============================================================================

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/logging"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// =============================================================================
// Version Information
// =============================================================================

const (
	// Version is the tool version
	Version = "1.0.0"

	// ToolName is the name of this tool
	ToolName = "trace-analysis-workflow"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitConfigError  = 2
	ExitInterrupted  = 130 // 128 + SIGINT(2)
	ExitTerminated   = 143 // 128 + SIGTERM(15)
)

// =============================================================================
// Main Entry Point
// =============================================================================

func main() {
	config := parseFlags()

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(ExitConfigError)
	}

	logger, err := logging.NewDualLogger(config.LogDir, ToolName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer logger.Close()
	logger.SetVerbose(config.Verbose)
	logger.SetEcho(!config.Quiet)

	logStartup(logger, config)

	if config.DryRun {
		config.PrintConfig(logger)
		config.PrintRocksDBConfig(logger)
		logDryRunMetaState(config, logger)

		logger.Separator()
		logger.Info("                         DRY RUN COMPLETE")
		logger.Separator()
		logger.Info("")
		logger.Info("Configuration validated successfully.")
		logger.Info("No workflow executed (--dry-run mode).")
		logger.Info("")
		logger.Sync()

		fmt.Println("Dry run complete. Configuration is valid.")
		os.Exit(ExitSuccess)
	}

	workflow, err := NewWorkflow(config, logger)
	if err != nil {
		logger.Error("Failed to create workflow: %v", err)
		fmt.Fprintf(os.Stderr, "Failed to create workflow: %v\n", err)
		os.Exit(ExitRuntimeError)
	}
	defer workflow.Close()

	sigChan := setupSignalHandling(workflow, logger)

	// Run workflow in a separate goroutine so we can handle signals
	errChan := make(chan error, 1)
	go func() {
		errChan <- workflow.Run()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("Workflow failed: %v", err)
			fmt.Fprintf(os.Stderr, "Workflow failed: %v\n", err)
			os.Exit(ExitRuntimeError)
		}
		logger.Info("Workflow completed successfully")
		if config.ReportPath != "-" {
			fmt.Printf("Report written to %s\n", config.ReportPath)
		}
		os.Exit(ExitSuccess)

	case sig := <-sigChan:
		logger.Info("Received signal: %v", sig)
		logger.Info("Shutting down. Re-run with --resume to continue from the last completed phase.")
		logger.Sync()

		if sig == syscall.SIGINT {
			os.Exit(ExitInterrupted)
		}
		os.Exit(ExitTerminated)
	}
}

// =============================================================================
// Flag Parsing
// =============================================================================

// parseFlags parses command-line flags and returns a Config.
func parseFlags() *Config {
	config := &Config{
		RocksDB: types.DefaultRocksDBSettings(),
	}

	flag.StringVar(&config.ReportPath, "report", "", "Report output path, \"-\" for stdout (default: TRACE.report.txt)")
	flag.StringVar(&config.WorkDir, "work-dir", "", "Workspace directory (default: TRACE.trcprof)")
	flag.StringVar(&config.LogDir, "log-dir", "", "Log directory (default: WORK_DIR/logs)")
	flag.StringVar(&config.ConfigFile, "config", "", "Optional TOML configuration file")
	flag.StringVar(&config.IdleEventList, "idle-events", "", "Extra idle wait events, comma separated")
	flag.BoolVar(&config.LineNumbers, "line-numbers", false, "Annotate the report with trace file line numbers")
	flag.BoolVar(&config.KeepWorkspace, "keep-workspace", false, "Keep the record store after the report is written")
	flag.BoolVar(&config.Resume, "resume", false, "Reuse an existing workspace for the same trace file")
	flag.BoolVar(&config.RawInput, "raw", false, "Force raw line reading (for traces with binary garbage)")
	flag.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&config.Quiet, "quiet", false, "Do not echo log output to stdout")
	flag.BoolVar(&config.DryRun, "dry-run", false, "Validate configuration and exit without executing")
	flag.Float64Var(&config.RAMWarningGB, "ram-warn-gb", 0, "RSS warning threshold in GB (default: 8)")
	flag.IntVar(&config.RocksDB.BlockCacheSizeMB, "block-cache-mb", config.RocksDB.BlockCacheSizeMB, "Record store block cache size in MB")

	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] TRACE_FILE\n\n", ToolName)
		fmt.Fprintf(os.Stderr, "%s analyzes an extended SQL trace dump (event 10046) and produces\n", ToolName)
		fmt.Fprintf(os.Stderr, "a resource profile: per-statement call tables, wait event breakdowns,\n")
		fmt.Fprintf(os.Stderr, "and a full accounting of where the session's time went.\n\n")
		fmt.Fprintf(os.Stderr, "The trace may be plain text, gzip, or zstd compressed.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nSignal handling:\n")
		fmt.Fprintf(os.Stderr, "  SIGHUP                Log a progress snapshot\n")
		fmt.Fprintf(os.Stderr, "  SIGINT/SIGTERM        Graceful shutdown (workspace kept for --resume)\n")
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s --line-numbers /data/traces/prod_ora_1234.trc\n", ToolName)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", ToolName, Version)
		os.Exit(ExitSuccess)
	}

	if flag.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "Expected exactly one trace file, got %d arguments\n", flag.NArg())
		flag.Usage()
		os.Exit(ExitConfigError)
	}
	config.TracePath = flag.Arg(0)

	config.setFlags = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		config.setFlags[f.Name] = true
	})

	return config
}

// =============================================================================
// Signal Handling
// =============================================================================

// setupSignalHandling sets up signal handlers for SIGHUP, SIGINT, and SIGTERM.
//
// SIGHUP triggers a progress snapshot in the log.
// SIGINT/SIGTERM are returned on a channel for graceful shutdown.
func setupSignalHandling(workflow *Workflow, logger interfaces.Logger) chan os.Signal {
	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	hupChan := make(chan os.Signal, 10)
	signal.Notify(hupChan, syscall.SIGHUP)

	go func() {
		for range hupChan {
			logger.Info("Received SIGHUP signal")
			workflow.LogProgressSnapshot()
		}
	}()

	return termChan
}

// =============================================================================
// Startup Logging
// =============================================================================

// logStartup logs startup information.
func logStartup(logger interfaces.Logger, config *Config) {
	logger.Separator()
	logger.Info("                    %s v%s", ToolName, Version)
	logger.Separator()
	logger.Info("")
	logger.Info("Process ID:  %d", os.Getpid())
	logger.Info("Working Dir: %s", mustGetwd())
	logger.Info("Trace File:  %s", config.TracePath)
	logger.Info("")
	logger.Info("SIGNAL HANDLING:")
	logger.Info("  SIGHUP  → Log a progress snapshot")
	logger.Info("  SIGINT  → Graceful shutdown")
	logger.Info("  SIGTERM → Graceful shutdown")
	logger.Info("")
	logger.Info("To check progress during a long run:")
	logger.Info("  kill -HUP %d", os.Getpid())
	logger.Info("")

	logger.Sync()
}

// mustGetwd returns the current working directory or "unknown".
func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "unknown"
	}
	return wd
}

// logDryRunMetaState checks if a meta store exists and logs its state.
// This helps users understand what would happen on --resume.
func logDryRunMetaState(config *Config, logger interfaces.Logger) {
	logger.Separator()
	logger.Info("                         META STORE STATE")
	logger.Separator()
	logger.Info("")

	if _, err := os.Stat(config.MetaStorePath); os.IsNotExist(err) {
		logger.Info("Meta store does not exist: %s", config.MetaStorePath)
		logger.Info("This will be a FRESH START (no previous progress to resume)")
		logger.Info("")
		return
	}

	meta, err := OpenMDBXMetaStore(config.MetaStorePath)
	if err != nil {
		logger.Error("Failed to open meta store: %v", err)
		logger.Info("")
		return
	}
	defer meta.Close()

	meta.LogState(logger)

	canResume, phase, err := meta.CheckResumability(config.Identity)
	if err != nil {
		logger.Error("Resumability check failed: %v", err)
		logger.Info("")
		return
	}
	if !canResume {
		logger.Info("Workspace belongs to a DIFFERENT trace file (or was never initialized).")
		logger.Info("A run without --resume will rebuild it from scratch.")
		logger.Info("")
		return
	}

	logger.Info("Resume Action:")
	switch phase {
	case types.PhaseIngesting:
		logger.Info("  Will re-ingest the trace from the beginning (ingest is not resumable mid-file)")
	case types.PhaseReporting:
		logger.Info("  Will regenerate the report from the existing record store (no re-parse)")
	case types.PhaseComplete:
		logger.Info("  Workflow already COMPLETE - will regenerate the report only")
	}
	logger.Info("")
}
