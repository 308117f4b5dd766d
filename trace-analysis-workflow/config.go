// =============================================================================
// config.go - Configuration and Workspace Layout
// =============================================================================
//
// This file defines the configuration for the trace-analysis-workflow tool.
// It includes:
//   - Command-line flag definitions (see main.go for parsing)
//   - Optional TOML configuration file support
//   - Workspace path derivation and directory setup
//
// PRECEDENCE:
//
//	Built-in defaults < TOML config file (--config) < command-line flags
//
//	A flag the user set explicitly always wins over the config file. The
//	config file is useful for record-store tuning that rarely changes
//	between runs.
//
// WORKSPACE LAYOUT:
//
//	<work-dir>/
//	  records/    RocksDB record store (trace records, cursors, binds, RPC)
//	  meta/       MDBX meta store (phase, trace identity, run summary)
//	  etl-tmp/    spill space for the report phase's external sorts
//	  logs/       run and error logs (kept after workspace cleanup)
//
// =============================================================================

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/amitxsaroha/trcprof/helpers"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// =============================================================================
// Config - Main Configuration
// =============================================================================

// Config holds all configuration for the trace-analysis-workflow tool.
type Config struct {
	// =========================================================================
	// Positional Argument
	// =========================================================================

	// TracePath is the trace dump file to analyze. Plain text, gzip, and
	// zstd inputs are all accepted.
	TracePath string

	// =========================================================================
	// Optional Flags
	// =========================================================================

	// WorkDir is the workspace directory. Defaults to <trace>.trcprof
	// next to the trace file.
	WorkDir string

	// ReportPath is where the report is written. "-" means stdout.
	// Defaults to <trace>.report.txt.
	ReportPath string

	// LogDir is the directory for run and error logs.
	// Defaults to <work-dir>/logs.
	LogDir string

	// ConfigFile is an optional TOML configuration file.
	ConfigFile string

	// IdleEventList is a comma-separated list of extra wait events to
	// classify as idle, on top of the built-in set.
	IdleEventList string

	// LineNumbers annotates report sections with trace file line numbers.
	// Implies Verbose.
	LineNumbers bool

	// KeepWorkspace preserves the record store after a successful run.
	// Without it the workspace is removed once the report is written.
	KeepWorkspace bool

	// Resume reuses an existing workspace when its stored trace identity
	// matches, skipping completed phases.
	Resume bool

	// RawInput forces byte-at-a-time line reading, for traces with
	// embedded binary garbage. Normally auto-detected.
	RawInput bool

	// Verbose enables verbose logging.
	Verbose bool

	// Quiet suppresses log echo to stdout.
	Quiet bool

	// DryRun validates configuration, prints what would happen, and exits.
	DryRun bool

	// RAMWarningGB is the RSS threshold for ingest memory warnings.
	RAMWarningGB float64

	// =========================================================================
	// Record Store Settings
	// =========================================================================

	RocksDB types.RocksDBSettings

	// =========================================================================
	// Derived (Set During Validation)
	// =========================================================================

	// RecordStorePath is <work-dir>/records.
	RecordStorePath string

	// MetaStorePath is <work-dir>/meta/meta.mdbx (a single MDBX file).
	MetaStorePath string

	// EtlTmpPath is <work-dir>/etl-tmp.
	EtlTmpPath string

	// Identity pins this run to the trace file's path, size, and mtime.
	Identity types.TraceIdentity

	// setFlags records which flags were given explicitly, so config-file
	// values never override them.
	setFlags map[string]bool
}

// IdleEvents splits IdleEventList into a cleaned slice.
func (c *Config) IdleEvents() []string {
	if c.IdleEventList == "" {
		return nil
	}
	var events []string
	for _, e := range strings.Split(c.IdleEventList, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			events = append(events, e)
		}
	}
	return events
}

// =============================================================================
// TOML Configuration File
// =============================================================================

// tomlConfig is the shape of the optional --config file.
//
// Example:
//
//	idle_events = ["PX Idle Wait"]
//	ram_warning_gb = 16
//
//	[rocksdb]
//	write_buffer_size_mb = 128
//	block_cache_size_mb = 512
type tomlConfig struct {
	IdleEvents   []string              `toml:"idle_events"`
	RAMWarningGB float64               `toml:"ram_warning_gb"`
	LineNumbers  bool                  `toml:"line_numbers"`
	RocksDB      types.RocksDBSettings `toml:"rocksdb"`
}

// applyConfigFile merges the TOML file into the config. Values the user
// set on the command line are left alone.
func (c *Config) applyConfigFile() error {
	if c.ConfigFile == "" {
		return nil
	}
	var tc tomlConfig
	tc.RocksDB = c.RocksDB
	meta, err := toml.DecodeFile(c.ConfigFile, &tc)
	if err != nil {
		return fmt.Errorf("--config %s: %w", c.ConfigFile, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("--config %s: unknown key %q", c.ConfigFile, undecoded[0].String())
	}

	if len(tc.IdleEvents) > 0 && !c.setFlags["idle-events"] {
		c.IdleEventList = strings.Join(tc.IdleEvents, ",")
	}
	if tc.RAMWarningGB > 0 && !c.setFlags["ram-warn-gb"] {
		c.RAMWarningGB = tc.RAMWarningGB
	}
	if tc.LineNumbers && !c.setFlags["line-numbers"] {
		c.LineNumbers = true
	}
	blockCache := c.RocksDB.BlockCacheSizeMB
	c.RocksDB = tc.RocksDB
	if c.setFlags["block-cache-mb"] {
		c.RocksDB.BlockCacheSizeMB = blockCache
	}
	return nil
}

// =============================================================================
// Validation
// =============================================================================

// Validate validates the configuration and derives the workspace paths.
//
// Checks:
//  1. A trace file was given and exists
//  2. The optional config file parses cleanly
//  3. Derives workspace paths and creates directories (unless dry-run)
//  4. Captures the trace identity for resumability checks
func (c *Config) Validate() error {
	if c.TracePath == "" {
		return fmt.Errorf("a trace file argument is required")
	}

	absTrace, err := filepath.Abs(c.TracePath)
	if err != nil {
		return fmt.Errorf("invalid trace path: %w", err)
	}
	c.TracePath = absTrace

	fi, err := os.Stat(absTrace)
	if err != nil {
		return fmt.Errorf("trace file %s: %w", absTrace, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("trace path %s is a directory", absTrace)
	}
	c.Identity = types.TraceIdentity{
		Path:    absTrace,
		Size:    fi.Size(),
		ModTime: fi.ModTime().Unix(),
	}

	if err := c.applyConfigFile(); err != nil {
		return err
	}

	// Line-number annotation is a sub-mode of verbose diagnostics.
	if c.LineNumbers {
		c.Verbose = true
	}

	if c.RAMWarningGB <= 0 {
		c.RAMWarningGB = types.DefaultRAMWarningGB
	}

	// =========================================================================
	// Derive Paths
	// =========================================================================

	if c.WorkDir == "" {
		c.WorkDir = absTrace + ".trcprof"
	}
	absWork, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return fmt.Errorf("invalid --work-dir path: %w", err)
	}
	c.WorkDir = absWork

	c.RecordStorePath = filepath.Join(absWork, "records")
	c.MetaStorePath = filepath.Join(absWork, "meta", "meta.mdbx")
	c.EtlTmpPath = filepath.Join(absWork, "etl-tmp")

	if c.LogDir == "" {
		c.LogDir = filepath.Join(absWork, "logs")
	}

	if c.ReportPath == "" {
		c.ReportPath = absTrace + ".report.txt"
	}

	// =========================================================================
	// Create Directories (unless dry-run)
	// =========================================================================

	if !c.DryRun {
		dirs := []string{
			c.RecordStorePath,
			filepath.Dir(c.MetaStorePath),
			c.EtlTmpPath,
			c.LogDir,
		}
		for _, dir := range dirs {
			if err := helpers.EnsureDir(dir); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
		if c.ReportPath != "-" {
			if err := helpers.EnsureDir(filepath.Dir(c.ReportPath)); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
	}

	return nil
}

// =============================================================================
// Display Functions (for dry-run and logging)
// =============================================================================

// PrintConfig prints the configuration to the logger.
func (c *Config) PrintConfig(logger interfaces.Logger) {
	logger.Separator()
	logger.Info("                         CONFIGURATION")
	logger.Separator()
	logger.Info("")
	logger.Info("INPUT:")
	logger.Info("  Trace File:          %s", c.TracePath)
	logger.Info("  Trace Size:          %s", helpers.FormatBytes(c.Identity.Size))
	logger.Info("")
	logger.Info("OUTPUT:")
	logger.Info("  Report:              %s", c.ReportPath)
	logger.Info("  Workspace:           %s", c.WorkDir)
	logger.Info("  Record Store:        %s", c.RecordStorePath)
	logger.Info("  Meta Store:          %s", c.MetaStorePath)
	logger.Info("  ETL Temp:            %s", c.EtlTmpPath)
	logger.Info("  Log Dir:             %s", c.LogDir)
	logger.Info("")
	logger.Info("OPTIONS:")
	logger.Info("  Line Numbers:        %v", c.LineNumbers)
	logger.Info("  Keep Workspace:      %v", c.KeepWorkspace)
	logger.Info("  Resume:              %v", c.Resume)
	logger.Info("  Raw Input:           %v", c.RawInput)
	logger.Info("  Dry Run:             %v", c.DryRun)
	logger.Info("  RAM Warning:         %.1f GB", c.RAMWarningGB)
	if extra := c.IdleEvents(); len(extra) > 0 {
		logger.Info("  Extra Idle Events:   %s", strings.Join(extra, ", "))
	}
	logger.Info("")
}

// PrintRocksDBConfig prints the record store configuration to the logger.
func (c *Config) PrintRocksDBConfig(logger interfaces.Logger) {
	s := &c.RocksDB
	logger.Separator()
	logger.Info("                      RECORD STORE CONFIGURATION")
	logger.Separator()
	logger.Info("")
	logger.Info("MEMTABLE SETTINGS:")
	logger.Info("  WriteBufferSizeMB:          %d", s.WriteBufferSizeMB)
	logger.Info("  MaxWriteBufferNumber:       %d", s.MaxWriteBufferNumber)
	logger.Info("  MinWriteBufferNumberToMerge: %d", s.MinWriteBufferNumberToMerge)
	logger.Info("")
	logger.Info("SST FILE SETTINGS:")
	logger.Info("  TargetFileSizeMB:           %d", s.TargetFileSizeMB)
	logger.Info("")
	logger.Info("BACKGROUND OPERATIONS:")
	logger.Info("  MaxBackgroundJobs:          %d", s.MaxBackgroundJobs)
	logger.Info("")
	logger.Info("READ PERFORMANCE:")
	logger.Info("  BlockCacheSizeMB:           %d", s.BlockCacheSizeMB)
	logger.Info("  MaxOpenFiles:               %d", s.MaxOpenFiles)
	logger.Info("")
	logger.Info("FIXED SETTINGS (NOT CONFIGURABLE):")
	logger.Info("  WAL:                        DISABLED (bulk load; workspace is rebuilt on crash)")
	logger.Info("  DisableAutoCompactions:     true (one manual compaction after ingest)")
	logger.Info("")
}
