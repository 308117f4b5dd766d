// =============================================================================
// pkg/logging/logger.go - Dual Logger Implementation
// =============================================================================
//
// This package provides the DualLogger, which writes to two files:
//
//	1. Run log    - all messages (info + verbose + error)
//	2. Error log  - error messages only
//
// The error log gives a quick "did anything go wrong" view after a long
// run without scrolling through megabytes of progress output.
//
// Messages can optionally be echoed to stdout/stderr so parse warnings
// appear interleaved with console progress output.
//
// =============================================================================

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SeparatorLine is the visual separator used in logs.
const SeparatorLine = "========================================================================="

// TimeFormat is the timestamp format used in log messages.
const TimeFormat = "2006-01-02 15:04:05.000"

// =============================================================================
// DualLogger
// =============================================================================

// DualLogger writes log messages to a run log and errors additionally to a
// dedicated error log.
type DualLogger struct {
	logFile   *os.File
	errorFile *os.File
	verbose   bool
	echo      bool
}

// NewDualLogger creates a DualLogger writing to the given directory.
// The directory is created if it does not exist. Existing logs with the
// same prefix are truncated.
func NewDualLogger(logDir string, prefix string) (*DualLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create log directory %s", logDir)
	}

	logPath := filepath.Join(logDir, prefix+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log file %s", logPath)
	}

	errorPath := filepath.Join(logDir, prefix+".errors.log")
	errorFile, err := os.OpenFile(errorPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		logFile.Close()
		return nil, errors.Wrapf(err, "failed to open error log file %s", errorPath)
	}

	return &DualLogger{
		logFile:   logFile,
		errorFile: errorFile,
	}, nil
}

// SetVerbose enables or disables verbose messages.
func (l *DualLogger) SetVerbose(verbose bool) {
	l.verbose = verbose
}

// SetEcho enables or disables echoing messages to stdout/stderr.
func (l *DualLogger) SetEcho(echo bool) {
	l.echo = echo
}

// Info logs an informational message to the run log.
func (l *DualLogger) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format(TimeFormat), msg)
	l.logFile.WriteString(line)
	if l.echo {
		fmt.Fprint(os.Stdout, line)
	}
}

// Error logs an error message to both the run log and the error log.
func (l *DualLogger) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] ERROR: %s\n", time.Now().Format(TimeFormat), msg)
	l.logFile.WriteString(line)
	l.errorFile.WriteString(line)
	if l.echo {
		fmt.Fprint(os.Stderr, line)
	}
}

// Verbose logs a message to the run log only when verbose mode is on.
// Verbose messages are never echoed to the console.
func (l *DualLogger) Verbose(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format(TimeFormat), msg)
	l.logFile.WriteString(line)
}

// Separator writes a visual separator line to the run log.
func (l *DualLogger) Separator() {
	line := SeparatorLine + "\n"
	l.logFile.WriteString(line)
	if l.echo {
		fmt.Fprint(os.Stdout, line)
	}
}

// Sync flushes buffered log data to disk.
func (l *DualLogger) Sync() {
	l.logFile.Sync()
	l.errorFile.Sync()
}

// Close flushes and closes both log files.
func (l *DualLogger) Close() {
	l.Sync()
	l.logFile.Close()
	l.errorFile.Close()
}

// =============================================================================
// ScopedLogger
// =============================================================================

// ScopedLogger wraps a DualLogger and prefixes every message with a scope
// tag, e.g. "[INGEST] message".
type ScopedLogger struct {
	parent *DualLogger
	scope  string
}

// WithScope returns a logger that prefixes messages with the given scope.
func (l *DualLogger) WithScope(scope string) *ScopedLogger {
	return &ScopedLogger{
		parent: l,
		scope:  strings.ToUpper(scope),
	}
}

// WithScope returns a logger with a nested scope, e.g. "INGEST:BINDS".
func (s *ScopedLogger) WithScope(scope string) *ScopedLogger {
	return &ScopedLogger{
		parent: s.parent,
		scope:  s.scope + ":" + strings.ToUpper(scope),
	}
}

// Info logs an informational message with the scope prefix.
func (s *ScopedLogger) Info(format string, args ...interface{}) {
	s.parent.Info("[%s] %s", s.scope, fmt.Sprintf(format, args...))
}

// Error logs an error message with the scope prefix.
func (s *ScopedLogger) Error(format string, args ...interface{}) {
	s.parent.Error("[%s] %s", s.scope, fmt.Sprintf(format, args...))
}

// Verbose logs a verbose message with the scope prefix.
func (s *ScopedLogger) Verbose(format string, args ...interface{}) {
	s.parent.Verbose("[%s] %s", s.scope, fmt.Sprintf(format, args...))
}

// Separator writes a visual separator line to the run log.
func (s *ScopedLogger) Separator() {
	s.parent.Separator()
}

// Sync flushes buffered log data to disk.
func (s *ScopedLogger) Sync() {
	s.parent.Sync()
}

// Close is a no-op on a scoped logger; the parent owns the files.
func (s *ScopedLogger) Close() {
}
