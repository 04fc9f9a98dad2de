// Package debug provides a small, mutex-guarded diagnostic logger shared by
// the parsing pipeline, the dispatch driver, and the MCP tool surface.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// EnableDebug is a build flag that can be overridden at build time:
// go build -ldflags "-X github.com/standardbeagle/flowparse/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// MCPMode tracks if we're running as an MCP server (set by main), which
// suppresses all debug output to stdio so it never corrupts the protocol.
var MCPMode = false

var (
	debugOutput io.Writer
	debugFile   *os.File
	debugMutex  sync.Mutex
)

// exceptionLogSeq backs ShouldEmit's sampling: every Nth uncaught pipeline
// exception is logged rather than every single one, so a pathological input
// that throws on every file in a large batch doesn't flood the log.
var exceptionLogSeq atomic.Uint64

// ExceptionLogSampleRate controls ShouldEmit's sampling period. 1 logs every
// exception; 0 disables exception logging entirely.
var ExceptionLogSampleRate uint64 = 1

// SetMCPMode enables MCP mode which suppresses all debug output to stdio.
func SetMCPMode(enabled bool) {
	MCPMode = enabled
}

// SetDebugOutput sets a custom writer for debug output. Pass nil to disable
// debug output entirely.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitDebugLogFile initializes debug logging to a timestamped file under
// os.TempDir() and returns its path.
func InitDebugLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "flowparse-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// IsDebugEnabled returns true if debug mode is enabled and we're not in MCP mode.
func IsDebugEnabled() bool {
	if MCPMode {
		return false
	}
	if EnableDebug == "true" {
		return true
	}
	if os.Getenv("DEBUG") == "1" || os.Getenv("DEBUG") == "true" {
		return true
	}
	return false
}

// ShouldEmit answers the open question in the per-file pipeline's exception
// handling (§9): whether an uncaught exception captured during a parse
// should be logged. Every pipeline exception is counted; only one in every
// ExceptionLogSampleRate is actually emitted, so a run that throws on most
// of a large file set doesn't drown its log in duplicate stack traces.
func ShouldEmit() bool {
	if ExceptionLogSampleRate == 0 {
		return false
	}
	n := exceptionLogSeq.Add(1)
	return n%ExceptionLogSampleRate == 0
}

func getDebugWriter() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Printf prints debug information only when debug mode is enabled and output is configured.
func Printf(format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG] "+format, args...)
}

// Log provides structured debug logging with component names.
func Log(component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format, append([]interface{}{component}, args...)...)
}

// LogPipeline logs per-file parse pipeline events (C3).
func LogPipeline(format string, args ...interface{}) {
	Log("PIPELINE", format, args...)
}

// LogDispatch logs dispatch driver / worker pool events (C7).
func LogDispatch(format string, args ...interface{}) {
	Log("DISPATCH", format, args...)
}

// LogHeap logs heap mutator / transaction events (C4).
func LogHeap(format string, args ...interface{}) {
	Log("HEAP", format, args...)
}

// LogMCP logs MCP tool-surface events.
func LogMCP(format string, args ...interface{}) {
	Log("MCP", format, args...)
}

// Exception logs an uncaught pipeline exception, gated by ShouldEmit so a
// batch that throws repeatedly doesn't spam the log.
func Exception(fileLabel string, recovered interface{}) {
	if MCPMode || !ShouldEmit() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[EXCEPTION] %s: %v\n", fileLabel, recovered)
}

// CatastrophicError outputs an error that indicates system failure. In MCP
// mode this is suppressed to maintain protocol compliance on stdio.
func CatastrophicError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !MCPMode {
		w := getDebugWriter()
		if w != nil {
			fmt.Fprintf(w, "[CATASTROPHIC] %s", msg)
		}
	}
}
