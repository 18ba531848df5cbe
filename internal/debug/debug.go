// Package debug provides opt-in diagnostic logging for the engine
// internals. Nothing is written unless logging is enabled and a writer
// is configured, and stdio writers are refused while the process is
// serving MCP, so the protocol stream stays clean.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug is a build-time switch:
//
//	go build -ldflags "-X github.com/standardbeagle/refind/internal/debug.EnableDebug=true"
//
// The DEBUG environment variable overrides it at runtime.
var EnableDebug = "false"

var (
	mu      sync.Mutex
	output  io.Writer
	logFile *os.File
	mcpMode bool
)

// Enabled reports whether debug logging is turned on, either by the
// build flag or by DEBUG=1 / DEBUG=true in the environment.
func Enabled() bool {
	if EnableDebug == "true" {
		return true
	}
	env := os.Getenv("DEBUG")
	return env == "1" || env == "true"
}

// SetMCPMode marks stdio as owned by the protocol stream. Entering MCP
// mode drops any writer bound to stdout or stderr; debug output from an
// MCP session goes to a log file or nowhere.
func SetMCPMode(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	mcpMode = enabled
	if enabled && (output == os.Stdout || output == os.Stderr) {
		output = nil
	}
}

// SetOutput directs debug lines to w, replacing any previous writer.
// Pass nil to silence logging. Stdout and stderr are refused in MCP
// mode.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if mcpMode && (w == os.Stdout || w == os.Stderr) {
		return
	}
	output = w
}

// InitLogFile routes debug output to a fresh timestamped file under the
// OS temp directory and returns its path. Call CloseLogFile when done.
func InitLogFile() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Join(os.TempDir(), "refind-debug-logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("debug-%s.log", time.Now().Format("2006-01-02T150405")))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("create debug log file: %w", err)
	}
	logFile = f
	output = f
	return path, nil
}

// CloseLogFile closes the file opened by InitLogFile, if any, and
// detaches it from the debug output.
func CloseLogFile() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	output = nil
	return err
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return output
}

// Log writes one component-tagged line. Callers terminate their own
// lines.
func Log(component, format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format, append([]interface{}{component}, args...)...)
}

// LogStore logs snapshot store operations.
func LogStore(format string, args ...interface{}) {
	Log("STORE", format, args...)
}

// LogResolver logs resolution operations.
func LogResolver(format string, args ...interface{}) {
	Log("RESOLVE", format, args...)
}

// LogCache logs analysis cache operations.
func LogCache(format string, args ...interface{}) {
	Log("CACHE", format, args...)
}

// LogArchive logs capture archive operations.
func LogArchive(format string, args ...interface{}) {
	Log("ARCHIVE", format, args...)
}

// LogMCP logs MCP server operations.
func LogMCP(format string, args ...interface{}) {
	Log("MCP", format, args...)
}
