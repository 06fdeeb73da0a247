// Package obs provides the ambient logging used across the bake core.
//
// Modeled on the teacher's internal/debug package: a mutex-guarded
// writer that defaults to silence, can be pointed at a file for
// --trace/--debug runs, and exposes one scoped helper per subsystem so
// log lines are easy to filter without introducing a structured
// logging dependency the rest of the module has no other use for.
package obs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug can be overridden at build time:
//
//	go build -ldflags "-X github.com/standardbeagle/bake/internal/obs.EnableDebug=true"
var EnableDebug = "false"

var (
	mu     sync.Mutex
	out    io.Writer
	file   *os.File
	trace  bool
	verbos bool
)

// SetOutput redirects log output. Passing nil disables it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetVerbosity mirrors the CLI's -v/--trace flags: either one routes
// log lines to stderr unless a writer is already set (--debug replaces
// it with a log file through OpenLogFile).
func SetVerbosity(verbose, traceOn bool) {
	mu.Lock()
	defer mu.Unlock()
	verbos = verbose
	trace = traceOn
	if (verbose || traceOn) && out == nil {
		out = os.Stderr
	}
}

// OpenLogFile creates a timestamped log file under the OS temp dir and
// routes all subsequent log lines to it. Returns the path.
func OpenLogFile() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Join(os.TempDir(), "bake-logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("bake-%s.log", time.Now().Format("2006-01-02T150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("opening log file: %w", err)
	}
	file = f
	out = f
	return path, nil
}

// Close closes the log file opened by OpenLogFile, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	out = nil
	return err
}

func emit(scope, format string, args ...interface{}) {
	mu.Lock()
	w := out
	mu.Unlock()
	if w == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(w, "%s [%s] %s\n", time.Now().Format(time.RFC3339), scope, msg)
}

// Crawler logs discovery/crawl activity.
func Crawler(format string, args ...interface{}) { emit("crawler", format, args...) }

// RuleEngine logs rule evaluation activity.
func RuleEngine(format string, args ...interface{}) { emit("rules", format, args...) }

// Driver logs driver-host activity.
func Driver(format string, args ...interface{}) { emit("driver", format, args...) }

// Orchestrator logs build-phase activity.
func Orchestrator(format string, args ...interface{}) { emit("orchestrator", format, args...) }

// Installer logs install/uninstall activity.
func Installer(format string, args ...interface{}) { emit("installer", format, args...) }

// Trace logs only when --trace is active, even when a writer is set
// (the other helpers log whenever a writer is set).
func Trace(scope, format string, args ...interface{}) {
	mu.Lock()
	on := trace
	mu.Unlock()
	if !on {
		return
	}
	emit(scope, format, args...)
}
