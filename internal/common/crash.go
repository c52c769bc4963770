// -----------------------------------------------------------------------
// Crash Protection - fatal panic reports for post-mortem analysis
// -----------------------------------------------------------------------

package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// CrashLogDir is where crash reports are written. Set during startup.
var CrashLogDir = "./logs"

// InstallCrashHandler sets the crash report directory and makes sure it
// exists. Call once at startup, before any goroutines are spawned.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		CrashLogDir = logDir
	}
	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "crash handler: cannot create %s: %v\n", CrashLogDir, err)
	}
}

// RecoverWithCrashFile recovers a fatal panic, writes a crash report and
// exits. Deferred at the top of main.
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, GetStackTrace())
		os.Exit(1)
	}
}

// WriteCrashFile writes a crash report carrying the panic value, the
// stacks of every goroutine and basic runtime stats. Returns the path of
// the report, or "" if it could not be written.
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	name := fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05"))
	crashPath := filepath.Join(CrashLogDir, name)

	var report bytes.Buffer
	fmt.Fprintf(&report, "leadgen crash report\n")
	fmt.Fprintf(&report, "time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&report, "version: %s\n\n", GetFullVersion())
	fmt.Fprintf(&report, "panic: %v\n\n", panicVal)
	fmt.Fprintf(&report, "stack:\n%s\n", stackTrace)
	fmt.Fprintf(&report, "goroutines:\n%s\n", GetAllGoroutineStacks())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(&report, "num_goroutine: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&report, "num_cpu: %d\n", runtime.NumCPU())
	fmt.Fprintf(&report, "alloc_mb: %d\n", mem.Alloc/1024/1024)
	fmt.Fprintf(&report, "num_gc: %d\n", mem.NumGC)

	if err := os.WriteFile(crashPath, report.Bytes(), 0644); err != nil {
		// Last resort: dump the report to stderr so it is not lost.
		fmt.Fprintf(os.Stderr, "crash handler: cannot write report: %v\n%s", err, report.String())
		return ""
	}

	fmt.Fprintf(os.Stderr, "\nFATAL: crash report written to %s\npanic: %v\n", crashPath, panicVal)
	return crashPath
}

// GetAllGoroutineStacks dumps the stacks of every goroutine, growing the
// buffer until the dump fits.
func GetAllGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// GetStackTrace returns the current goroutine's stack.
func GetStackTrace() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
