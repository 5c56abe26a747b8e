package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RunLogger writes the artifact log of a single review run: stage
// transcripts, extracted suggestions and the final outcome. All methods are
// safe on a nil receiver so callers can skip the nil check when artifact
// logging is disabled.
type RunLogger struct {
	runID     string
	path      string
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
}

// StartRunLogging creates <dir>/run_<runID>_<timestamp>.log.
func StartRunLogging(dir, runID string) (*RunLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(dir, fmt.Sprintf("run_%s_%s.log", runID, timestamp))

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	r := &RunLogger{
		runID:     runID,
		path:      logPath,
		logFile:   logFile,
		startTime: time.Now(),
	}
	r.Log("Run %s started at %s", runID, r.startTime.Format(time.RFC3339))
	return r, nil
}

// Path returns the artifact file path.
func (r *RunLogger) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// Log writes a timestamped line.
func (r *RunLogger) Log(format string, args ...interface{}) {
	if r == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	elapsed := time.Since(r.startTime).Round(time.Millisecond)
	fmt.Fprintf(r.logFile, "[%s] [+%v] %s\n", time.Now().Format("15:04:05.000"), elapsed, fmt.Sprintf(format, args...))
}

// LogSection writes a section header.
func (r *RunLogger) LogSection(title string) {
	if r == nil {
		return
	}
	separator := strings.Repeat("=", 80)
	r.Log("%s", separator)
	r.Log("= %s", title)
	r.Log("%s", separator)
}

// LogMessage writes one transcript message, indented under its speaker.
func (r *RunLogger) LogMessage(speaker, content string) {
	if r == nil {
		return
	}
	r.Log("%s:\n    %s", speaker, strings.ReplaceAll(strings.TrimSpace(content), "\n", "\n    "))
}

// Close writes the footer and closes the file.
func (r *RunLogger) Close() error {
	if r == nil {
		return nil
	}
	r.Log("Run %s finished after %v", r.runID, time.Since(r.startTime).Round(time.Millisecond))

	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.logFile.Close()
}
