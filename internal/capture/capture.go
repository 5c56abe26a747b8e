// Package capture records raw payloads from hosting services and reasoning
// providers as test fixtures. It is off unless APPSEC_CAPTURE_DIR is set.
package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// EnvCaptureDir is the environment variable that enables capture.
const EnvCaptureDir = "APPSEC_CAPTURE_DIR"

var (
	sessionID  = time.Now().Format("20060102-150405")
	captureSeq uint64

	mu       sync.RWMutex
	override *string
)

// SetDir overrides the capture directory for this process. An empty dir
// disables capture.
func SetDir(dir string) {
	mu.Lock()
	defer mu.Unlock()
	override = &dir
}

// Reset drops a SetDir override so the environment decides again.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	override = nil
}

func dir() string {
	mu.RLock()
	defer mu.RUnlock()
	if override != nil {
		return *override
	}
	return strings.TrimSpace(os.Getenv(EnvCaptureDir))
}

// Enabled reports whether capture is currently active.
func Enabled() bool {
	return dir() != ""
}

// WriteBlob stores data as <dir>/<session>/<namespace>/<category>-<seq>.<ext>.
// Failures are logged and otherwise ignored.
func WriteBlob(namespace, category, ext string, data []byte) {
	base := dir()
	if base == "" {
		return
	}

	seq := atomic.AddUint64(&captureSeq, 1)
	target := filepath.Join(base, sessionID, namespace)
	if err := os.MkdirAll(target, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", target).Msg("capture: failed to create directory")
		return
	}

	path := filepath.Join(target, fmt.Sprintf("%s-%04d.%s", sanitize(category), seq, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("capture: failed to write file")
		return
	}
	log.Debug().Str("path", path).Msg("capture: wrote fixture")
}

// WriteJSON marshals payload to indented JSON and stores it like WriteBlob.
func WriteJSON(namespace, category string, payload interface{}) {
	if !Enabled() {
		return
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Warn().Err(err).Str("category", category).Msg("capture: failed to marshal payload")
		return
	}
	WriteBlob(namespace, category, "json", data)
}

// sanitize turns an operation name into a file name fragment.
func sanitize(category string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, strings.ToLower(category))
}
