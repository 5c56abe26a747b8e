// Package batch holds the worker queue used to fan out hosting calls and the
// filtering applied to changed files before they are reviewed.
package batch

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/appsec/pkg/models"
)

// binaryExtensions lists file types whose patches are never textual code.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".tif": true, ".tiff": true, ".webp": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".lib": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true, ".7z": true,
	".rar": true, ".jar": true, ".war": true, ".ear": true, ".class": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".bin": true, ".dat": true, ".o": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".webm": true, ".ttf": true, ".woff": true, ".woff2": true,
	".eot": true, ".pyc": true, ".pyd": true, ".pyo": true,
}

// FilterReviewable drops patches that cannot be reviewed as text: empty
// patches, binary file types and binary-looking content. Order is kept.
func FilterReviewable(patches []models.FilePatch) (kept []models.FilePatch, skipped []string) {
	for _, p := range patches {
		if shouldSkip(p) {
			log.Info().Str("filename", p.Filename).Str("status", p.Status).Msg("Skipping non-textual file")
			skipped = append(skipped, p.Filename)
			continue
		}
		kept = append(kept, p)
	}
	return kept, skipped
}

func shouldSkip(p models.FilePatch) bool {
	if strings.TrimSpace(p.Patch) == "" {
		return true
	}
	if binaryExtensions[strings.ToLower(filepath.Ext(p.Filename))] {
		return true
	}
	return IsBinaryFile(p.Patch)
}

// IsBinaryFile checks if content is likely binary: it holds a NUL byte or
// more than 30% of its first 512 bytes are control characters or invalid UTF-8.
func IsBinaryFile(content string) bool {
	if len(content) == 0 {
		return false
	}
	if strings.Contains(content, "\x00") {
		return true
	}

	sample := content
	if len(sample) > 512 {
		sample = sample[:512]
	}

	total, nonPrintable := 0, 0
	for i := 0; i < len(sample); {
		r, size := utf8.DecodeRuneInString(sample[i:])
		// A rune cut off by the sample boundary is not evidence of binary data.
		if r == utf8.RuneError && size == 1 && !utf8.FullRuneInString(sample[i:]) {
			break
		}
		total++
		if r == utf8.RuneError || (r < 32 && r != '\t' && r != '\n' && r != '\r') || r == 127 {
			nonPrintable++
		}
		i += size
	}
	if total == 0 {
		return false
	}
	return float64(nonPrintable)/float64(total) > 0.3
}
