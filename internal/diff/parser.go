package diff

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/appsec/pkg/models"
)

// hunkHeader matches "@@ -<old>[,<len>] +<new>[,<len>] @@". Git omits the
// length when it is 1, so both lengths are optional.
var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

const noNewlineMarker = "no newline at end of file"

// ParseHunks splits a single file's unified-diff patch into hunks. Each hunk
// keeps the pre-patch lines unnumbered and prefixes every post-patch line
// with its line number in the patched file. The one-character diff marker is
// dropped from both views since each view already tells its side.
//
// Lines before the first header are ignored, so a patch without any header
// yields no hunks.
func ParseHunks(patch string) []models.Hunk {
	if patch == "" {
		return nil
	}

	var (
		hunks   []models.Hunk
		current *models.Hunk
		oldLine int
		newLine int
	)

	flush := func() {
		if current != nil {
			hunks = append(hunks, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(strings.TrimSuffix(patch, "\n"), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if m := hunkHeader.FindStringSubmatch(line); m != nil {
			flush()
			oldStart, _ := strconv.Atoi(m[1])
			newStart, _ := strconv.Atoi(m[3])
			oldLine = oldStart - 1
			newLine = newStart - 1
			current = &models.Hunk{Header: line}
			continue
		}

		if current == nil {
			continue
		}

		if strings.HasPrefix(line, "\\") && strings.Contains(strings.ToLower(line), noNewlineMarker) {
			continue
		}

		switch {
		case strings.HasPrefix(line, "-"):
			oldLine++
			current.OldView = append(current.OldView, line[1:])
		case strings.HasPrefix(line, "+"):
			newLine++
			current.NewView = append(current.NewView, numbered(newLine, line[1:]))
		default:
			oldLine++
			newLine++
			text := strings.TrimPrefix(line, " ")
			current.OldView = append(current.OldView, text)
			current.NewView = append(current.NewView, numbered(newLine, text))
		}
	}
	flush()

	return hunks
}

// ParseFile parses a file patch into a FileChange.
func ParseFile(p models.FilePatch) models.FileChange {
	return models.FileChange{
		Filename: p.Filename,
		Hunks:    ParseHunks(p.Patch),
	}
}

// ParseFiles parses every patch in source order.
func ParseFiles(patches []models.FilePatch) []models.FileChange {
	changes := make([]models.FileChange, 0, len(patches))
	for _, p := range patches {
		changes = append(changes, ParseFile(p))
	}
	return changes
}

func numbered(n int, line string) models.NumberedLine {
	return models.NumberedLine{Number: n, Text: strconv.Itoa(n) + " " + line}
}
