package diff

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/appsec/pkg/models"
)

// File statuses, named the way the GitHub files API reports them.
const (
	StatusAdded    = "added"
	StatusRemoved  = "removed"
	StatusRenamed  = "renamed"
	StatusModified = "modified"
)

// SplitUnified splits the output of `git diff` into per-file patches. The
// patch of each file is the concatenation of its hunks, headers included, so
// it can be fed back to ParseHunks. Binary files keep an empty patch.
func SplitUnified(raw string) ([]models.FilePatch, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse unified diff: %w", err)
	}

	patches := make([]models.FilePatch, 0, len(files))
	for _, f := range files {
		var b strings.Builder
		if !f.IsBinary {
			for _, frag := range f.TextFragments {
				b.WriteString(frag.String())
			}
		}

		patches = append(patches, models.FilePatch{
			Filename: fileName(f),
			Status:   fileStatus(f),
			Patch:    strings.TrimSuffix(b.String(), "\n"),
		})
	}

	return patches, nil
}

func fileName(f *gitdiff.File) string {
	if f.IsDelete || f.NewName == "" {
		return f.OldName
	}
	return f.NewName
}

func fileStatus(f *gitdiff.File) string {
	switch {
	case f.IsNew:
		return StatusAdded
	case f.IsDelete:
		return StatusRemoved
	case f.IsRename:
		return StatusRenamed
	default:
		return StatusModified
	}
}
