package diff

import "github.com/appsec/pkg/models"

// LineIndex answers whether a post-patch line range is addressable, i.e.
// whether it lies inside the new view of a single hunk of a file.
type LineIndex struct {
	ranges map[string][][2]int
}

// NewLineIndex indexes the new-view ranges of every hunk.
func NewLineIndex(changes []models.FileChange) *LineIndex {
	idx := &LineIndex{ranges: make(map[string][][2]int)}
	for _, fc := range changes {
		for _, h := range fc.Hunks {
			if len(h.NewView) == 0 {
				continue
			}
			idx.ranges[fc.Filename] = append(idx.ranges[fc.Filename], [2]int{h.FirstLine(), h.LastLine()})
		}
	}
	return idx
}

// HasFile reports whether any hunk of filename has post-patch lines.
func (idx *LineIndex) HasFile(filename string) bool {
	_, ok := idx.ranges[filename]
	return ok
}

// Contains reports whether start..end fall inside one hunk of filename.
func (idx *LineIndex) Contains(filename string, start, end int) bool {
	if start > end {
		return false
	}
	for _, r := range idx.ranges[filename] {
		if start >= r[0] && end <= r[1] {
			return true
		}
	}
	return false
}
