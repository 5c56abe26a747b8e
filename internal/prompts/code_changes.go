package prompts

import (
	"strings"

	"github.com/appsec/pkg/models"
)

// BuildReviewContext flattens the parsed changes into the text every stage
// receives. Files and hunks keep their order and nothing is truncated.
func BuildReviewContext(changes []models.FileChange) string {
	var b strings.Builder
	for _, fc := range changes {
		b.WriteString("<file>\n")
		b.WriteString(FileNameOpen + fc.Filename + FileNameClose + "\n\n")

		for _, h := range fc.Hunks {
			b.WriteString(h.Header)
			b.WriteString("\n" + OldCodeMarker + "\n")
			b.WriteString(h.OldText())
			b.WriteString("\n\n" + NewCodeMarker + "\n")
			b.WriteString(h.NewText())
			b.WriteString("\n\n")
		}

		b.WriteString(FileClose + "\n\n")
	}
	return b.String()
}
