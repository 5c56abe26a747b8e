package emitter

import (
	"strings"

	"github.com/appsec/pkg/models"
)

// FormatBody renders a suggestion as a comment body: the summary, a blank
// line, then a suggestion block the hosting service can apply. The fence is
// made longer than any backtick run inside the code.
func FormatBody(s models.CodeSuggestion) string {
	code := strings.TrimRight(s.SuggestedCode, "\n")
	fence := strings.Repeat("`", max(3, longestBacktickRun(code)+1))

	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.Summary))
	b.WriteString("\n\n")
	b.WriteString(fence)
	b.WriteString("suggestion\n")
	if code != "" {
		b.WriteString(code)
		b.WriteString("\n")
	}
	b.WriteString(fence)
	return b.String()
}

// Anchor builds the position-addressed comment for s. StartLine is left zero
// for single-line suggestions.
func Anchor(s models.CodeSuggestion) models.ReviewComment {
	c := models.ReviewComment{
		Path: s.Filename,
		Line: s.LineNumberEnd,
		Side: models.SideRight,
		Body: FormatBody(s),
	}
	if s.LineNumberStart < s.LineNumberEnd {
		c.StartLine = s.LineNumberStart
	}
	return c
}

func longestBacktickRun(s string) int {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	return longest
}
