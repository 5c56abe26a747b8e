package suggestions

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/appsec/internal/diff"
	"github.com/appsec/pkg/models"
)

// Dropped is a suggestion rejected by CrossValidate.
type Dropped struct {
	Suggestion models.CodeSuggestion
	Reason     string
}

// CrossValidate keeps the suggestions whose line range lies inside one hunk
// of the named file's post-patch view. The rest are returned as dropped;
// dropping is never an error.
func CrossValidate(suggestions []models.CodeSuggestion, idx *diff.LineIndex) (kept []models.CodeSuggestion, dropped []Dropped) {
	for _, s := range suggestions {
		var reason string
		switch {
		case !idx.HasFile(s.Filename):
			reason = fmt.Sprintf("file %s has no post-patch lines in this change", s.Filename)
		case !idx.Contains(s.Filename, s.LineNumberStart, s.LineNumberEnd):
			reason = fmt.Sprintf("lines %d-%d of %s are not inside one changed hunk", s.LineNumberStart, s.LineNumberEnd, s.Filename)
		}

		if reason != "" {
			log.Warn().
				Str("filename", s.Filename).
				Int("start", s.LineNumberStart).
				Int("end", s.LineNumberEnd).
				Str("reason", reason).
				Msg("Dropping suggestion")
			dropped = append(dropped, Dropped{Suggestion: s, Reason: reason})
			continue
		}
		kept = append(kept, s)
	}
	return kept, dropped
}
