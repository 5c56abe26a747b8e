package suggestions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/appsec/internal/llm"
	"github.com/appsec/pkg/models"
)

// ValidationError lists every problem found in a structured response.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

type rawSuggestion struct {
	Filename        *string `json:"filename"`
	Language        *string `json:"language"`
	LineNumberStart *int    `json:"line_number_start"`
	LineNumberEnd   *int    `json:"line_number_end"`
	PreviousCode    *string `json:"previous_code"`
	SuggestedCode   *string `json:"suggested_code"`
	Summary         *string `json:"summary"`
}

type rawSuggestions struct {
	Suggestions *[]json.RawMessage `json:"suggestions"`
}

// Parse decodes a stage summary into suggestions. Every field of every
// suggestion must be present with the right type, and line ranges must be
// positive and ordered. Syntax slips such as trailing commas are repaired.
func Parse(raw string) (models.CodeSuggestions, error) {
	var envelope rawSuggestions
	if _, err := llm.ProcessLLMResponse(raw, &envelope); err != nil {
		return models.CodeSuggestions{}, &ValidationError{Problems: []string{err.Error()}}
	}
	if envelope.Suggestions == nil {
		return models.CodeSuggestions{}, &ValidationError{Problems: []string{"suggestions: missing"}}
	}

	verr := &ValidationError{}
	out := models.CodeSuggestions{Suggestions: make([]models.CodeSuggestion, 0, len(*envelope.Suggestions))}

	for i, item := range *envelope.Suggestions {
		var rs rawSuggestion
		if err := json.Unmarshal(item, &rs); err != nil {
			verr.add("suggestions[%d]: %v", i, err)
			continue
		}

		before := len(verr.Problems)
		requireString(verr, i, "filename", rs.Filename, true)
		requireString(verr, i, "language", rs.Language, false)
		requireString(verr, i, "previous_code", rs.PreviousCode, false)
		requireString(verr, i, "suggested_code", rs.SuggestedCode, false)
		requireString(verr, i, "summary", rs.Summary, true)

		switch {
		case rs.LineNumberStart == nil:
			verr.add("suggestions[%d].line_number_start: missing", i)
		case *rs.LineNumberStart < 1:
			verr.add("suggestions[%d].line_number_start: must be >= 1, got %d", i, *rs.LineNumberStart)
		}
		switch {
		case rs.LineNumberEnd == nil:
			verr.add("suggestions[%d].line_number_end: missing", i)
		case rs.LineNumberStart != nil && *rs.LineNumberEnd < *rs.LineNumberStart:
			verr.add("suggestions[%d].line_number_end: must be >= line_number_start (%d), got %d", i, *rs.LineNumberStart, *rs.LineNumberEnd)
		}

		if len(verr.Problems) > before {
			continue
		}

		out.Suggestions = append(out.Suggestions, models.CodeSuggestion{
			Filename:        *rs.Filename,
			Language:        *rs.Language,
			LineNumberStart: *rs.LineNumberStart,
			LineNumberEnd:   *rs.LineNumberEnd,
			PreviousCode:    *rs.PreviousCode,
			SuggestedCode:   *rs.SuggestedCode,
			Summary:         *rs.Summary,
		})
	}

	if len(verr.Problems) > 0 {
		return models.CodeSuggestions{}, verr
	}
	return out, nil
}

func requireString(verr *ValidationError, i int, field string, v *string, nonEmpty bool) {
	switch {
	case v == nil:
		verr.add("suggestions[%d].%s: missing", i, field)
	case nonEmpty && strings.TrimSpace(*v) == "":
		verr.add("suggestions[%d].%s: must not be empty", i, field)
	}
}

type rawReviews struct {
	Reviews *[]json.RawMessage `json:"reviews"`
}

// ParseReviews decodes the review records read by the severity gate. Fields
// of a record are optional but must have the right type when present.
func ParseReviews(raw string) (models.Reviews, error) {
	var envelope rawReviews
	if _, err := llm.ProcessLLMResponse(raw, &envelope); err != nil {
		return models.Reviews{}, &ValidationError{Problems: []string{err.Error()}}
	}
	if envelope.Reviews == nil {
		return models.Reviews{}, &ValidationError{Problems: []string{"reviews: missing"}}
	}

	verr := &ValidationError{}
	out := models.Reviews{Reviews: make([]models.Review, 0, len(*envelope.Reviews))}
	for i, item := range *envelope.Reviews {
		var r models.Review
		if err := json.Unmarshal(item, &r); err != nil {
			verr.add("reviews[%d]: %v", i, err)
			continue
		}
		out.Reviews = append(out.Reviews, r)
	}

	if len(verr.Problems) > 0 {
		return models.Reviews{}, verr
	}
	return out, nil
}
