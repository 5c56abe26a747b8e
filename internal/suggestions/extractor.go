package suggestions

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/appsec/internal/capture"
	"github.com/appsec/internal/prompts"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

// Reformatter rewrites malformed output so that it matches schema.
type Reformatter interface {
	Reformat(ctx context.Context, raw string, validationErr error, schema string) (string, error)
}

// Completer is the part of a reasoning connector the reformatter needs.
type Completer interface {
	Reply(ctx context.Context, systemPrompt string, history []models.ChatMessage) (string, error)
}

const reformatSystemPrompt = "You convert text into strictly valid JSON without changing its content."

// LLMReformatter asks a reasoning model to fix its own output.
type LLMReformatter struct {
	completer Completer
}

func NewLLMReformatter(c Completer) *LLMReformatter {
	return &LLMReformatter{completer: c}
}

func (r *LLMReformatter) Reformat(ctx context.Context, raw string, validationErr error, schema string) (string, error) {
	return r.completer.Reply(ctx, reformatSystemPrompt, []models.ChatMessage{
		{Role: models.RoleUser, Content: prompts.BuildReformatPrompt(raw, validationErr, schema)},
	})
}

// Extractor turns free-text stage output into validated records, with at
// most one corrective pass through the Reformatter.
type Extractor struct {
	reformatter Reformatter
}

func NewExtractor(r Reformatter) *Extractor {
	return &Extractor{reformatter: r}
}

// Extract parses the final stage summary into suggestions.
func (e *Extractor) Extract(ctx context.Context, raw string) (models.CodeSuggestions, error) {
	return extract(ctx, e.reformatter, "extract suggestions", raw, prompts.SuggestionsSchema, Parse)
}

// ExtractReviews parses a stage summary into severity gate records.
func (e *Extractor) ExtractReviews(ctx context.Context, raw string) (models.Reviews, error) {
	return extract(ctx, e.reformatter, "extract reviews", raw, prompts.ReviewsSchema, ParseReviews)
}

func extract[T any](ctx context.Context, reformatter Reformatter, op, raw, schema string, parse func(string) (T, error)) (T, error) {
	var zero T

	parsed, err := parse(raw)
	if err == nil {
		return parsed, nil
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		return zero, err
	}

	log.Warn().Str("op", op).Err(err).Msg("Structured output invalid, requesting one reformat")
	capture.WriteBlob("llm", op+" rejected", "txt", []byte(raw))

	corrected, rerr := reformatter.Reformat(ctx, raw, err, schema)
	if rerr != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, runerr.Communication("reformat", rerr)
	}

	parsed, err = parse(corrected)
	if err != nil {
		return zero, runerr.StructuredOutput(op, err)
	}

	log.Info().Str("op", op).Msg("Structured output recovered after reformat")
	return parsed, nil
}
