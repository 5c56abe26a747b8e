// Package emitter posts validated suggestions as inline review comments.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/appsec/internal/batch"
	"github.com/appsec/internal/config"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

// Poster is the part of a change-set source the emitter needs.
type Poster interface {
	PostReviewComment(ctx context.Context, ref models.ChangeSetRef, commitID string, c models.ReviewComment) error
}

// Result is the outcome of posting one suggestion.
type Result struct {
	Suggestion models.CodeSuggestion
	Comment    models.ReviewComment
	Err        error
}

// Report lists one result per suggestion, in the order they were given.
type Report struct {
	CommitID string
	Results  []Result
	Duration time.Duration
}

// Posted counts the comments that were accepted.
func (r *Report) Posted() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the results whose post failed.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err aggregates every failed post into one transport error, or returns nil.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}

	lines := make([]string, 0, len(failed))
	for _, f := range failed {
		lines = append(lines, fmt.Sprintf("%s:%d: %v", f.Comment.Path, f.Comment.Line, f.Err))
	}

	category := runerr.CategoryUnexpected
	var first *runerr.Error
	if errors.As(failed[0].Err, &first) && first.Category != "" {
		category = first.Category
	}
	return runerr.Transport("post review comments", category,
		fmt.Sprintf("%d of %d comment(s) failed:\n%s", len(failed), len(r.Results), strings.Join(lines, "\n")), nil)
}

// Emitter posts comments with bounded concurrency under a rate limit.
type Emitter struct {
	poster      Poster
	ref         models.ChangeSetRef
	concurrency int
	limiter     *rate.Limiter
}

// New creates an emitter posting to poster for ref.
func New(poster Poster, ref models.ChangeSetRef, settings config.EmitSettings) *Emitter {
	concurrency := settings.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	limit := rate.Inf
	if settings.RequestsPerSecond > 0 {
		limit = rate.Limit(settings.RequestsPerSecond)
	}
	burst := settings.Burst
	if burst < 1 {
		burst = 1
	}

	return &Emitter{
		poster:      poster,
		ref:         ref,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, burst),
	}
}

// Emit posts every suggestion against commitID. A failed post never stops
// the others; failures are recorded in the report.
func (e *Emitter) Emit(ctx context.Context, commitID string, suggestions []models.CodeSuggestion) *Report {
	start := time.Now()
	report := &Report{CommitID: commitID, Results: make([]Result, len(suggestions))}

	queue := batch.NewTaskQueue(e.concurrency)
	for i, s := range suggestions {
		comment := Anchor(s)
		report.Results[i] = Result{Suggestion: s, Comment: comment}

		queue.AddTask(batch.NewFuncTask(fmt.Sprintf("%s:%d", s.Filename, s.LineNumberEnd), func(ctx context.Context) (interface{}, error) {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return nil, e.poster.PostReviewComment(ctx, e.ref, commitID, comment)
		}))
	}

	for i, res := range queue.ProcessAll(ctx) {
		report.Results[i].Err = res.Error
		s := report.Results[i].Suggestion
		if res.Error != nil {
			log.Error().Err(res.Error).Str("filename", s.Filename).Int("start", s.LineNumberStart).Int("end", s.LineNumberEnd).Msg("Failed to post review comment")
			continue
		}
		log.Debug().Str("filename", s.Filename).Int("start", s.LineNumberStart).Int("end", s.LineNumberEnd).Msg("Posted review comment")
	}

	report.Duration = time.Since(start)
	log.Info().
		Str("commit", commitID).
		Int("posted", report.Posted()).
		Int("failed", len(report.Failed())).
		Dur("duration", report.Duration).
		Msg("Review comments emitted")
	return report
}
