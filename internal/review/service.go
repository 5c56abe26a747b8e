// Package review runs one security review of a change set end to end.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/appsec/internal/batch"
	"github.com/appsec/internal/config"
	"github.com/appsec/internal/diff"
	"github.com/appsec/internal/emitter"
	"github.com/appsec/internal/gate"
	"github.com/appsec/internal/logging"
	"github.com/appsec/internal/pipeline"
	"github.com/appsec/internal/prompts"
	"github.com/appsec/internal/providers"
	"github.com/appsec/internal/redact"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/internal/suggestions"
	"github.com/appsec/pkg/models"
)

// Service represents the review orchestration service
type Service struct {
	settings  config.Settings
	source    providers.ChangeSetSource
	responder pipeline.Responder
	redactor  *redact.Redactor
	manager   pipeline.Role
	stages    []pipeline.Stage
}

// Option customizes a Service
type Option func(*Service)

// WithStages replaces the default review, exploitation and mitigation stages.
func WithStages(manager pipeline.Role, stages []pipeline.Stage) Option {
	return func(s *Service) {
		s.manager = manager
		s.stages = stages
	}
}

// NewService creates a review service. The responder also performs the
// corrective reformat pass of the extractor.
func NewService(settings config.Settings, source providers.ChangeSetSource, responder pipeline.Responder, opts ...Option) (*Service, error) {
	s := &Service{
		settings:  settings,
		source:    source,
		responder: responder,
		manager:   pipeline.DefaultManager(),
		stages:    pipeline.DefaultStages(settings.Pipeline),
	}
	for _, opt := range opts {
		opt(s)
	}

	if settings.Gate.Enabled {
		found := false
		for _, st := range s.stages {
			if st.Name == settings.Gate.Stage {
				found = true
				break
			}
		}
		if !found {
			return nil, runerr.Configuration("create review service", "gate.stage %q is not one of the configured stages", settings.Gate.Stage)
		}
	}

	if settings.Redact {
		r, err := redact.New()
		if err != nil {
			return nil, runerr.Configuration("create review service", "%v", err)
		}
		s.redactor = r
	}
	return s, nil
}

// Run reviews the change set named by ref: fetch, parse, redact, build the
// context, run the stages, extract and cross-validate suggestions, post
// them, and finally apply the severity gate.
func (s *Service) Run(ctx context.Context, ref models.ChangeSetRef) (*Outcome, error) {
	return s.RunWithID(ctx, uuid.NewString(), ref)
}

// RunWithID is Run with a caller-chosen run id.
func (s *Service) RunWithID(ctx context.Context, runID string, ref models.ChangeSetRef) (outcome *Outcome, err error) {
	outcome = &Outcome{
		RunID:     runID,
		Source:    s.source.Name(),
		Ref:       ref,
		DryRun:    s.settings.DryRun,
		StartedAt: time.Now(),
	}
	defer func() { outcome.Duration = time.Since(outcome.StartedAt) }()

	if s.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
	}

	runLog := s.startArtifactLog(runID)
	defer runLog.Close()
	outcome.ArtifactPath = runLog.Path()

	logger := log.With().Str("run_id", runID).Str("source", outcome.Source).Str("repo", ref.Repo).Str("to", ref.To).Logger()
	logger.Info().Bool("dry_run", s.settings.DryRun).Msg("Review run started")

	defer func() {
		if err != nil {
			runLog.LogSection("RUN FAILED")
			runLog.Log("%v", err)
			logger.Error().Err(err).Dur("duration", time.Since(outcome.StartedAt)).Msg("Review run failed")
			return
		}
		logger.Info().
			Int("suggestions", len(outcome.Suggestions)).
			Int("dropped", len(outcome.Dropped)).
			Int("posted", outcome.Posted()).
			Dur("duration", time.Since(outcome.StartedAt)).
			Msg("Review run finished")
	}()

	// Fetch and parse
	patches, err := s.source.GetChangedFiles(ctx, ref)
	if err != nil {
		return outcome, err
	}
	patches, outcome.Skipped = batch.FilterReviewable(patches)

	if s.redactor != nil {
		patches, outcome.Redactions = s.redactor.RedactPatches(patches)
	}

	outcome.Files = diff.ParseFiles(patches)
	runLog.LogSection("CHANGED FILES")
	for _, f := range outcome.Files {
		runLog.Log("%s: %d hunk(s)", f.Filename, len(f.Hunks))
	}

	if outcome.HunkCount() == 0 {
		logger.Info().Msg("No reviewable hunks in change set, nothing to review")
		return outcome, nil
	}

	// Stages
	orch, err := pipeline.NewOrchestrator(s.responder, s.manager, s.stages,
		pipeline.WithSummaryPolicy(s.settings.Pipeline.SummaryPolicy),
		pipeline.WithRecorder(runLog))
	if err != nil {
		return outcome, runerr.Configuration("create orchestrator", "%v", err)
	}

	outcome.Stages, err = orch.Run(ctx, prompts.BuildReviewContext(outcome.Files))
	if err != nil {
		return outcome, err
	}

	extractor := suggestions.NewExtractor(suggestions.NewLLMReformatter(s.responder))

	var verdict gate.Verdict
	if s.settings.Gate.Enabled {
		verdict, err = s.evaluateGate(ctx, extractor, outcome.Stages)
		if err != nil {
			return outcome, err
		}
		outcome.Verdict = &verdict
	}

	// Extract and validate
	final := outcome.Stages[len(outcome.Stages)-1]
	extracted, err := extractor.Extract(ctx, final.Summary)
	if err != nil {
		return outcome, err
	}
	outcome.Suggestions, outcome.Dropped = suggestions.CrossValidate(extracted.Suggestions, diff.NewLineIndex(outcome.Files))

	runLog.LogSection("SUGGESTIONS")
	for _, sg := range outcome.Suggestions {
		runLog.Log("%s:%d-%d %s", sg.Filename, sg.LineNumberStart, sg.LineNumberEnd, sg.Summary)
	}
	for _, d := range outcome.Dropped {
		runLog.Log("dropped %s:%d-%d: %s", d.Suggestion.Filename, d.Suggestion.LineNumberStart, d.Suggestion.LineNumberEnd, d.Reason)
	}

	// Emit
	if s.settings.DryRun {
		logger.Info().Int("suggestions", len(outcome.Suggestions)).Msg("Dry run, not posting comments")
	} else if len(outcome.Suggestions) > 0 {
		outcome.CommitID, err = s.source.GetHeadCommit(ctx, ref)
		if err != nil {
			return outcome, err
		}
		outcome.Emission = emitter.New(s.source, ref, s.settings.Emit).Emit(ctx, outcome.CommitID, outcome.Suggestions)
		if err := outcome.Emission.Err(); err != nil {
			return outcome, err
		}
	}

	return outcome, verdict.Err()
}

func (s *Service) evaluateGate(ctx context.Context, extractor *suggestions.Extractor, results []pipeline.StageResult) (gate.Verdict, error) {
	for _, r := range results {
		if r.StageName != s.settings.Gate.Stage {
			continue
		}
		reviews, err := extractor.ExtractReviews(ctx, r.Summary)
		if err != nil {
			return gate.Verdict{}, err
		}
		verdict := gate.Evaluate(reviews.Reviews, s.settings.Gate.FailOn)
		log.Info().
			Str("stage", r.StageName).
			Int("reviews", len(reviews.Reviews)).
			Bool("failed", verdict.Failed).
			Msg("Severity gate evaluated")
		return verdict, nil
	}
	return gate.Verdict{}, fmt.Errorf("gate stage %s produced no result", s.settings.Gate.Stage)
}

func (s *Service) startArtifactLog(runID string) *logging.RunLogger {
	if s.settings.ArtifactsDir == "" {
		return nil
	}
	runLog, err := logging.StartRunLogging(s.settings.ArtifactsDir, runID)
	if err != nil {
		log.Warn().Err(err).Str("dir", s.settings.ArtifactsDir).Msg("Artifact log disabled")
		return nil
	}
	return runLog
}
