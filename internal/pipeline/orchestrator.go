package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/appsec/internal/config"
	"github.com/appsec/internal/prompts"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

// Responder produces the next message of a conversation.
type Responder interface {
	Reply(ctx context.Context, systemPrompt string, history []models.ChatMessage) (string, error)
}

// Recorder receives every transcript message, e.g. a run artifact log.
type Recorder interface {
	LogSection(title string)
	LogMessage(speaker, content string)
}

// Orchestrator runs the stages of a review one after another.
type Orchestrator struct {
	responder     Responder
	manager       Role
	stages        []Stage
	summaryPolicy string
	recorder      Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSummaryPolicy selects how a stage summary is produced.
func WithSummaryPolicy(policy string) Option {
	return func(o *Orchestrator) { o.summaryPolicy = policy }
}

// WithRecorder sends transcripts to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// NewOrchestrator validates the stage list and builds an orchestrator.
func NewOrchestrator(responder Responder, manager Role, stages []Stage, opts ...Option) (*Orchestrator, error) {
	if responder == nil {
		return nil, errors.New("pipeline: responder is required")
	}
	if len(stages) == 0 {
		return nil, errors.New("pipeline: at least one stage is required")
	}

	seen := make(map[string]bool, len(stages))
	for _, s := range stages {
		if s.Name == "" {
			return nil, errors.New("pipeline: stage name is required")
		}
		if s.Name == manager.Name {
			return nil, fmt.Errorf("pipeline: stage %s has the manager's name", s.Name)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("pipeline: duplicate stage %s", s.Name)
		}
		seen[s.Name] = true
		if s.MaxTurns < 1 {
			return nil, fmt.Errorf("pipeline: stage %s needs max_turns >= 1, got %d", s.Name, s.MaxTurns)
		}
	}

	o := &Orchestrator{
		responder:     responder,
		manager:       manager,
		stages:        stages,
		summaryPolicy: config.SummaryLastMessage,
	}
	for _, opt := range opts {
		opt(o)
	}

	switch o.summaryPolicy {
	case config.SummaryLastMessage, config.SummaryReflection:
	default:
		return nil, fmt.Errorf("pipeline: unknown summary policy %q", o.summaryPolicy)
	}

	return o, nil
}

// Stages returns the configured stages in execution order.
func (o *Orchestrator) Stages() []Stage {
	return o.stages
}

// Run executes every stage in order against the same review context. The
// context is checked before each stage; a failed reasoning call aborts the
// whole run with a communication error.
func (o *Orchestrator) Run(ctx context.Context, reviewContext string) ([]StageResult, error) {
	results := make([]StageResult, 0, len(o.stages))

	for i, stage := range o.stages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline canceled before stage %s: %w", stage.Name, err)
		}

		var previousStage, previousSummary string
		if stage.ChainOnPrevious && i > 0 {
			previousStage = results[i-1].StageName
			previousSummary = results[i-1].Summary
		}
		opening := prompts.BuildOpeningMessage(reviewContext, previousStage, previousSummary)

		start := time.Now()
		log.Info().Str("stage", stage.Name).Int("max_turns", stage.MaxTurns).Msg("Stage started")

		result, err := o.runStage(ctx, stage, opening)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("pipeline canceled during stage %s: %w", stage.Name, ctxErr)
			}
			return nil, runerr.Communication(stage.Name, err)
		}

		log.Info().
			Str("stage", stage.Name).
			Int("turns", result.Turns).
			Bool("terminated", result.Terminated).
			Int("summary_bytes", len(result.Summary)).
			Dur("duration", time.Since(start)).
			Msg("Stage finished")

		results = append(results, result)
	}

	return results, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage, opening string) (StageResult, error) {
	result := StageResult{StageName: stage.Name}
	if o.recorder != nil {
		o.recorder.LogSection(stage.Name)
	}

	record := func(speaker, content string) {
		result.Transcript = append(result.Transcript, Message{Speaker: speaker, Content: content})
		if o.recorder != nil {
			o.recorder.LogMessage(speaker, content)
		}
	}
	record(o.manager.Name, opening)

	for turn := 1; turn <= stage.MaxTurns; turn++ {
		result.Turns = turn

		reply, err := o.responder.Reply(ctx, stage.SystemPrompt(), perspective(stage.Name, result.Transcript))
		if err != nil {
			return StageResult{}, err
		}
		if done := o.accept(&result, stage.Name, reply, record); done {
			break
		}

		if turn == stage.MaxTurns {
			break
		}

		reply, err = o.responder.Reply(ctx, o.manager.SystemPrompt(), perspective(o.manager.Name, result.Transcript))
		if err != nil {
			return StageResult{}, err
		}
		if done := o.accept(&result, o.manager.Name, reply, record); done {
			break
		}
	}

	summary, err := o.summarize(ctx, result.Transcript)
	if err != nil {
		return StageResult{}, err
	}
	result.Summary = summary
	return result, nil
}

// accept records reply and reports whether it ended the stage.
func (o *Orchestrator) accept(result *StageResult, speaker, reply string, record func(string, string)) bool {
	terminated := strings.Contains(reply, prompts.TerminateMarker)
	content := strings.TrimSpace(reply)
	if terminated {
		content = strings.TrimSpace(strings.ReplaceAll(content, prompts.TerminateMarker, ""))
	}
	if content != "" {
		record(speaker, content)
	}
	result.Terminated = terminated
	return terminated
}

func (o *Orchestrator) summarize(ctx context.Context, transcript []Message) (string, error) {
	if o.summaryPolicy == config.SummaryReflection {
		return o.responder.Reply(ctx, prompts.ReflectionInstructions, []models.ChatMessage{
			{Role: models.RoleUser, Content: FormatTranscript(transcript)},
		})
	}
	return lastStageMessage(transcript, o.manager.Name), nil
}

// lastStageMessage returns the newest message not spoken by the manager, so
// a closing remark next to the terminate marker never replaces the stage
// agent's answer. The manager's opening is the fallback.
func lastStageMessage(transcript []Message, manager string) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Speaker != manager {
			return transcript[i].Content
		}
	}
	return transcript[len(transcript)-1].Content
}

// perspective renders the transcript as seen by speaker: its own messages
// are assistant turns, everybody else's are user turns. Conversations must
// open with a user turn, so one is prepended when speaker opened it.
func perspective(speaker string, transcript []Message) []models.ChatMessage {
	history := make([]models.ChatMessage, 0, len(transcript)+1)
	if len(transcript) > 0 && transcript[0].Speaker == speaker {
		history = append(history, models.ChatMessage{Role: models.RoleUser, Content: "Start the review."})
	}
	for _, m := range transcript {
		role := models.RoleUser
		if m.Speaker == speaker {
			role = models.RoleAssistant
		}
		history = append(history, models.ChatMessage{Role: role, Content: m.Content})
	}
	return history
}

// FormatTranscript renders a transcript as plain text.
func FormatTranscript(transcript []Message) string {
	var b strings.Builder
	for i, m := range transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Speaker + ":\n" + m.Content)
	}
	return b.String()
}
