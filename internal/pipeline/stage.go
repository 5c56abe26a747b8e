package pipeline

import (
	"github.com/appsec/internal/config"
	"github.com/appsec/internal/prompts"
)

// Role is a named participant of a stage conversation.
type Role struct {
	Name         string
	Description  string
	Instructions string
}

// SystemPrompt renders the role as a system prompt.
func (r Role) SystemPrompt() string {
	return prompts.BuildSystemPrompt(r.Name, r.Description, r.Instructions)
}

// Stage is one step of the review. Stages run in slice order.
type Stage struct {
	Role
	MaxTurns int
	// ChainOnPrevious appends the previous stage's summary to the opening
	// message. Stages otherwise see only the review context.
	ChainOnPrevious bool
}

// Message is one entry of a stage transcript.
type Message struct {
	Speaker string
	Content string
}

// StageResult is the outcome of one stage.
type StageResult struct {
	StageName  string
	Transcript []Message
	Summary    string
	Turns      int
	Terminated bool // the conversation ended on the termination marker
}

// DefaultManager returns the role that opens and steers every stage.
func DefaultManager() Role {
	return Role{
		Name:         prompts.ManagerAgentName,
		Description:  prompts.ManagerDescription,
		Instructions: prompts.ManagerInstructions,
	}
}

// DefaultStages returns review, exploitation and mitigation, in that order.
func DefaultStages(settings config.PipelineSettings) []Stage {
	roles := []Role{
		{Name: prompts.ReviewerAgentName, Description: prompts.ReviewerDescription, Instructions: prompts.ReviewerInstructions},
		{Name: prompts.ExploiterAgentName, Description: prompts.ExploiterDescription, Instructions: prompts.ExploiterInstructions},
		{Name: prompts.MitigatorAgentName, Description: prompts.MitigatorDescription, Instructions: prompts.MitigatorInstructions},
	}

	stages := make([]Stage, len(roles))
	for i, r := range roles {
		stages[i] = Stage{
			Role:            r,
			MaxTurns:        settings.TurnsFor(r.Name),
			ChainOnPrevious: settings.Chain && i > 0,
		}
	}
	return stages
}
