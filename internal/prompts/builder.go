package prompts

import (
	"fmt"
	"strings"
)

// BuildOpeningMessage builds the manager's first message of a stage. The
// previous stage's summary is appended only when the stage chains on it.
func BuildOpeningMessage(reviewContext, previousStage, previousSummary string) string {
	var b strings.Builder
	b.WriteString("# Code Changes\n\n")
	b.WriteString(reviewContext)

	if previousSummary != "" {
		b.WriteString("# Findings from " + previousStage + "\n\n")
		b.WriteString(previousSummary)
		b.WriteString("\n")
	}
	return b.String()
}

// BuildSystemPrompt combines a role description with its instructions.
func BuildSystemPrompt(name, description, instructions string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("You are %s. %s\n\n", name, strings.TrimSpace(description)))
	b.WriteString(strings.TrimSpace(instructions))
	return b.String()
}

// BuildReformatPrompt asks for the same content again as JSON matching schema.
func BuildReformatPrompt(previous string, validationErr error, schema string) string {
	return fmt.Sprintf(ReformatInstructions, validationErr.Error(), schema, previous)
}
