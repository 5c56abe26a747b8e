package review

import (
	"time"

	"github.com/appsec/internal/emitter"
	"github.com/appsec/internal/gate"
	"github.com/appsec/internal/pipeline"
	"github.com/appsec/internal/redact"
	"github.com/appsec/internal/suggestions"
	"github.com/appsec/pkg/models"
)

// Outcome records everything a run produced. It is returned, possibly
// partially filled, even when the run fails.
type Outcome struct {
	RunID    string
	Source   string
	Ref      models.ChangeSetRef
	CommitID string
	DryRun   bool

	Files      []models.FileChange
	Skipped    []string
	Redactions []redact.Finding

	Stages      []pipeline.StageResult
	Suggestions []models.CodeSuggestion
	Dropped     []suggestions.Dropped

	Emission *emitter.Report // nil on dry runs
	Verdict  *gate.Verdict   // nil when the gate is disabled

	ArtifactPath string
	StartedAt    time.Time
	Duration     time.Duration
}

// HunkCount counts the parsed hunks over all files.
func (o *Outcome) HunkCount() int {
	n := 0
	for _, f := range o.Files {
		n += len(f.Hunks)
	}
	return n
}

// Posted counts the comments accepted by the source.
func (o *Outcome) Posted() int {
	if o.Emission == nil {
		return 0
	}
	return o.Emission.Posted()
}
