package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appsec/internal/review"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

// RunStatus is the lifecycle state of a triggered run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunError describes why a run failed.
type RunError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RunCounts summarizes what a run produced.
type RunCounts struct {
	Files       int `json:"files"`
	Hunks       int `json:"hunks"`
	Suggestions int `json:"suggestions"`
	Dropped     int `json:"dropped"`
	Posted      int `json:"posted"`
	Redactions  int `json:"redactions"`
}

// Run is the API view of a triggered run.
type Run struct {
	ID         string     `json:"run_id"`
	Status     RunStatus  `json:"status"`
	Repo       string     `json:"repo"`
	ToEvent    string     `json:"to_event"`
	FromEvent  string     `json:"from_event,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CommitID   string     `json:"commit_id,omitempty"`
	GateFailed bool       `json:"gate_failed"`
	Counts     *RunCounts `json:"counts,omitempty"`
	Error      *RunError  `json:"error,omitempty"`
}

// registry keeps the runs of this process in memory.
type registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func newRegistry() *registry {
	return &registry{runs: make(map[string]*Run)}
}

func (r *registry) create(ref models.ChangeSetRef) Run {
	run := &Run{
		ID:        uuid.NewString(),
		Status:    RunQueued,
		Repo:      ref.Repo,
		ToEvent:   ref.To,
		FromEvent: ref.From,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return *run
}

// get returns a copy so callers can read it without the lock.
func (r *registry) get(id string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

func (r *registry) start(id string) {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[id]; ok {
		run.Status = RunRunning
		run.StartedAt = &now
	}
}

func (r *registry) finish(id string, outcome *review.Outcome, err error) {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return
	}
	run.FinishedAt = &now
	run.Status = RunSucceeded

	if outcome != nil {
		run.CommitID = outcome.CommitID
		run.GateFailed = outcome.Verdict != nil && outcome.Verdict.Failed
		run.Counts = &RunCounts{
			Files:       len(outcome.Files),
			Hunks:       outcome.HunkCount(),
			Suggestions: len(outcome.Suggestions),
			Dropped:     len(outcome.Dropped),
			Posted:      outcome.Posted(),
			Redactions:  len(outcome.Redactions),
		}
	}

	if err != nil {
		run.Status = RunFailed
		kind := "unknown"
		if k, ok := runerr.KindOf(err); ok {
			kind = string(k)
		}
		run.Error = &RunError{Kind: kind, Message: err.Error()}
	}
}
