package models

import "strings"

// ChangeSetRef identifies the change set a run reviews.
type ChangeSetRef struct {
	Repo string // owner/name for GitHub, namespace/project for GitLab
	To   string // head ref, required
	From string // base ref, optional
}

// FilePatch is one changed file as reported by a change-set source
type FilePatch struct {
	Filename string
	Status   string
	Patch    string
}

// NumberedLine is a post-patch line prefixed with its line number
type NumberedLine struct {
	Number int
	Text   string
}

// Hunk represents a single chunk of changes in a patch, split into the
// pre-patch view (unnumbered) and the post-patch view (numbered).
type Hunk struct {
	Header  string
	OldView []string
	NewView []NumberedLine
}

// FirstLine returns the first post-patch line number, or 0 for a hunk with an empty new view.
func (h Hunk) FirstLine() int {
	if len(h.NewView) == 0 {
		return 0
	}
	return h.NewView[0].Number
}

// LastLine returns the last post-patch line number, or 0 for a hunk with an empty new view.
func (h Hunk) LastLine() int {
	if len(h.NewView) == 0 {
		return 0
	}
	return h.NewView[len(h.NewView)-1].Number
}

// NewText joins the numbered new view, one entry per line.
func (h Hunk) NewText() string {
	lines := make([]string, len(h.NewView))
	for i, l := range h.NewView {
		lines[i] = l.Text
	}
	return strings.Join(lines, "\n")
}

// OldText joins the old view, one entry per line.
func (h Hunk) OldText() string {
	return strings.Join(h.OldView, "\n")
}

// FileChange groups the parsed hunks of one changed file
type FileChange struct {
	Filename string
	Hunks    []Hunk
}

// CodeSuggestion is a file-and-line addressed fix proposed by the review
type CodeSuggestion struct {
	Filename        string `json:"filename"`
	Language        string `json:"language"`
	LineNumberStart int    `json:"line_number_start"`
	LineNumberEnd   int    `json:"line_number_end"`
	PreviousCode    string `json:"previous_code"`
	SuggestedCode   string `json:"suggested_code"`
	Summary         string `json:"summary"`
}

// CodeSuggestions is the structured record set extracted from the final stage
type CodeSuggestions struct {
	Suggestions []CodeSuggestion `json:"suggestions"`
}

// Severity ranks a review finding
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 1 (low) to 4 (critical). Unknown values rank 0.
func (s Severity) Rank() int {
	switch Severity(strings.ToLower(strings.TrimSpace(string(s)))) {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Review is one finding used by the severity gate
type Review struct {
	Filename        string   `json:"filename"`
	Severity        Severity `json:"severity"`
	SeverityFailure bool     `json:"severity_failure"`
	Reason          string   `json:"reason"`
}

// Reviews is the structured record set consumed by the severity gate
type Reviews struct {
	Reviews []Review `json:"reviews"`
}

// CommentSide is the diff side an inline comment is anchored to
type CommentSide string

const (
	SideRight CommentSide = "RIGHT"
	SideLeft  CommentSide = "LEFT"
)

// ReviewComment is a position-addressed inline comment ready for a hosting service.
// StartLine is zero for single-line comments.
type ReviewComment struct {
	Path      string
	StartLine int
	Line      int
	Side      CommentSide
	Body      string
}

// ChatRole tells whose turn a chat message was, seen from the speaker being prompted
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one message of a conversation handed to a reasoning model
type ChatMessage struct {
	Role    ChatRole
	Content string
}
