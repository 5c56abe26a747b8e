// Package report renders the outcome of a review run for a terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/appsec/internal/review"
	"github.com/appsec/pkg/models"
)

// Color palette.
var (
	colorRed    = lipgloss.Color("#ff5555")
	colorGreen  = lipgloss.Color("#50fa7b")
	colorYellow = lipgloss.Color("#f1fa8c")
	colorBlue   = lipgloss.Color("#8be9fd")
	colorPurple = lipgloss.Color("#bd93f9")
	colorDim    = lipgloss.Color("#6272a4")
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(colorPurple).Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	okStyle      = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(colorYellow)
	failStyle    = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	codeStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

// Renderer writes outcomes to w.
type Renderer struct {
	w     io.Writer
	color bool
}

// New creates a renderer. Without color the output is plain text.
func New(w io.Writer, color bool) *Renderer {
	return &Renderer{w: w, color: color}
}

// NewStdout creates a renderer for stdout, colored only on a terminal.
func NewStdout() *Renderer {
	return New(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

func (r *Renderer) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.w, format, args...)
}

// Render writes the outcome. runErr is the error the run returned, if any.
func (r *Renderer) Render(o *review.Outcome, runErr error) {
	if o == nil {
		return
	}

	r.printf("%s\n", r.style(titleStyle, "Security review "+o.RunID))
	r.printf("%s %s  %s %s", r.style(dimStyle, "source:"), o.Source, r.style(dimStyle, "to:"), o.Ref.To)
	if o.Ref.Repo != "" {
		r.printf("  %s %s", r.style(dimStyle, "repo:"), o.Ref.Repo)
	}
	if o.Ref.From != "" {
		r.printf("  %s %s", r.style(dimStyle, "from:"), o.Ref.From)
	}
	if o.DryRun {
		r.printf("  %s", r.style(warnStyle, "(dry run)"))
	}
	r.printf("\n\n")

	r.renderFiles(o)
	r.renderStages(o)
	r.renderSuggestions(o)
	r.renderEmission(o)
	r.renderVerdict(o)

	r.printf("%s %s\n", r.style(dimStyle, "duration:"), o.Duration.Round(time.Millisecond))
	if o.ArtifactPath != "" {
		r.printf("%s %s\n", r.style(dimStyle, "artifact log:"), o.ArtifactPath)
	}

	if runErr != nil {
		r.printf("\n%s %v\n", r.style(failStyle, "FAILED"), runErr)
		return
	}
	r.printf("\n%s\n", r.style(okStyle, "OK"))
}

func (r *Renderer) renderFiles(o *review.Outcome) {
	r.printf("%s\n", r.style(sectionStyle, fmt.Sprintf("Files (%d, %d hunk(s))", len(o.Files), o.HunkCount())))
	for _, f := range o.Files {
		r.printf("  %s %s\n", f.Filename, r.style(dimStyle, fmt.Sprintf("%d hunk(s)", len(f.Hunks))))
	}
	for _, name := range o.Skipped {
		r.printf("  %s %s\n", name, r.style(dimStyle, "skipped"))
	}
	if len(o.Redactions) > 0 {
		r.printf("  %s\n", r.style(warnStyle, fmt.Sprintf("%d secret(s) redacted before review", len(o.Redactions))))
		for _, f := range o.Redactions {
			r.printf("    %s:%d %s\n", f.Filename, f.Line, r.style(dimStyle, f.RuleID))
		}
	}
	r.printf("\n")
}

func (r *Renderer) renderStages(o *review.Outcome) {
	if len(o.Stages) == 0 {
		return
	}
	r.printf("%s\n", r.style(sectionStyle, "Stages"))
	for _, st := range o.Stages {
		ending := "turn budget"
		if st.Terminated {
			ending = "terminated"
		}
		r.printf("  %s %s\n", st.StageName, r.style(dimStyle, fmt.Sprintf("%d turn(s), %s", st.Turns, ending)))
	}
	r.printf("\n")
}

func (r *Renderer) renderSuggestions(o *review.Outcome) {
	r.printf("%s\n", r.style(sectionStyle, fmt.Sprintf("Suggestions (%d)", len(o.Suggestions))))
	for _, s := range o.Suggestions {
		r.printf("  %s %s\n", r.style(warnStyle, location(s)), s.Summary)
		if strings.TrimSpace(s.SuggestedCode) == "" {
			continue
		}
		code := s.SuggestedCode
		if r.color {
			code = codeStyle.Render(highlight(code, s.Filename, s.Language))
		}
		for _, line := range strings.Split(code, "\n") {
			r.printf("    %s\n", line)
		}
	}
	for _, d := range o.Dropped {
		r.printf("  %s %s %s\n", r.style(dimStyle, "dropped"), location(d.Suggestion), r.style(dimStyle, d.Reason))
	}
	r.printf("\n")
}

func (r *Renderer) renderEmission(o *review.Outcome) {
	if o.Emission == nil {
		return
	}
	r.printf("%s\n", r.style(sectionStyle, "Comments"))
	r.printf("  %d posted on %s\n", o.Emission.Posted(), o.CommitID)
	for _, f := range o.Emission.Failed() {
		r.printf("  %s %s:%d %v\n", r.style(failStyle, "failed"), f.Comment.Path, f.Comment.Line, f.Err)
	}
	r.printf("\n")
}

func (r *Renderer) renderVerdict(o *review.Outcome) {
	if o.Verdict == nil {
		return
	}
	r.printf("%s\n", r.style(sectionStyle, "Severity gate"))
	if !o.Verdict.Failed {
		r.printf("  %s\n\n", r.style(okStyle, "passed"))
		return
	}
	for _, line := range strings.Split(o.Verdict.Message(), "\n") {
		r.printf("  %s\n", r.style(failStyle, line))
	}
	r.printf("\n")
}

func location(s models.CodeSuggestion) string {
	if s.LineNumberStart == s.LineNumberEnd {
		return fmt.Sprintf("%s:%d", s.Filename, s.LineNumberStart)
	}
	return fmt.Sprintf("%s:%d-%d", s.Filename, s.LineNumberStart, s.LineNumberEnd)
}
