// Package gate decides whether review findings are severe enough to fail a run.
package gate

import (
	"fmt"
	"strings"

	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

// Verdict is the gate outcome for one set of reviews.
type Verdict struct {
	Failed   bool
	Failures []models.Review
}

// Evaluate fails every review marked severity_failure and every review whose
// severity ranks at or above failOn.
func Evaluate(reviews []models.Review, failOn models.Severity) Verdict {
	threshold := failOn.Rank()

	var v Verdict
	for _, r := range reviews {
		rank := r.Severity.Rank()
		if r.SeverityFailure || (threshold > 0 && rank >= threshold) {
			v.Failures = append(v.Failures, r)
		}
	}
	v.Failed = len(v.Failures) > 0
	return v
}

// Message describes the failing reviews, one per line.
func (v Verdict) Message() string {
	if !v.Failed {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d finding(s) exceeded the severity threshold", len(v.Failures))
	for _, r := range v.Failures {
		b.WriteString("\n- ")
		if r.Filename != "" {
			b.WriteString(r.Filename)
		} else {
			b.WriteString("(no file)")
		}
		if r.Severity != "" {
			fmt.Fprintf(&b, " [%s]", strings.ToLower(string(r.Severity)))
		}
		if r.Reason != "" {
			b.WriteString(": " + r.Reason)
		}
	}
	return b.String()
}

// Err returns a severity gate error when the verdict failed, nil otherwise.
func (v Verdict) Err() error {
	if !v.Failed {
		return nil
	}
	return runerr.SeverityGate(v.Message())
}
