// Package redact masks credentials in patches before they reach a reasoning model.
package redact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/appsec/pkg/models"
)

// Placeholder replaces every detected secret.
const Placeholder = "[REDACTED]"

// Finding is a masked secret, without the secret itself.
type Finding struct {
	Filename string
	RuleID   string
	Line     int
}

// Redactor wraps the gitleaks detector with its default rule set.
type Redactor struct {
	detector *detect.Detector
}

// New loads the default gitleaks rules.
func New() (*Redactor, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load secret detection rules: %w", err)
	}
	return &Redactor{detector: d}, nil
}

// Redact masks the secrets found in text. Line breaks inside a secret are
// kept so that line numbers of the surrounding text do not shift.
func (r *Redactor) Redact(filename, text string) (string, []Finding) {
	if text == "" {
		return text, nil
	}

	found := r.detector.DetectString(text)
	if len(found) == 0 {
		return text, nil
	}

	// Longest first, so a secret containing another is masked whole.
	secrets := make([]string, 0, len(found))
	findings := make([]Finding, 0, len(found))
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		secrets = append(secrets, f.Secret)
		findings = append(findings, Finding{Filename: filename, RuleID: f.RuleID, Line: lineOf(text, f.Secret)})
	}
	sort.SliceStable(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })

	for _, s := range secrets {
		text = strings.ReplaceAll(text, s, Placeholder+strings.Repeat("\n", strings.Count(s, "\n")))
	}

	for _, f := range findings {
		log.Info().Str("filename", f.Filename).Str("rule", f.RuleID).Int("line", f.Line).Msg("Redacted secret from patch")
	}
	return text, findings
}

// RedactPatches masks secrets in every patch and returns the redacted copies.
func (r *Redactor) RedactPatches(patches []models.FilePatch) ([]models.FilePatch, []Finding) {
	out := make([]models.FilePatch, len(patches))
	var all []Finding
	for i, p := range patches {
		redacted, findings := r.Redact(p.Filename, p.Patch)
		p.Patch = redacted
		out[i] = p
		all = append(all, findings...)
	}
	return out, all
}

// lineOf returns the 1-based line of the first occurrence of s in text.
func lineOf(text, s string) int {
	idx := strings.Index(text, s)
	if idx < 0 {
		return 0
	}
	return strings.Count(text[:idx], "\n") + 1
}
