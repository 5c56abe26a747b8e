// Package providers defines the change-set sources a review run reads from
// and posts to.
package providers

import (
	"context"
	"strings"

	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

// Source names accepted by the review command.
const (
	GitHub = "github"
	GitLab = "gitlab"
	Local  = "local"
)

// ChangeSetSource represents a code hosting service (or a diff on disk)
// holding the change set under review.
type ChangeSetSource interface {
	Name() string
	// GetChangedFiles returns one patch per changed file, in source order.
	GetChangedFiles(ctx context.Context, ref models.ChangeSetRef) ([]models.FilePatch, error)
	// GetHeadCommit resolves ref.To to a commit id.
	GetHeadCommit(ctx context.Context, ref models.ChangeSetRef) (string, error)
	// PostReviewComment posts one inline comment anchored at commitID.
	PostReviewComment(ctx context.Context, ref models.ChangeSetRef, commitID string, c models.ReviewComment) error
}

// ValidateRef checks that ref names a change set. Repo is required by the
// hosted sources only.
func ValidateRef(ref models.ChangeSetRef, requireRepo bool) error {
	if strings.TrimSpace(ref.To) == "" {
		return runerr.Configuration("validate change set", "to_event is required")
	}
	if requireRepo {
		repo := strings.Trim(strings.TrimSpace(ref.Repo), "/")
		if repo == "" {
			return runerr.Configuration("validate change set", "repo is required")
		}
		if !strings.Contains(repo, "/") {
			return runerr.Configuration("validate change set", "repo must look like owner/name, got %q", ref.Repo)
		}
	}
	return nil
}
