// Package local reviews a unified diff read from disk. Comments are kept in
// memory instead of being posted anywhere.
package local

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/appsec/internal/diff"
	"github.com/appsec/internal/providers"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

// DefaultHead is the commit id reported when the ref names none.
const DefaultHead = "HEAD"

// PostedComment is a comment recorded by PostReviewComment.
type PostedComment struct {
	CommitID string
	Comment  models.ReviewComment
}

// DiffFileProvider implements providers.ChangeSetSource over a diff file.
type DiffFileProvider struct {
	path string

	mu       sync.Mutex
	comments []PostedComment
}

func New(path string) *DiffFileProvider {
	return &DiffFileProvider{path: path}
}

func (p *DiffFileProvider) Name() string {
	return providers.Local
}

// GetChangedFiles splits the diff file into per-file patches.
func (p *DiffFileProvider) GetChangedFiles(_ context.Context, _ models.ChangeSetRef) ([]models.FilePatch, error) {
	if p.path == "" {
		return nil, runerr.Configuration("read diff file", "--diff-file is required for the local source")
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, runerr.Configuration("read diff file", "%s does not exist", p.path)
		}
		return nil, runerr.Configuration("read diff file", "%v", err)
	}

	patches, err := diff.SplitUnified(string(raw))
	if err != nil {
		return nil, runerr.Configuration("read diff file", "%s: %v", p.path, err)
	}

	log.Info().Str("path", p.path).Int("files", len(patches)).Msg("Loaded changed files from diff file")
	return patches, nil
}

// GetHeadCommit returns ref.To as given.
func (p *DiffFileProvider) GetHeadCommit(_ context.Context, ref models.ChangeSetRef) (string, error) {
	if ref.To == "" {
		return DefaultHead, nil
	}
	return ref.To, nil
}

// PostReviewComment records c.
func (p *DiffFileProvider) PostReviewComment(_ context.Context, _ models.ChangeSetRef, commitID string, c models.ReviewComment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.comments = append(p.comments, PostedComment{CommitID: commitID, Comment: c})
	return nil
}

// Comments returns the recorded comments in posting order.
func (p *DiffFileProvider) Comments() []PostedComment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PostedComment, len(p.comments))
	copy(out, p.comments)
	return out
}
