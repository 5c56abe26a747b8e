// Package gitlab reads change sets from and posts review discussions to GitLab.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/appsec/internal/config"
	"github.com/appsec/internal/providers"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

const perPage = 100

// GitLabProvider implements providers.ChangeSetSource for GitLab.
type GitLabProvider struct {
	client *gitlab.Client

	mu     sync.Mutex
	merges map[string]*mergeTarget // project@sha -> open merge request, nil when none
}

type mergeTarget struct {
	iid      int
	baseSHA  string
	startSHA string
	headSHA  string
}

// New creates a provider for the configured instance. Extra client options
// are passed through to the GitLab client.
func New(settings config.GitLabSettings, opts ...gitlab.ClientOptionFunc) (*GitLabProvider, error) {
	baseURL := strings.TrimRight(settings.URL, "/")
	if baseURL == "" {
		baseURL = "https://gitlab.com"
	}
	options := append([]gitlab.ClientOptionFunc{gitlab.WithBaseURL(baseURL + "/api/v4")}, opts...)

	client, err := gitlab.NewClient(settings.Token, options...)
	if err != nil {
		return nil, runerr.Configuration("create gitlab client", "%v", err)
	}

	log.Debug().Str("url", baseURL).Msg("GitLab provider initialized")
	return &GitLabProvider{client: client, merges: make(map[string]*mergeTarget)}, nil
}

func (p *GitLabProvider) Name() string {
	return providers.GitLab
}

// GetChangedFiles compares ref.From..ref.To when From is set, otherwise it
// returns the diff of the single commit ref.To.
func (p *GitLabProvider) GetChangedFiles(ctx context.Context, ref models.ChangeSetRef) ([]models.FilePatch, error) {
	if err := providers.ValidateRef(ref, true); err != nil {
		return nil, err
	}

	var diffs []*gitlab.Diff
	if ref.From != "" {
		cmp, resp, err := p.client.Repositories.Compare(ref.Repo, &gitlab.CompareOptions{
			From: gitlab.Ptr(ref.From),
			To:   gitlab.Ptr(ref.To),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return nil, classify(ctx, "fetch changed files", resp, err)
		}
		diffs = cmp.Diffs
	} else {
		opt := &gitlab.GetCommitDiffOptions{ListOptions: gitlab.ListOptions{PerPage: perPage}}
		for {
			page, resp, err := p.client.Commits.GetCommitDiff(ref.Repo, ref.To, opt, gitlab.WithContext(ctx))
			if err != nil {
				return nil, classify(ctx, "fetch changed files", resp, err)
			}
			diffs = append(diffs, page...)
			if resp == nil || resp.NextPage == 0 {
				break
			}
			opt.Page = resp.NextPage
		}
	}

	patches := make([]models.FilePatch, 0, len(diffs))
	for _, d := range diffs {
		patches = append(patches, toFilePatch(d))
	}

	log.Info().Str("repo", ref.Repo).Str("to", ref.To).Str("from", ref.From).Int("files", len(patches)).Msg("Fetched changed files from GitLab")
	return patches, nil
}

func toFilePatch(d *gitlab.Diff) models.FilePatch {
	fp := models.FilePatch{Filename: d.NewPath, Status: "modified", Patch: d.Diff}
	switch {
	case d.NewFile:
		fp.Status = "added"
	case d.DeletedFile:
		fp.Status = "removed"
		fp.Filename = d.OldPath
	case d.RenamedFile:
		fp.Status = "renamed"
	}
	return fp
}

// GetHeadCommit resolves ref.To to the id of the newest commit it names.
func (p *GitLabProvider) GetHeadCommit(ctx context.Context, ref models.ChangeSetRef) (string, error) {
	if err := providers.ValidateRef(ref, true); err != nil {
		return "", err
	}

	commits, resp, err := p.client.Commits.ListCommits(ref.Repo, &gitlab.ListCommitsOptions{
		RefName:     gitlab.Ptr(ref.To),
		ListOptions: gitlab.ListOptions{PerPage: 1},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", classify(ctx, "resolve head commit", resp, err)
	}
	if len(commits) == 0 {
		return "", runerr.Transport("resolve head commit", runerr.CategoryBadRequest, fmt.Sprintf("no commit found for %s", ref.To), nil)
	}
	return commits[0].ID, nil
}

// PostReviewComment opens a positioned discussion on the open merge request
// containing commitID, or leaves a commit comment when there is none.
func (p *GitLabProvider) PostReviewComment(ctx context.Context, ref models.ChangeSetRef, commitID string, c models.ReviewComment) error {
	target, err := p.openMergeRequest(ctx, ref.Repo, commitID)
	if err != nil {
		return err
	}

	if target == nil {
		_, resp, err := p.client.Commits.PostCommitComment(ref.Repo, commitID, &gitlab.PostCommitCommentOptions{
			Note:     gitlab.Ptr(c.Body),
			Path:     gitlab.Ptr(c.Path),
			Line:     gitlab.Ptr(c.Line),
			LineType: gitlab.Ptr("new"),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return classify(ctx, "post commit comment", resp, err)
		}
		return nil
	}

	headSHA := target.headSHA
	if headSHA == "" {
		headSHA = commitID
	}
	_, resp, err := p.client.Discussions.CreateMergeRequestDiscussion(ref.Repo, target.iid, &gitlab.CreateMergeRequestDiscussionOptions{
		Body: gitlab.Ptr(c.Body),
		Position: &gitlab.PositionOptions{
			PositionType: gitlab.Ptr("text"),
			BaseSHA:      gitlab.Ptr(target.baseSHA),
			StartSHA:     gitlab.Ptr(target.startSHA),
			HeadSHA:      gitlab.Ptr(headSHA),
			NewPath:      gitlab.Ptr(c.Path),
			OldPath:      gitlab.Ptr(c.Path),
			NewLine:      gitlab.Ptr(c.Line),
		},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return classify(ctx, "post review discussion", resp, err)
	}
	return nil
}

func (p *GitLabProvider) openMergeRequest(ctx context.Context, project, commitID string) (*mergeTarget, error) {
	key := project + "@" + commitID

	p.mu.Lock()
	target, ok := p.merges[key]
	p.mu.Unlock()
	if ok {
		return target, nil
	}

	mrs, resp, err := p.client.Commits.ListMergeRequestsByCommit(project, commitID, gitlab.WithContext(ctx))
	if err != nil {
		return nil, classify(ctx, "find merge request", resp, err)
	}

	for _, mr := range mrs {
		if mr.State != "opened" {
			continue
		}
		full, resp, err := p.client.MergeRequests.GetMergeRequest(project, mr.IID, nil, gitlab.WithContext(ctx))
		if err != nil {
			return nil, classify(ctx, "fetch merge request", resp, err)
		}
		target = &mergeTarget{
			iid:      full.IID,
			baseSHA:  full.DiffRefs.BaseSha,
			startSHA: full.DiffRefs.StartSha,
			headSHA:  full.DiffRefs.HeadSha,
		}
		break
	}
	if target == nil {
		log.Info().Str("project", project).Str("commit", commitID).Msg("No open merge request for commit, falling back to commit comments")
	}

	p.mu.Lock()
	p.merges[key] = target
	p.mu.Unlock()
	return target, nil
}

// classify turns a client-go failure into a run error using the response
// status when there is one.
func classify(ctx context.Context, op string, resp *gitlab.Response, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}

	var errResp *gitlab.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return runerr.FromStatus(op, errResp.Response.StatusCode, errResp.Message)
	}
	if resp != nil && resp.Response != nil && resp.StatusCode >= http.StatusBadRequest {
		return runerr.FromStatus(op, resp.StatusCode, err.Error())
	}
	return runerr.Transport(op, runerr.CategoryUnexpected, "", err)
}
