// Package github reads change sets from and posts review comments to the
// GitHub REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/appsec/internal/capture"
	"github.com/appsec/internal/config"
	"github.com/appsec/internal/providers"
	"github.com/appsec/internal/retry"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

const (
	defaultAPIURL = "https://api.github.com"
	apiVersion    = "2022-11-28"
	userAgent     = "appsec/1.0"
)

// GitHubProvider implements providers.ChangeSetSource for GitHub.
type GitHubProvider struct {
	apiURL string
	token  string
	client *http.Client
	retry  retry.RetryConfig

	mu    sync.Mutex
	pulls map[string]int // commit sha -> open PR number, 0 when none
}

// Option customizes a GitHubProvider
type Option func(*GitHubProvider)

// WithHTTPClient replaces the HTTP client, e.g. with a stub transport in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *GitHubProvider) { p.client = c }
}

// WithRetryConfig overrides the backoff used for server-side failures.
func WithRetryConfig(cfg retry.RetryConfig) Option {
	return func(p *GitHubProvider) { p.retry = cfg }
}

// New creates a provider for the configured API URL and token.
func New(settings config.GitHubSettings, opts ...Option) *GitHubProvider {
	apiURL := strings.TrimRight(settings.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	p := &GitHubProvider{
		apiURL: apiURL,
		token:  settings.Token,
		client: &http.Client{},
		retry:  retry.DefaultRetryConfig(),
		pulls:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	log.Debug().Str("api_url", apiURL).Int("token_length", len(settings.Token)).Msg("GitHub provider initialized")
	return p
}

func (p *GitHubProvider) Name() string {
	return providers.GitHub
}

type changedFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Patch    string `json:"patch"`
}

type commitResponse struct {
	SHA   string        `json:"sha"`
	Files []changedFile `json:"files"`
}

type compareResponse struct {
	Files []changedFile `json:"files"`
}

// GetChangedFiles compares ref.From...ref.To when From is set, otherwise it
// returns the files of the single commit ref.To.
func (p *GitHubProvider) GetChangedFiles(ctx context.Context, ref models.ChangeSetRef) ([]models.FilePatch, error) {
	if err := providers.ValidateRef(ref, true); err != nil {
		return nil, err
	}

	var files []changedFile
	if ref.From != "" {
		var cmp compareResponse
		path := fmt.Sprintf("%s/compare/%s...%s", repoPath(ref.Repo), url.PathEscape(ref.From), url.PathEscape(ref.To))
		if err := p.do(ctx, "fetch changed files", http.MethodGet, path, nil, &cmp); err != nil {
			return nil, err
		}
		files = cmp.Files
	} else {
		var commit commitResponse
		if err := p.do(ctx, "fetch changed files", http.MethodGet, commitPath(ref.Repo, ref.To), nil, &commit); err != nil {
			return nil, err
		}
		files = commit.Files
	}

	patches := make([]models.FilePatch, 0, len(files))
	for _, f := range files {
		if f.Patch == "" {
			log.Debug().Str("filename", f.Filename).Str("status", f.Status).Msg("File has no textual patch")
		}
		patches = append(patches, models.FilePatch{Filename: f.Filename, Status: f.Status, Patch: f.Patch})
	}

	log.Info().Str("repo", ref.Repo).Str("to", ref.To).Str("from", ref.From).Int("files", len(patches)).Msg("Fetched changed files from GitHub")
	return patches, nil
}

// GetHeadCommit resolves ref.To to a commit sha.
func (p *GitHubProvider) GetHeadCommit(ctx context.Context, ref models.ChangeSetRef) (string, error) {
	if err := providers.ValidateRef(ref, true); err != nil {
		return "", err
	}
	var commit commitResponse
	if err := p.do(ctx, "resolve head commit", http.MethodGet, commitPath(ref.Repo, ref.To), nil, &commit); err != nil {
		return "", err
	}
	if commit.SHA == "" {
		return "", runerr.Transport("resolve head commit", runerr.CategoryUnexpected, "response carried no sha", nil)
	}
	return commit.SHA, nil
}

type pullComment struct {
	Body      string `json:"body"`
	CommitID  string `json:"commit_id"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Side      string `json:"side"`
	StartLine int    `json:"start_line,omitempty"`
	StartSide string `json:"start_side,omitempty"`
}

type commitComment struct {
	Body string `json:"body"`
	Path string `json:"path"`
	Line int    `json:"line"`
}

// PostReviewComment posts c on the open pull request containing commitID,
// or as a commit comment when no pull request is open for it.
func (p *GitHubProvider) PostReviewComment(ctx context.Context, ref models.ChangeSetRef, commitID string, c models.ReviewComment) error {
	number, err := p.openPullRequest(ctx, ref.Repo, commitID)
	if err != nil {
		return err
	}

	side := string(c.Side)
	if side == "" {
		side = string(models.SideRight)
	}

	if number == 0 {
		path := fmt.Sprintf("%s/commits/%s/comments", repoPath(ref.Repo), url.PathEscape(commitID))
		return p.do(ctx, "post commit comment", http.MethodPost, path, commitComment{Body: c.Body, Path: c.Path, Line: c.Line}, nil)
	}

	payload := pullComment{
		Body:     c.Body,
		CommitID: commitID,
		Path:     c.Path,
		Line:     c.Line,
		Side:     side,
	}
	if c.StartLine > 0 && c.StartLine < c.Line {
		payload.StartLine = c.StartLine
		payload.StartSide = side
	}

	path := fmt.Sprintf("%s/pulls/%d/comments", repoPath(ref.Repo), number)
	return p.do(ctx, "post review comment", http.MethodPost, path, payload, nil)
}

type pullRequest struct {
	Number int    `json:"number"`
	State  string `json:"state"`
}

func (p *GitHubProvider) openPullRequest(ctx context.Context, repo, commitID string) (int, error) {
	key := repo + "@" + commitID

	p.mu.Lock()
	number, ok := p.pulls[key]
	p.mu.Unlock()
	if ok {
		return number, nil
	}

	var pulls []pullRequest
	path := fmt.Sprintf("%s/commits/%s/pulls", repoPath(repo), url.PathEscape(commitID))
	if err := p.do(ctx, "find pull request", http.MethodGet, path, nil, &pulls); err != nil {
		return 0, err
	}
	for _, pr := range pulls {
		if pr.State == "open" {
			number = pr.Number
			break
		}
	}
	if number == 0 {
		log.Info().Str("repo", repo).Str("commit", commitID).Msg("No open pull request for commit, falling back to commit comments")
	}

	p.mu.Lock()
	p.pulls[key] = number
	p.mu.Unlock()
	return number, nil
}

// do sends one API request, retrying server-side failures of reads, and decodes a
// successful response into out when out is non-nil.
func (p *GitHubProvider) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
	}

	// A POST that failed server-side may still have created the comment.
	cfg := p.retry
	if method == http.MethodPost {
		cfg.MaxRetries = 0
	}

	result := retry.RetryWithBackoff(ctx, cfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, p.apiURL+path, bytes.NewReader(payload))
		if err != nil {
			return runerr.Transport(op, runerr.CategoryUnexpected, "failed to create request", err)
		}
		req.Header.Set("Authorization", "Bearer "+p.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", apiVersion)
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			log.Debug().Str("op", op).Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("GitHub API request failed")
			return runerr.FromStatus(op, resp.StatusCode, string(respBody))
		}

		if capture.Enabled() {
			capture.WriteBlob(providers.GitHub, op, "json", respBody)
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return runerr.Transport(op, runerr.CategoryUnexpected, "failed to decode response", err)
			}
		}
		return nil
	}, &log.Logger)

	if result.Success {
		return nil
	}

	err := result.LastError
	if _, tagged := runerr.KindOf(err); tagged {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return runerr.Transport(op, runerr.CategoryUnexpected, "", err)
}

func repoPath(repo string) string {
	return "/repos/" + strings.Trim(repo, "/")
}

func commitPath(repo, ref string) string {
	return fmt.Sprintf("%s/commits/%s", repoPath(repo), url.PathEscape(ref))
}
