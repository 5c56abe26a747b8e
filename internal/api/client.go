package api

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
	"time"

	"github.com/rs/zerolog/log"

	"github.com/appsec/internal/retry"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

// Client triggers runs on a remote API server.
type Client struct {
	runsURL string
	token   string
	client  *http.Client
	retry   retry.RetryConfig
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientHTTPClient replaces the HTTP client, e.g. in tests.
func WithClientHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.client = c }
}

// WithClientRetryConfig replaces the retry policy.
func WithClientRetryConfig(cfg retry.RetryConfig) ClientOption {
	return func(cl *Client) { cl.retry = cfg }
}

// NewClient creates a client for the runs endpoint at runsURL, e.g.
// http://localhost:8888/api/v1/runs.
func NewClient(runsURL, token string, opts ...ClientOption) (*Client, error) {
	runsURL = strings.TrimRight(strings.TrimSpace(runsURL), "/")
	if runsURL == "" {
		return nil, runerr.Configuration("create trigger client", "trigger.url is required")
	}
	if _, err := url.ParseRequestURI(runsURL); err != nil {
		return nil, runerr.Configuration("create trigger client", "invalid trigger.url %q: %v", runsURL, err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, runerr.Configuration("create trigger client", "API token is required")
	}

	c := &Client{
		runsURL: runsURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		retry:   retry.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateRun queues a run for ref and returns its id.
func (c *Client) CreateRun(ctx context.Context, ref models.ChangeSetRef) (string, error) {
	var created createRunResponse
	err := c.do(ctx, "trigger run", http.MethodPost, c.runsURL, createRunRequest{
		Repo:      ref.Repo,
		ToEvent:   ref.To,
		FromEvent: ref.From,
	}, &created)
	if err != nil {
		return "", err
	}
	return created.RunID, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := c.do(ctx, "get run", http.MethodGet, c.runsURL+"/"+url.PathEscape(id), nil, &run)
	return run, err
}

// WaitRun polls until the run has finished or ctx is done. A failed run
// is returned together with an error of the run's kind.
func (c *Client) WaitRun(ctx context.Context, id string, interval time.Duration) (Run, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := c.GetRun(ctx, id)
		if err != nil {
			return run, err
		}

		switch run.Status {
		case RunSucceeded:
			return run, nil
		case RunFailed:
			return run, run.Err()
		}
		log.Debug().Str("run_id", id).Str("status", string(run.Status)).Msg("Waiting for run")

		select {
		case <-ctx.Done():
			return run, fmt.Errorf("waiting for run %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Err rebuilds the failure of a finished run so it maps to the same exit
// code as a local run.
func (r Run) Err() error {
	if r.Status != RunFailed {
		return nil
	}
	if r.Error == nil {
		return fmt.Errorf("run %s failed", r.ID)
	}
	switch k := runerr.Kind(r.Error.Kind); k {
	case runerr.KindConfiguration, runerr.KindTransport, runerr.KindCommunication, runerr.KindStructuredOutput, runerr.KindSeverityGate:
		return &runerr.Error{Kind: k, Op: "run " + r.ID, Message: r.Error.Message}
	}
	return fmt.Errorf("run %s failed: %s", r.ID, r.Error.Message)
}

func (c *Client) do(ctx context.Context, op, method, target string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
	}

	cfg := c.retry
	if method == http.MethodPost {
		cfg.MaxRetries = 0
	}

	result := retry.RetryWithBackoff(ctx, cfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return runerr.Transport(op, runerr.CategoryUnexpected, "failed to create request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return runerr.FromStatus(op, resp.StatusCode, string(respBody))
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
