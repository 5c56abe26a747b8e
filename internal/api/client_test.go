package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsec/internal/retry"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

func fastRetry() retry.RetryConfig {
	return retry.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func newTestClient(t *testing.T, runner Runner, secret string) (*Client, *Server) {
	t.Helper()
	s := newTestServer(t, runner)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	token, err := NewToken(secret, "ci", time.Hour)
	require.NoError(t, err)

	c, err := NewClient(srv.URL+"/api/v1/runs/", token, WithClientRetryConfig(fastRetry()))
	require.NoError(t, err)
	return c, s
}

func TestClient_CreateAndWait(t *testing.T) {
	runner := &stubRunner{}
	c, _ := newTestClient(t, runner, testSecret)
	ctx := context.Background()

	id, err := c.CreateRun(ctx, models.ChangeSetRef{Repo: "acme/api", To: "feature"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := c.WaitRun(ctx, id, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, run.Status)
	assert.Equal(t, "acme/api", run.Repo)
}

func TestClient_WaitReturnsRunKind(t *testing.T) {
	runner := &stubRunner{err: runerr.StructuredOutput("extract suggestions", assert.AnError)}
	c, _ := newTestClient(t, runner, testSecret)
	ctx := context.Background()

	id, err := c.CreateRun(ctx, models.ChangeSetRef{Repo: "acme/api", To: "feature"})
	require.NoError(t, err)

	run, err := c.WaitRun(ctx, id, 5*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, runerr.ExitStructuredOutput, runerr.ExitCode(err))
}

func TestClient_Unauthorized(t *testing.T) {
	c, _ := newTestClient(t, &stubRunner{}, "a-different-secret-a-different!!")

	_, err := c.CreateRun(context.Background(), models.ChangeSetRef{Repo: "acme/api", To: "feature"})
	require.Error(t, err)
	assert.True(t, runerr.IsCategory(err, runerr.CategoryUnauthorized))
	assert.Equal(t, runerr.ExitTransport, runerr.ExitCode(err))
}

func TestClient_BadRequestIsNotRetried(t *testing.T) {
	c, _ := newTestClient(t, &stubRunner{}, testSecret)

	_, err := c.CreateRun(context.Background(), models.ChangeSetRef{Repo: "acme/api"})
	require.Error(t, err)
	assert.True(t, runerr.IsCategory(err, runerr.CategoryBadRequest))
	assert.Contains(t, err.Error(), "to_event is required")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "token", WithClientRetryConfig(fastRetry()))
	require.NoError(t, err)

	_, err = c.GetRun(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, runerr.IsCategory(err, runerr.CategoryServerError))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_CreateRunIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "token", WithClientRetryConfig(fastRetry()))
	require.NoError(t, err)

	_, err = c.CreateRun(context.Background(), models.ChangeSetRef{Repo: "acme/api", To: "feature"})
	require.Error(t, err)
	assert.True(t, runerr.IsCategory(err, runerr.CategoryServerError))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClient_Configuration(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		token string
	}{
		{"missing url", "", "token"},
		{"relative url", "runs", "token"},
		{"missing token", "http://localhost:8888/api/v1/runs", " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.url, tt.token)
			require.Error(t, err)
			assert.True(t, runerr.IsKind(err, runerr.KindConfiguration))
		})
	}
}

func TestRunErr(t *testing.T) {
	assert.NoError(t, Run{ID: "a", Status: RunSucceeded}.Err())

	err := Run{ID: "a", Status: RunFailed, Error: &RunError{Kind: "severity_gate", Message: "2 finding(s)"}}.Err()
	assert.True(t, runerr.IsKind(err, runerr.KindSeverityGate))

	err = Run{ID: "a", Status: RunFailed, Error: &RunError{Kind: "unknown", Message: "panic"}}.Err()
	assert.Equal(t, runerr.ExitGeneric, runerr.ExitCode(err))
}
