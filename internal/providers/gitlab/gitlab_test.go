package gitlab

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/appsec/internal/config"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

var ref = models.ChangeSetRef{Repo: "acme/api", To: "head123"}

// routes keys are decoded request paths; project ids arrive URL-escaped.
type routes map[string]http.HandlerFunc

func newTestProvider(t *testing.T, rs routes) *GitLabProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := rs[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	p, err := New(config.GitLabSettings{URL: srv.URL, Token: "gl-token"}, gitlab.WithoutRetries())
	require.NoError(t, err)
	return p
}

func TestGetChangedFiles_Compare(t *testing.T) {
	rs := routes{}
	rs["/api/v4/projects/acme/api/repository/compare"] = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gl-token", r.Header.Get("PRIVATE-TOKEN"))
		assert.Equal(t, "base1", r.URL.Query().Get("from"))
		assert.Equal(t, "head123", r.URL.Query().Get("to"))
		_, _ = io.WriteString(w, `{"diffs": [
			{"old_path": "a.go", "new_path": "a.go", "diff": "@@ -1 +1 @@\n-x\n+y\n"},
			{"old_path": "b.go", "new_path": "b.go", "diff": "@@ -0,0 +1 @@\n+z\n", "new_file": true},
			{"old_path": "c.go", "new_path": "c.go", "diff": "@@ -1 +0,0 @@\n-w\n", "deleted_file": true},
			{"old_path": "d.go", "new_path": "e.go", "diff": "", "renamed_file": true}
		]}`)
	}
	p := newTestProvider(t, rs)

	files, err := p.GetChangedFiles(context.Background(), models.ChangeSetRef{Repo: "acme/api", To: "head123", From: "base1"})
	require.NoError(t, err)
	assert.Equal(t, []models.FilePatch{
		{Filename: "a.go", Status: "modified", Patch: "@@ -1 +1 @@\n-x\n+y\n"},
		{Filename: "b.go", Status: "added", Patch: "@@ -0,0 +1 @@\n+z\n"},
		{Filename: "c.go", Status: "removed", Patch: "@@ -1 +0,0 @@\n-w\n"},
		{Filename: "e.go", Status: "renamed"},
	}, files)
}

func TestGetChangedFiles_SingleCommit(t *testing.T) {
	rs := routes{}
	rs["/api/v4/projects/acme/api/repository/commits/head123/diff"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"old_path": "a.go", "new_path": "a.go", "diff": "@@ -1 +1 @@\n-x\n+y\n"}]`)
	}
	p := newTestProvider(t, rs)

	files, err := p.GetChangedFiles(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.go", files[0].Filename)
}

func TestGetHeadCommit(t *testing.T) {
	rs := routes{}
	rs["/api/v4/projects/acme/api/repository/commits"] = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "head123", r.URL.Query().Get("ref_name"))
		_, _ = io.WriteString(w, `[{"id": "0123abcd"}]`)
	}
	p := newTestProvider(t, rs)

	sha, err := p.GetHeadCommit(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "0123abcd", sha)
}

func TestGetChangedFiles_Unauthorized(t *testing.T) {
	rs := routes{}
	rs["/api/v4/projects/acme/api/repository/commits/head123/diff"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message": "401 Unauthorized"}`)
	}
	p := newTestProvider(t, rs)

	_, err := p.GetChangedFiles(context.Background(), ref)
	require.Error(t, err)
	assert.True(t, runerr.IsCategory(err, runerr.CategoryUnauthorized), "got %v", err)
}

func TestPostReviewComment_MergeRequestDiscussion(t *testing.T) {
	var (
		lookups int
		bodies  []map[string]interface{}
	)
	rs := routes{}
	rs["/api/v4/projects/acme/api/repository/commits/head123/merge_requests"] = func(w http.ResponseWriter, r *http.Request) {
		lookups++
		_, _ = io.WriteString(w, `[{"iid": 3, "state": "merged"}, {"iid": 5, "state": "opened"}]`)
	}
	rs["/api/v4/projects/acme/api/merge_requests/5"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"iid": 5, "state": "opened", "diff_refs": {"base_sha": "b", "head_sha": "h", "start_sha": "s"}}`)
	}
	rs["/api/v4/projects/acme/api/merge_requests/5/discussions"] = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": "d1"}`)
	}
	p := newTestProvider(t, rs)

	ctx := context.Background()
	comment := models.ReviewComment{Path: "app/db.py", StartLine: 10, Line: 12, Side: models.SideRight, Body: "fix it"}
	require.NoError(t, p.PostReviewComment(ctx, ref, "head123", comment))
	require.NoError(t, p.PostReviewComment(ctx, ref, "head123", comment))

	assert.Equal(t, 1, lookups)
	require.Len(t, bodies, 2)
	assert.Equal(t, "fix it", bodies[0]["body"])

	position, ok := bodies[0]["position"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "text", position["position_type"])
	assert.Equal(t, "b", position["base_sha"])
	assert.Equal(t, "s", position["start_sha"])
	assert.Equal(t, "h", position["head_sha"])
	assert.Equal(t, "app/db.py", position["new_path"])
	assert.EqualValues(t, 12, position["new_line"])
}

func TestPostReviewComment_CommitFallback(t *testing.T) {
	var body map[string]interface{}
	rs := routes{}
	rs["/api/v4/projects/acme/api/repository/commits/head123/merge_requests"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}
	rs["/api/v4/projects/acme/api/repository/commits/head123/comments"] = func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"note": "ok"}`)
	}
	p := newTestProvider(t, rs)

	err := p.PostReviewComment(context.Background(), ref, "head123", models.ReviewComment{Path: "a.go", Line: 4, Body: "note"})
	require.NoError(t, err)
	assert.Equal(t, "note", body["note"])
	assert.Equal(t, "a.go", body["path"])
	assert.EqualValues(t, 4, body["line"])
	assert.Equal(t, "new", body["line_type"])
}
