package capture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledWritesNothing(t *testing.T) {
	t.Setenv(EnvCaptureDir, "")
	Reset()

	assert.False(t, Enabled())
	WriteBlob("github", "get files", "json", []byte("{}"))
}

func TestWriteBlobAndJSON(t *testing.T) {
	dir := t.TempDir()
	SetDir(dir)
	t.Cleanup(Reset)

	require.True(t, Enabled())
	WriteBlob("github", "get changed files", "json", []byte(`{"files":[]}`))
	WriteJSON("llm", "final summary", map[string]string{"text": "ok"})

	githubFiles, err := filepath.Glob(filepath.Join(dir, "*", "github", "get-changed-files-*.json"))
	require.NoError(t, err)
	require.Len(t, githubFiles, 1)
	data, err := os.ReadFile(githubFiles[0])
	require.NoError(t, err)
	assert.Equal(t, `{"files":[]}`, string(data))

	llmFiles, err := filepath.Glob(filepath.Join(dir, "*", "llm", "final-summary-*.json"))
	require.NoError(t, err)
	require.Len(t, llmFiles, 1)
	data, err = os.ReadFile(llmFiles[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"ok"}`, string(data))
}

func TestEnvironmentEnablesCapture(t *testing.T) {
	Reset()
	t.Setenv(EnvCaptureDir, t.TempDir())
	assert.True(t, Enabled())
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "post-review-comment-app-py", sanitize("Post review comment app.py"))
}
