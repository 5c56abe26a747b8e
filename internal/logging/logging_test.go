package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, Setup("debug", FormatJSON, &buf))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log.Info().Str("stage", "Code_Reviewer_Agent").Msg("Stage started")
	assert.Contains(t, buf.String(), `"stage":"Code_Reviewer_Agent"`)

	assert.Error(t, Setup("loud", FormatJSON, &buf))
	assert.Error(t, Setup("info", "xml", &buf))
}

func TestRunLogger(t *testing.T) {
	dir := t.TempDir()

	r, err := StartRunLogging(dir, "abc123")
	require.NoError(t, err)

	r.LogSection("Code_Reviewer_Agent 100%")
	r.LogMessage("Manager_Agent", "line one\nline two")
	require.NoError(t, r.Close())

	data, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Run abc123 started")
	assert.Contains(t, content, "] "+strings.Repeat("=", 80)+"\n")
	assert.Contains(t, content, "= Code_Reviewer_Agent 100%\n")
	assert.Contains(t, content, "Manager_Agent:\n    line one\n    line two")
	assert.Contains(t, content, "Run abc123 finished")
}

func TestRunLogger_NilSafe(t *testing.T) {
	var r *RunLogger
	r.Log("ignored %d", 1)
	r.LogSection("ignored")
	r.LogMessage("x", "y")
	assert.Equal(t, "", r.Path())
	assert.NoError(t, r.Close())
}
