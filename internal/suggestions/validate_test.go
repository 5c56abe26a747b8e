package suggestions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsec/internal/diff"
	"github.com/appsec/pkg/models"
)

func TestCrossValidate(t *testing.T) {
	changes := diff.ParseFiles([]models.FilePatch{
		{Filename: "app/db.py", Patch: "@@ -10,3 +10,4 @@\n a\n-b\n+c\n+d\n e\n@@ -40,2 +41,2 @@\n f\n-g\n+h"},
		{Filename: "removed.py", Patch: "@@ -1,2 +0,0 @@\n-x\n-y"},
	})
	idx := diff.NewLineIndex(changes)

	in := []models.CodeSuggestion{
		{Filename: "app/db.py", LineNumberStart: 10, LineNumberEnd: 13},
		{Filename: "app/db.py", LineNumberStart: 41, LineNumberEnd: 41},
		{Filename: "app/db.py", LineNumberStart: 12, LineNumberEnd: 41},
		{Filename: "app/db.py", LineNumberStart: 100, LineNumberEnd: 101},
		{Filename: "removed.py", LineNumberStart: 1, LineNumberEnd: 1},
		{Filename: "missing.py", LineNumberStart: 1, LineNumberEnd: 1},
	}

	kept, dropped := CrossValidate(in, idx)

	require.Len(t, kept, 2)
	assert.Equal(t, 10, kept[0].LineNumberStart)
	assert.Equal(t, 41, kept[1].LineNumberStart)

	require.Len(t, dropped, 4)
	assert.Contains(t, dropped[0].Reason, "not inside one changed hunk")
	assert.Contains(t, dropped[1].Reason, "not inside one changed hunk")
	assert.Contains(t, dropped[2].Reason, "no post-patch lines")
	assert.Contains(t, dropped[3].Reason, "no post-patch lines")
}

func TestCrossValidate_Empty(t *testing.T) {
	kept, dropped := CrossValidate(nil, diff.NewLineIndex(nil))
	assert.Empty(t, kept)
	assert.Empty(t, dropped)
}
