package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/appsec/pkg/models"
)

func TestLineIndex(t *testing.T) {
	idx := NewLineIndex([]models.FileChange{
		{
			Filename: "main.go",
			Hunks: ParseHunks("@@ -1,2 +1,3 @@\n a\n-b\n+c\n+d\n@@ -10,1 +11,2 @@\n x\n+y"),
		},
		{
			Filename: "gone.go",
			Hunks:    ParseHunks("@@ -1,1 +0,0 @@\n-bye"),
		},
	})

	tests := []struct {
		name       string
		file       string
		start, end int
		want       bool
	}{
		{"inside first hunk", "main.go", 1, 3, true},
		{"single line", "main.go", 2, 2, true},
		{"inside second hunk", "main.go", 11, 12, true},
		{"spans hunks", "main.go", 3, 11, false},
		{"outside any hunk", "main.go", 5, 6, false},
		{"past end of hunk", "main.go", 12, 13, false},
		{"reversed range", "main.go", 3, 1, false},
		{"unknown file", "other.go", 1, 1, false},
		{"deleted file has no new lines", "gone.go", 1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idx.Contains(tt.file, tt.start, tt.end))
		})
	}

	assert.True(t, idx.HasFile("main.go"))
	assert.False(t, idx.HasFile("gone.go"))
}
