package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/app/handler.go b/app/handler.go
index 3b18e51..a9c2f4d 100644
--- a/app/handler.go
+++ b/app/handler.go
@@ -1,3 +1,5 @@
 package app
 
-import "fmt"
+import (
+	"fmt"
+)
diff --git a/app/new.go b/app/new.go
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/app/new.go
@@ -0,0 +1,2 @@
+package app
+
diff --git a/app/old.go b/app/old.go
deleted file mode 100644
index e69de29..0000000
--- a/app/old.go
+++ /dev/null
@@ -1 +0,0 @@
-package app
`

func TestSplitUnified(t *testing.T) {
	patches, err := SplitUnified(sampleDiff)
	require.NoError(t, err)
	require.Len(t, patches, 3)

	assert.Equal(t, "app/handler.go", patches[0].Filename)
	assert.Equal(t, StatusModified, patches[0].Status)
	assert.Equal(t, "app/new.go", patches[1].Filename)
	assert.Equal(t, StatusAdded, patches[1].Status)
	assert.Equal(t, "app/old.go", patches[2].Filename)
	assert.Equal(t, StatusRemoved, patches[2].Status)

	hunks := ParseHunks(patches[0].Patch)
	require.Len(t, hunks, 1)
	assert.Equal(t, []string{"package app", "", "import \"fmt\""}, hunks[0].OldView)
	require.Len(t, hunks[0].NewView, 5)
	assert.Equal(t, "5 )", hunks[0].NewView[4].Text)

	added := ParseHunks(patches[1].Patch)
	require.Len(t, added, 1)
	assert.Equal(t, 1, added[0].FirstLine())
	assert.Equal(t, 2, added[0].LastLine())
}

func TestSplitUnified_Empty(t *testing.T) {
	patches, err := SplitUnified("")
	require.NoError(t, err)
	assert.Empty(t, patches)
}
