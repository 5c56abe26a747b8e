package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsec/pkg/models"
)

func TestIsBinaryFile(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected bool
	}{
		{
			name:     "Empty string",
			content:  "",
			expected: false,
		},
		{
			name:     "Plain text",
			content:  "This is a plain text file with normal content.\nIt has multiple lines and some special chars like $@#%.",
			expected: false,
		},
		{
			name:     "Non-ASCII text",
			content:  "// Überprüfung der Eingabe, 入力の検証, проверка ввода",
			expected: false,
		},
		{
			name:     "File with null byte",
			content:  "This file has a null byte \x00 in it.",
			expected: true,
		},
		{
			name:     "High non-printable ratio",
			content:  "Normal text with \x01\x02\x03\x04\x05\x06\x07\x08\x0B\x0C\x0E\x0F\x10\x11\x12\x13\x14\x15\x16\x17\x18\x19\x1A\x1B\x1C\x1D\x1E\x1F many control chars",
			expected: true,
		},
		{
			name:     "Invalid UTF-8",
			content:  "\xff\xfe\xfd\xfc\xfb\xfa\xf9\xf8",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsBinaryFile(tt.content)
			if result != tt.expected {
				t.Errorf("IsBinaryFile() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestFilterReviewable(t *testing.T) {
	in := []models.FilePatch{
		{Filename: "main.go", Patch: "@@ -1 +1 @@\n-a\n+b"},
		{Filename: "logo.PNG", Patch: "@@ -1 +1 @@\n-a\n+b"},
		{Filename: "empty.go", Patch: ""},
		{Filename: "blob.txt", Patch: "@@ -0,0 +1 @@\n+\x00\x01"},
		{Filename: "util.py", Patch: "@@ -1 +1 @@\n-x\n+y"},
	}

	kept, skipped := FilterReviewable(in)
	require.Len(t, kept, 2)
	assert.Equal(t, "main.go", kept[0].Filename)
	assert.Equal(t, "util.py", kept[1].Filename)
	assert.Equal(t, []string{"logo.PNG", "empty.go", "blob.txt"}, skipped)
}

func TestTaskQueue_OrderedResults(t *testing.T) {
	q := NewTaskQueue(4)
	for i := 0; i < 10; i++ {
		i := i
		q.AddTask(NewFuncTask(fmt.Sprintf("task-%d", i), func(ctx context.Context) (interface{}, error) {
			// Later tasks finish first.
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			if i == 3 {
				return nil, errors.New("boom")
			}
			return i, nil
		}))
	}

	results := q.ProcessAll(context.Background())
	require.Len(t, results, 10)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("task-%d", i), r.TaskID)
		if i == 3 {
			assert.EqualError(t, r.Error, "boom")
			continue
		}
		assert.NoError(t, r.Error)
		assert.Equal(t, i, r.Result)
	}
}

func TestTaskQueue_BoundedConcurrency(t *testing.T) {
	var running, peak int32
	q := NewTaskQueue(2)
	for i := 0; i < 8; i++ {
		q.AddTask(NewFuncTask(fmt.Sprint(i), func(ctx context.Context) (interface{}, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil, nil
		}))
	}

	q.ProcessAll(context.Background())
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestTaskQueue_Retries(t *testing.T) {
	var calls int32
	q := NewTaskQueue(1)
	q.SetMaxRetries(2)
	q.SetRetryDelay(time.Millisecond)
	q.AddTask(NewFuncTask("flaky", func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}))

	results := q.ProcessAll(context.Background())
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Error)
	assert.Equal(t, 2, results[0].Retries)
	assert.Equal(t, "ok", results[0].Result)
}

func TestTaskQueue_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := NewTaskQueue(2)
	q.AddTask(NewFuncTask("never", func(ctx context.Context) (interface{}, error) {
		t.Error("task must not run")
		return nil, nil
	}))

	results := q.ProcessAll(ctx)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Error, context.Canceled)
}

func TestTaskQueue_Empty(t *testing.T) {
	assert.Empty(t, NewTaskQueue(3).ProcessAll(context.Background()))
}
