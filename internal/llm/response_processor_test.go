package llm

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "pure JSON",
			raw:  `  {"a": 1}  `,
			want: `{"a": 1}`,
		},
		{
			name: "pure JSON followed by prose",
			raw:  `{"a": 1} hope this helps`,
			want: `{"a": 1}`,
		},
		{
			name: "last json fence wins over code fences",
			raw:  "Fix the query:\n```go\nfunc f() { return }\n```\nDraft:\n```json\n{\"a\": 0}\n```\nFinal:\n```json\n{\"a\": 2}\n```\n",
			want: `{"a": 2}`,
		},
		{
			name: "untagged fence with object",
			raw:  "Result:\n```\n{\"a\": 3}\n```",
			want: `{"a": 3}`,
		},
		{
			name: "braces inside strings",
			raw:  `Here you go: {"code": "if x { y }", "n": 1} done`,
			want: `{"code": "if x { y }", "n": 1}`,
		},
		{
			name: "unterminated object",
			raw:  `Answer: {"a": [1, 2`,
			want: `{"a": [1, 2`,
		},
		{
			name: "no JSON",
			raw:  "nothing structured here",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.raw); got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProcessLLMResponse(t *testing.T) {
	var target struct {
		Suggestions []struct {
			Filename string `json:"filename"`
		} `json:"suggestions"`
	}

	raw := "Mitigations below.\n```json\n{\"suggestions\": [{\"filename\": \"main.go\",}]}\n```"
	result, err := ProcessLLMResponse(raw, &target)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.Success || !result.RepairStats.WasRepaired {
		t.Errorf("Expected a successful repaired parse, got %+v", result)
	}
	if len(target.Suggestions) != 1 || target.Suggestions[0].Filename != "main.go" {
		t.Errorf("Unexpected decode result: %+v", target)
	}
}

func TestProcessLLMResponse_NoJSON(t *testing.T) {
	var target map[string]interface{}
	_, err := ProcessLLMResponse("I could not find any issues.", &target)
	if !errors.Is(err, ErrNoJSON) {
		t.Errorf("Expected ErrNoJSON, got %v", err)
	}
}
