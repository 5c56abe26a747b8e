package llm

import (
	"encoding/json"
	"testing"
)

func TestRepairJSON_ValidJSON(t *testing.T) {
	validJSON := `{"suggestions": [{"filename": "main.go", "line_number_start": 10}]}`

	repaired, stats, err := RepairJSON(validJSON)

	if err != nil {
		t.Errorf("Expected no error for valid JSON, got: %v", err)
	}
	if stats.WasRepaired {
		t.Error("Expected WasRepaired to be false for valid JSON")
	}
	if repaired != validJSON {
		t.Error("Expected repaired JSON to be identical to original for valid JSON")
	}
	if stats.OriginalBytes != len(validJSON) || stats.RepairedBytes != len(validJSON) {
		t.Error("Expected byte counts to match original")
	}
}

func TestRepairJSON_TrailingCommas(t *testing.T) {
	malformedJSON := `{"suggestions": [{"filename": "main.go", "line_number_start": 10,},]}`
	expected := `{"suggestions": [{"filename": "main.go", "line_number_start": 10}]}`

	repaired, stats, err := RepairJSON(malformedJSON)

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !stats.WasRepaired {
		t.Error("Expected WasRepaired to be true")
	}
	if repaired != expected {
		t.Errorf("Expected %s, got %s", expected, repaired)
	}
	if len(stats.RepairStrategies) != 1 || stats.RepairStrategies[0] != "trailing_commas" {
		t.Errorf("Expected trailing_commas strategy, got %v", stats.RepairStrategies)
	}
}

func TestRepairJSON_LibraryFallback(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"single quotes", `{'filename': 'main.go'}`},
		{"unquoted keys", `{filename: "main.go"}`},
		{"truncated", `{"suggestions": [{"filename": "main.go"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repaired, stats, err := RepairJSON(tt.input)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if !stats.WasRepaired {
				t.Error("Expected WasRepaired to be true")
			}
			var obj interface{}
			if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
				t.Errorf("Repaired JSON is still invalid: %v\n%s", err, repaired)
			}
		})
	}
}
