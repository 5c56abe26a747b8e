package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrNoJSON is returned when a response holds nothing that looks like JSON.
var ErrNoJSON = errors.New("no JSON found in response")

// ProcessorResult contains the result of LLM response processing
type ProcessorResult struct {
	RepairStats  JsonRepairStats `json:"repair_stats"`
	OriginalJSON string          `json:"-"`
	RepairedJSON string          `json:"-"`
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
}

// ProcessLLMResponse extracts the JSON payload of a raw LLM response, repairs
// its syntax when needed and decodes it into target.
func ProcessLLMResponse(raw string, target interface{}) (ProcessorResult, error) {
	result := ProcessorResult{OriginalJSON: raw}

	jsonStr := ExtractJSON(raw)
	if jsonStr == "" {
		result.Error = ErrNoJSON.Error()
		log.Debug().Str("response", truncateForLog(raw, 200)).Msg("No JSON found in LLM response")
		return result, ErrNoJSON
	}

	repairedJSON, stats, err := RepairJSON(jsonStr)
	result.RepairStats = stats
	result.RepairedJSON = repairedJSON

	if stats.WasRepaired {
		log.Debug().
			Strs("strategies", stats.RepairStrategies).
			Int("original_bytes", stats.OriginalBytes).
			Int("repaired_bytes", stats.RepairedBytes).
			Dur("repair_time", stats.RepairTime).
			Msg("JSON repair applied")
	}

	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	if err := json.Unmarshal([]byte(repairedJSON), target); err != nil {
		result.Error = fmt.Sprintf("JSON parsing failed after repair: %v", err)
		return result, fmt.Errorf("JSON parsing failed after repair: %w", err)
	}

	result.Success = true
	return result, nil
}

// ExtractJSON finds the JSON payload in a mixed prose/JSON response. A
// ```json fence wins (the last one when there are several), then any fence
// whose body is an object, then the first balanced {...} in the text.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		if end := matchingClose(raw, 0); end > 0 {
			return raw[:end+1]
		}
		return raw
	}

	if strings.Contains(raw, "```") {
		var tagged, untagged string
		for _, block := range fencedBlocks(raw) {
			body := strings.TrimSpace(block.body)
			if !strings.HasPrefix(body, "{") && !strings.HasPrefix(body, "[") {
				continue
			}
			if strings.EqualFold(block.lang, "json") {
				tagged = body
			} else if untagged == "" {
				untagged = body
			}
		}
		if tagged != "" {
			return tagged
		}
		if untagged != "" {
			return untagged
		}
	}

	start := strings.Index(raw, "{")
	if start == -1 {
		return ""
	}
	if end := matchingClose(raw, start); end > 0 {
		return raw[start : end+1]
	}
	// Unterminated, let the repair step try to close it.
	return raw[start:]
}

type fencedBlock struct {
	lang string
	body string
}

func fencedBlocks(raw string) []fencedBlock {
	var (
		blocks  []fencedBlock
		current *fencedBlock
		lines   []string
	)
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") {
			if current != nil {
				lines = append(lines, line)
			}
			continue
		}
		if current == nil {
			current = &fencedBlock{lang: strings.TrimSpace(strings.TrimLeft(trimmed, "`"))}
			lines = nil
			continue
		}
		current.body = strings.Join(lines, "\n")
		blocks = append(blocks, *current)
		current = nil
	}
	return blocks
}

// matchingClose returns the index of the bracket closing the one at start,
// skipping brackets inside string literals, or -1.
func matchingClose(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func truncateForLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
