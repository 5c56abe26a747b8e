package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// JsonRepairStats tracks statistics about a JSON repair operation
type JsonRepairStats struct {
	OriginalBytes    int           `json:"original_bytes"`
	RepairedBytes    int           `json:"repaired_bytes"`
	RepairTime       time.Duration `json:"repair_time"`
	RepairStrategies []string      `json:"repair_strategies"`
	WasRepaired      bool          `json:"was_repaired"`
}

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// RepairJSON returns raw unchanged when it is valid JSON. Otherwise it tries,
// in order:
// 1. Remove trailing commas before } and ]
// 2. The jsonrepair library (quotes, comments, truncated input)
//
// Only syntax is repaired; the result may still be the wrong shape.
func RepairJSON(raw string) (repaired string, stats JsonRepairStats, err error) {
	startTime := time.Now()
	stats.OriginalBytes = len(raw)
	defer func() {
		stats.RepairedBytes = len(repaired)
		stats.RepairTime = time.Since(startTime)
	}()

	if json.Valid([]byte(raw)) {
		return raw, stats, nil
	}

	stats.WasRepaired = true
	repaired = raw

	// Strategy 1: trailing commas
	if trailingComma.MatchString(repaired) {
		candidate := trailingComma.ReplaceAllString(repaired, "$1")
		stats.RepairStrategies = append(stats.RepairStrategies, "trailing_commas")
		if json.Valid([]byte(candidate)) {
			return candidate, stats, nil
		}
	}

	// Strategy 2: jsonrepair library
	libraryRepaired, libraryErr := jsonrepair.JSONRepair(repaired)
	stats.RepairStrategies = append(stats.RepairStrategies, "jsonrepair_library")
	if libraryErr != nil {
		return repaired, stats, fmt.Errorf("JSON repair failed: %w", libraryErr)
	}
	if !json.Valid([]byte(libraryRepaired)) {
		return libraryRepaired, stats, fmt.Errorf("JSON repair failed after %d strategies", len(stats.RepairStrategies))
	}

	return libraryRepaired, stats, nil
}
