package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsec/internal/config"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		reviews  []models.Review
		failOn   models.Severity
		failures int
	}{
		{
			name:     "no reviews",
			failOn:   models.SeverityCritical,
			failures: 0,
		},
		{
			name: "below threshold",
			reviews: []models.Review{
				{Filename: "a.go", Severity: models.SeverityHigh},
				{Filename: "b.go", Severity: models.SeverityLow},
			},
			failOn:   models.SeverityCritical,
			failures: 0,
		},
		{
			name: "at threshold",
			reviews: []models.Review{
				{Filename: "a.go", Severity: models.SeverityHigh},
			},
			failOn:   models.SeverityHigh,
			failures: 1,
		},
		{
			name: "explicit failure below threshold",
			reviews: []models.Review{
				{Filename: "a.go", Severity: models.SeverityLow, SeverityFailure: true, Reason: "hardcoded key"},
			},
			failOn:   models.SeverityCritical,
			failures: 1,
		},
		{
			name: "severity is case insensitive",
			reviews: []models.Review{
				{Filename: "a.go", Severity: "CRITICAL"},
			},
			failOn:   models.SeverityCritical,
			failures: 1,
		},
		{
			name: "unknown severity never trips the threshold",
			reviews: []models.Review{
				{Filename: "a.go", Severity: "catastrophic"},
			},
			failOn:   models.SeverityLow,
			failures: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.reviews, tt.failOn)
			assert.Len(t, v.Failures, tt.failures)
			assert.Equal(t, tt.failures > 0, v.Failed)
		})
	}
}

func TestVerdict_Err(t *testing.T) {
	v := Evaluate([]models.Review{
		{Filename: "app/db.py", Severity: models.SeverityCritical, Reason: "SQL injection"},
		{Severity: models.SeverityLow, SeverityFailure: true},
	}, models.SeverityCritical)

	err := v.Err()
	require.Error(t, err)
	assert.True(t, runerr.IsKind(err, runerr.KindSeverityGate))
	assert.Equal(t, runerr.ExitSeverityGate, runerr.ExitCode(err))
	assert.Contains(t, err.Error(), "2 finding(s) exceeded the severity threshold")
	assert.Contains(t, err.Error(), "app/db.py [critical]: SQL injection")
	assert.Contains(t, err.Error(), "(no file) [low]")
}

func TestVerdict_PassHasNoError(t *testing.T) {
	v := Evaluate(nil, models.SeverityHigh)
	assert.NoError(t, v.Err())
	assert.Empty(t, v.Message())
}

func TestEvaluate_DefaultConfigOnlyFailsOnSeverityFailure(t *testing.T) {
	cfg, err := config.LoadConfig(config.DefaultConfigFile)
	require.NoError(t, err)
	failOn := models.Severity(cfg.Gate.FailOn)
	assert.Zero(t, failOn.Rank())

	v := Evaluate([]models.Review{
		{Filename: "app/db.py", Severity: models.SeverityCritical, SeverityFailure: false},
	}, failOn)
	assert.False(t, v.Failed)
	assert.NoError(t, v.Err())

	v = Evaluate([]models.Review{
		{Filename: "app/db.py", Severity: models.SeverityLow, SeverityFailure: true},
	}, failOn)
	assert.True(t, v.Failed)
}
