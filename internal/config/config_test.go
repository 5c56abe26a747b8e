package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

func lookupFrom(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	// The package directory has no appsec.toml, so only defaults apply.
	cfg, err := LoadConfig(DefaultConfigFile)
	require.NoError(t, err)
	return cfg
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadDefaults(t)

	assert.Equal(t, SourceGitHub, cfg.General.Source)
	assert.Equal(t, 15*time.Minute, cfg.General.Timeout)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIURL)
	assert.Equal(t, 8192, cfg.AI.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.AI.RequestTimeout)
	assert.Equal(t, 2, cfg.Pipeline.MaxTurns)
	assert.True(t, cfg.Redact.Enabled)
	assert.Empty(t, cfg.Gate.FailOn)
	assert.NoError(t, Validate(cfg))

	cfg.Gate.Enabled = true
	assert.NoError(t, Validate(cfg))
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[general]
source = "gitlab"

[pipeline]
max_turns = 3

[pipeline.turns]
Mitigation_Expert_Agent = 4

[gate]
enabled = true
fail_on = "high"
`), 0o644))

	t.Setenv("APPSEC_EMIT__MAX_CONCURRENCY", "8")
	t.Setenv("APPSEC_GENERAL__DRY_RUN", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, SourceGitLab, cfg.General.Source)
	assert.True(t, cfg.General.DryRun)
	assert.Equal(t, 3, cfg.Pipeline.MaxTurns)
	assert.Equal(t, 4, cfg.Pipeline.Turns["Mitigation_Expert_Agent"])
	assert.Equal(t, 8, cfg.Emit.MaxConcurrency)
	assert.True(t, cfg.Gate.Enabled)
	assert.Equal(t, "high", cfg.Gate.FailOn)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appsec.toml")
	require.NoError(t, InitConfig(path))
	assert.Error(t, InitConfig(path), "second init must not overwrite")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.NoError(t, Validate(cfg))
	assert.Equal(t, 2, cfg.Pipeline.Turns["Mitigation_Expert_Agent"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.General.Source = "svn" }},
		{"unknown provider", func(c *Config) { c.AI.Provider = "cohere" }},
		{"zero turns", func(c *Config) { c.Pipeline.MaxTurns = 0 }},
		{"zero stage turns", func(c *Config) { c.Pipeline.Turns = map[string]int{"x": 0} }},
		{"unknown summary policy", func(c *Config) { c.Pipeline.SummaryPolicy = "first_msg" }},
		{"bad gate severity", func(c *Config) { c.Gate.Enabled = true; c.Gate.FailOn = "severe" }},
		{"zero concurrency", func(c *Config) { c.Emit.MaxConcurrency = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		env       map[string]string
		wantErr   bool
		wantAI    string
		wantModel string
	}{
		{
			name:    "missing source token",
			env:     map[string]string{EnvAnthropicAPIKey: "sk-ant"},
			wantErr: true,
		},
		{
			name:    "missing provider key",
			env:     map[string]string{EnvGitHubAPIToken: "ghp"},
			wantErr: true,
		},
		{
			name:      "anthropic wins precedence",
			env:       map[string]string{EnvGitHubAPIToken: "ghp", EnvAnthropicAPIKey: "sk-ant", EnvOpenAIAPIKey: "sk-oai"},
			wantAI:    ProviderAnthropic,
			wantModel: DefaultAnthropicModel,
		},
		{
			name:      "openai with model override",
			env:       map[string]string{EnvGitHubToken: "ghp", EnvOpenAIAPIKey: "sk-oai", EnvOpenAIModel: "gpt-4o-mini"},
			wantAI:    ProviderOpenAI,
			wantModel: "gpt-4o-mini",
		},
		{
			name:      "explicit provider",
			mutate:    func(c *Config) { c.AI.Provider = ProviderGemini },
			env:       map[string]string{EnvGitHubToken: "ghp", EnvAnthropicAPIKey: "sk-ant", EnvGoogleAPIKey: "g"},
			wantAI:    ProviderGemini,
			wantModel: DefaultGeminiModel,
		},
		{
			name:    "explicit provider without key",
			mutate:  func(c *Config) { c.AI.Provider = ProviderOpenAI },
			env:     map[string]string{EnvGitHubToken: "ghp", EnvAnthropicAPIKey: "sk-ant"},
			wantErr: true,
		},
		{
			name:      "local source needs no token",
			mutate:    func(c *Config) { c.General.Source = SourceLocal },
			env:       map[string]string{EnvOpenAIAPIKey: "sk-oai"},
			wantAI:    ProviderOpenAI,
			wantModel: DefaultOpenAIModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			s, err := Resolve(cfg, lookupFrom(tt.env))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, runerr.IsKind(err, runerr.KindConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAI, s.AI.Provider)
			assert.Equal(t, tt.wantModel, s.AI.Model)
			assert.NotEmpty(t, s.AI.APIKey)
		})
	}
}

func TestResolve_Settings(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Pipeline.Turns = map[string]int{"Mitigation_Expert_Agent": 5}
	cfg.Gate.FailOn = "HIGH"

	s, err := Resolve(cfg, lookupFrom(map[string]string{EnvGitHubAPIToken: "ghp", EnvAnthropicAPIKey: "k"}))
	require.NoError(t, err)

	assert.Equal(t, "ghp", s.GitHub.Token)
	assert.Equal(t, 5, s.Pipeline.TurnsFor("mitigation_expert_agent"))
	assert.Equal(t, 2, s.Pipeline.TurnsFor("Code_Reviewer_Agent"))
	assert.Equal(t, models.SeverityHigh, s.Gate.FailOn)
}

func TestCheckCredentials(t *testing.T) {
	report := CheckCredentials(SourceGitHub, lookupFrom(map[string]string{
		EnvAnthropicAPIKey: "sk-ant-1234567890",
		EnvOpenAIAPIKey:    "sk-oai-1234567890",
	}))

	assert.Equal(t, []string{EnvGitHubAPIToken + " or " + EnvGitHubToken}, report.Missing)
	assert.Equal(t, "sk****90", report.Present[EnvAnthropicAPIKey])
	assert.Len(t, report.Warnings, 1)
}

func TestLookupEnv(t *testing.T) {
	lookup := lookupFrom(map[string]string{EnvGitHubToken: "  ghp-padded \n"})
	assert.Equal(t, "ghp-padded", lookupEnv(lookup, EnvGitHubToken))
	assert.Empty(t, lookupEnv(lookup, EnvGitLabToken))
	assert.Empty(t, lookupEnv(nil, EnvGitHubToken))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "gh****yz", MaskSecret("ghp_abcdefxyz"))
}
