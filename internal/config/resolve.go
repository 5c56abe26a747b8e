package config

import (
	"strings"
	"time"

	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

// Well-known credential variables.
const (
	EnvGitHubAPIToken  = "GITHUB_API_TOKEN"
	EnvGitHubToken     = "GITHUB_TOKEN"
	EnvGitLabToken     = "GITLAB_TOKEN"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvAnthropicModel  = "ANTHROPIC_MODEL"
	EnvOpenAIModel     = "OPENAI_MODEL"
	EnvGoogleModel     = "GOOGLE_MODEL"
	EnvTriggerToken    = "APPSEC_API_TOKEN"
)

// Default models per provider.
const (
	DefaultAnthropicModel = "claude-3-5-sonnet-20240620"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultGeminiModel    = "gemini-1.5-pro"
)

type providerCredential struct {
	name     string
	keyVar   string
	modelVar string
	model    string
}

// providerPrecedence is the order credentials are probed in when no
// provider is configured explicitly.
var providerPrecedence = []providerCredential{
	{ProviderAnthropic, EnvAnthropicAPIKey, EnvAnthropicModel, DefaultAnthropicModel},
	{ProviderOpenAI, EnvOpenAIAPIKey, EnvOpenAIModel, DefaultOpenAIModel},
	{ProviderGemini, EnvGoogleAPIKey, EnvGoogleModel, DefaultGeminiModel},
}

// LookupFunc reads one environment variable; os.LookupEnv in production.
type LookupFunc func(key string) (string, bool)

// Settings is the resolved runtime configuration of one process. It is
// produced once by Resolve and only read afterwards.
type Settings struct {
	Source       string
	DryRun       bool
	ArtifactsDir string
	Timeout      time.Duration

	GitHub GitHubSettings
	GitLab GitLabSettings
	AI     AISettings

	Pipeline PipelineSettings
	Redact   bool
	Gate     GateSettings
	Emit     EmitSettings
	Server   ServerSettings
}

type GitHubSettings struct {
	APIURL string
	Token  string
}

type GitLabSettings struct {
	URL   string
	Token string
}

// AISettings selects exactly one reasoning provider.
type AISettings struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
	MaxRetries     int
}

type PipelineSettings struct {
	MaxTurns      int
	Turns         map[string]int // keyed by lower-cased stage name
	SummaryPolicy string
	Chain         bool
}

// TurnsFor returns the turn budget of a stage.
func (p PipelineSettings) TurnsFor(stage string) int {
	if n, ok := p.Turns[strings.ToLower(stage)]; ok {
		return n
	}
	return p.MaxTurns
}

type GateSettings struct {
	Enabled bool
	FailOn  models.Severity
	Stage   string
}

type EmitSettings struct {
	MaxConcurrency    int
	RequestsPerSecond float64
	Burst             int
}

type ServerSettings struct {
	Port       int
	JWTSecret  string
	RunTimeout time.Duration
}

// Resolve validates cfg and resolves every credential, so a run fails with
// a configuration error before any network call is made.
func Resolve(cfg *Config, lookup LookupFunc) (Settings, error) {
	if err := Validate(cfg); err != nil {
		return Settings{}, runerr.Configuration("resolve config", "%v", err)
	}

	s := Settings{
		Source:       cfg.General.Source,
		DryRun:       cfg.General.DryRun,
		ArtifactsDir: cfg.General.ArtifactsDir,
		Timeout:      cfg.General.Timeout,
		GitHub:       GitHubSettings{APIURL: strings.TrimRight(cfg.GitHub.APIURL, "/")},
		GitLab:       GitLabSettings{URL: strings.TrimRight(cfg.GitLab.URL, "/")},
		Pipeline: PipelineSettings{
			MaxTurns:      cfg.Pipeline.MaxTurns,
			Turns:         make(map[string]int, len(cfg.Pipeline.Turns)),
			SummaryPolicy: cfg.Pipeline.SummaryPolicy,
			Chain:         cfg.Pipeline.Chain,
		},
		Redact: cfg.Redact.Enabled,
		Gate: GateSettings{
			Enabled: cfg.Gate.Enabled,
			FailOn:  models.Severity(strings.ToLower(cfg.Gate.FailOn)),
			Stage:   cfg.Gate.Stage,
		},
		Emit: EmitSettings{
			MaxConcurrency:    cfg.Emit.MaxConcurrency,
			RequestsPerSecond: cfg.Emit.RequestsPerSecond,
			Burst:             cfg.Emit.Burst,
		},
		Server: ServerSettings{
			Port:       cfg.Server.Port,
			JWTSecret:  cfg.Server.JWTSecret,
			RunTimeout: cfg.Server.RunTimeout,
		},
	}
	for stage, turns := range cfg.Pipeline.Turns {
		s.Pipeline.Turns[strings.ToLower(stage)] = turns
	}

	switch s.Source {
	case SourceGitHub:
		s.GitHub.Token = firstNonEmpty(cfg.GitHub.Token, lookupEnv(lookup, EnvGitHubAPIToken), lookupEnv(lookup, EnvGitHubToken))
		if s.GitHub.Token == "" {
			return Settings{}, runerr.Configuration("resolve credentials", "%s environment variable has not been set", EnvGitHubAPIToken)
		}
	case SourceGitLab:
		s.GitLab.Token = firstNonEmpty(cfg.GitLab.Token, lookupEnv(lookup, EnvGitLabToken))
		if s.GitLab.Token == "" {
			return Settings{}, runerr.Configuration("resolve credentials", "%s environment variable has not been set", EnvGitLabToken)
		}
	}

	ai, err := resolveAI(cfg, lookup)
	if err != nil {
		return Settings{}, err
	}
	s.AI = ai

	return s, nil
}

func resolveAI(cfg *Config, lookup LookupFunc) (AISettings, error) {
	ai := AISettings{
		BaseURL:        cfg.AI.BaseURL,
		Temperature:    cfg.AI.Temperature,
		MaxTokens:      cfg.AI.MaxTokens,
		RequestTimeout: cfg.AI.RequestTimeout,
		MaxRetries:     cfg.AI.MaxRetries,
	}

	for _, p := range providerPrecedence {
		if cfg.AI.Provider != "" && cfg.AI.Provider != p.name {
			continue
		}
		key := lookupEnv(lookup, p.keyVar)
		if cfg.AI.Provider == p.name {
			key = firstNonEmpty(cfg.AI.APIKey, key)
		}
		if key == "" {
			continue
		}
		ai.Provider = p.name
		ai.APIKey = key
		ai.Model = firstNonEmpty(cfg.AI.Model, lookupEnv(lookup, p.modelVar), p.model)
		return ai, nil
	}

	if cfg.AI.Provider != "" {
		for _, p := range providerPrecedence {
			if p.name == cfg.AI.Provider {
				return AISettings{}, runerr.Configuration("resolve credentials", "%s environment variable has not been set for provider %s", p.keyVar, p.name)
			}
		}
	}
	return AISettings{}, runerr.Configuration("resolve credentials",
		"model provider API key not specified: set one of %s, %s or %s", EnvAnthropicAPIKey, EnvOpenAIAPIKey, EnvGoogleAPIKey)
}

// CredentialReport lists which credentials are visible to the process.
type CredentialReport struct {
	Missing  []string
	Present  map[string]string // masked values
	Warnings []string
}

// CheckCredentials inspects the credential variables for source.
func CheckCredentials(source string, lookup LookupFunc) *CredentialReport {
	report := &CredentialReport{Present: make(map[string]string)}

	check := func(required bool, names ...string) {
		found := false
		for _, name := range names {
			if v := lookupEnv(lookup, name); v != "" {
				report.Present[name] = MaskSecret(v)
				found = true
			}
		}
		if required && !found {
			report.Missing = append(report.Missing, strings.Join(names, " or "))
		}
	}

	switch source {
	case SourceGitHub:
		check(true, EnvGitHubAPIToken, EnvGitHubToken)
	case SourceGitLab:
		check(true, EnvGitLabToken)
	}

	check(true, EnvAnthropicAPIKey, EnvOpenAIAPIKey, EnvGoogleAPIKey)
	check(false, EnvTriggerToken)

	providers := 0
	for _, p := range providerPrecedence {
		if _, ok := report.Present[p.keyVar]; ok {
			providers++
		}
	}
	if providers > 1 {
		report.Warnings = append(report.Warnings, "several provider keys are set; precedence is anthropic, openai, gemini unless ai.provider is configured")
	}

	return report
}

// MaskSecret masks a secret value for display, showing only the first and last 2 chars
func MaskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

func lookupEnv(lookup LookupFunc, key string) string {
	if lookup == nil {
		return ""
	}
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
