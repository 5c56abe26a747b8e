package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override; "__" separates sections,
// so APPSEC_GATE__FAIL_ON sets gate.fail_on.
const EnvPrefix = "APPSEC_"

// Change-set sources
const (
	SourceGitHub = "github"
	SourceGitLab = "gitlab"
	SourceLocal  = "local"
)

// Reasoning providers
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// Summary policies
const (
	SummaryLastMessage = "last_msg"
	SummaryReflection  = "reflection_with_llm"
)

// Config represents the application configuration as loaded from defaults,
// the TOML file and APPSEC_ environment overrides.
type Config struct {
	General struct {
		Source       string        `koanf:"source"`
		DryRun       bool          `koanf:"dry_run"`
		LogLevel     string        `koanf:"log_level"`
		LogFormat    string        `koanf:"log_format"`
		ArtifactsDir string        `koanf:"artifacts_dir"`
		Timeout      time.Duration `koanf:"timeout"`
	} `koanf:"general"`

	GitHub struct {
		APIURL string `koanf:"api_url"`
		Token  string `koanf:"token"`
	} `koanf:"github"`

	GitLab struct {
		URL   string `koanf:"url"`
		Token string `koanf:"token"`
	} `koanf:"gitlab"`

	AI struct {
		Provider       string        `koanf:"provider"`
		Model          string        `koanf:"model"`
		APIKey         string        `koanf:"api_key"`
		BaseURL        string        `koanf:"base_url"`
		Temperature    float64       `koanf:"temperature"`
		MaxTokens      int           `koanf:"max_tokens"`
		RequestTimeout time.Duration `koanf:"request_timeout"`
		MaxRetries     int           `koanf:"max_retries"`
	} `koanf:"ai"`

	Pipeline struct {
		MaxTurns      int            `koanf:"max_turns"`
		Turns         map[string]int `koanf:"turns"`
		SummaryPolicy string         `koanf:"summary_policy"`
		Chain         bool           `koanf:"chain"`
	} `koanf:"pipeline"`

	Redact struct {
		Enabled bool `koanf:"enabled"`
	} `koanf:"redact"`

	Gate struct {
		Enabled bool   `koanf:"enabled"`
		FailOn  string `koanf:"fail_on"`
		Stage   string `koanf:"stage"`
	} `koanf:"gate"`

	Emit struct {
		MaxConcurrency    int     `koanf:"max_concurrency"`
		RequestsPerSecond float64 `koanf:"requests_per_second"`
		Burst             int     `koanf:"burst"`
	} `koanf:"emit"`

	Server struct {
		Port       int           `koanf:"port"`
		JWTSecret  string        `koanf:"jwt_secret"`
		RunTimeout time.Duration `koanf:"run_timeout"`
	} `koanf:"server"`

	Trigger struct {
		URL   string `koanf:"url"`
		Token string `koanf:"token"`
	} `koanf:"trigger"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"general.source":           SourceGitHub,
		"general.log_level":        "info",
		"general.log_format":       "console",
		"general.timeout":          "15m",
		"github.api_url":           "https://api.github.com",
		"gitlab.url":               "https://gitlab.com",
		"ai.temperature":           0.0,
		"ai.max_tokens":            8192,
		"ai.request_timeout":       "30s",
		"ai.max_retries":           10,
		"pipeline.max_turns":       2,
		"pipeline.summary_policy":  SummaryLastMessage,
		"redact.enabled":           true,
		"gate.fail_on":             "",
		"gate.stage":               "Code_Reviewer_Agent",
		"emit.max_concurrency":     4,
		"emit.requests_per_second": 5.0,
		"emit.burst":               5,
		"server.port":              8888,
		"server.run_timeout":       "15m",
		"trigger.url":              "http://localhost:8888/api/v1/runs",
	}
}

// LoadConfig loads the configuration. An empty path tries the default
// locations; a missing default file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
				return nil, fmt.Errorf("error loading config: %w", err)
			}
		} else if !os.IsNotExist(err) || configPath != DefaultConfigFile {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range []string{"./" + DefaultConfigFile, "$HOME/." + DefaultConfigFile} {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
					return nil, fmt.Errorf("error loading config %s: %w", path, err)
				}
				break
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// DefaultConfigFile is the config file name looked up when none is given.
const DefaultConfigFile = "appsec.toml"

// InitConfig writes a sample configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# appsec configuration
# Credentials are best left to the environment:
#   GITHUB_API_TOKEN / GITLAB_TOKEN for the change-set source
#   ANTHROPIC_API_KEY, OPENAI_API_KEY or GOOGLE_API_KEY for the reasoning provider

[general]
source = "github"        # github, gitlab or local
dry_run = false
log_level = "info"
log_format = "console"   # console or json
artifacts_dir = ""       # write stage transcripts here when set
timeout = "15m"

[github]
api_url = "https://api.github.com"

[gitlab]
url = "https://gitlab.com"

[ai]
provider = ""            # anthropic, openai or gemini; detected from credentials when empty
model = ""
temperature = 0.0
max_tokens = 8192
request_timeout = "30s"
max_retries = 10

[pipeline]
max_turns = 2
summary_policy = "last_msg"   # last_msg or reflection_with_llm
chain = false

[pipeline.turns]
Mitigation_Expert_Agent = 2

[redact]
enabled = true

[gate]
enabled = false
fail_on = ""             # optional extra threshold: low, medium, high or critical
stage = "Code_Reviewer_Agent"

[emit]
max_concurrency = 4
requests_per_second = 5.0
burst = 5

[server]
port = 8888
jwt_secret = ""
run_timeout = "15m"

[trigger]
url = "http://localhost:8888/api/v1/runs"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0o644)
}

// Validate checks values that do not depend on credentials.
func Validate(config *Config) error {
	switch config.General.Source {
	case SourceGitHub, SourceGitLab, SourceLocal:
	default:
		return fmt.Errorf("unknown source %q (want %s, %s or %s)", config.General.Source, SourceGitHub, SourceGitLab, SourceLocal)
	}

	switch config.AI.Provider {
	case "", ProviderAnthropic, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown AI provider %q", config.AI.Provider)
	}

	if config.Pipeline.MaxTurns < 1 {
		return fmt.Errorf("pipeline.max_turns must be at least 1, got %d", config.Pipeline.MaxTurns)
	}
	for stage, turns := range config.Pipeline.Turns {
		if turns < 1 {
			return fmt.Errorf("pipeline.turns.%s must be at least 1, got %d", stage, turns)
		}
	}

	switch config.Pipeline.SummaryPolicy {
	case SummaryLastMessage, SummaryReflection:
	default:
		return fmt.Errorf("unknown summary policy %q", config.Pipeline.SummaryPolicy)
	}

	if config.Gate.Enabled && config.Gate.FailOn != "" && !validSeverity(config.Gate.FailOn) {
		return fmt.Errorf("gate.fail_on must be empty, low, medium, high or critical, got %q", config.Gate.FailOn)
	}

	if config.Emit.MaxConcurrency < 1 {
		return fmt.Errorf("emit.max_concurrency must be at least 1, got %d", config.Emit.MaxConcurrency)
	}
	if config.Emit.RequestsPerSecond < 0 {
		return fmt.Errorf("emit.requests_per_second must not be negative")
	}

	if config.AI.MaxTokens < 1 {
		return fmt.Errorf("ai.max_tokens must be positive")
	}

	return nil
}

func validSeverity(s string) bool {
	switch strings.ToLower(s) {
	case "low", "medium", "high", "critical":
		return true
	}
	return false
}
