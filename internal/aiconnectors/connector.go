package aiconnectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/appsec/internal/config"
	"github.com/appsec/internal/retry"
	"github.com/appsec/pkg/models"
)

// ErrEmptyResponse is returned when the model answers without any choice.
var ErrEmptyResponse = errors.New("empty response from model")

// ModelConfig contains the generation settings applied to every call
type ModelConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ConnectorOptions contains options for creating a connector
type ConnectorOptions struct {
	Provider       string
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	ModelConfig    ModelConfig
	Retry          retry.RetryConfig
}

// OptionsFromSettings maps resolved settings onto connector options.
func OptionsFromSettings(ai config.AISettings) ConnectorOptions {
	retryCfg := retry.LLMRetryConfig()
	retryCfg.MaxRetries = ai.MaxRetries

	return ConnectorOptions{
		Provider:       ai.Provider,
		APIKey:         ai.APIKey,
		BaseURL:        ai.BaseURL,
		RequestTimeout: ai.RequestTimeout,
		ModelConfig: ModelConfig{
			Model:       ai.Model,
			Temperature: ai.Temperature,
			MaxTokens:   ai.MaxTokens,
		},
		Retry: retryCfg,
	}
}

// Connector represents a connection to one reasoning provider
type Connector struct {
	provider string
	llm      llms.Model
	options  ConnectorOptions
}

// NewConnector creates a new connector for the configured provider
func NewConnector(ctx context.Context, options ConnectorOptions) (*Connector, error) {
	log.Debug().
		Str("provider", options.Provider).
		Str("model", options.ModelConfig.Model).
		Float64("temperature", options.ModelConfig.Temperature).
		Msg("Creating new connector")

	var (
		model llms.Model
		err   error
	)

	switch options.Provider {
	case config.ProviderOpenAI:
		model, err = createOpenAIModel(options)
	case config.ProviderAnthropic:
		model, err = createAnthropicModel(options)
	case config.ProviderGemini:
		model, err = createGeminiModel(ctx, options)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return NewConnectorWithModel(model, options), nil
}

// NewConnectorWithModel wraps an existing model, e.g. a fake in tests.
func NewConnectorWithModel(model llms.Model, options ConnectorOptions) *Connector {
	return &Connector{
		provider: options.Provider,
		llm:      model,
		options:  options,
	}
}

func httpClient(options ConnectorOptions) *http.Client {
	return &http.Client{Timeout: options.RequestTimeout}
}

func createOpenAIModel(options ConnectorOptions) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(options.ModelConfig.Model),
		openai.WithToken(options.APIKey),
		openai.WithHTTPClient(httpClient(options)),
	}
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}
	return openai.New(opts...)
}

func createAnthropicModel(options ConnectorOptions) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(options.APIKey),
		anthropic.WithModel(options.ModelConfig.Model),
		anthropic.WithHTTPClient(httpClient(options)),
	}
	if options.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(options.BaseURL))
	}
	return anthropic.New(opts...)
}

func createGeminiModel(ctx context.Context, options ConnectorOptions) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithAPIKey(options.APIKey),
		googleai.WithDefaultModel(options.ModelConfig.Model),
		googleai.WithDefaultTemperature(options.ModelConfig.Temperature),
	}
	if options.ModelConfig.MaxTokens > 0 {
		opts = append(opts, googleai.WithDefaultMaxTokens(options.ModelConfig.MaxTokens))
	}

	model, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini model: %w", err)
	}
	return model, nil
}

// Reply sends the system prompt and history and returns the model's answer.
// Rate limits, timeouts and unavailable providers are retried.
func (c *Connector) Reply(ctx context.Context, systemPrompt string, history []models.ChatMessage) (string, error) {
	messages := make([]llms.MessageContent, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, m := range history {
		role := llms.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}

	callOptions := []llms.CallOption{
		llms.WithTemperature(c.options.ModelConfig.Temperature),
	}
	if c.options.ModelConfig.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.options.ModelConfig.MaxTokens))
	}

	retryCfg := c.options.Retry
	retryCfg.ShouldRetry = isRetryable

	var content string
	result := retry.RetryWithBackoff(ctx, retryCfg, func(ctx context.Context) error {
		resp, err := c.llm.GenerateContent(ctx, messages, callOptions...)
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		content = resp.Choices[0].Content
		return nil
	}, &log.Logger)

	if !result.Success {
		return "", fmt.Errorf("%s call failed after %d attempt(s): %w", c.provider, result.Attempts, result.LastError)
	}
	return content, nil
}

// Ping sends a minimal prompt to check the credentials.
func (c *Connector) Ping(ctx context.Context) error {
	reply, err := c.Reply(ctx, "", []models.ChatMessage{{Role: models.RoleUser, Content: "Reply with the single word OK."}})
	if err != nil {
		return err
	}
	log.Debug().Str("provider", c.provider).Str("reply", strings.TrimSpace(reply)).Msg("Provider reachable")
	return nil
}

// GetProvider returns the provider of this connector
func (c *Connector) GetProvider() string {
	return c.provider
}

// GetModel returns the model name from the config
func (c *Connector) GetModel() string {
	return c.options.ModelConfig.Model
}

func isRetryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case llms.IsAuthenticationError(err), llms.IsInvalidRequestError(err), llms.IsContentFilterError(err), llms.IsTokenLimitError(err):
		return false
	case llms.IsRateLimitError(err), llms.IsTimeoutError(err), llms.IsProviderUnavailableError(err):
		return true
	case errors.Is(err, ErrEmptyResponse):
		return true
	default:
		return retry.IsRetryableError(err)
	}
}
