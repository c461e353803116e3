package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"

	DefaultMaxOutputTokens = 1000
	DefaultTemperature     = 0.7
)

type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type GenerateRequest struct {
	Prompt          string
	Temperature     float64
	MaxOutputTokens int
}

type GenerateResult struct {
	Text    string
	ModelID string
	Usage   TokenUsage
}

// Provider sends one prompt to a hosted model and returns its raw text.
// Implementations make a single attempt; retries belong to the caller.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error)
}

// NotConfiguredError means the selected provider lacks credentials or a region.
type NotConfiguredError struct {
	Message string
}

func (e *NotConfiguredError) Error() string {
	return e.Message
}

type ProviderSettings struct {
	Name string

	BedrockRegion string
	BedrockModel  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAITimeout time.Duration

	GeminiAPIKey string
	GeminiModel  string

	HTTPClient *http.Client
}

// NewProvider builds the provider named in settings. A *NotConfiguredError is
// returned when required settings are missing.
func NewProvider(ctx context.Context, settings ProviderSettings) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(settings.Name))
	if name == "" {
		name = ProviderBedrock
	}

	switch name {
	case ProviderBedrock:
		if strings.TrimSpace(settings.BedrockRegion) == "" {
			return nil, &NotConfiguredError{Message: "Bedrock region not configured"}
		}
		client, err := NewBedrockClient(ctx, BedrockClientConfig{
			Region: settings.BedrockRegion,
			Model:  settings.BedrockModel,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderOpenAI:
		if strings.TrimSpace(settings.OpenAIAPIKey) == "" {
			return nil, &NotConfiguredError{Message: "OpenAI API key not configured"}
		}
		return NewOpenAIClient(OpenAIClientConfig{
			APIKey:     settings.OpenAIAPIKey,
			BaseURL:    settings.OpenAIBaseURL,
			Model:      settings.OpenAIModel,
			Timeout:    settings.OpenAITimeout,
			HTTPClient: settings.HTTPClient,
		}), nil
	case ProviderGemini:
		if strings.TrimSpace(settings.GeminiAPIKey) == "" {
			return nil, &NotConfiguredError{Message: "Gemini API key not configured"}
		}
		client, err := NewGeminiClient(ctx, GeminiClientConfig{
			APIKey:     settings.GeminiAPIKey,
			Model:      settings.GeminiModel,
			HTTPClient: settings.HTTPClient,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, &NotConfiguredError{Message: fmt.Sprintf("Unsupported AI provider: %s", settings.Name)}
	}
}

// providerError carries the HTTP-like status reported by a provider.
type providerError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *providerError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *providerError) Unwrap() error {
	return e.Err
}

func (e *providerError) HTTPStatus() int {
	return e.StatusCode
}

// truncateMessage caps message at limit bytes without splitting a character.
func truncateMessage(message string, limit int) string {
	message = strings.ToValidUTF8(strings.TrimSpace(message), "\uFFFD")
	if len(message) <= limit {
		return message
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func requestDefaults(request GenerateRequest) GenerateRequest {
	if request.MaxOutputTokens <= 0 {
		request.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if request.Temperature <= 0 {
		request.Temperature = DefaultTemperature
	}
	return request
}
