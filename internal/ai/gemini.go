package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

type geminiModels interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

type GeminiClientConfig struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// GeminiClient calls the Gemini API with a JSON response MIME type.
type GeminiClient struct {
	models geminiModels
	model  string
}

func NewGeminiClient(ctx context.Context, config GeminiClientConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: config.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiClient(client.Models, config.Model), nil
}

func newGeminiClient(models geminiModels, model string) *GeminiClient {
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{models: models, model: strings.TrimSpace(model)}
}

func (c *GeminiClient) Name() string  { return ProviderGemini }
func (c *GeminiClient) Model() string { return c.model }

func (c *GeminiClient) Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error) {
	if strings.TrimSpace(request.Prompt) == "" {
		return GenerateResult{}, errors.New("prompt is required")
	}
	request = requestDefaults(request)

	response, err := c.models.GenerateContent(ctx,
		c.model,
		[]*genai.Content{genai.NewContentFromText(request.Prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			MaxOutputTokens:  int32(request.MaxOutputTokens),
			Temperature:      genai.Ptr(float32(request.Temperature)),
		},
	)
	if err != nil {
		return GenerateResult{}, classifyGeminiError(err)
	}

	text := strings.TrimSpace(response.Text())
	if text == "" {
		return GenerateResult{}, errors.New("gemini response without text output")
	}

	result := GenerateResult{Text: text, ModelID: firstNonEmpty(response.ModelVersion, c.model)}
	if usage := response.UsageMetadata; usage != nil {
		result.Usage = TokenUsage{
			InputTokens:  int(usage.PromptTokenCount),
			OutputTokens: int(usage.CandidatesTokenCount),
			TotalTokens:  int(usage.TotalTokenCount),
		}
	}
	return result, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &providerError{Provider: ProviderGemini, StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &providerError{Provider: ProviderGemini, StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message, Err: err}
	}
	return fmt.Errorf("gemini generate: %w", err)
}
