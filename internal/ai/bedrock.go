package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

type bedrockInvoker interface {
	InvokeModel(
		ctx context.Context,
		params *bedrockruntime.InvokeModelInput,
		optFns ...func(*bedrockruntime.Options),
	) (*bedrockruntime.InvokeModelOutput, error)
}

type BedrockClientConfig struct {
	Region string
	Model  string
}

// BedrockClient invokes Anthropic models hosted on Amazon Bedrock.
type BedrockClient struct {
	invoker bedrockInvoker
	model   string
}

func NewBedrockClient(ctx context.Context, config BedrockClientConfig) (*BedrockClient, error) {
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newBedrockClient(bedrockruntime.NewFromConfig(awsConfig), config.Model), nil
}

func newBedrockClient(invoker bedrockInvoker, model string) *BedrockClient {
	if strings.TrimSpace(model) == "" {
		model = "anthropic.claude-instant-v1"
	}
	return &BedrockClient{invoker: invoker, model: strings.TrimSpace(model)}
}

func (c *BedrockClient) Name() string  { return ProviderBedrock }
func (c *BedrockClient) Model() string { return c.model }

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *BedrockClient) Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error) {
	if strings.TrimSpace(request.Prompt) == "" {
		return GenerateResult{}, errors.New("prompt is required")
	}
	request = requestDefaults(request)

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        request.MaxOutputTokens,
		Temperature:      request.Temperature,
		Messages:         []bedrockMessage{{Role: "user", Content: request.Prompt}},
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("marshal bedrock payload: %w", err)
	}

	output, err := c.invoker.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return GenerateResult{}, classifyBedrockError(err)
	}

	var raw bedrockResponse
	if err := json.Unmarshal(output.Body, &raw); err != nil {
		return GenerateResult{}, fmt.Errorf("decode bedrock response: %w", err)
	}

	fragments := make([]string, 0, len(raw.Content))
	for _, part := range raw.Content {
		if text := strings.TrimSpace(part.Text); text != "" {
			fragments = append(fragments, text)
		}
	}
	text := strings.Join(fragments, "\n")
	if text == "" {
		return GenerateResult{}, errors.New("bedrock response without text output")
	}

	return GenerateResult{
		Text:    text,
		ModelID: c.model,
		Usage: TokenUsage{
			InputTokens:  raw.Usage.InputTokens,
			OutputTokens: raw.Usage.OutputTokens,
			TotalTokens:  raw.Usage.InputTokens + raw.Usage.OutputTokens,
		},
	}, nil
}

// classifyBedrockError attaches an HTTP status to SDK failures. Service error
// codes fill in the status when the transport did not record one.
func classifyBedrockError(err error) error {
	classified := &providerError{Provider: ProviderBedrock, Message: err.Error(), Err: err}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		classified.StatusCode = statusErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		classified.Message = apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
		if classified.StatusCode == 0 {
			switch apiErr.ErrorCode() {
			case "ThrottlingException", "TooManyRequestsException":
				classified.StatusCode = http.StatusTooManyRequests
			case "ServiceUnavailableException", "ModelNotReadyException":
				classified.StatusCode = http.StatusServiceUnavailable
			case "ModelTimeoutException":
				classified.StatusCode = http.StatusRequestTimeout
			case "ValidationException":
				classified.StatusCode = http.StatusBadRequest
			case "AccessDeniedException":
				classified.StatusCode = http.StatusForbidden
			}
		}
	}
	return classified
}
