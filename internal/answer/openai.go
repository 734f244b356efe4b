package answer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OpenAIConfig configures the chat completion backend. Any
// OpenAI-compatible endpoint works via BaseURL.
type OpenAIConfig struct {
	// APIKey authenticates against the API.
	APIKey string

	// BaseURL overrides the endpoint for compatible servers. Empty
	// means api.openai.com.
	BaseURL string

	// Model is the chat model. Default: gpt-4o-mini.
	Model string

	// Temperature for generation. Low keeps answers close to the
	// retrieved text. Default: 0.2.
	Temperature float32

	// RequestsPerMinute is the client-side rate limit. Default: 30.
	RequestsPerMinute int

	// MaxTokens caps the reply length. Default: 1024.
	MaxTokens int
}

// ApplyDefaults sets default values for unset fields.
func (c *OpenAIConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = openai.GPT4oMini
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = 30
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
}

// Validate validates the configuration.
func (c OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("api key required")
	}
	return nil
}

// OpenAIGenerator implements Generator on top of a chat completion
// API, with a client-side limiter so bursts of resident questions do
// not trip the provider's rate limits.
type OpenAIGenerator struct {
	client  *openai.Client
	config  OpenAIConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOpenAIGenerator creates an OpenAIGenerator.
func NewOpenAIGenerator(config OpenAIConfig, logger *zap.Logger) (*OpenAIGenerator, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  config,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), config.RequestsPerMinute),
		logger:  logger,
	}, nil
}

// Generate produces one chat completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.config.Model,
		Temperature: g.config.Temperature,
		MaxTokens:   g.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			g.logger.Warn("generation backend throttled request", zap.String("model", g.config.Model))
			return "", ErrRateLimited
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}
	return resp.Choices[0].Message.Content, nil
}

// Ensure OpenAIGenerator implements Generator.
var _ Generator = (*OpenAIGenerator)(nil)
