package nutrition

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
)

const estimatePrompt = `You estimate nutrition facts for meals. Reply with a single JSON object
and nothing else: {"calories": <int>, "protein_g": <number>, "carbs_g": <number>, "fat_g": <number>}.`

// Estimate is an AI estimate of a meal's nutrition
type Estimate struct {
	Calories int     `json:"calories"`
	Protein  float64 `json:"protein_g"`
	Carbs    float64 `json:"carbs_g"`
	Fat      float64 `json:"fat_g"`
}

// Estimator estimates nutrition from a free-text meal description
type Estimator interface {
	Estimate(ctx context.Context, description string) (Estimate, error)
}

// EstimatorConfig selects and configures the AI provider
type EstimatorConfig struct {
	Provider  string
	APIKey    string
	Model     string
	MaxTokens int
}

// NewEstimator builds the estimator for cfg.Provider
func NewEstimator(cfg EstimatorConfig) (Estimator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is not configured", cfg.Provider)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicEstimator(cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	case "openai":
		return NewOpenAIEstimator(cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %q", cfg.Provider)
	}
}

// AnthropicEstimator asks Claude for estimates
type AnthropicEstimator struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicEstimator creates an Anthropic estimator
func NewAnthropicEstimator(apiKey, model string, maxTokens int) *AnthropicEstimator {
	return &AnthropicEstimator{
		client:    anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Estimate implements Estimator
func (e *AnthropicEstimator) Estimate(ctx context.Context, description string) (Estimate, error) {
	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: int64(e.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: estimatePrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(description)),
		},
	})
	if err != nil {
		return Estimate{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	return parseEstimate(text.String())
}

// OpenAIEstimator asks an OpenAI chat model for estimates
type OpenAIEstimator struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAIEstimator creates an OpenAI estimator
func NewOpenAIEstimator(apiKey, model string, maxTokens int) *OpenAIEstimator {
	return &OpenAIEstimator{
		client:    openai.NewClient(openaioption.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Estimate implements Estimator
func (e *OpenAIEstimator) Estimate(ctx context.Context, description string) (Estimate, error) {
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(estimatePrompt),
			openai.UserMessage(description),
		},
		MaxTokens: openai.Int(int64(e.maxTokens)),
	})
	if err != nil {
		return Estimate{}, err
	}
	if len(resp.Choices) == 0 {
		return Estimate{}, fmt.Errorf("no response choices returned")
	}
	return parseEstimate(resp.Choices[0].Message.Content)
}

// parseEstimate extracts the JSON object from a model reply, tolerating
// surrounding prose or code fences
func parseEstimate(text string) (Estimate, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Estimate{}, fmt.Errorf("no JSON object in model reply")
	}

	var est Estimate
	if err := json.Unmarshal([]byte(text[start:end+1]), &est); err != nil {
		return Estimate{}, fmt.Errorf("failed to parse estimate: %w", err)
	}
	if est.Calories < 0 {
		return Estimate{}, fmt.Errorf("estimate has negative calories")
	}
	return est, nil
}
