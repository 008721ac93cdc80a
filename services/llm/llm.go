package llm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"socratic/config"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

var defaultModels = map[string]string{
	config.ProviderOpenAI:    "gpt-4o-mini",
	config.ProviderGroq:      "llama-3.3-70b-versatile",
	config.ProviderAnthropic: "claude-3-5-haiku-latest",
}

// NewModel returns the configured provider's model with every call bounded by
// cfg.LLMTimeout.
func NewModel(cfg *config.Config) (llms.Model, error) {
	name := cfg.ModelName
	if name == "" {
		name = defaultModels[cfg.LLMProvider]
	}

	log.Printf("[INFO] Initializing %s model %s", cfg.LLMProvider, name)

	var (
		model llms.Model
		err   error
	)
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		model, err = openai.New(
			openai.WithModel(name),
			openai.WithToken(cfg.OpenAIAPIKey),
		)
	case config.ProviderGroq:
		model, err = openai.New(
			openai.WithModel(name),
			openai.WithToken(cfg.GroqAPIKey),
			openai.WithBaseURL(groqBaseURL),
		)
	case config.ProviderAnthropic:
		model = NewAnthropicModel(cfg.AnthropicAPIKey, name)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.LLMProvider, err)
	}

	return WithTimeout(model, cfg.LLMTimeout), nil
}

// NewEmbeddingClient returns the OpenAI client used for reference embeddings.
// Embeddings always go to OpenAI regardless of the chat provider.
func NewEmbeddingClient(apiKey string) (*openai.LLM, error) {
	client, err := openai.New(
		openai.WithModel(defaultModels[config.ProviderOpenAI]),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return client, nil
}

type timeoutModel struct {
	model   llms.Model
	timeout time.Duration
}

// WithTimeout wraps model so each GenerateContent call gets its own deadline.
// A non-positive timeout returns model unchanged.
func WithTimeout(model llms.Model, timeout time.Duration) llms.Model {
	if timeout <= 0 {
		return model
	}
	return &timeoutModel{model: model, timeout: timeout}
}

func (m *timeoutModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.model.GenerateContent(ctx, messages, options...)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("model call timed out after %s: %w", m.timeout, err)
	}
	return resp, err
}

func (m *timeoutModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}
