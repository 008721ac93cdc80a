package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tmc/langchaingo/llms"
)

const (
	defaultMaxTokens = 1024
	// Messages must open with a user turn; histories that open with the
	// mentor's greeting get this placeholder in front.
	conversationStarter = "Let's begin."
)

// AnthropicModel adapts the Anthropic Messages API to llms.Model.
type AnthropicModel struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicModel(apiKey, model string, opts ...option.RequestOption) *AnthropicModel {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := anthropic.NewClient(opts...)

	return &AnthropicModel{client: &client, model: model}
}

func (a *AnthropicModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	// Temperature starts below the valid range so an explicit 0 is still sent.
	callOpts := llms.CallOptions{Temperature: -1}
	for _, opt := range options {
		opt(&callOpts)
	}

	system, converted := convertMessages(messages)

	maxTokens := int64(defaultMaxTokens)
	if callOpts.MaxTokens > 0 {
		maxTokens = int64(callOpts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages:  converted,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if callOpts.Temperature >= 0 {
		params.Temperature = anthropic.Float(callOpts.Temperature)
	}

	response, err := a.client.Messages.New(ctx, params)
	if err != nil {
		log.Printf("[ERROR] Failed to call Anthropic API: %v", err)
		return nil, fmt.Errorf("failed to call Anthropic API: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    text.String(),
			StopReason: string(response.StopReason),
		}},
	}, nil
}

func (a *AnthropicModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, a, prompt, options...)
}

// convertMessages pulls system text out of the conversation and merges
// consecutive messages from the same side.
func convertMessages(messages []llms.MessageContent) (string, []anthropic.MessageParam) {
	var systemParts []string
	type turn struct {
		role anthropic.MessageParamRole
		text []string
	}
	var turns []turn

	for _, msg := range messages {
		text := messageText(msg)

		var role anthropic.MessageParamRole
		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			systemParts = append(systemParts, text)
			continue
		case llms.ChatMessageTypeAI:
			role = anthropic.MessageParamRoleAssistant
		default:
			role = anthropic.MessageParamRoleUser
		}

		if len(turns) > 0 && turns[len(turns)-1].role == role {
			turns[len(turns)-1].text = append(turns[len(turns)-1].text, text)
			continue
		}
		turns = append(turns, turn{role: role, text: []string{text}})
	}

	if len(turns) > 0 && turns[0].role == anthropic.MessageParamRoleAssistant {
		turns = append([]turn{{role: anthropic.MessageParamRoleUser, text: []string{conversationStarter}}}, turns...)
	}

	converted := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(strings.Join(t.text, "\n\n"))
		if t.role == anthropic.MessageParamRoleAssistant {
			converted = append(converted, anthropic.NewAssistantMessage(block))
		} else {
			converted = append(converted, anthropic.NewUserMessage(block))
		}
	}

	return strings.Join(systemParts, "\n\n"), converted
}

func messageText(msg llms.MessageContent) string {
	var parts []string
	for _, part := range msg.Parts {
		if text, ok := part.(llms.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
