package tutor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// maxReferenceSnippets bounds how much reference material goes into one prompt.
const maxReferenceSnippets = 3

// ReferenceSource returns short reference passages about a topic.
type ReferenceSource interface {
	TopicSnippets(ctx context.Context, topic string, limit int) ([]string, error)
}

const useCaseSystemPrompt = `You write short, realistic workplace scenarios for Socratic discussions.
Never explain the concept or give the answer. Describe a situation and stop.`

const useCasePromptTemplate = `Write a real-world scenario of about 100 words about "%s".
The scenario must put the student in the position of making a decision or judgment call.
End with one open question asking what they would do and why.
Respond with the scenario only.%s`

type UseCaseGenerator struct {
	llm         llms.Model
	refs        ReferenceSource
	temperature float64
}

// NewUseCaseGenerator builds a generator. refs may be nil.
func NewUseCaseGenerator(llm llms.Model, refs ReferenceSource, temperature float64) *UseCaseGenerator {
	return &UseCaseGenerator{llm: llm, refs: refs, temperature: temperature}
}

// Generate makes one model call and returns the trimmed scenario.
func (g *UseCaseGenerator) Generate(ctx context.Context, topic string) (string, error) {
	log.Printf("[INFO] Generating use case for topic %q", topic)

	grounding := ""
	if snippets := fetchSnippets(ctx, g.refs, topic); len(snippets) > 0 {
		grounding = "\n\nBase the scenario on this reference material:\n" + formatSnippets(snippets)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, useCaseSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(useCasePromptTemplate, topic, grounding)),
	}

	resp, err := g.llm.GenerateContent(ctx, messages, llms.WithTemperature(g.temperature))
	if err != nil {
		log.Printf("[ERROR] Failed to generate use case: %v", err)
		return "", fmt.Errorf("%w: %w", ErrUpstreamModel, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		log.Printf("[ERROR] Empty use case response for topic %q", topic)
		return "", fmt.Errorf("%w: empty use case", ErrUpstreamModel)
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// fetchSnippets treats the reference source as optional: failures are logged
// and the prompt goes out ungrounded.
func fetchSnippets(ctx context.Context, refs ReferenceSource, topic string) []string {
	if refs == nil {
		return nil
	}

	snippets, err := refs.TopicSnippets(ctx, topic, maxReferenceSnippets)
	if err != nil {
		log.Printf("[WARN] Failed to fetch reference snippets for %q: %v", topic, err)
		return nil
	}
	if len(snippets) > maxReferenceSnippets {
		snippets = snippets[:maxReferenceSnippets]
	}
	return snippets
}

func formatSnippets(snippets []string) string {
	var b strings.Builder
	for i, snippet := range snippets {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(snippet))
	}
	return b.String()
}
