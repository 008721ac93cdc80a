package tutor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"socratic/models"
)

const evaluatorSystemTemplate = `You are an expert Socratic mentor evaluating a student's conversational performance on the topic: %s.

Score the student on each criterion below from 1 (poor) to 5 (excellent):
%s
Output exactly one line per criterion, in this order and format:
{Criterion}: {score}/5 - {feedback}

Rules for feedback:
- Quote the student's own words from the transcript to support each score.
- If the student stated something factually wrong or made up, flag it as a hallucination and name it.
- Use a kind, constructive tone. Keep each feedback under 40 words.
- Do not add a preamble or closing remarks.%s`

type Evaluator struct {
	llm  llms.Model
	refs ReferenceSource
}

// NewEvaluator builds an evaluator. refs may be nil.
func NewEvaluator(llm llms.Model, refs ReferenceSource) *Evaluator {
	return &Evaluator{llm: llm, refs: refs}
}

// Evaluate scores a transcript with one model call and returns the model's text as is.
func (e *Evaluator) Evaluate(ctx context.Context, topic, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", ErrEmptyTranscript
	}

	log.Printf("[INFO] Evaluating conversation on topic %q (%d chars)", topic, len(transcript))

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, e.systemPrompt(ctx, topic)),
		llms.TextParts(llms.ChatMessageTypeHuman, transcript),
	}

	resp, err := e.llm.GenerateContent(ctx, messages, llms.WithTemperature(0.3))
	if err != nil {
		log.Printf("[ERROR] Failed to evaluate conversation: %v", err)
		return "", fmt.Errorf("%w: %w", ErrUpstreamModel, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		log.Printf("[ERROR] Empty evaluation response for topic %q", topic)
		return "", fmt.Errorf("%w: empty evaluation", ErrUpstreamModel)
	}

	log.Printf("[INFO] Successfully evaluated conversation on topic %q", topic)
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func (e *Evaluator) systemPrompt(ctx context.Context, topic string) string {
	var criteria strings.Builder
	for _, c := range models.RubricCriteria {
		fmt.Fprintf(&criteria, "- %s\n", c)
	}

	groundTruth := ""
	if snippets := fetchSnippets(ctx, e.refs, topic); len(snippets) > 0 {
		groundTruth = "\n\nTreat this reference material as ground truth when flagging hallucinations:\n" + formatSnippets(snippets)
	}

	return fmt.Sprintf(evaluatorSystemTemplate, topic, criteria.String(), groundTruth)
}
