package docindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

const enrichToolName = "enrich_chunk_context"

type enrichParams struct {
	EnrichedSummary string `json:"enriched_summary"`
}

var enrichmentTools = []llms.Tool{
	{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        enrichToolName,
			Description: "Provide an enriched contextual summary for a reference document chunk",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"enriched_summary": map[string]any{
						"type":        "string",
						"description": "A self-contained summary of what this chunk teaches about the topic, where it sits in the document and which ideas a student should take from it.",
					},
				},
				"required": []string{"enriched_summary"},
			},
		},
	},
}

const enrichSystemPrompt = `You are an expert at analyzing reference material for a tutor.

Summarize the given chunk so that it can be retrieved and used on its own:
- what the chunk covers
- how it fits into the document's topic
- which concepts or facts a student should be able to explain after reading it`

// Enricher asks a model for a retrieval summary of each chunk.
type Enricher struct {
	llm llms.Model
}

func NewEnricher(llm llms.Model) *Enricher {
	return &Enricher{llm: llm}
}

// Enrich fills EnrichedContext on every chunk. A chunk whose enrichment fails
// falls back to its own content.
func (e *Enricher) Enrich(ctx context.Context, doc Document, chunks []Chunk) {
	for i := range chunks {
		summary, err := e.enrichChunk(ctx, doc, chunks[i])
		if err != nil {
			log.Printf("[WARN] Enrichment failed for %s, using chunk content: %v", chunks[i].ID, err)
			chunks[i].EnrichedContext = chunks[i].Content
			continue
		}
		chunks[i].EnrichedContext = summary
	}
}

func (e *Enricher) enrichChunk(ctx context.Context, doc Document, chunk Chunk) (string, error) {
	pathInfo := ""
	if len(chunk.HeadingPath) > 0 {
		pathInfo = "Section hierarchy: " + strings.Join(chunk.HeadingPath, " > ")
	}

	userPrompt := fmt.Sprintf(`Topic: %s

CHUNK TO ANALYZE:
Heading: %s
%s
Content: %s

FULL DOCUMENT:
%s`, doc.Topic, chunk.Heading, pathInfo, chunk.Content, doc.Content)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, enrichSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := e.llm.GenerateContent(ctx, messages,
		llms.WithTools(enrichmentTools),
		llms.WithTemperature(0.3),
		llms.WithToolChoice("required"))
	if err != nil {
		return "", fmt.Errorf("failed to generate enrichment: %w", err)
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].ToolCalls) == 0 {
		return "", fmt.Errorf("no tool calls in enrichment response")
	}

	call := resp.Choices[0].ToolCalls[0]
	if call.FunctionCall == nil || call.FunctionCall.Name != enrichToolName {
		return "", fmt.Errorf("unexpected tool call in enrichment response")
	}

	var params enrichParams
	if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &params); err != nil {
		return "", fmt.Errorf("failed to parse enrichment arguments: %w", err)
	}
	if strings.TrimSpace(params.EnrichedSummary) == "" {
		return "", fmt.Errorf("empty enrichment summary")
	}
	return params.EnrichedSummary, nil
}
