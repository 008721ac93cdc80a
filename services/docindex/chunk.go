package docindex

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Chunk is one heading-delimited section of a reference document.
type Chunk struct {
	ID              string
	DocID           string
	Topic           string
	ChunkIndex      int
	Heading         string
	HeadingPath     []string
	Content         string
	EnrichedContext string
}

// Document is a markdown reference file about one catalog topic.
type Document struct {
	ID      string
	Topic   string
	Content string
}

// ParseDocument reads the topic from the first level-one heading. Documents
// without one are rejected.
func ParseDocument(id, content string) (Document, error) {
	for _, line := range strings.Split(content, "\n") {
		m := headingRegex.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m != nil && len(m[1]) == 1 {
			return Document{ID: id, Topic: strings.TrimSpace(m[2]), Content: content}, nil
		}
	}
	return Document{}, fmt.Errorf("document %s has no top-level heading naming its topic", id)
}

// ChunkMarkdown splits a document on headings, tracking the heading path of
// each section.
func ChunkMarkdown(doc Document) []Chunk {
	var (
		chunks       []Chunk
		current      strings.Builder
		heading      string
		headingStack []string
	)

	flush := func() {
		content := strings.TrimSpace(current.String())
		current.Reset()
		if content == "" {
			return
		}
		path := make([]string, len(headingStack))
		copy(path, headingStack)
		chunks = append(chunks, Chunk{
			ID:          ChunkID(doc.ID, len(chunks)),
			DocID:       doc.ID,
			Topic:       doc.Topic,
			ChunkIndex:  len(chunks),
			Heading:     heading,
			HeadingPath: path,
			Content:     content,
		})
	}

	for _, line := range strings.Split(doc.Content, "\n") {
		if m := headingRegex.FindStringSubmatch(line); m != nil {
			flush()

			level := len(m[1])
			heading = strings.TrimSpace(m[2])
			if level <= len(headingStack) {
				headingStack = headingStack[:level-1]
			}
			headingStack = append(headingStack, heading)
		}
		current.WriteString(line + "\n")
	}
	flush()

	return chunks
}

// ChunkID is the vector id for a chunk. The doc prefix lets re-indexing find
// and delete a document's old vectors.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", DocPrefix(docID), index)
}

func DocPrefix(docID string) string {
	return "doc_" + docID
}

// Metadata is what gets stored alongside the chunk's vector.
func (c Chunk) Metadata() map[string]any {
	return map[string]any{
		"doc_id":           c.DocID,
		"topic":            c.Topic,
		"chunk_index":      c.ChunkIndex,
		"heading":          c.Heading,
		"heading_path":     strings.Join(c.HeadingPath, " > "),
		"content":          c.Content,
		"enriched_context": c.EnrichedContext,
		"created_at":       time.Now().Format(time.RFC3339),
	}
}

// EmbeddingText is the text embedded for a chunk.
func (c Chunk) EmbeddingText() string {
	return fmt.Sprintf("Topic: %s\n\nHeading: %s\n\nContent: %s\n\nContext: %s", c.Topic, c.Heading, c.Content, c.EnrichedContext)
}

// formatSnippet turns stored metadata back into a prompt-ready passage.
func formatSnippet(metadata map[string]any) string {
	var parts []string

	if heading, ok := metadata["heading"].(string); ok && heading != "" {
		info := "Section: " + heading
		if path, ok := metadata["heading_path"].(string); ok && path != "" && path != heading {
			info += " (Path: " + path + ")"
		}
		parts = append(parts, info)
	}
	if content, ok := metadata["content"].(string); ok && content != "" {
		parts = append(parts, content)
	}

	return strings.Join(parts, "\n")
}
