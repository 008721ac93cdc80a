package main

import (
	"context"
	"log"
	"strings"

	"github.com/samber/lo"

	"socratic/config"
	"socratic/services/catalog"
	"socratic/services/docindex"
	"socratic/services/llm"
)

func main() {
	log.Printf("[INFO] Starting reference indexing process")

	cfg := config.Load()

	if cfg.PineconeAPIKey == "" {
		log.Fatal("[ERROR] PINECONE_API_KEY environment variable is required")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Fatal("[ERROR] OPENAI_API_KEY environment variable is required")
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("[ERROR] Failed to load catalog: %v", err)
	}

	docs, err := docindex.LoadDocuments(cfg.ReferenceDocsDir)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	log.Printf("[INFO] Found %d reference documents in %s", len(docs), cfg.ReferenceDocsDir)

	client, err := llm.NewEmbeddingClient(cfg.OpenAIAPIKey)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	index, err := docindex.NewService(cfg.PineconeAPIKey, cfg.PineconeIndexName, client)
	if err != nil {
		log.Fatalf("[ERROR] Failed to initialize reference index: %v", err)
	}

	ctx := context.Background()
	if err := index.EnsureIndex(ctx); err != nil {
		log.Fatalf("[ERROR] Failed to ensure Pinecone index: %v", err)
	}

	enricher := docindex.NewEnricher(client)
	topics := lo.Uniq(lo.Flatten(lo.Values(cat.Categories())))

	indexed := 0
	for i, doc := range docs {
		log.Printf("[INFO] Processing document %d/%d (%s, topic %q)", i+1, len(docs), doc.ID, doc.Topic)

		if !lo.Contains(topics, doc.Topic) {
			if suggestions := catalog.Suggest(doc.Topic, topics); len(suggestions) > 0 {
				log.Printf("[WARN] Topic %q of %s is not in the catalog (did you mean: %s)", doc.Topic, doc.ID, strings.Join(suggestions, ", "))
			} else {
				log.Printf("[WARN] Topic %q of %s is not in the catalog; it will only ground custom conversations", doc.Topic, doc.ID)
			}
		}

		chunks := docindex.ChunkMarkdown(doc)
		log.Printf("[INFO] Created %d chunks for %s", len(chunks), doc.ID)
		enricher.Enrich(ctx, doc, chunks)

		if err := index.ReplaceDocument(ctx, doc.ID, chunks); err != nil {
			log.Printf("[ERROR] Failed to index %s: %v", doc.ID, err)
			continue
		}
		indexed++
	}

	log.Printf("[INFO] Reference indexing completed: %d/%d documents indexed", indexed, len(docs))
}
