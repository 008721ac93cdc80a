package docindex

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"github.com/tmc/langchaingo/embeddings"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	namespace       = "socratic-reference"
	queryTopK       = 10
	listPageSize    = 100
	indexDimension  = 1536
	indexPollPeriod = 10 * time.Second
)

// Service reads and writes topic reference chunks in a Pinecone index.
type Service struct {
	client    *pinecone.Client
	embedder  embeddings.Embedder
	indexName string
}

// NewService connects to Pinecone. embedderClient is usually an OpenAI client.
func NewService(apiKey, indexName string, embedderClient embeddings.EmbedderClient) (*Service, error) {
	log.Printf("[INFO] Initializing reference index %s", indexName)

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(embedderClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &Service{
		client:    pc,
		embedder:  embedder,
		indexName: indexName,
	}, nil
}

func (s *Service) indexConn(ctx context.Context) (*pinecone.IndexConnection, error) {
	desc, err := s.client.DescribeIndex(ctx, s.indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index: %w", err)
	}

	conn, err := s.client.Index(pinecone.NewIndexConnParams{
		Host:      desc.Host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}
	return conn, nil
}

// TopicSnippets returns up to limit reference passages indexed under topic.
func (s *Service) TopicSnippets(ctx context.Context, topic string, limit int) ([]string, error) {
	log.Printf("[INFO] Querying reference snippets for topic %q (limit %d)", topic, limit)

	conn, err := s.indexConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	vector, err := s.embedder.EmbedQuery(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to embed topic %q: %w", topic, err)
	}

	filter, err := topicFilter(topic)
	if err != nil {
		return nil, err
	}

	result, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            queryTopK,
		MetadataFilter:  filter,
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query reference index: %w", err)
	}

	snippets := make([]string, 0, limit)
	for _, match := range result.Matches {
		if match.Vector == nil || match.Vector.Metadata == nil {
			continue
		}
		if snippet := formatSnippet(match.Vector.Metadata.AsMap()); snippet != "" {
			snippets = append(snippets, snippet)
		}
		if len(snippets) == limit {
			break
		}
	}

	if len(snippets) == 0 {
		log.Printf("[WARN] No reference snippets found for topic %q", topic)
	}
	return snippets, nil
}

func topicFilter(topic string) (*pinecone.MetadataFilter, error) {
	filter, err := structpb.NewStruct(map[string]any{
		"topic": map[string]any{"$eq": topic},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build topic filter: %w", err)
	}
	return filter, nil
}

// EnsureIndex creates the serverless index if it does not exist and waits for it.
func (s *Service) EnsureIndex(ctx context.Context) error {
	indexes, err := s.client.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}

	for _, idx := range indexes {
		if idx.Name == s.indexName {
			log.Printf("[INFO] Index %s already exists", s.indexName)
			return nil
		}
	}

	log.Printf("[INFO] Creating Pinecone index: %s", s.indexName)
	dimension := int32(indexDimension)
	deletionProtection := pinecone.DeletionProtectionDisabled
	metric := pinecone.Cosine

	_, err = s.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:               s.indexName,
		Dimension:          &dimension,
		Metric:             &metric,
		Cloud:              pinecone.Aws,
		Region:             "us-east-1",
		DeletionProtection: &deletionProtection,
		Tags:               &pinecone.IndexTags{"project": "socratic-reference"},
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	for {
		idx, err := s.client.DescribeIndex(ctx, s.indexName)
		if err != nil {
			return fmt.Errorf("failed to describe index: %w", err)
		}
		if idx.Status != nil && idx.Status.Ready {
			log.Printf("[INFO] Index %s is ready", s.indexName)
			return nil
		}

		log.Printf("[INFO] Waiting for index %s to be ready...", s.indexName)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(indexPollPeriod):
		}
	}
}

// ReplaceDocument deletes a document's previous vectors and upserts its chunks.
func (s *Service) ReplaceDocument(ctx context.Context, docID string, chunks []Chunk) error {
	conn, err := s.indexConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := deleteByPrefix(ctx, conn, DocPrefix(docID)+"_"); err != nil {
		return fmt.Errorf("failed to delete existing vectors for %s: %w", docID, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.EmbeddingText()
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	batch := make([]*pinecone.Vector, 0, len(chunks))
	for i, chunk := range chunks {
		metadata, err := structpb.NewStruct(chunk.Metadata())
		if err != nil {
			return fmt.Errorf("failed to create metadata struct for chunk %s: %w", chunk.ID, err)
		}
		batch = append(batch, &pinecone.Vector{
			Id:       chunk.ID,
			Values:   &vectors[i],
			Metadata: metadata,
		})
	}

	count, err := conn.UpsertVectors(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}

	log.Printf("[INFO] Upserted %d vectors for document %s", count, docID)
	return nil
}

func deleteByPrefix(ctx context.Context, conn *pinecone.IndexConnection, prefix string) error {
	limit := uint32(listPageSize)
	req := &pinecone.ListVectorsRequest{Prefix: &prefix, Limit: &limit}

	for {
		resp, err := conn.ListVectors(ctx, req)
		if err != nil {
			// A fresh index has no namespace yet.
			if strings.Contains(err.Error(), "Namespace not found") {
				return nil
			}
			return fmt.Errorf("failed to list vectors: %w", err)
		}

		ids := make([]string, 0, len(resp.VectorIds))
		for _, id := range resp.VectorIds {
			if id != nil {
				ids = append(ids, *id)
			}
		}
		if len(ids) > 0 {
			if err := conn.DeleteVectorsById(ctx, ids); err != nil {
				return fmt.Errorf("failed to delete vector batch: %w", err)
			}
			log.Printf("[INFO] Deleted %d vectors with prefix %s", len(ids), prefix)
		}

		if resp.NextPaginationToken == nil {
			return nil
		}
		req.PaginationToken = resp.NextPaginationToken
	}
}
