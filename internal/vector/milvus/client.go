// Package milvus keeps one collection per uploaded file stem, mirroring
// the per-document index directories the platform is organized around.
// Collection presence is the index-existence check; inserts always
// append, never rebuild.
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/docqa/backend/pkg/logger"
)

type Client struct {
	client    client.Client
	prefix    string
	vectorDim int
}

type Chunk struct {
	ID        string
	Embedding []float32
	Text      string
	Source    string
	Index     int
	Timestamp time.Time
}

type SearchResult struct {
	ChunkID string
	Text    string
	Source  string
	Score   float32
}

func NewClient(endpoint, prefix string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("prefix", prefix),
	)

	return &Client{
		client:    c,
		prefix:    prefix,
		vectorDim: vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

// CollectionName maps a file stem to its collection. Milvus names allow
// only letters, digits and underscores.
func (m *Client) CollectionName(stem string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(stem) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return m.prefix + "_" + b.String()
}

func (m *Client) HasIndex(ctx context.Context, stem string) (bool, error) {
	has, err := m.client.HasCollection(ctx, m.CollectionName(stem))
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return has, nil
}

// EnsureIndex creates and loads the per-stem collection if it does not
// exist yet. An existing collection is left untouched so that repeated
// ingestions append.
func (m *Client) EnsureIndex(ctx context.Context, stem string) error {
	name := m.CollectionName(stem)

	has, err := m.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		logger.Debug("Collection already exists", zap.String("collection", name))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    "Per-document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:       "source",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "created_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := m.client.CreateIndex(ctx, name, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", name))
	return nil
}

// Append inserts chunks into the stem's collection. There is no
// delete-before-insert: re-ingesting a changed file accumulates chunks.
func (m *Client) Append(ctx context.Context, stem string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	name := m.CollectionName(stem)

	chunkIDs := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	texts := make([]string, len(chunks))
	sources := make([]string, len(chunks))
	indexes := make([]int64, len(chunks))
	timestamps := make([]int64, len(chunks))

	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		texts[i] = chunk.Text
		sources[i] = chunk.Source
		indexes[i] = int64(chunk.Index)
		timestamps[i] = chunk.Timestamp.Unix()
	}

	_, err := m.client.Insert(
		ctx,
		name,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("source", sources),
		entity.NewColumnInt64("chunk_index", indexes),
		entity.NewColumnInt64("created_at", timestamps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := m.client.Flush(ctx, name, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks appended",
		zap.String("collection", name),
		zap.Int("count", len(chunks)),
	)
	return nil
}

func (m *Client) Search(ctx context.Context, stem string, queryEmbedding []float32, topK int) ([]SearchResult, error) {
	name := m.CollectionName(stem)

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		name,
		[]string{},
		"",
		[]string{"chunk_id", "text", "source"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0)
	for _, sr := range searchResult {
		chunkIDCol := sr.Fields.GetColumn("chunk_id")
		textCol := sr.Fields.GetColumn("text")
		sourceCol := sr.Fields.GetColumn("source")

		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := chunkIDCol.Get(i)
			text, _ := textCol.Get(i)
			source, _ := sourceCol.Get(i)

			results = append(results, SearchResult{
				ChunkID: chunkID.(string),
				Text:    text.(string),
				Source:  source.(string),
				Score:   sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.String("collection", name),
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}
