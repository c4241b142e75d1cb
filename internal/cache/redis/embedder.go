package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/pkg/logger"
)

// Embedder is the upstream embedding surface the cache wraps.
type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingCache is the storage surface behind the caching embedder.
// *Client satisfies it.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

const embeddingTTL = 24 * time.Hour

// CachingEmbedder serves embeddings from the cache keyed by content
// hash and fills misses from the upstream embedder. Cache failures
// degrade to a miss; they never fail the embedding call.
type CachingEmbedder struct {
	embedder Embedder
	cache    EmbeddingCache
	ttl      time.Duration
}

func NewCachingEmbedder(embedder Embedder, cache EmbeddingCache) *CachingEmbedder {
	return &CachingEmbedder{embedder: embedder, cache: cache, ttl: embeddingTTL}
}

func (e *CachingEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		vec, ok, err := e.cache.GetEmbedding(ctx, Hash(text))
		if err != nil {
			logger.Warn("Embedding cache lookup failed", zap.Error(err))
		}
		if err == nil && ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			out[i] = vec
			continue
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.embedder.GenerateBatchEmbeddings(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedding count %d does not match text count %d", len(vecs), len(missTexts))
	}

	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := e.cache.SetEmbedding(ctx, Hash(texts[i]), vecs[j], e.ttl); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}

	return out, nil
}

func (e *CachingEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	out, err := e.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("embedding call returned no vectors")
	}
	return out[0], nil
}
