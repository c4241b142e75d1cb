package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	seen  [][]string
}

func (c *countingEmbedder) GenerateBatchEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.seen = append(c.seen, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

type memEmbeddingCache struct {
	vecs map[string][]float32
}

func newMemEmbeddingCache() *memEmbeddingCache {
	return &memEmbeddingCache{vecs: make(map[string][]float32)}
}

func (m *memEmbeddingCache) GetEmbedding(_ context.Context, textHash string) ([]float32, bool, error) {
	vec, ok := m.vecs[textHash]
	return vec, ok, nil
}

func (m *memEmbeddingCache) SetEmbedding(_ context.Context, textHash string, embedding []float32, _ time.Duration) error {
	m.vecs[textHash] = embedding
	return nil
}

func TestCachingEmbedderFillsAndReusesCache(t *testing.T) {
	upstream := &countingEmbedder{}
	cache := newMemEmbeddingCache()
	e := NewCachingEmbedder(upstream, cache)

	first, err := e.GenerateBatchEmbeddings(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, upstream.calls)

	second, err := e.GenerateBatchEmbeddings(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, upstream.calls, "cached texts must not reach the upstream embedder")
}

func TestCachingEmbedderEmbedsOnlyMisses(t *testing.T) {
	upstream := &countingEmbedder{}
	cache := newMemEmbeddingCache()
	e := NewCachingEmbedder(upstream, cache)

	_, err := e.GenerateBatchEmbeddings(context.Background(), []string{"alpha"})
	require.NoError(t, err)

	out, err := e.GenerateBatchEmbeddings(context.Background(), []string{"alpha", "gamma"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{5}, out[0])
	assert.Equal(t, []float32{5}, out[1])
	require.Equal(t, 2, upstream.calls)
	assert.Equal(t, []string{"gamma"}, upstream.seen[1])
}

func TestCachingEmbedderSingleText(t *testing.T) {
	upstream := &countingEmbedder{}
	e := NewCachingEmbedder(upstream, newMemEmbeddingCache())

	vec, err := e.GenerateEmbedding(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, []float32{5}, vec)

	_, err = e.GenerateEmbedding(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.calls)
}

func TestHashIsStableAndPositional(t *testing.T) {
	assert.Equal(t, Hash("a", "b"), Hash("a", "b"))
	assert.NotEqual(t, Hash("a", "b"), Hash("ab"))
	assert.NotEqual(t, Hash("a", "b"), Hash("b", "a"))
}
