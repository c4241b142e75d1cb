package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/internal/agent"
	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/internal/vector/milvus"
	"github.com/docqa/backend/pkg/apperr"
)

type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeVectors struct {
	indexed map[string][]milvus.SearchResult
	lastTop int
}

func (f *fakeVectors) HasIndex(_ context.Context, stem string) (bool, error) {
	_, ok := f.indexed[stem]
	return ok, nil
}

func (f *fakeVectors) Search(_ context.Context, stem string, _ []float32, topK int) ([]milvus.SearchResult, error) {
	f.lastTop = topK
	return f.indexed[stem], nil
}

type promptCapture struct {
	lastPrompt string
}

func (p *promptCapture) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	p.lastPrompt = req.UserPrompt
	return "grounded answer", nil
}

func TestAnswerRequiresExistingIndex(t *testing.T) {
	a := New(fakeEmbedder{}, &fakeVectors{indexed: map[string][]milvus.SearchResult{}}, &promptCapture{}, 5)

	_, err := a.Answer(context.Background(), agent.Request{Stem: "ghost", Question: "?"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Contains(t, err.Error(), "ghost")
}

func TestAnswerStuffsChunksIntoPrompt(t *testing.T) {
	vectors := &fakeVectors{indexed: map[string][]milvus.SearchResult{
		"report": {
			{ChunkID: "c1", Text: "Revenue grew 12% in Q3.", Score: 0.1},
			{ChunkID: "c2", Text: "Costs were flat.", Score: 0.3},
		},
	}}
	capture := &promptCapture{}
	a := New(fakeEmbedder{}, vectors, capture, 5)

	ans, err := a.Answer(context.Background(), agent.Request{Stem: "report", Question: "How did revenue do?"})
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", ans.Text)
	assert.Equal(t, agent.KindRetrieval, ans.Kind)
	assert.Equal(t, 5, vectors.lastTop)
	assert.Contains(t, capture.lastPrompt, "Revenue grew 12% in Q3.")
	assert.Contains(t, capture.lastPrompt, "Costs were flat.")
	assert.Contains(t, capture.lastPrompt, "How did revenue do?")
}

func TestAnswerEmptySearchResults(t *testing.T) {
	vectors := &fakeVectors{indexed: map[string][]milvus.SearchResult{"report": nil}}
	a := New(fakeEmbedder{}, vectors, &promptCapture{}, 5)

	ans, err := a.Answer(context.Background(), agent.Request{Stem: "report", Question: "?"})
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "no content relevant")
}
