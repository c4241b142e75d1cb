// Package retrieval answers questions over an indexed document by
// embedding the question, searching the document's own index and
// stuffing the best chunks into a grounded completion.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/agent"
	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/internal/vector/milvus"
	"github.com/docqa/backend/pkg/apperr"
	"github.com/docqa/backend/pkg/logger"
)

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	HasIndex(ctx context.Context, stem string) (bool, error)
	Search(ctx context.Context, stem string, queryEmbedding []float32, topK int) ([]milvus.SearchResult, error)
}

type LLM interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

type Agent struct {
	embedder Embedder
	vectors  VectorStore
	llm      LLM
	topK     int
}

func New(embedder Embedder, vectors VectorStore, l LLM, topK int) *Agent {
	if topK <= 0 {
		topK = 5
	}
	return &Agent{embedder: embedder, vectors: vectors, llm: l, topK: topK}
}

func (a *Agent) Kind() string { return agent.KindRetrieval }

// Answer requires the document's index to already exist; it is built
// at upload time, never on demand here.
func (a *Agent) Answer(ctx context.Context, req agent.Request) (*agent.Answer, error) {
	has, err := a.vectors.HasIndex(ctx, req.Stem)
	if err != nil {
		return nil, apperr.Transient(err, "failed to check index for %q", req.Stem)
	}
	if !has {
		return nil, apperr.NotFound("no index exists for %q; upload the document first", req.Stem)
	}

	queryEmbedding, err := a.embedder.GenerateEmbedding(ctx, req.Question)
	if err != nil {
		return nil, err
	}

	results, err := a.vectors.Search(ctx, req.Stem, queryEmbedding, a.topK)
	if err != nil {
		return nil, apperr.Transient(err, "search failed for %q", req.Stem)
	}
	if len(results) == 0 {
		return &agent.Answer{
			Text: fmt.Sprintf("The document %q contains no content relevant to that question.", req.Stem),
			Kind: a.Kind(),
		}, nil
	}

	var contexts []string
	for i, r := range results {
		contexts = append(contexts, fmt.Sprintf("[%d] %s", i+1, r.Text))
	}

	prompt := fmt.Sprintf(`Answer the question using only the document excerpts below.
If the excerpts do not contain the answer, say so.

Excerpts:
%s

Question: %s`, strings.Join(contexts, "\n\n"), req.Question)

	answer, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "You answer questions strictly from the provided document excerpts.",
		UserPrompt:   prompt,
		Temperature:  0,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Retrieval answer generated",
		zap.String("stem", req.Stem),
		zap.Int("chunks", len(results)),
	)

	return &agent.Answer{Text: answer, Kind: a.Kind()}, nil
}
