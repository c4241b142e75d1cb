// Package selector picks the uploaded document most likely to answer a
// global question, using the cached per-document summaries. Two
// strategies exist: asking the model to choose, or nearest-neighbour
// over summary embeddings.
package selector

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/internal/summary"
	"github.com/docqa/backend/pkg/apperr"
	"github.com/docqa/backend/pkg/logger"
)

// Strategy names accepted in configuration.
const (
	StrategyLLM       = "llm"
	StrategyEmbedding = "embedding"
)

// fallbackExtensions is the probe order when a stem matches no file
// directly.
var fallbackExtensions = []string{".pdf", ".csv", ".txt", ".docx"}

type Selection struct {
	Stem string
	Path string
}

type Selector interface {
	Select(ctx context.Context, question string) (*Selection, error)
}

// Summaries is the summary listing surface both strategies read.
type Summaries interface {
	ListSummaries() ([]summary.Entry, error)
}

// New builds the configured strategy.
func New(strategy string, summaries Summaries, l LLM, embedder Embedder, uploadDir string) (Selector, error) {
	switch strategy {
	case StrategyLLM:
		return &llmSelector{summaries: summaries, llm: l, uploadDir: uploadDir}, nil
	case StrategyEmbedding, "":
		return &embeddingSelector{summaries: summaries, embedder: embedder, uploadDir: uploadDir}, nil
	default:
		return nil, apperr.Configuration("unknown selector strategy %q; valid strategies: %s, %s",
			strategy, StrategyEmbedding, StrategyLLM)
	}
}

func listOrFail(summaries Summaries, uploadDir string) ([]summary.Entry, error) {
	entries, err := summaries.ListSummaries()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperr.NotFound("no document summaries exist in %q; upload documents first", uploadDir)
	}
	return entries, nil
}

// resolvePath maps a chosen stem back to the uploaded file, probing
// the fallback extensions first and globbing as a last resort.
func resolvePath(uploadDir, stem string) (string, error) {
	for _, ext := range fallbackExtensions {
		candidate := filepath.Join(uploadDir, stem+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	matches, err := filepath.Glob(filepath.Join(uploadDir, stem+".*"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", stem, err)
	}
	for _, m := range matches {
		if strings.HasSuffix(m, ".summary.txt") {
			continue
		}
		return m, nil
	}

	return "", apperr.NotFound("no uploaded file found for %q in %q", stem, uploadDir)
}

// ---- LLM strategy ----

type LLM interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

type llmSelector struct {
	summaries Summaries
	llm       LLM
	uploadDir string
}

func (s *llmSelector) Select(ctx context.Context, question string) (*Selection, error) {
	entries, err := listOrFail(s.summaries, s.uploadDir)
	if err != nil {
		return nil, err
	}

	var listing strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&listing, "- %s: %s\n", e.Stem, e.Summary)
	}

	prompt := fmt.Sprintf(`Below are the available documents with their summaries.
Pick the single document most likely to answer the question.
Reply with the document name only, exactly as listed. If no document is
relevant, reply with the single word: none

Documents:
%s
Question: %s`, listing.String(), question)

	reply, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "You route questions to documents. Reply with a single document name or none.",
		UserPrompt:   prompt,
		Temperature:  0,
	})
	if err != nil {
		return nil, err
	}

	choice := strings.Trim(strings.TrimSpace(reply), `"'`)
	if strings.EqualFold(choice, "none") {
		return nil, apperr.Validation("no uploaded document is relevant to the question")
	}

	stem := matchStem(entries, choice)
	if stem == "" {
		return nil, apperr.Validation("selector chose %q, which is not an uploaded document", choice)
	}

	path, err := resolvePath(s.uploadDir, stem)
	if err != nil {
		return nil, err
	}

	logger.Debug("Document selected", zap.String("strategy", StrategyLLM), zap.String("stem", stem))
	return &Selection{Stem: stem, Path: path}, nil
}

// matchStem maps the model's reply to a known stem, tolerating an
// extension or surrounding noise.
func matchStem(entries []summary.Entry, choice string) string {
	base := strings.TrimSuffix(choice, filepath.Ext(choice))
	for _, e := range entries {
		if strings.EqualFold(e.Stem, choice) || strings.EqualFold(e.Stem, base) {
			return e.Stem
		}
	}
	for _, e := range entries {
		if strings.Contains(strings.ToLower(choice), strings.ToLower(e.Stem)) {
			return e.Stem
		}
	}
	return ""
}

// ---- embedding strategy ----

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type embeddingSelector struct {
	summaries Summaries
	embedder  Embedder
	uploadDir string
}

func (s *embeddingSelector) Select(ctx context.Context, question string) (*Selection, error) {
	entries, err := listOrFail(s.summaries, s.uploadDir)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Summary
	}

	summaryVecs, err := s.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return nil, err
	}
	questionVec, err := s.embedder.GenerateEmbedding(ctx, question)
	if err != nil {
		return nil, err
	}

	best, bestScore := -1, float64(-2)
	for i, vec := range summaryVecs {
		score := cosine(questionVec, vec)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return nil, apperr.Transient(nil, "summary embedding produced no vectors")
	}

	stem := entries[best].Stem
	path, err := resolvePath(s.uploadDir, stem)
	if err != nil {
		return nil, err
	}

	logger.Debug("Document selected",
		zap.String("strategy", StrategyEmbedding),
		zap.String("stem", stem),
		zap.Float64("score", bestScore),
	)
	return &Selection{Stem: stem, Path: path}, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
