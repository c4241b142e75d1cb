package selector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/internal/summary"
	"github.com/docqa/backend/pkg/apperr"
)

type fakeSummaries struct {
	entries []summary.Entry
}

func (f *fakeSummaries) ListSummaries() ([]summary.Entry, error) {
	return f.entries, nil
}

type fakeLLM struct {
	reply string
}

func (f *fakeLLM) Complete(context.Context, llm.CompletionRequest) (string, error) {
	return f.reply, nil
}

// fakeEmbedder scores by shared word count with the question so the
// nearest summary is deterministic.
type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	return wordVector(text), nil
}

func (fakeEmbedder) GenerateBatchEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = wordVector(t)
	}
	return out, nil
}

var vocabulary = []string{"revenue", "sales", "penguins", "antarctic", "growth"}

func wordVector(text string) []float32 {
	vec := make([]float32, len(vocabulary))
	for i, w := range vocabulary {
		if containsWord(text, w) {
			vec[i] = 1
		}
	}
	return vec
}

func containsWord(text, w string) bool {
	return len(text) > 0 && len(w) > 0 &&
		(text == w || filepath.Base(text) == w || contains(text, w))
}

func contains(text, w string) bool {
	for i := 0; i+len(w) <= len(text); i++ {
		if text[i:i+len(w)] == w {
			return true
		}
	}
	return false
}

func uploadDirWith(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	return dir
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	_, err := New("magic", &fakeSummaries{}, nil, nil, t.TempDir())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
}

func TestZeroSummariesFailsWithDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, strategy := range []string{StrategyLLM, StrategyEmbedding} {
		sel, err := New(strategy, &fakeSummaries{}, &fakeLLM{}, fakeEmbedder{}, dir)
		require.NoError(t, err)

		_, err = sel.Select(context.Background(), "anything?")
		require.Error(t, err, strategy)
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound), strategy)
		assert.Contains(t, err.Error(), dir, strategy)
	}
}

func TestSingleSummaryIsAlwaysChosen(t *testing.T) {
	dir := uploadDirWith(t, "report.pdf")
	summaries := &fakeSummaries{entries: []summary.Entry{
		{Stem: "report", Summary: "annual revenue report"},
	}}

	sel, err := New(StrategyEmbedding, summaries, nil, fakeEmbedder{}, dir)
	require.NoError(t, err)

	got, err := sel.Select(context.Background(), "how were sales?")
	require.NoError(t, err)
	assert.Equal(t, "report", got.Stem)
	assert.Equal(t, filepath.Join(dir, "report.pdf"), got.Path)
}

func TestLLMSelectorPicksNamedDocument(t *testing.T) {
	dir := uploadDirWith(t, "wildlife.txt", "finance.csv")
	summaries := &fakeSummaries{entries: []summary.Entry{
		{Stem: "finance", Summary: "quarterly revenue"},
		{Stem: "wildlife", Summary: "antarctic penguins"},
	}}

	sel, err := New(StrategyLLM, summaries, &fakeLLM{reply: "wildlife"}, nil, dir)
	require.NoError(t, err)

	got, err := sel.Select(context.Background(), "what do penguins eat?")
	require.NoError(t, err)
	assert.Equal(t, "wildlife", got.Stem)
	assert.Equal(t, filepath.Join(dir, "wildlife.txt"), got.Path)
}

func TestLLMSelectorNoneMeansNoRelevantDocument(t *testing.T) {
	dir := uploadDirWith(t, "finance.csv")
	summaries := &fakeSummaries{entries: []summary.Entry{
		{Stem: "finance", Summary: "quarterly revenue"},
	}}

	sel, err := New(StrategyLLM, summaries, &fakeLLM{reply: "none"}, nil, dir)
	require.NoError(t, err)

	_, err = sel.Select(context.Background(), "weather on mars?")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestLLMSelectorToleratesExtensionInReply(t *testing.T) {
	dir := uploadDirWith(t, "finance.csv")
	summaries := &fakeSummaries{entries: []summary.Entry{
		{Stem: "finance", Summary: "quarterly revenue"},
	}}

	sel, err := New(StrategyLLM, summaries, &fakeLLM{reply: "finance.csv"}, nil, dir)
	require.NoError(t, err)

	got, err := sel.Select(context.Background(), "revenue?")
	require.NoError(t, err)
	assert.Equal(t, "finance", got.Stem)
}

func TestEmbeddingSelectorPicksNearestSummary(t *testing.T) {
	dir := uploadDirWith(t, "wildlife.txt", "finance.csv")
	summaries := &fakeSummaries{entries: []summary.Entry{
		{Stem: "finance", Summary: "revenue and sales growth"},
		{Stem: "wildlife", Summary: "penguins of the antarctic"},
	}}

	sel, err := New(StrategyEmbedding, summaries, nil, fakeEmbedder{}, dir)
	require.NoError(t, err)

	got, err := sel.Select(context.Background(), "tell me about penguins")
	require.NoError(t, err)
	assert.Equal(t, "wildlife", got.Stem)

	got, err = sel.Select(context.Background(), "how is revenue growth?")
	require.NoError(t, err)
	assert.Equal(t, "finance", got.Stem)
}

func TestResolvePathSkipsSummaryFiles(t *testing.T) {
	dir := uploadDirWith(t, "notes.md", "notes.summary.txt")

	path, err := resolvePath(dir, "notes")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes.md"), path)
}

func TestResolvePathMissingFile(t *testing.T) {
	_, err := resolvePath(t.TempDir(), "ghost")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
