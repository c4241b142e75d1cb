// Package summary maintains the one-paragraph synopsis cached next to
// each uploaded file as <stem>.summary.txt. A summary is generated once
// and then reused; re-uploading a file does not refresh it.
package summary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/extract"
	"github.com/docqa/backend/internal/ingestion"
	"github.com/docqa/backend/pkg/apperr"
	"github.com/docqa/backend/pkg/logger"
)

const fileSuffix = ".summary.txt"

// LLM is the completion surface the summarizer needs.
type LLM interface {
	Summarize(ctx context.Context, excerpt string) (string, error)
	CompleteVision(ctx context.Context, imagePath, prompt string) (string, error)
}

// MetaStore mirrors the cached summary into document metadata.
type MetaStore interface {
	SetDocumentSummary(stem, summary string) error
}

type Summarizer struct {
	llm       LLM
	meta      MetaStore
	uploadDir string
}

func NewSummarizer(llm LLM, meta MetaStore, uploadDir string) *Summarizer {
	return &Summarizer{llm: llm, meta: meta, uploadDir: uploadDir}
}

func (s *Summarizer) SummaryPath(stem string) string {
	return filepath.Join(s.uploadDir, stem+fileSuffix)
}

// Ensure returns the document's summary, generating and caching it on
// first call. created reports whether this call produced the summary.
func (s *Summarizer) Ensure(ctx context.Context, path string) (string, bool, error) {
	stem := ingestion.Stem(path)
	summaryPath := s.SummaryPath(stem)

	if data, err := os.ReadFile(summaryPath); err == nil {
		return strings.TrimSpace(string(data)), false, nil
	}

	text, err := s.generate(ctx, path)
	if err != nil {
		return "", false, err
	}

	if err := s.writeAtomic(summaryPath, text); err != nil {
		return "", false, err
	}

	if s.meta != nil {
		if err := s.meta.SetDocumentSummary(stem, text); err != nil {
			logger.Warn("Failed to record summary metadata", zap.String("stem", stem), zap.Error(err))
		}
	}

	logger.Info("Summary generated", zap.String("stem", stem))
	return text, true, nil
}

// Load reads a previously generated summary.
func (s *Summarizer) Load(stem string) (string, error) {
	data, err := os.ReadFile(s.SummaryPath(stem))
	if err != nil {
		return "", apperr.NotFound("no summary exists for %q", stem)
	}
	return strings.TrimSpace(string(data)), nil
}

// ListSummaries returns every cached summary keyed by stem, sorted for
// stable prompt construction.
func (s *Summarizer) ListSummaries() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.uploadDir, "*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}

	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Failed to read summary file", zap.String("path", path), zap.Error(err))
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(path), fileSuffix)
		entries = append(entries, Entry{Stem: stem, Summary: strings.TrimSpace(string(data))})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Stem < entries[j].Stem })
	return entries, nil
}

type Entry struct {
	Stem    string
	Summary string
}

// Backfill generates summaries for any uploaded file that lacks one.
// Failures are logged and skipped so one bad file does not block the
// rest.
func (s *Summarizer) Backfill(ctx context.Context) (int, error) {
	files, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read upload dir: %w", err)
	}

	created := 0
	for _, f := range files {
		if f.IsDir() || strings.HasSuffix(f.Name(), fileSuffix) {
			continue
		}
		if !extract.Supported(filepath.Ext(f.Name())) {
			continue
		}

		_, fresh, err := s.Ensure(ctx, filepath.Join(s.uploadDir, f.Name()))
		if err != nil {
			logger.Warn("Failed to summarize file", zap.String("file", f.Name()), zap.Error(err))
			continue
		}
		if fresh {
			created++
		}
	}

	return created, nil
}

func (s *Summarizer) generate(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".png" || ext == ".jpg" || ext == ".jpeg" {
		caption, err := s.llm.CompleteVision(ctx, path,
			"Describe this image in one concise paragraph.")
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(caption), nil
	}

	snippet, err := extract.Snippet(path, 3, 20)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(snippet) == "" {
		return "", apperr.Validation("file %q contains no text to summarize", filepath.Base(path))
	}

	return s.llm.Summarize(ctx, snippet)
}

// writeAtomic writes via a temp file and rename so concurrent readers
// never observe a partial summary.
func (s *Summarizer) writeAtomic(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".summary-*")
	if err != nil {
		return fmt.Errorf("failed to create temp summary: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close summary: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move summary into place: %w", err)
	}
	return nil
}
