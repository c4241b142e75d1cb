// Package ingestion turns an uploaded file into an appended set of
// embedded chunks in the file's own vector index. Each ingestion of the
// same stem adds to the existing index; nothing is ever rebuilt or
// deleted here.
package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/extract"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/vector/milvus"
	"github.com/docqa/backend/pkg/apperr"
	"github.com/docqa/backend/pkg/logger"
)

// Embedder generates dense vectors for chunk texts.
type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the per-stem index surface the processor writes to.
type VectorStore interface {
	EnsureIndex(ctx context.Context, stem string) error
	Append(ctx context.Context, stem string, chunks []milvus.Chunk) error
}

// MetaStore records document and chunk metadata alongside the index.
type MetaStore interface {
	UpsertDocument(doc *models.Document) error
	InsertChunk(chunk *models.DocumentChunk) error
	AddChunkCount(stem string, delta int) error
	CountChunks(stem string) (int, error)
}

type Processor struct {
	embedder     Embedder
	vectors      VectorStore
	meta         MetaStore
	lockDir      string
	chunkSize    int
	chunkOverlap int
}

// Result reports one ingestion. Chunks is this call's delta;
// TotalChunks is the cumulative count across every ingestion of the
// stem, since re-ingestion appends.
type Result struct {
	Stem        string
	Filename    string
	Chunks      int
	TotalChunks int
	Indexed     bool
	ElapsedMS   int64
}

func NewProcessor(embedder Embedder, vectors VectorStore, meta MetaStore, lockDir string, chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &Processor{
		embedder:     embedder,
		vectors:      vectors,
		meta:         meta,
		lockDir:      lockDir,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Stem is the filename without its extension; it keys the document's
// index, summary and metadata.
func Stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func isImage(ext string) bool {
	switch strings.ToLower(ext) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// Ingest extracts, chunks, embeds and appends the file's content into
// its per-stem index. Concurrent ingestions of the same stem serialize
// on a per-stem file lock; different stems proceed in parallel. Image
// files record metadata only, since the vision agent reads them raw.
func (p *Processor) Ingest(ctx context.Context, path, uploadedBy string) (*Result, error) {
	start := time.Now()

	filename := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(filename))
	stem := Stem(filename)

	if !extract.Supported(ext) {
		return nil, apperr.Validation("unsupported file type %q; supported extensions: %s",
			ext, strings.Join(extract.SupportedList(), ", "))
	}

	now := time.Now().UTC()
	doc := &models.Document{
		Stem:       stem,
		Filename:   filename,
		Path:       path,
		Extension:  ext,
		UploadedBy: uploadedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if isImage(ext) {
		if err := p.meta.UpsertDocument(doc); err != nil {
			return nil, fmt.Errorf("failed to record document: %w", err)
		}
		logger.Info("Image registered without indexing", zap.String("stem", stem))
		return &Result{
			Stem:      stem,
			Filename:  filename,
			Indexed:   false,
			ElapsedMS: time.Since(start).Milliseconds(),
		}, nil
	}

	unlock, err := p.lockStem(stem)
	if err != nil {
		return nil, err
	}
	defer unlock()

	units, err := extract.Text(path)
	if err != nil {
		return nil, err
	}

	switch ext {
	case ".csv", ".xls", ".xlsx":
		// the tabular agent re-parses the raw file at question time;
		// this markdown rendering serves summaries and global search
		logger.Debug("Tabular file indexed as markdown", zap.String("stem", stem))
	}

	var texts []string
	for _, unit := range units {
		texts = append(texts, SplitText(unit, p.chunkSize, p.chunkOverlap)...)
	}
	if len(texts) == 0 {
		return nil, apperr.Validation("file %q contains no extractable text", filename)
	}

	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, apperr.Transient(nil, "embedding count %d does not match chunk count %d",
			len(embeddings), len(texts))
	}

	if err := p.vectors.EnsureIndex(ctx, stem); err != nil {
		return nil, apperr.Transient(err, "failed to prepare index for %q", stem)
	}

	chunks := make([]milvus.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = milvus.Chunk{
			ID:        uuid.New().String(),
			Embedding: embeddings[i],
			Text:      text,
			Source:    filename,
			Index:     i,
			Timestamp: now,
		}
	}

	if err := p.vectors.Append(ctx, stem, chunks); err != nil {
		return nil, apperr.Transient(err, "failed to append chunks for %q", stem)
	}

	if err := p.meta.UpsertDocument(doc); err != nil {
		return nil, fmt.Errorf("failed to record document: %w", err)
	}
	for i, text := range texts {
		chunk := &models.DocumentChunk{
			ID:         chunks[i].ID,
			Stem:       stem,
			ChunkIndex: i,
			Text:       text,
			CreatedAt:  now,
		}
		if err := p.meta.InsertChunk(chunk); err != nil {
			logger.Warn("Failed to record chunk metadata",
				zap.String("stem", stem),
				zap.Int("index", i),
				zap.Error(err),
			)
		}
	}
	if err := p.meta.AddChunkCount(stem, len(texts)); err != nil {
		logger.Warn("Failed to update chunk count", zap.String("stem", stem), zap.Error(err))
	}

	total, err := p.meta.CountChunks(stem)
	if err != nil {
		logger.Warn("Failed to count chunks", zap.String("stem", stem), zap.Error(err))
		total = len(texts)
	}

	elapsed := time.Since(start)
	logger.Info("Document ingested",
		zap.String("stem", stem),
		zap.Int("chunks", len(texts)),
		zap.Int("total_chunks", total),
		zap.Duration("elapsed", elapsed),
	)

	return &Result{
		Stem:        stem,
		Filename:    filename,
		Chunks:      len(texts),
		TotalChunks: total,
		Indexed:     true,
		ElapsedMS:   elapsed.Milliseconds(),
	}, nil
}

func (p *Processor) lockStem(stem string) (func(), error) {
	if p.lockDir == "" {
		return func() {}, nil
	}

	if err := os.MkdirAll(p.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}

	lock := flock.New(filepath.Join(p.lockDir, stem+".lock"))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock stem %q: %w", stem, err)
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("Failed to release stem lock", zap.String("stem", stem), zap.Error(err))
		}
	}, nil
}
