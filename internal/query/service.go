// Package query orchestrates question answering: it resolves the
// target document, routes to the right agent, caches answers and
// records the exchange in history.
package query

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/agent"
	"github.com/docqa/backend/internal/cache/redis"
	"github.com/docqa/backend/internal/history"
	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/selector"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/pkg/apperr"
	"github.com/docqa/backend/pkg/logger"
)

const answerTTL = time.Hour

type DocStore interface {
	GetDocument(stem string) (*models.Document, error)
	ListDocuments() ([]models.Document, error)
}

// Cache is optional; a nil cache disables answer caching.
type Cache interface {
	GetAnswer(ctx context.Context, key string) (string, bool, error)
	SetAnswer(ctx context.Context, key string, answer string, ttl time.Duration) error
}

type Service struct {
	docs     DocStore
	router   *agent.Router
	selector selector.Selector
	hist     *history.Manager
	cache    Cache
}

type Response struct {
	Answer    string `json:"answer"`
	Stem      string `json:"stem"`
	AgentKind string `json:"agent"`
	SessionID string `json:"session_id"`
	LatencyMS int64  `json:"latency_ms"`
	Cached    bool   `json:"cached"`
	Notes     string `json:"notes,omitempty"`
}

func NewService(docs DocStore, router *agent.Router, sel selector.Selector, hist *history.Manager, cache Cache) *Service {
	return &Service{docs: docs, router: router, selector: sel, hist: hist, cache: cache}
}

// Ask answers a question against one named document.
func (s *Service) Ask(ctx context.Context, username, sessionID, stem, question string) (*Response, error) {
	if question == "" {
		return nil, apperr.Validation("question cannot be empty")
	}

	doc, err := s.docs.GetDocument(stem)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, apperr.NotFound("document %q not found; upload it first", stem)
	}
	if err != nil {
		return nil, err
	}

	return s.answer(ctx, username, sessionID, doc.Stem, doc.Path, doc.Extension, question)
}

// AskGlobal selects the most relevant document from the summaries and
// answers against it.
func (s *Service) AskGlobal(ctx context.Context, username, sessionID, question string) (*Response, error) {
	if question == "" {
		return nil, apperr.Validation("question cannot be empty")
	}

	selection, err := s.selector.Select(ctx, question)
	if err != nil {
		return nil, err
	}

	ext := filepath.Ext(selection.Path)
	return s.answer(ctx, username, sessionID, selection.Stem, selection.Path, ext, question)
}

func (s *Service) History(username string, limit int) ([]models.QARecord, error) {
	return s.hist.History(username, limit)
}

func (s *Service) answer(ctx context.Context, username, sessionID, stem, path, ext, question string) (*Response, error) {
	start := time.Now()

	ag, err := s.router.Route(ext)
	if err != nil {
		return nil, err
	}

	cacheKey := redis.Hash(stem, question)
	if s.cache != nil {
		if cached, ok, err := s.cache.GetAnswer(ctx, cacheKey); err == nil && ok {
			metrics.CacheHits.WithLabelValues("answer").Inc()
			session := s.hist.Record(username, sessionID, history.Entry{
				Stem: stem, Question: question, Answer: cached,
				AgentKind: ag.Kind(), LatencyMS: time.Since(start).Milliseconds(),
			})
			return &Response{
				Answer: cached, Stem: stem, AgentKind: ag.Kind(),
				SessionID: session.ID, LatencyMS: time.Since(start).Milliseconds(),
				Cached: true,
			}, nil
		}
		metrics.CacheMisses.WithLabelValues("answer").Inc()
	}

	ans, err := ag.Answer(ctx, agent.Request{Stem: stem, Path: path, Question: question})
	if err != nil {
		metrics.QARequests.WithLabelValues(ag.Kind(), "error").Inc()
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.QARequests.WithLabelValues(ag.Kind(), "ok").Inc()
	metrics.QALatency.WithLabelValues(ag.Kind()).Observe(elapsed.Seconds())

	if s.cache != nil {
		if err := s.cache.SetAnswer(ctx, cacheKey, ans.Text, answerTTL); err != nil {
			logger.Warn("Failed to cache answer", zap.String("stem", stem), zap.Error(err))
		}
	}

	session := s.hist.Record(username, sessionID, history.Entry{
		Stem: stem, Question: question, Answer: ans.Text,
		AgentKind: ans.Kind, LatencyMS: elapsed.Milliseconds(),
	})

	logger.Info("Question answered",
		zap.String("stem", stem),
		zap.String("agent", ans.Kind),
		zap.Duration("elapsed", elapsed),
	)

	return &Response{
		Answer: ans.Text, Stem: stem, AgentKind: ans.Kind,
		SessionID: session.ID, LatencyMS: elapsed.Milliseconds(),
		Notes: ans.Notes,
	}, nil
}
