// Package history tracks question/answer exchanges: append-only
// per-session transcripts in memory, persisted per user for later
// retrieval.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/pkg/logger"
)

type Entry struct {
	Stem      string
	Question  string
	Answer    string
	AgentKind string
	LatencyMS int64
	At        time.Time
}

// Session is an append-only transcript. Entries are never mutated or
// removed once added.
type Session struct {
	ID string

	mu      sync.Mutex
	entries []Entry
}

func NewSession() *Session {
	return &Session{ID: uuid.New().String()}
}

func (s *Session) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// Entries returns a copy of the transcript in append order.
func (s *Session) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Store persists exchanges across restarts.
type Store interface {
	InsertQARecord(rec *models.QARecord) error
	GetQAHistory(username string, limit int) ([]models.QARecord, error)
}

type Manager struct {
	store Store

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session with the given ID, creating it on first
// use. An empty ID starts a fresh session.
func (m *Manager) Session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		s := NewSession()
		m.sessions[s.ID] = s
		return s
	}

	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id}
		m.sessions[id] = s
	}
	return s
}

// Record appends the exchange to its session and persists it. A
// persistence failure is logged but does not lose the in-memory entry.
func (m *Manager) Record(username, sessionID string, e Entry) *Session {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	s := m.Session(sessionID)
	s.Append(e)

	if m.store != nil {
		rec := &models.QARecord{
			ID:        uuid.New().String(),
			Username:  username,
			SessionID: s.ID,
			Stem:      e.Stem,
			Question:  e.Question,
			Answer:    e.Answer,
			AgentKind: e.AgentKind,
			LatencyMS: e.LatencyMS,
			CreatedAt: e.At,
		}
		if err := m.store.InsertQARecord(rec); err != nil {
			logger.Warn("Failed to persist QA record",
				zap.String("session_id", s.ID),
				zap.Error(err),
			)
		}
	}

	return s
}

func (m *Manager) History(username string, limit int) ([]models.QARecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return m.store.GetQAHistory(username, limit)
}
