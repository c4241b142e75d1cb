package models

import "time"

const (
	RoleAdmin  = "admin"
	RoleQAUser = "qa_user"
)

type User struct {
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Document is the metadata record for one uploaded file. Stem is the
// filename without its final extension and joins uploads, indexes and
// summaries across the system.
type Document struct {
	Stem       string    `json:"stem"`
	Filename   string    `json:"filename"`
	Path       string    `json:"-"`
	Extension  string    `json:"extension"`
	Summary    string    `json:"summary,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	UploadedBy string    `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type DocumentChunk struct {
	ID         string    `json:"id"`
	Stem       string    `json:"stem"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// QARecord is the durable audit row for an answered question. The
// in-memory session history remains the API-facing context object.
type QARecord struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	SessionID string    `json:"session_id"`
	Stem      string    `json:"stem,omitempty"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	AgentKind string    `json:"agent,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}
