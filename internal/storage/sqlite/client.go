package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/pkg/logger"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		last_login INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

	CREATE TABLE IF NOT EXISTS documents (
		stem TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		extension TEXT NOT NULL,
		summary TEXT,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		uploaded_by TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_ext ON documents(extension);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		stem TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (stem) REFERENCES documents(stem) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_stem ON document_chunks(stem);

	CREATE TABLE IF NOT EXISTS qa_history (
		id TEXT PRIMARY KEY,
		username TEXT,
		session_id TEXT,
		stem TEXT,
		question TEXT NOT NULL,
		answer TEXT,
		agent_kind TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_qa_username ON qa_history(username);
	CREATE INDEX IF NOT EXISTS idx_qa_created ON qa_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// --- users ---

func (c *Client) InsertUser(u *models.User) error {
	query := `INSERT INTO users (username, password_hash, role, active, created_at) VALUES (?, ?, ?, ?, ?)`

	active := 0
	if u.Active {
		active = 1
	}

	_, err := c.db.Exec(query, u.Username, u.PasswordHash, u.Role, active, u.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	logger.Debug("User inserted", zap.String("username", u.Username), zap.String("role", u.Role))
	return nil
}

func (c *Client) GetUser(username string) (*models.User, error) {
	query := `SELECT username, password_hash, role, active, created_at, last_login FROM users WHERE username = ?`

	var u models.User
	var active int
	var createdAt int64
	var lastLogin sql.NullInt64

	err := c.db.QueryRow(query, username).Scan(
		&u.Username, &u.PasswordHash, &u.Role, &active, &createdAt, &lastLogin,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Active = active == 1
	u.CreatedAt = time.Unix(createdAt, 0)
	if lastLogin.Valid {
		t := time.Unix(lastLogin.Int64, 0)
		u.LastLogin = &t
	}

	return &u, nil
}

func (c *Client) ListUsers() ([]models.User, error) {
	query := `SELECT username, password_hash, role, active, created_at, last_login FROM users ORDER BY created_at`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var active int
		var createdAt int64
		var lastLogin sql.NullInt64

		err := rows.Scan(&u.Username, &u.PasswordHash, &u.Role, &active, &createdAt, &lastLogin)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		u.Active = active == 1
		u.CreatedAt = time.Unix(createdAt, 0)
		if lastLogin.Valid {
			t := time.Unix(lastLogin.Int64, 0)
			u.LastLogin = &t
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (c *Client) CountUsers() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (c *Client) CountActiveAdmins() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM users WHERE role = ? AND active = 1`, models.RoleAdmin).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active admins: %w", err)
	}
	return n, nil
}

func (c *Client) SetUserActive(username string, active bool) error {
	val := 0
	if active {
		val = 1
	}

	res, err := c.db.Exec(`UPDATE users SET active = ? WHERE username = ?`, val, username)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) TouchLastLogin(username string, at time.Time) error {
	_, err := c.db.Exec(`UPDATE users SET last_login = ? WHERE username = ?`, at.Unix(), username)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (c *Client) DeleteUser(username string) error {
	res, err := c.db.Exec(`DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- documents ---

func (c *Client) UpsertDocument(doc *models.Document) error {
	query := `
		INSERT INTO documents (stem, filename, path, extension, summary, chunk_count, uploaded_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(stem) DO UPDATE SET
			filename = excluded.filename,
			path = excluded.path,
			extension = excluded.extension,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(
		query,
		doc.Stem,
		doc.Filename,
		doc.Path,
		doc.Extension,
		doc.Summary,
		doc.ChunkCount,
		doc.UploadedBy,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	logger.Debug("Document upserted", zap.String("stem", doc.Stem))
	return nil
}

func (c *Client) GetDocument(stem string) (*models.Document, error) {
	query := `SELECT stem, filename, path, extension, COALESCE(summary, ''), chunk_count, COALESCE(uploaded_by, ''), created_at, updated_at FROM documents WHERE stem = ?`

	var doc models.Document
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, stem).Scan(
		&doc.Stem, &doc.Filename, &doc.Path, &doc.Extension,
		&doc.Summary, &doc.ChunkCount, &doc.UploadedBy, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)
	return &doc, nil
}

func (c *Client) ListDocuments() ([]models.Document, error) {
	query := `SELECT stem, filename, path, extension, COALESCE(summary, ''), chunk_count, COALESCE(uploaded_by, ''), created_at, updated_at FROM documents ORDER BY created_at`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		var createdAt, updatedAt int64

		err := rows.Scan(&doc.Stem, &doc.Filename, &doc.Path, &doc.Extension,
			&doc.Summary, &doc.ChunkCount, &doc.UploadedBy, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.CreatedAt = time.Unix(createdAt, 0)
		doc.UpdatedAt = time.Unix(updatedAt, 0)
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func (c *Client) SetDocumentSummary(stem, summary string) error {
	_, err := c.db.Exec(`UPDATE documents SET summary = ? WHERE stem = ?`, summary, stem)
	if err != nil {
		return fmt.Errorf("failed to set document summary: %w", err)
	}
	return nil
}

// --- chunks ---

func (c *Client) InsertChunk(chunk *models.DocumentChunk) error {
	query := `INSERT INTO document_chunks (id, stem, chunk_index, text, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.Exec(query, chunk.ID, chunk.Stem, chunk.ChunkIndex, chunk.Text, chunk.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (c *Client) CountChunks(stem string) (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM document_chunks WHERE stem = ?`, stem).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (c *Client) AddChunkCount(stem string, delta int) error {
	_, err := c.db.Exec(`UPDATE documents SET chunk_count = chunk_count + ? WHERE stem = ?`, delta, stem)
	if err != nil {
		return fmt.Errorf("failed to update chunk count: %w", err)
	}
	return nil
}

// --- QA history ---

func (c *Client) InsertQARecord(r *models.QARecord) error {
	query := `INSERT INTO qa_history (id, username, session_id, stem, question, answer, agent_kind, latency_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		r.ID, r.Username, r.SessionID, r.Stem,
		r.Question, r.Answer, r.AgentKind, r.LatencyMS, r.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert QA record: %w", err)
	}
	return nil
}

func (c *Client) GetQAHistory(username string, limit int) ([]models.QARecord, error) {
	query := `
		SELECT id, username, session_id, COALESCE(stem, ''), question, COALESCE(answer, ''), COALESCE(agent_kind, ''), latency_ms, created_at
		FROM qa_history
		WHERE username = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, username, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get QA history: %w", err)
	}
	defer rows.Close()

	var records []models.QARecord
	for rows.Next() {
		var r models.QARecord
		var createdAt int64

		err := rows.Scan(&r.ID, &r.Username, &r.SessionID, &r.Stem,
			&r.Question, &r.Answer, &r.AgentKind, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}
