package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.InitSchema())
	return c
}

func TestUserLifecycle(t *testing.T) {
	c := newTestClient(t)

	now := time.Now()
	require.NoError(t, c.InsertUser(&models.User{
		Username: "alice", PasswordHash: "hash", Role: models.RoleAdmin,
		Active: true, CreatedAt: now,
	}))

	u, err := c.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.True(t, u.Active)
	assert.Nil(t, u.LastLogin)

	require.NoError(t, c.TouchLastLogin("alice", now))
	u, err = c.GetUser("alice")
	require.NoError(t, err)
	require.NotNil(t, u.LastLogin)

	n, err := c.CountUsers()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	admins, err := c.CountActiveAdmins()
	require.NoError(t, err)
	assert.Equal(t, 1, admins)

	require.NoError(t, c.SetUserActive("alice", false))
	admins, err = c.CountActiveAdmins()
	require.NoError(t, err)
	assert.Zero(t, admins)

	require.NoError(t, c.DeleteUser("alice"))
	_, err = c.GetUser("alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserNotFoundCases(t *testing.T) {
	c := newTestClient(t)

	_, err := c.GetUser("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.SetUserActive("nobody", true), ErrNotFound)
	assert.ErrorIs(t, c.DeleteUser("nobody"), ErrNotFound)
}

func TestDuplicateUsernameRejected(t *testing.T) {
	c := newTestClient(t)

	u := &models.User{Username: "alice", PasswordHash: "h", Role: models.RoleQAUser, Active: true, CreatedAt: time.Now()}
	require.NoError(t, c.InsertUser(u))
	assert.Error(t, c.InsertUser(u))
}

func TestDocumentUpsertPreservesSummary(t *testing.T) {
	c := newTestClient(t)

	now := time.Now()
	doc := &models.Document{
		Stem: "report", Filename: "report.pdf", Path: "/up/report.pdf",
		Extension: ".pdf", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, c.UpsertDocument(doc))
	require.NoError(t, c.SetDocumentSummary("report", "a summary"))

	// re-uploading the same stem must not clear the stored summary
	doc.Filename = "report.pdf"
	doc.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, c.UpsertDocument(doc))

	got, err := c.GetDocument("report")
	require.NoError(t, err)
	assert.Equal(t, "a summary", got.Summary)
}

func TestChunkCountAccumulates(t *testing.T) {
	c := newTestClient(t)

	now := time.Now()
	require.NoError(t, c.UpsertDocument(&models.Document{
		Stem: "report", Filename: "report.txt", Path: "/up/report.txt",
		Extension: ".txt", CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, c.AddChunkCount("report", 3))
	require.NoError(t, c.AddChunkCount("report", 2))

	got, err := c.GetDocument("report")
	require.NoError(t, err)
	assert.Equal(t, 5, got.ChunkCount)

	require.NoError(t, c.InsertChunk(&models.DocumentChunk{
		ID: "c1", Stem: "report", ChunkIndex: 0, Text: "t", CreatedAt: now,
	}))
	n, err := c.CountChunks("report")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQAHistoryNewestFirst(t *testing.T) {
	c := newTestClient(t)

	base := time.Now()
	for i, q := range []string{"first", "second", "third"} {
		require.NoError(t, c.InsertQARecord(&models.QARecord{
			ID: q, Username: "alice", SessionID: "s1",
			Question: q, Answer: "a", AgentKind: "retrieval",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := c.GetQAHistory("alice", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].Question)
	assert.Equal(t, "second", records[1].Question)

	records, err = c.GetQAHistory("bob", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
