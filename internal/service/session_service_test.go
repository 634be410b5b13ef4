package service

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/models"
)

func newSessionFixture() (*SessionService, *fakeSessionStore, *fakeRevocationMarker, *fakeAuditSink) {
	sessions := &fakeSessionStore{}
	revoked := &fakeRevocationMarker{}
	audit := &fakeAuditSink{}
	return NewSessionService(sessions, revoked, audit), sessions, revoked, audit
}

func seedSession(t *testing.T, store *fakeSessionStore, userID, sessionID string, createdAt time.Time) *models.Session {
	t.Helper()
	session := &models.Session{
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: net.ParseIP("203.0.113.7"),
		UserAgent: "test-agent",
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(7 * 24 * time.Hour),
	}
	require.NoError(t, store.CreateSession(session))
	return session
}

func TestListActiveSessionsNewestFirst(t *testing.T) {
	svc, store, _, _ := newSessionFixture()
	now := time.Now().UTC()

	seedSession(t, store, "user-1", "s-old", now.Add(-2*time.Hour))
	seedSession(t, store, "user-1", "s-new", now.Add(-time.Minute))
	expired := seedSession(t, store, "user-1", "s-expired", now.Add(-30*24*time.Hour))
	expired.ExpiresAt = now.Add(-time.Hour)
	seedSession(t, store, "user-2", "s-other", now)

	sessions, err := svc.ListActiveSessions(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s-new", sessions[0].SessionID)
	assert.Equal(t, "s-old", sessions[1].SessionID)
}

func TestRevokeSession(t *testing.T) {
	svc, store, revoked, audit := newSessionFixture()
	now := time.Now().UTC()
	seedSession(t, store, "user-1", "s-1", now)

	require.NoError(t, svc.RevokeSession(context.Background(), "user-1", "s-1"))

	sessions, err := svc.ListActiveSessions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Contains(t, revoked.marked, "s-1")
	assert.Contains(t, audit.eventTypes(), models.EventSessionRevoked)
}

func TestRevokeSessionWrongOwner(t *testing.T) {
	svc, store, _, _ := newSessionFixture()
	seedSession(t, store, "user-1", "s-1", time.Now().UTC())

	// Another user's session must look like it doesn't exist.
	err := svc.RevokeSession(context.Background(), "user-2", "s-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sessions, listErr := svc.ListActiveSessions(context.Background(), "user-1")
	require.NoError(t, listErr)
	assert.Len(t, sessions, 1)
}

func TestRevokeSessionUnknown(t *testing.T) {
	svc, _, _, _ := newSessionFixture()
	err := svc.RevokeSession(context.Background(), "user-1", "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRevokeAllSessions(t *testing.T) {
	svc, store, revoked, _ := newSessionFixture()
	now := time.Now().UTC()
	seedSession(t, store, "user-1", "s-1", now.Add(-time.Hour))
	seedSession(t, store, "user-1", "s-2", now.Add(-time.Minute))
	seedSession(t, store, "user-2", "s-keep", now)

	count, err := svc.RevokeAllSessions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []string{"s-1", "s-2"}, revoked.marked)

	remaining, err := svc.ListActiveSessions(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
