package scylla

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"crm-backend/internal/models"
	"crm-backend/internal/util"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository struct {
	client *ScyllaClient
}

func NewSessionRepository(client *ScyllaClient, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		client: client,
	}
}

// CreateSession writes the session row and the session_id reverse index in
// one logged batch.
func (r *SessionRepository) CreateSession(session *models.Session) error {
	batch := r.client.Session.NewBatch(gocql.LoggedBatch)

	batch.Query(r.client.Prepared.CreateSession.Statement(),
		session.UserID, session.SessionID, session.DeviceID,
		session.IPAddress, session.UserAgent, session.IsRemembered,
		session.AccessTokenHash, session.RefreshTokenHash,
		session.CreatedAt, session.ExpiresAt, session.RevokedAt)

	batch.Query(r.client.Prepared.CreateSessionByID.Statement(),
		session.SessionID, session.UserID, session.CreatedAt)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create session",
			zap.String("user_id", session.UserID),
			zap.String("session_id", session.SessionID),
			zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}

	util.Info("Session created",
		zap.String("user_id", session.UserID),
		zap.String("session_id", session.SessionID))
	return nil
}

// ListByUser returns all stored sessions for the user, newest first.
// Expired and revoked rows are included; callers filter with Active.
func (r *SessionRepository) ListByUser(userID string) ([]*models.Session, error) {
	iter := r.client.Prepared.ListSessionsByUser.Bind(userID).Iter()

	var sessions []*models.Session
	for {
		s := &models.Session{}
		if !iter.Scan(&s.UserID, &s.SessionID, &s.DeviceID, &s.IPAddress,
			&s.UserAgent, &s.IsRemembered, &s.AccessTokenHash,
			&s.RefreshTokenHash, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt) {
			break
		}
		sessions = append(sessions, s)
	}
	if err := iter.Close(); err != nil {
		util.Error("Failed to list sessions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// ListActiveByUser filters ListByUser down to sessions still granting
// authorization at the given instant.
func (r *SessionRepository) ListActiveByUser(userID string, now time.Time) ([]*models.Session, error) {
	all, err := r.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	active := all[:0]
	for _, s := range all {
		if s.Active(now) {
			active = append(active, s)
		}
	}
	return active, nil
}

// GetByID resolves a session through the reverse index.
func (r *SessionRepository) GetByID(sessionID string) (*models.Session, error) {
	var indexedSessionID, userID string

	query := r.client.Prepared.GetSessionByID.Bind(sessionID)
	if err := r.client.ScanWithRetry(query, &indexedSessionID, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	sessions, err := r.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.SessionID == sessionID {
			return s, nil
		}
	}
	return nil, ErrSessionNotFound
}

// Revoke marks the session revoked and drops it from the reverse index.
func (r *SessionRepository) Revoke(userID, sessionID string, at time.Time) error {
	batch := r.client.Session.NewBatch(gocql.LoggedBatch)

	batch.Query(r.client.Prepared.RevokeSession.Statement(), at, userID, sessionID)
	batch.Query(r.client.Prepared.RevokeSessionByID.Statement(), sessionID)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to revoke session",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	util.Info("Session revoked",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID))
	return nil
}

// RevokeAllByUser revokes every active session for the user and reports how
// many were revoked.
func (r *SessionRepository) RevokeAllByUser(userID string, at time.Time) (int, error) {
	active, err := r.ListActiveByUser(userID, at)
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, s := range active {
		if err := r.Revoke(userID, s.SessionID, at); err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}
