package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"crm-backend/internal/models"
	"crm-backend/internal/repository/scylla"
	"crm-backend/internal/util"
)

// SessionService is the session management surface: listing a user's active
// sessions and revoking them individually or in bulk.
type SessionService struct {
	sessions SessionStore
	revoked  RevocationMarker
	audit    AuditSink
}

func NewSessionService(sessions SessionStore, revoked RevocationMarker, audit AuditSink) *SessionService {
	return &SessionService{
		sessions: sessions,
		revoked:  revoked,
		audit:    audit,
	}
}

// ListActiveSessions returns the user's active sessions, newest first.
func (s *SessionService) ListActiveSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions, err := s.sessions.ListActiveByUser(userID, time.Now().UTC())
	if err != nil {
		return nil, ErrAuthUnavailable
	}
	return sessions, nil
}

// RevokeSession revokes one of the user's sessions. A session belonging to
// a different user is reported as not found rather than forbidden.
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.sessions.GetByID(sessionID)
	if err != nil {
		if errors.Is(err, scylla.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return ErrAuthUnavailable
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}

	now := time.Now().UTC()
	if err := s.sessions.Revoke(userID, sessionID, now); err != nil {
		return ErrAuthUnavailable
	}
	if err := s.revoked.MarkRevoked(ctx, sessionID, session.ExpiresAt.Sub(now)); err != nil {
		util.Warn("Failed to mirror session revocation",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	s.audit.RecordEvent(&models.SecurityEvent{
		EventType: models.EventSessionRevoked,
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: session.IPAddress,
		UserAgent: session.UserAgent,
	})
	return nil
}

// RevokeAllSessions revokes every active session for the user and reports
// how many were revoked. Used on password change and by the security desk.
func (s *SessionService) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	now := time.Now().UTC()

	active, err := s.sessions.ListActiveByUser(userID, now)
	if err != nil {
		return 0, ErrAuthUnavailable
	}

	revoked := 0
	for _, session := range active {
		if err := s.sessions.Revoke(userID, session.SessionID, now); err != nil {
			return revoked, ErrAuthUnavailable
		}
		if err := s.revoked.MarkRevoked(ctx, session.SessionID, session.ExpiresAt.Sub(now)); err != nil {
			util.Warn("Failed to mirror session revocation",
				zap.String("session_id", session.SessionID),
				zap.Error(err))
		}
		s.audit.RecordEvent(&models.SecurityEvent{
			EventType: models.EventSessionRevoked,
			UserID:    userID,
			SessionID: session.SessionID,
			IPAddress: session.IPAddress,
			UserAgent: session.UserAgent,
		})
		revoked++
	}

	util.Info("All sessions revoked",
		zap.String("user_id", userID),
		zap.Int("count", revoked))
	return revoked, nil
}
