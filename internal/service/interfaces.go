package service

import (
	"context"
	"net"
	"time"

	"crm-backend/internal/encryption"
	"crm-backend/internal/models"
	redisrepo "crm-backend/internal/repository/redis"
	"crm-backend/internal/token"
)

// Collaborator contracts consumed by the services. Declared here, on the
// consumer side, so tests can substitute fakes without touching the
// repository packages.

type IdentityStore interface {
	CreateIdentity(identity *models.Identity) error
	GetIdentity(userBucket int, userID string) (*models.Identity, error)
	GetIdentityByEmail(email string) (*models.Identity, error)
	UpdateStatus(userBucket int, userID, status string) error
	UpdateLastLogin(userBucket int, userID string, at time.Time) error
}

type SessionStore interface {
	CreateSession(session *models.Session) error
	ListByUser(userID string) ([]*models.Session, error)
	ListActiveByUser(userID string, now time.Time) ([]*models.Session, error)
	GetByID(sessionID string) (*models.Session, error)
	Revoke(userID, sessionID string, at time.Time) error
	RevokeAllByUser(userID string, at time.Time) (int, error)
}

type DeviceStore interface {
	FindByFingerprint(userID, fingerprint string) (*models.Device, error)
	CreateDevice(userID, fingerprint string, ip net.IP) (*models.Device, error)
	Touch(userID, fingerprint string, ip net.IP, at time.Time) error
}

type RateLimiter interface {
	CheckEmail(ctx context.Context, email string, max int64, window time.Duration) (*redisrepo.RateLimitResult, error)
	CheckIP(ctx context.Context, ip string, max int64, window time.Duration) (*redisrepo.RateLimitResult, error)
}

type LockoutStore interface {
	IsLocked(ctx context.Context, userID string) (bool, error)
	RecordFailure(ctx context.Context, userID string, threshold int64, counterWindow, lockDuration time.Duration) (int64, bool, error)
	ClearFailures(ctx context.Context, userID string) error
}

type ChallengeStore interface {
	Put(ctx context.Context, challenge *redisrepo.MfaChallenge, ttl time.Duration) error
	Redeem(ctx context.Context, challengeID string) (*redisrepo.MfaChallenge, bool, error)
}

type RevocationMarker interface {
	MarkRevoked(ctx context.Context, sessionID string, remaining time.Duration) error
}

type TokenGenerator interface {
	GeneratePair(userID, email string, roles []string, organizationID, sessionID string) (*token.TokenPair, error)
}

type PasswordVerifier interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) bool
	DummyVerify(password string)
}

type AuditSink interface {
	RecordEvent(event *models.SecurityEvent)
	RecordLoginAttempt(attempt *models.LoginAttempt)
}

type NotificationPublisher interface {
	Notify(kind, userID, email string, data map[string]string)
}

type FieldEncryptor interface {
	EncryptField(ctx context.Context, plaintext string) (*encryption.EncryptedData, error)
}
