package models

import (
	"net"
	"time"
)

// Security event types recorded by the audit sink.
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailed        = "login_failed"
	EventLoginLocked        = "login_locked"
	EventLoginRateLimited   = "login_rate_limited"
	EventLoginNotVerified   = "login_not_verified"
	EventLoginSuspended     = "login_suspended"
	EventAccountLockedOut   = "account_locked_out"
	EventMFAChallengeIssued = "mfa_challenge_issued"
	EventMFAFailed          = "mfa_failed"
	EventMFASuccess         = "mfa_success"
	EventNewDeviceSeen      = "new_device_seen"
	EventSessionEvicted     = "session_evicted"
	EventSessionRevoked     = "session_revoked"
	EventUserRegistered     = "user_registered"
)

type SecurityEvent struct {
	EventBucket   int       `db:"event_bucket"`
	EventTime     time.Time `db:"event_time"`
	EventType     string    `db:"event_type"`
	UserID        string    `db:"user_id"`
	Email         string    `db:"email"`
	SessionID     string    `db:"session_id"`
	IPAddress     net.IP    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	CorrelationID string    `db:"correlation_id"`
	Details       string    `db:"details"`
}
