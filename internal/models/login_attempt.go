package models

import (
	"net"
	"time"
)

// Login attempt outcomes. "locked" is deliberately distinct from
// "invalid_credentials" so lockout probing shows up in the audit trail.
const (
	AttemptSuccess            = "success"
	AttemptInvalidCredentials = "invalid_credentials"
	AttemptLocked             = "locked"
	AttemptRateLimited        = "rate_limited"
	AttemptNotVerified        = "not_verified"
	AttemptSuspended          = "suspended"
)

type LoginAttempt struct {
	EventBucket int       `db:"event_bucket"`
	AttemptAt   time.Time `db:"attempt_at"`
	Email       string    `db:"email"`
	UserID      string    `db:"user_id"`
	IPAddress   net.IP    `db:"ip_address"`
	UserAgent   string    `db:"user_agent"`
	Status      string    `db:"status"`
}
