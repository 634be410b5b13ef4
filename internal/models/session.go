package models

import (
	"net"
	"time"
)

// Session is a durable, revocable authorization grant bound to one
// successful authentication. Raw tokens are never stored, only their
// SHA-256 digests.
type Session struct {
	UserID           string     `db:"user_id"`
	SessionID        string     `db:"session_id"`
	DeviceID         string     `db:"device_id"`
	IPAddress        net.IP     `db:"ip_address"`
	UserAgent        string     `db:"user_agent"`
	IsRemembered     bool       `db:"is_remembered"`
	AccessTokenHash  string     `db:"access_token_hash"`
	RefreshTokenHash string     `db:"refresh_token_hash"`
	CreatedAt        time.Time  `db:"created_at"`
	ExpiresAt        time.Time  `db:"expires_at"`
	RevokedAt        *time.Time `db:"revoked_at"`
}

// Active reports whether the session still grants authorization at the
// given instant.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
