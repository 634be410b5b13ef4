package models

import (
	"net"
	"time"
)

// Device is a known client fingerprint for a user. Trust is granted
// out-of-band; an untrusted or freshly registered device triggers a
// security alert but never blocks login.
type Device struct {
	UserID        string    `db:"user_id"`
	Fingerprint   string    `db:"fingerprint"`
	DeviceID      string    `db:"device_id"`
	IsTrusted     bool      `db:"is_trusted"`
	LastUsedAt    time.Time `db:"last_used_at"`
	LastIPAddress net.IP    `db:"last_ip_address"`
	CreatedAt     time.Time `db:"created_at"`
}
