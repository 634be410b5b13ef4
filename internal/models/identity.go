package models

import "time"

// Identity status values. Only active identities may authenticate.
const (
	StatusPendingVerification = "pending_verification"
	StatusActive              = "active"
	StatusSuspended           = "suspended"
)

type Identity struct {
	UserBucket     int        `db:"user_bucket"`
	UserID         string     `db:"user_id"`
	Email          string     `db:"email"`
	EmailEncrypted []byte     `db:"email_encrypted"`
	EmailKeyID     string     `db:"email_key_id"`
	PasswordHash   string     `db:"password_hash"`
	Status         string     `db:"status"`
	Roles          []string   `db:"roles"`
	OrganizationID string     `db:"organization_id"`
	MFAEnabled     bool       `db:"mfa_enabled"`
	MFASecret      string     `db:"mfa_secret"`
	CreatedAt      time.Time  `db:"created_at"`
	LastLoginAt    *time.Time `db:"last_login_at"`
	UpdatedAt      *time.Time `db:"updated_at"`
}
