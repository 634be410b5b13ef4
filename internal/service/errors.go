package service

import "errors"

// Outcome errors returned by the authentication services. Handlers map these
// to HTTP responses; anything not in this list is an internal failure.
//
// ErrInvalidCredentials deliberately covers both unknown accounts and wrong
// passwords so responses cannot be used to enumerate registered emails.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountLocked       = errors.New("account temporarily locked")
	ErrAccountNotVerified  = errors.New("account pending verification")
	ErrAccountSuspended    = errors.New("account suspended")
	ErrRateLimited         = errors.New("too many login attempts")
	ErrMfaChallengeInvalid = errors.New("mfa challenge invalid or expired")
	ErrMfaNotConfigured    = errors.New("mfa not configured for account")
	ErrSessionNotFound     = errors.New("session not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrWeakPassword        = errors.New("password does not meet policy")
	ErrAuthUnavailable     = errors.New("authentication backend unavailable")
)

// Notification kinds published through the NotificationPublisher. Values
// match the notification consumer's contract.
const (
	notifyAccountLockedKind = "account_locked"
	notifyNewDeviceKind     = "new_device_login"
	notifyVerificationKind  = "verification_email"
)
