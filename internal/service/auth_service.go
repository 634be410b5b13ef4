package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crm-backend/internal/config"
	"crm-backend/internal/models"
	redisrepo "crm-backend/internal/repository/redis"
	"crm-backend/internal/repository/scylla"
	"crm-backend/internal/token"
	"crm-backend/internal/util"
)

type LoginRequest struct {
	Email             string
	Password          string
	IPAddress         net.IP
	UserAgent         string
	DeviceFingerprint string
	RememberMe        bool
}

// LoginResult is the success outcome of Login. Exactly one of the two
// shapes is populated: a pending MFA challenge, or a live session with its
// token pair.
type LoginResult struct {
	MfaRequired bool
	ChallengeID string
	UserID      string
	IsNewDevice bool
	Session     *models.Session
	Tokens      *token.TokenPair
}

// AuthService orchestrates credential verification, brute-force defense,
// MFA and session issuance.
type AuthService struct {
	identities IdentityStore
	sessions   SessionStore
	devices    DeviceStore
	limiter    RateLimiter
	lockouts   LockoutStore
	challenges ChallengeStore
	revoked    RevocationMarker
	hasher     PasswordVerifier
	issuer     TokenGenerator
	audit      AuditSink
	notifier   NotificationPublisher
	normalizer *responseNormalizer
	cfg        config.AuthConfig
}

func NewAuthService(
	cfg *config.Config,
	identities IdentityStore,
	sessions SessionStore,
	devices DeviceStore,
	limiter RateLimiter,
	lockouts LockoutStore,
	challenges ChallengeStore,
	revoked RevocationMarker,
	hasher PasswordVerifier,
	issuer TokenGenerator,
	audit AuditSink,
	notifier NotificationPublisher,
) *AuthService {
	return &AuthService{
		identities: identities,
		sessions:   sessions,
		devices:    devices,
		limiter:    limiter,
		lockouts:   lockouts,
		challenges: challenges,
		revoked:    revoked,
		hasher:     hasher,
		issuer:     issuer,
		audit:      audit,
		notifier:   notifier,
		normalizer: newResponseNormalizer(cfg.Auth.ResponseTimeFloor),
		cfg:        cfg.Auth,
	}
}

// Login runs the full authentication pipeline. Every return path, rejected
// or successful, passes through the response time floor.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	start := time.Now()
	defer s.normalizer.pad(ctx, start)
	return s.login(ctx, req)
}

func (s *AuthService) login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	email := util.NormalizeEmail(req.Email)
	ip := req.IPAddress.String()

	allowed, err := s.checkRateLimits(ctx, email, ip)
	if err != nil {
		util.Error("Rate limit check failed", zap.Error(err))
		return nil, ErrAuthUnavailable
	}
	if !allowed {
		s.recordAttempt(email, "", req, models.AttemptRateLimited)
		s.recordEvent(models.EventLoginRateLimited, "", email, "", req)
		return nil, ErrRateLimited
	}

	identity, err := s.identities.GetIdentityByEmail(email)
	if err != nil {
		if errors.Is(err, scylla.ErrIdentityNotFound) {
			// Burn a hash verification so unknown emails cost the same
			// as wrong passwords.
			s.hasher.DummyVerify(req.Password)
			s.recordAttempt(email, "", req, models.AttemptInvalidCredentials)
			s.recordEvent(models.EventLoginFailed, "", email, "", req)
			return nil, ErrInvalidCredentials
		}
		util.Error("Identity lookup failed", zap.Error(err))
		return nil, ErrAuthUnavailable
	}

	switch identity.Status {
	case models.StatusPendingVerification:
		s.recordAttempt(email, identity.UserID, req, models.AttemptNotVerified)
		s.recordEvent(models.EventLoginNotVerified, identity.UserID, email, "", req)
		return nil, ErrAccountNotVerified
	case models.StatusSuspended:
		s.recordAttempt(email, identity.UserID, req, models.AttemptSuspended)
		s.recordEvent(models.EventLoginSuspended, identity.UserID, email, "", req)
		return nil, ErrAccountSuspended
	}

	locked, err := s.lockouts.IsLocked(ctx, identity.UserID)
	if err != nil {
		return nil, ErrAuthUnavailable
	}
	if locked {
		s.recordAttempt(email, identity.UserID, req, models.AttemptLocked)
		s.recordEvent(models.EventLoginLocked, identity.UserID, email, "", req)
		return nil, ErrAccountLocked
	}

	if !s.hasher.Verify(req.Password, identity.PasswordHash) {
		return nil, s.handleFailedVerification(ctx, identity, email, req)
	}

	if err := s.lockouts.ClearFailures(ctx, identity.UserID); err != nil {
		util.Warn("Failed to clear failure counter after successful login",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
	}

	if identity.MFAEnabled {
		return s.issueMfaChallenge(ctx, identity, email, req)
	}

	return s.completeLogin(ctx, identity, req.IPAddress, req.UserAgent, req.DeviceFingerprint, req.RememberMe)
}

// checkRateLimits runs the per-email and per-IP windows in parallel. Both
// counters are always incremented; an attempt blocked by one limit still
// counts against the other.
func (s *AuthService) checkRateLimits(ctx context.Context, email, ip string) (bool, error) {
	var emailResult, ipResult *redisrepo.RateLimitResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		emailResult, err = s.limiter.CheckEmail(gctx, email, int64(s.cfg.EmailRateLimitMax), s.cfg.EmailRateLimitWindow)
		return err
	})
	g.Go(func() error {
		var err error
		ipResult, err = s.limiter.CheckIP(gctx, ip, int64(s.cfg.IPRateLimitMax), s.cfg.IPRateLimitWindow)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}

	return emailResult.Allowed && ipResult.Allowed, nil
}

func (s *AuthService) handleFailedVerification(ctx context.Context, identity *models.Identity, email string, req *LoginRequest) error {
	count, tripped, err := s.lockouts.RecordFailure(ctx, identity.UserID,
		int64(s.cfg.LockoutThreshold), s.cfg.LockoutDuration, s.cfg.LockoutDuration)
	if err != nil {
		return ErrAuthUnavailable
	}

	s.recordAttempt(email, identity.UserID, req, models.AttemptInvalidCredentials)
	s.recordEvent(models.EventLoginFailed, identity.UserID, email, "", req)

	if tripped {
		util.Warn("Account locked after repeated failures",
			zap.String("user_id", identity.UserID),
			zap.Int("failure_count", int(count)))
		s.recordEvent(models.EventAccountLockedOut, identity.UserID, email, "", req)
		s.notifier.Notify(notifyAccountLockedKind, identity.UserID, email, map[string]string{
			"lock_duration": s.cfg.LockoutDuration.String(),
		})
	}

	// The failure that trips the lock still reads as bad credentials; the
	// locked error surfaces on the next attempt's lock check.
	return ErrInvalidCredentials
}

func (s *AuthService) issueMfaChallenge(ctx context.Context, identity *models.Identity, email string, req *LoginRequest) (*LoginResult, error) {
	challengeID, err := newChallengeID()
	if err != nil {
		return nil, ErrAuthUnavailable
	}

	challenge := &redisrepo.MfaChallenge{
		ChallengeID: challengeID,
		UserID:      identity.UserID,
		Email:       email,
		IPAddress:   req.IPAddress.String(),
		UserAgent:   req.UserAgent,
		DeviceID:    req.DeviceFingerprint,
		RememberMe:  req.RememberMe,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.challenges.Put(ctx, challenge, s.cfg.MFAChallengeTTL); err != nil {
		return nil, ErrAuthUnavailable
	}

	s.recordEvent(models.EventMFAChallengeIssued, identity.UserID, email, "", req)

	return &LoginResult{
		MfaRequired: true,
		ChallengeID: challengeID,
		UserID:      identity.UserID,
	}, nil
}

// VerifyMfa redeems a pending challenge and validates the TOTP code. A
// challenge is consumed on redemption whether or not the code matches, so a
// failed code means starting over at Login.
func (s *AuthService) VerifyMfa(ctx context.Context, challengeID, code string, clientIP net.IP, userAgent string) (*LoginResult, error) {
	start := time.Now()
	defer s.normalizer.pad(ctx, start)
	return s.verifyMfa(ctx, challengeID, code, clientIP, userAgent)
}

func (s *AuthService) verifyMfa(ctx context.Context, challengeID, code string, clientIP net.IP, userAgent string) (*LoginResult, error) {
	challenge, found, err := s.challenges.Redeem(ctx, challengeID)
	if err != nil {
		return nil, ErrAuthUnavailable
	}
	if !found {
		s.recordEventRaw(models.EventMFAFailed, "", "", "", clientIP, userAgent)
		return nil, ErrMfaChallengeInvalid
	}

	identity, err := s.identities.GetIdentityByEmail(challenge.Email)
	if err != nil {
		if errors.Is(err, scylla.ErrIdentityNotFound) {
			return nil, ErrMfaChallengeInvalid
		}
		return nil, ErrAuthUnavailable
	}

	// The account state may have changed while the challenge was pending.
	if identity.Status != models.StatusActive {
		return nil, ErrMfaChallengeInvalid
	}
	locked, err := s.lockouts.IsLocked(ctx, identity.UserID)
	if err != nil {
		return nil, ErrAuthUnavailable
	}
	if locked {
		return nil, ErrAccountLocked
	}

	if !identity.MFAEnabled || identity.MFASecret == "" {
		return nil, ErrMfaNotConfigured
	}

	if !totp.Validate(code, identity.MFASecret) {
		// MFA guesses count toward the same lockout as password guesses.
		_, tripped, err := s.lockouts.RecordFailure(ctx, identity.UserID,
			int64(s.cfg.LockoutThreshold), s.cfg.LockoutDuration, s.cfg.LockoutDuration)
		if err == nil && tripped {
			s.recordEventRaw(models.EventAccountLockedOut, identity.UserID, challenge.Email, "", clientIP, userAgent)
			s.notifier.Notify(notifyAccountLockedKind, identity.UserID, challenge.Email, nil)
		}
		s.recordEventRaw(models.EventMFAFailed, identity.UserID, challenge.Email, "", clientIP, userAgent)
		return nil, ErrMfaChallengeInvalid
	}

	s.recordEventRaw(models.EventMFASuccess, identity.UserID, challenge.Email, "", clientIP, userAgent)

	ip := net.ParseIP(challenge.IPAddress)
	if ip == nil {
		ip = clientIP
	}
	return s.completeLogin(ctx, identity, ip, challenge.UserAgent, challenge.DeviceID, challenge.RememberMe)
}

// completeLogin is the shared tail of the direct and MFA paths: device
// bookkeeping, concurrency cap enforcement and session issuance.
func (s *AuthService) completeLogin(ctx context.Context, identity *models.Identity, ip net.IP, userAgent, fingerprint string, rememberMe bool) (*LoginResult, error) {
	now := time.Now().UTC()

	deviceID, isNewDevice := s.trackDevice(identity, fingerprint, ip, now, userAgent)

	if err := s.enforceSessionCap(ctx, identity, now); err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()
	expiry := s.cfg.SessionExpiry
	if rememberMe {
		expiry = s.cfg.RememberMeExpiry
	}

	tokens, err := s.issuer.GeneratePair(identity.UserID, identity.Email,
		identity.Roles, identity.OrganizationID, sessionID)
	if err != nil {
		util.Error("Token issuance failed",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
		return nil, ErrAuthUnavailable
	}

	session := &models.Session{
		UserID:           identity.UserID,
		SessionID:        sessionID,
		DeviceID:         deviceID,
		IPAddress:        ip,
		UserAgent:        userAgent,
		IsRemembered:     rememberMe,
		AccessTokenHash:  token.Hash(tokens.AccessToken),
		RefreshTokenHash: token.Hash(tokens.RefreshToken),
		CreatedAt:        now,
		ExpiresAt:        now.Add(expiry),
	}
	if err := s.sessions.CreateSession(session); err != nil {
		return nil, ErrAuthUnavailable
	}

	if err := s.identities.UpdateLastLogin(identity.UserBucket, identity.UserID, now); err != nil {
		util.Warn("Failed to update last login",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
	}

	s.audit.RecordLoginAttempt(&models.LoginAttempt{
		Email:     identity.Email,
		UserID:    identity.UserID,
		IPAddress: ip,
		UserAgent: userAgent,
		Status:    models.AttemptSuccess,
	})
	s.recordEventRaw(models.EventLoginSuccess, identity.UserID, identity.Email, sessionID, ip, userAgent)

	return &LoginResult{
		UserID:      identity.UserID,
		IsNewDevice: isNewDevice,
		Session:     session,
		Tokens:      tokens,
	}, nil
}

// trackDevice records the fingerprint and reports whether the device counts
// as new. A device is new while it is untrusted, whether just created or
// seen before; each login from it raises the alert. Device bookkeeping never
// blocks login.
func (s *AuthService) trackDevice(identity *models.Identity, fingerprint string, ip net.IP, now time.Time, userAgent string) (string, bool) {
	if fingerprint == "" {
		return "", false
	}

	device, err := s.devices.FindByFingerprint(identity.UserID, fingerprint)
	switch {
	case err == nil:
		if touchErr := s.devices.Touch(identity.UserID, fingerprint, ip, now); touchErr != nil {
			util.Warn("Failed to touch device",
				zap.String("user_id", identity.UserID),
				zap.Error(touchErr))
		}
	case errors.Is(err, scylla.ErrDeviceNotFound):
		device, err = s.devices.CreateDevice(identity.UserID, fingerprint, ip)
		if err != nil {
			util.Warn("Device registration failed",
				zap.String("user_id", identity.UserID),
				zap.Error(err))
			return "", false
		}
	default:
		util.Warn("Device lookup failed",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
		return "", false
	}

	if device.IsTrusted {
		return device.DeviceID, false
	}

	s.recordEventRaw(models.EventNewDeviceSeen, identity.UserID, identity.Email, "", ip, userAgent)
	s.notifier.Notify(notifyNewDeviceKind, identity.UserID, identity.Email, map[string]string{
		"device_id":  device.DeviceID,
		"ip_address": ip.String(),
		"user_agent": userAgent,
	})
	return device.DeviceID, true
}

// enforceSessionCap revokes the oldest active session when the account is
// at its concurrency limit. The check is read-then-write; two simultaneous
// logins can briefly exceed the cap, and the next login corrects it.
func (s *AuthService) enforceSessionCap(ctx context.Context, identity *models.Identity, now time.Time) error {
	active, err := s.sessions.ListActiveByUser(identity.UserID, now)
	if err != nil {
		return ErrAuthUnavailable
	}
	if len(active) < s.cfg.MaxConcurrentSessions {
		return nil
	}

	// ListActiveByUser returns newest first; evict from the tail until a
	// slot is free for the session about to be created.
	evict := len(active) - s.cfg.MaxConcurrentSessions + 1
	for i := 0; i < evict; i++ {
		oldest := active[len(active)-1-i]
		if err := s.sessions.Revoke(identity.UserID, oldest.SessionID, now); err != nil {
			return ErrAuthUnavailable
		}
		if err := s.revoked.MarkRevoked(ctx, oldest.SessionID, oldest.ExpiresAt.Sub(now)); err != nil {
			util.Warn("Failed to mirror session revocation",
				zap.String("session_id", oldest.SessionID),
				zap.Error(err))
		}
		s.recordEventRaw(models.EventSessionEvicted, identity.UserID, identity.Email,
			oldest.SessionID, oldest.IPAddress, oldest.UserAgent)
	}
	return nil
}

func (s *AuthService) recordAttempt(email, userID string, req *LoginRequest, status string) {
	s.audit.RecordLoginAttempt(&models.LoginAttempt{
		Email:     email,
		UserID:    userID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Status:    status,
	})
}

func (s *AuthService) recordEvent(eventType, userID, email, sessionID string, req *LoginRequest) {
	s.recordEventRaw(eventType, userID, email, sessionID, req.IPAddress, req.UserAgent)
}

func (s *AuthService) recordEventRaw(eventType, userID, email, sessionID string, ip net.IP, userAgent string) {
	s.audit.RecordEvent(&models.SecurityEvent{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		SessionID: sessionID,
		IPAddress: ip,
		UserAgent: userAgent,
	})
}

// newChallengeID returns a 128-bit random hex identifier.
func newChallengeID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate challenge id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
