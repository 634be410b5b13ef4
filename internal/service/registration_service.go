package service

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"crm-backend/internal/bucketing"
	"crm-backend/internal/config"
	"crm-backend/internal/models"
	"crm-backend/internal/repository/scylla"
	"crm-backend/internal/util"
)

const (
	passwordMinLength = 8
	passwordMaxLength = 128
)

type RegisterRequest struct {
	Email          string
	Password       string
	OrganizationID string
	IPAddress      net.IP
	UserAgent      string
}

// RegistrationService creates new identities in pending_verification state
// and enqueues the verification email.
type RegistrationService struct {
	identities IdentityStore
	limiter    RateLimiter
	hasher     PasswordVerifier
	encryptor  FieldEncryptor
	buckets    *bucketing.BucketingManager
	audit      AuditSink
	notifier   NotificationPublisher
	normalizer *responseNormalizer
	cfg        config.AuthConfig
}

func NewRegistrationService(
	cfg *config.Config,
	identities IdentityStore,
	limiter RateLimiter,
	hasher PasswordVerifier,
	encryptor FieldEncryptor,
	buckets *bucketing.BucketingManager,
	audit AuditSink,
	notifier NotificationPublisher,
) *RegistrationService {
	return &RegistrationService{
		identities: identities,
		limiter:    limiter,
		hasher:     hasher,
		encryptor:  encryptor,
		buckets:    buckets,
		audit:      audit,
		notifier:   notifier,
		normalizer: newResponseNormalizer(cfg.Auth.ResponseTimeFloor),
		cfg:        cfg.Auth,
	}
}

// Register creates a pending identity. The email is stored normalized for
// lookup and KMS-encrypted at rest. Responses pass through the same timing
// floor as login so registration probing reveals nothing either.
func (s *RegistrationService) Register(ctx context.Context, req *RegisterRequest) (*models.Identity, error) {
	start := time.Now()
	defer s.normalizer.pad(ctx, start)
	return s.register(ctx, req)
}

func (s *RegistrationService) register(ctx context.Context, req *RegisterRequest) (*models.Identity, error) {
	email := util.NormalizeEmail(req.Email)
	if email == "" || util.ContainsSuspicious(email) {
		return nil, ErrInvalidCredentials
	}
	if len(req.Password) < passwordMinLength || len(req.Password) > passwordMaxLength {
		return nil, ErrWeakPassword
	}

	limit, err := s.limiter.CheckIP(ctx, req.IPAddress.String(), int64(s.cfg.IPRateLimitMax), s.cfg.IPRateLimitWindow)
	if err != nil {
		return nil, ErrAuthUnavailable
	}
	if !limit.Allowed {
		return nil, ErrRateLimited
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, ErrAuthUnavailable
	}

	encrypted, err := s.encryptor.EncryptField(ctx, email)
	if err != nil {
		util.Error("Email encryption failed", zap.Error(err))
		return nil, ErrAuthUnavailable
	}

	identity := &models.Identity{
		UserBucket:     s.buckets.UserBucket(email),
		Email:          email,
		EmailEncrypted: []byte(encrypted.EncryptedValue),
		EmailKeyID:     encrypted.KeyID,
		PasswordHash:   passwordHash,
		Status:         models.StatusPendingVerification,
		Roles:          []string{"user"},
		OrganizationID: req.OrganizationID,
	}
	if err := s.identities.CreateIdentity(identity); err != nil {
		if errors.Is(err, scylla.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, ErrAuthUnavailable
	}

	s.audit.RecordEvent(&models.SecurityEvent{
		EventTime: time.Now().UTC(),
		EventType: models.EventUserRegistered,
		UserID:    identity.UserID,
		Email:     email,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	s.notifier.Notify(notifyVerificationKind, identity.UserID, email, nil)

	return identity, nil
}

// Activate flips a pending identity to active once verification completes.
func (s *RegistrationService) Activate(ctx context.Context, userBucket int, userID string) error {
	if err := s.identities.UpdateStatus(userBucket, userID, models.StatusActive); err != nil {
		return ErrAuthUnavailable
	}
	return nil
}
