package service

import (
	"go.uber.org/zap"

	"crm-backend/internal/bucketing"
	"crm-backend/internal/config"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	cfg        *config.Config
	identities IdentityStore
	sessions   SessionStore
	devices    DeviceStore
	limiter    RateLimiter
	lockouts   LockoutStore
	challenges ChallengeStore
	revoked    RevocationMarker
	hasher     PasswordVerifier
	issuer     TokenGenerator
	encryptor  FieldEncryptor
	buckets    *bucketing.BucketingManager
	audit      AuditSink
	notifier   NotificationPublisher
	logger     *zap.Logger

	authService         *AuthService
	sessionService      *SessionService
	registrationService *RegistrationService
}

func NewServiceFactory(
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
	encryptor FieldEncryptor,
	buckets *bucketing.BucketingManager,
	audit AuditSink,
	notifier NotificationPublisher,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		cfg:        cfg,
		identities: identities,
		sessions:   sessions,
		devices:    devices,
		limiter:    limiter,
		lockouts:   lockouts,
		challenges: challenges,
		revoked:    revoked,
		hasher:     hasher,
		issuer:     issuer,
		encryptor:  encryptor,
		buckets:    buckets,
		audit:      audit,
		notifier:   notifier,
		logger:     logger,
	}
}

// AuthService returns the authentication service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.cfg,
			f.identities,
			f.sessions,
			f.devices,
			f.limiter,
			f.lockouts,
			f.challenges,
			f.revoked,
			f.hasher,
			f.issuer,
			f.audit,
			f.notifier,
		)
	}
	return f.authService
}

// SessionService returns the session management service instance (singleton)
func (f *ServiceFactory) SessionService() *SessionService {
	if f.sessionService == nil {
		f.sessionService = NewSessionService(f.sessions, f.revoked, f.audit)
	}
	return f.sessionService
}

// RegistrationService returns the registration service instance (singleton)
func (f *ServiceFactory) RegistrationService() *RegistrationService {
	if f.registrationService == nil {
		f.registrationService = NewRegistrationService(
			f.cfg,
			f.identities,
			f.limiter,
			f.hasher,
			f.encryptor,
			f.buckets,
			f.audit,
			f.notifier,
		)
	}
	return f.registrationService
}
