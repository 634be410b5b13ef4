package service

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/bucketing"
	"crm-backend/internal/config"
	"crm-backend/internal/hashing"
	"crm-backend/internal/models"
)

type registrationFixture struct {
	svc        *RegistrationService
	identities *fakeIdentityStore
	limiter    *fakeRateLimiter
	audit      *fakeAuditSink
	notifier   *fakeNotifier
}

func newRegistrationFixture() *registrationFixture {
	cfg := testConfig()
	cfg.Bucketing = config.BucketingConfig{UserBuckets: 16, EventBuckets: 8}

	fx := &registrationFixture{
		identities: newFakeIdentityStore(),
		limiter:    newFakeRateLimiter(),
		audit:      &fakeAuditSink{},
		notifier:   &fakeNotifier{},
	}
	fx.svc = NewRegistrationService(cfg, fx.identities, fx.limiter,
		hashing.NewPasswordHasher(cfg), &fakeEncryptor{},
		bucketing.NewBucketingManager(cfg), fx.audit, fx.notifier)
	return fx
}

func registerReq(email, password string) *RegisterRequest {
	return &RegisterRequest{
		Email:          email,
		Password:       password,
		OrganizationID: "org-1",
		IPAddress:      net.ParseIP("203.0.113.7"),
		UserAgent:      "test-agent",
	}
}

func TestRegisterCreatesPendingIdentity(t *testing.T) {
	fx := newRegistrationFixture()

	identity, err := fx.svc.Register(context.Background(), registerReq("New.User@Example.com", "a-strong-password"))
	require.NoError(t, err)

	assert.Equal(t, "new.user@example.com", identity.Email)
	assert.Equal(t, models.StatusPendingVerification, identity.Status)
	assert.NotEmpty(t, identity.UserID)
	assert.NotEmpty(t, identity.PasswordHash)
	assert.NotEqual(t, "a-strong-password", identity.PasswordHash)
	assert.NotEmpty(t, identity.EmailEncrypted)

	assert.Contains(t, fx.audit.eventTypes(), models.EventUserRegistered)
	assert.Contains(t, fx.notifier.kinds, "verification_email")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	fx := newRegistrationFixture()

	_, err := fx.svc.Register(context.Background(), registerReq("alice@example.com", "a-strong-password"))
	require.NoError(t, err)

	_, err = fx.svc.Register(context.Background(), registerReq("alice@example.com", "another-password"))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterWeakPassword(t *testing.T) {
	fx := newRegistrationFixture()

	_, err := fx.svc.Register(context.Background(), registerReq("alice@example.com", "short"))
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestRegisterRateLimited(t *testing.T) {
	fx := newRegistrationFixture()
	fx.limiter.allowIP = false

	_, err := fx.svc.Register(context.Background(), registerReq("alice@example.com", "a-strong-password"))
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRegisterResponseTimeFloor(t *testing.T) {
	fx := newRegistrationFixture()
	cfg := testConfig()
	cfg.Bucketing = config.BucketingConfig{UserBuckets: 16, EventBuckets: 8}
	cfg.Auth.ResponseTimeFloor = 60 * time.Millisecond
	fx.svc = NewRegistrationService(cfg, fx.identities, fx.limiter,
		hashing.NewPasswordHasher(cfg), &fakeEncryptor{},
		bucketing.NewBucketingManager(cfg), fx.audit, fx.notifier)
	fx.limiter.allowIP = false

	start := time.Now()
	_, err := fx.svc.Register(context.Background(), registerReq("alice@example.com", "a-strong-password"))
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestActivate(t *testing.T) {
	fx := newRegistrationFixture()

	identity, err := fx.svc.Register(context.Background(), registerReq("alice@example.com", "a-strong-password"))
	require.NoError(t, err)

	require.NoError(t, fx.svc.Activate(context.Background(), identity.UserBucket, identity.UserID))

	stored, err := fx.identities.GetIdentityByEmail("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
}
