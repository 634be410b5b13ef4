package service

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"crm-backend/internal/encryption"
	"crm-backend/internal/models"
	redisrepo "crm-backend/internal/repository/redis"
	"crm-backend/internal/repository/scylla"
)

type fakeIdentityStore struct {
	mu         sync.Mutex
	byEmail    map[string]*models.Identity
	lastLogins map[string]time.Time
	createErr  error
	lookupErr  error
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{
		byEmail:    make(map[string]*models.Identity),
		lastLogins: make(map[string]time.Time),
	}
}

func (f *fakeIdentityStore) CreateIdentity(identity *models.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byEmail[identity.Email]; exists {
		return scylla.ErrEmailTaken
	}
	if identity.UserID == "" {
		identity.UserID = "user-" + identity.Email
	}
	identity.CreatedAt = time.Now().UTC()
	f.byEmail[identity.Email] = identity
	return nil
}

func (f *fakeIdentityStore) GetIdentity(userBucket int, userID string) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, identity := range f.byEmail {
		if identity.UserID == userID {
			return identity, nil
		}
	}
	return nil, scylla.ErrIdentityNotFound
}

func (f *fakeIdentityStore) GetIdentityByEmail(email string) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	identity, ok := f.byEmail[email]
	if !ok {
		return nil, scylla.ErrIdentityNotFound
	}
	return identity, nil
}

func (f *fakeIdentityStore) UpdateStatus(userBucket int, userID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, identity := range f.byEmail {
		if identity.UserID == userID {
			identity.Status = status
			return nil
		}
	}
	return scylla.ErrIdentityNotFound
}

func (f *fakeIdentityStore) UpdateLastLogin(userBucket int, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLogins[userID] = at
	return nil
}

type fakeSessionStore struct {
	mu        sync.Mutex
	sessions  []*models.Session
	createErr error
}

func (f *fakeSessionStore) CreateSession(session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.sessions = append(f.sessions, session)
	return nil
}

func (f *fakeSessionStore) ListByUser(userID string) ([]*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeSessionStore) ListActiveByUser(userID string, now time.Time) ([]*models.Session, error) {
	all, err := f.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, s := range all {
		if s.Active(now) {
			active = append(active, s)
		}
	}
	return active, nil
}

func (f *fakeSessionStore) GetByID(sessionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.SessionID == sessionID {
			return s, nil
		}
	}
	return nil, scylla.ErrSessionNotFound
}

func (f *fakeSessionStore) Revoke(userID, sessionID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.SessionID == sessionID {
			revokedAt := at
			s.RevokedAt = &revokedAt
			return nil
		}
	}
	return scylla.ErrSessionNotFound
}

func (f *fakeSessionStore) RevokeAllByUser(userID string, at time.Time) (int, error) {
	active, err := f.ListActiveByUser(userID, at)
	if err != nil {
		return 0, err
	}
	for _, s := range active {
		if err := f.Revoke(userID, s.SessionID, at); err != nil {
			return 0, err
		}
	}
	return len(active), nil
}

type fakeDeviceStore struct {
	mu      sync.Mutex
	devices map[string]*models.Device
	touched map[string]int
}

func newFakeDeviceStore() *fakeDeviceStore {
	return &fakeDeviceStore{
		devices: make(map[string]*models.Device),
		touched: make(map[string]int),
	}
}

func (f *fakeDeviceStore) key(userID, fingerprint string) string {
	return userID + "/" + fingerprint
}

func (f *fakeDeviceStore) FindByFingerprint(userID, fingerprint string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	device, ok := f.devices[f.key(userID, fingerprint)]
	if !ok {
		return nil, scylla.ErrDeviceNotFound
	}
	return device, nil
}

func (f *fakeDeviceStore) CreateDevice(userID, fingerprint string, ip net.IP) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	device := &models.Device{
		UserID:        userID,
		Fingerprint:   fingerprint,
		DeviceID:      "device-" + fingerprint,
		LastUsedAt:    time.Now().UTC(),
		LastIPAddress: ip,
		CreatedAt:     time.Now().UTC(),
	}
	f.devices[f.key(userID, fingerprint)] = device
	return device, nil
}

func (f *fakeDeviceStore) setTrusted(userID, fingerprint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if device, ok := f.devices[f.key(userID, fingerprint)]; ok {
		device.IsTrusted = true
	}
}

func (f *fakeDeviceStore) Touch(userID, fingerprint string, ip net.IP, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[f.key(userID, fingerprint)]++
	return nil
}

type fakeRateLimiter struct {
	allowEmail bool
	allowIP    bool
	err        error
	emailCalls int
	ipCalls    int
}

func newFakeRateLimiter() *fakeRateLimiter {
	return &fakeRateLimiter{allowEmail: true, allowIP: true}
}

func (f *fakeRateLimiter) CheckEmail(ctx context.Context, email string, max int64, window time.Duration) (*redisrepo.RateLimitResult, error) {
	f.emailCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &redisrepo.RateLimitResult{Allowed: f.allowEmail}, nil
}

func (f *fakeRateLimiter) CheckIP(ctx context.Context, ip string, max int64, window time.Duration) (*redisrepo.RateLimitResult, error) {
	f.ipCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &redisrepo.RateLimitResult{Allowed: f.allowIP}, nil
}

type fakeLockoutStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	locked  map[string]bool
	cleared int
	err     error
}

func newFakeLockoutStore() *fakeLockoutStore {
	return &fakeLockoutStore{
		counts: make(map[string]int64),
		locked: make(map[string]bool),
	}
}

func (f *fakeLockoutStore) IsLocked(ctx context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.locked[userID], nil
}

func (f *fakeLockoutStore) RecordFailure(ctx context.Context, userID string, threshold int64, counterWindow, lockDuration time.Duration) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, false, f.err
	}
	f.counts[userID]++
	count := f.counts[userID]
	if count >= threshold && !f.locked[userID] {
		f.locked[userID] = true
		return count, true, nil
	}
	return count, false, nil
}

func (f *fakeLockoutStore) ClearFailures(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, userID)
	f.cleared++
	return nil
}

type fakeChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*redisrepo.MfaChallenge
	putErr     error
}

func newFakeChallengeStore() *fakeChallengeStore {
	return &fakeChallengeStore{challenges: make(map[string]*redisrepo.MfaChallenge)}
}

func (f *fakeChallengeStore) Put(ctx context.Context, challenge *redisrepo.MfaChallenge, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.challenges[challenge.ChallengeID] = challenge
	return nil
}

func (f *fakeChallengeStore) Redeem(ctx context.Context, challengeID string) (*redisrepo.MfaChallenge, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	challenge, ok := f.challenges[challengeID]
	if !ok {
		return nil, false, nil
	}
	delete(f.challenges, challengeID)
	return challenge, true, nil
}

type fakeRevocationMarker struct {
	mu     sync.Mutex
	marked []string
}

func (f *fakeRevocationMarker) MarkRevoked(ctx context.Context, sessionID string, remaining time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, sessionID)
	return nil
}

type fakeAuditSink struct {
	mu       sync.Mutex
	events   []*models.SecurityEvent
	attempts []*models.LoginAttempt
}

func (f *fakeAuditSink) RecordEvent(event *models.SecurityEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeAuditSink) RecordLoginAttempt(attempt *models.LoginAttempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt)
}

func (f *fakeAuditSink) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

func (f *fakeAuditSink) attemptStatuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.attempts))
	for _, a := range f.attempts {
		out = append(out, a.Status)
	}
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeNotifier) Notify(kind, userID, email string, data map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

type fakeEncryptor struct{}

func (f *fakeEncryptor) EncryptField(ctx context.Context, plaintext string) (*encryption.EncryptedData, error) {
	return &encryption.EncryptedData{
		EncryptedValue: "enc:" + plaintext,
		EncryptedDEK:   "dek",
		KeyID:          "key-1",
		Version:        "v1",
		CreatedAt:      time.Now().UTC(),
	}, nil
}
