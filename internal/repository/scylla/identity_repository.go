package scylla

import (
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crm-backend/internal/models"
	"crm-backend/internal/util"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrEmailTaken       = errors.New("email already registered")
)

type IdentityRepository struct {
	client *ScyllaClient
}

func NewIdentityRepository(client *ScyllaClient, logger *zap.Logger) *IdentityRepository {
	return &IdentityRepository{
		client: client,
	}
}

// CreateIdentity inserts a new identity. The email_to_user row is written
// with IF NOT EXISTS first so two concurrent registrations of the same
// email cannot both win.
func (r *IdentityRepository) CreateIdentity(identity *models.Identity) error {
	if identity.UserID == "" {
		identity.UserID = uuid.New().String()
	}

	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = &now

	applied := make(map[string]interface{})
	ok, err := r.client.Prepared.CreateEmailToUser.
		Bind(identity.Email, identity.UserBucket, identity.UserID, now).
		MapScanCAS(applied)
	if err != nil {
		util.Error("Failed to reserve email mapping",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to reserve email mapping: %w", err)
	}
	if !ok {
		return ErrEmailTaken
	}

	query := r.client.Prepared.CreateIdentity.Bind(
		identity.UserBucket, identity.UserID, identity.Email,
		identity.EmailEncrypted, identity.EmailKeyID,
		identity.PasswordHash, identity.Status, identity.Roles,
		identity.OrganizationID, identity.MFAEnabled, identity.MFASecret,
		identity.CreatedAt, identity.LastLoginAt, identity.UpdatedAt)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to create identity",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create identity: %w", err)
	}

	util.Info("Identity created",
		zap.String("user_id", identity.UserID),
		zap.Int("user_bucket", identity.UserBucket))

	return nil
}

// LookupByEmail resolves the normalized email to (bucket, userID) through
// the email_to_user table. Returns ErrIdentityNotFound for unknown emails.
func (r *IdentityRepository) LookupByEmail(email string) (int, string, error) {
	var userBucket int
	var userID string

	query := r.client.Prepared.GetUserByEmail.Bind(email)
	if err := r.client.ScanWithRetry(query, &userBucket, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return 0, "", ErrIdentityNotFound
		}
		util.Error("Failed to look up email mapping", zap.Error(err))
		return 0, "", fmt.Errorf("failed to look up email mapping: %w", err)
	}

	return userBucket, userID, nil
}

func (r *IdentityRepository) GetIdentity(userBucket int, userID string) (*models.Identity, error) {
	identity := &models.Identity{}

	query := r.client.Prepared.GetIdentityByID.Bind(userBucket, userID)
	err := r.client.ScanWithRetry(query,
		&identity.UserBucket, &identity.UserID, &identity.Email,
		&identity.EmailEncrypted, &identity.EmailKeyID,
		&identity.PasswordHash, &identity.Status, &identity.Roles,
		&identity.OrganizationID, &identity.MFAEnabled, &identity.MFASecret,
		&identity.CreatedAt, &identity.LastLoginAt, &identity.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrIdentityNotFound
		}
		util.Error("Failed to get identity",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return identity, nil
}

// GetIdentityByEmail chains the email lookup and the identity read.
func (r *IdentityRepository) GetIdentityByEmail(email string) (*models.Identity, error) {
	userBucket, userID, err := r.LookupByEmail(email)
	if err != nil {
		return nil, err
	}
	return r.GetIdentity(userBucket, userID)
}

func (r *IdentityRepository) UpdateStatus(userBucket int, userID, status string) error {
	query := r.client.Prepared.UpdateIdentityState.Bind(status, time.Now().UTC(), userBucket, userID)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update identity status",
			zap.String("user_id", userID),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update identity status: %w", err)
	}

	util.Info("Identity status updated",
		zap.String("user_id", userID),
		zap.String("status", status))
	return nil
}

func (r *IdentityRepository) UpdateLastLogin(userBucket int, userID string, at time.Time) error {
	query := r.client.Prepared.UpdateLastLogin.Bind(at, userBucket, userID)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (r *IdentityRepository) UpdateMFA(userBucket int, userID string, enabled bool, secret string) error {
	query := r.client.Prepared.UpdateMFA.Bind(enabled, secret, time.Now().UTC(), userBucket, userID)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update MFA settings",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to update MFA settings: %w", err)
	}
	return nil
}
