package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"crm-backend/internal/client"
	"crm-backend/internal/util"
)

const mfaChallengePrefix = "mfa_challenge:"

// MfaChallenge is the pending state between a successful password check and
// MFA code verification. It exists only in Redis and only until redeemed or
// expired.
type MfaChallenge struct {
	ChallengeID string    `json:"challenge_id"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	DeviceID    string    `json:"device_id"`
	RememberMe  bool      `json:"remember_me"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChallengeCache stores pending MFA challenges with single-use redemption.
type ChallengeCache struct {
	client *client.RedisClient
}

func NewChallengeCache(client *client.RedisClient) *ChallengeCache {
	return &ChallengeCache{client: client}
}

// Put stores a challenge under its ID with the given TTL.
func (c *ChallengeCache) Put(ctx context.Context, challenge *MfaChallenge, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to marshal MFA challenge: %w", err)
	}

	if err := c.client.Set(ctx, mfaChallengePrefix+challenge.ChallengeID, data, ttl); err != nil {
		util.Error("Failed to store MFA challenge",
			zap.String("challenge_id", challenge.ChallengeID),
			zap.Error(err))
		return fmt.Errorf("failed to store MFA challenge: %w", err)
	}
	return nil
}

// Redeem atomically fetches and deletes a challenge so it can be used at
// most once. Returns (nil, false, nil) when the challenge is missing,
// expired or already redeemed.
func (c *ChallengeCache) Redeem(ctx context.Context, challengeID string) (*MfaChallenge, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, found, err := c.client.GetDel(ctx, mfaChallengePrefix+challengeID)
	if err != nil {
		util.Error("Failed to redeem MFA challenge",
			zap.String("challenge_id", challengeID),
			zap.Error(err))
		return nil, false, fmt.Errorf("failed to redeem MFA challenge: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	var challenge MfaChallenge
	if err := json.Unmarshal([]byte(raw), &challenge); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal MFA challenge: %w", err)
	}
	return &challenge, true, nil
}
