package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"crm-backend/internal/client"
	"crm-backend/internal/util"
)

const (
	failureCountPrefix = "login_fail:"
	lockFlagPrefix     = "login_lock:"
)

// LockoutCache tracks consecutive failed logins per account and flips a lock
// flag once the threshold is reached. The lock flag's existence is the sole
// lock predicate; clearing the failure counter never clears an active lock.
type LockoutCache struct {
	client *client.RedisClient
}

func NewLockoutCache(client *client.RedisClient) *LockoutCache {
	return &LockoutCache{client: client}
}

// IsLocked reports whether the account currently carries a lock flag.
func (c *LockoutCache) IsLocked(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	locked, err := c.client.Exists(ctx, lockFlagPrefix+userID)
	if err != nil {
		util.Error("Failed to check account lock",
			zap.String("user_id", userID),
			zap.Error(err))
		return false, fmt.Errorf("failed to check account lock: %w", err)
	}
	return locked, nil
}

// RecordFailure increments the failure counter and locks the account when the
// threshold is reached. The counter TTL is set only on the first failure so a
// burst of failures cannot keep extending its own window. Returns the new
// failure count and whether this failure tripped the lock.
func (c *LockoutCache) RecordFailure(ctx context.Context, userID string, threshold int64, counterWindow, lockDuration time.Duration) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := c.client.IncrWithWindow(ctx, failureCountPrefix+userID, counterWindow)
	if err != nil {
		util.Error("Failed to record login failure",
			zap.String("user_id", userID),
			zap.Error(err))
		return 0, false, fmt.Errorf("failed to record login failure: %w", err)
	}

	if count < threshold {
		return count, false, nil
	}

	// SetNX keeps an existing lock's expiry intact if concurrent failures
	// both cross the threshold.
	tripped, err := c.client.SetNX(ctx, lockFlagPrefix+userID, "locked", lockDuration)
	if err != nil {
		util.Error("Failed to set account lock",
			zap.String("user_id", userID),
			zap.Error(err))
		return count, false, fmt.Errorf("failed to set account lock: %w", err)
	}

	return count, tripped, nil
}

// ClearFailures removes the failure counter after a successful login. An
// active lock flag is deliberately left in place until it expires.
func (c *LockoutCache) ClearFailures(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, failureCountPrefix+userID); err != nil {
		util.Error("Failed to clear failure counter",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to clear failure counter: %w", err)
	}
	return nil
}

// LockTTL returns the remaining lock duration, or zero when not locked.
func (c *LockoutCache) LockTTL(ctx context.Context, userID string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ttl, err := c.client.TTL(ctx, lockFlagPrefix+userID)
	if err != nil {
		return 0, fmt.Errorf("failed to read lock TTL: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Unlock removes the lock flag and failure counter. Admin path only.
func (c *LockoutCache) Unlock(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, lockFlagPrefix+userID, failureCountPrefix+userID); err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}
	util.Info("Account unlocked", zap.String("user_id", userID))
	return nil
}
