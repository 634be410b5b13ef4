package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/client"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *client.RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := client.NewRedisClientFromAddr(mr.Addr())
	t.Cleanup(func() { rc.Close() })
	return mr, rc
}

func TestRateLimitFixedWindow(t *testing.T) {
	mr, rc := newTestRedis(t)
	cache := NewRateLimitCache(rc)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		result, err := cache.CheckEmail(ctx, "alice@example.com", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, i, result.Count)
		assert.Equal(t, 3-i, result.Remaining)
	}

	result, err := cache.CheckEmail(ctx, "alice@example.com", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)

	// The window is anchored at the first attempt; later attempts must not
	// extend it.
	mr.FastForward(61 * time.Second)
	result, err = cache.CheckEmail(ctx, "alice@example.com", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(1), result.Count)
}

func TestRateLimitWindowDoesNotSlide(t *testing.T) {
	mr, rc := newTestRedis(t)
	cache := NewRateLimitCache(rc)
	ctx := context.Background()

	_, err := cache.CheckIP(ctx, "203.0.113.7", 100, 10*time.Second)
	require.NoError(t, err)

	mr.FastForward(6 * time.Second)
	_, err = cache.CheckIP(ctx, "203.0.113.7", 100, 10*time.Second)
	require.NoError(t, err)

	// 11s after the first attempt the counter expires, even though the
	// second attempt was only 5s ago.
	mr.FastForward(5 * time.Second)
	result, err := cache.CheckIP(ctx, "203.0.113.7", 100, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Count)
}

func TestRateLimitKeysAreIndependent(t *testing.T) {
	_, rc := newTestRedis(t)
	cache := NewRateLimitCache(rc)
	ctx := context.Background()

	_, err := cache.CheckEmail(ctx, "alice@example.com", 10, time.Minute)
	require.NoError(t, err)

	result, err := cache.CheckEmail(ctx, "bob@example.com", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Count)

	result, err = cache.CheckIP(ctx, "alice@example.com", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Count, "email and IP windows must not share keys")
}

func TestLockoutThreshold(t *testing.T) {
	_, rc := newTestRedis(t)
	cache := NewLockoutCache(rc)
	ctx := context.Background()

	for i := int64(1); i < 3; i++ {
		count, tripped, err := cache.RecordFailure(ctx, "user-1", 3, time.Hour, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.False(t, tripped)

		locked, err := cache.IsLocked(ctx, "user-1")
		require.NoError(t, err)
		assert.False(t, locked)
	}

	count, tripped, err := cache.RecordFailure(ctx, "user-1", 3, time.Hour, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.True(t, tripped)

	locked, err := cache.IsLocked(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestLockoutClearFailuresKeepsLock(t *testing.T) {
	_, rc := newTestRedis(t)
	cache := NewLockoutCache(rc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := cache.RecordFailure(ctx, "user-1", 3, time.Hour, time.Hour)
		require.NoError(t, err)
	}

	// Clearing the counter must not release an active lock.
	require.NoError(t, cache.ClearFailures(ctx, "user-1"))
	locked, err := cache.IsLocked(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestLockoutExpires(t *testing.T) {
	mr, rc := newTestRedis(t)
	cache := NewLockoutCache(rc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := cache.RecordFailure(ctx, "user-1", 3, time.Hour, 30*time.Minute)
		require.NoError(t, err)
	}

	ttl, err := cache.LockTTL(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, ttl)

	mr.FastForward(31 * time.Minute)
	locked, err := cache.IsLocked(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockoutRepeatedTripKeepsOriginalExpiry(t *testing.T) {
	mr, rc := newTestRedis(t)
	cache := NewLockoutCache(rc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := cache.RecordFailure(ctx, "user-1", 3, time.Hour, 30*time.Minute)
		require.NoError(t, err)
	}

	mr.FastForward(10 * time.Minute)

	// Further failures past the threshold must not extend the lock.
	_, tripped, err := cache.RecordFailure(ctx, "user-1", 3, time.Hour, 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, tripped)

	ttl, err := cache.LockTTL(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, ttl)
}

func TestLockoutUnlock(t *testing.T) {
	_, rc := newTestRedis(t)
	cache := NewLockoutCache(rc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := cache.RecordFailure(ctx, "user-1", 3, time.Hour, time.Hour)
		require.NoError(t, err)
	}

	require.NoError(t, cache.Unlock(ctx, "user-1"))
	locked, err := cache.IsLocked(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, locked)

	// Counter restarts from scratch after an unlock.
	count, _, err := cache.RecordFailure(ctx, "user-1", 3, time.Hour, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestChallengeRedeemOnce(t *testing.T) {
	_, rc := newTestRedis(t)
	cache := NewChallengeCache(rc)
	ctx := context.Background()

	challenge := &MfaChallenge{
		ChallengeID: "challenge-1",
		UserID:      "user-1",
		Email:       "alice@example.com",
		IPAddress:   "203.0.113.7",
		UserAgent:   "test-agent",
		RememberMe:  true,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, cache.Put(ctx, challenge, 5*time.Minute))

	got, found, err := cache.Redeem(ctx, "challenge-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, challenge.UserID, got.UserID)
	assert.Equal(t, challenge.Email, got.Email)
	assert.True(t, got.RememberMe)

	_, found, err = cache.Redeem(ctx, "challenge-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestChallengeRedeemConcurrent(t *testing.T) {
	_, rc := newTestRedis(t)
	cache := NewChallengeCache(rc)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, &MfaChallenge{ChallengeID: "challenge-1", UserID: "user-1"}, 5*time.Minute))

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, found, err := cache.Redeem(ctx, "challenge-1")
			if err == nil && found {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one redeemer may win")
}

func TestChallengeExpires(t *testing.T) {
	mr, rc := newTestRedis(t)
	cache := NewChallengeCache(rc)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, &MfaChallenge{ChallengeID: "challenge-1"}, time.Minute))

	mr.FastForward(61 * time.Second)
	_, found, err := cache.Redeem(ctx, "challenge-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRevocationCache(t *testing.T) {
	mr, rc := newTestRedis(t)
	cache := NewRevocationCache(rc)
	ctx := context.Background()

	assert.False(t, cache.IsRevoked(ctx, "s-1"))

	require.NoError(t, cache.MarkRevoked(ctx, "s-1", time.Hour))
	assert.True(t, cache.IsRevoked(ctx, "s-1"))

	// Marker lives only as long as the session would have.
	mr.FastForward(61 * time.Minute)
	assert.False(t, cache.IsRevoked(ctx, "s-1"))

	// An already-expired session needs no marker.
	require.NoError(t, cache.MarkRevoked(ctx, "s-2", -time.Minute))
	assert.False(t, cache.IsRevoked(ctx, "s-2"))
}
