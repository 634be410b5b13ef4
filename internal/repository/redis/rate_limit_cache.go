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
	emailRatePrefix = "login_rate:email:"
	ipRatePrefix    = "login_rate:ip:"
)

// RateLimitResult reports the outcome of a fixed-window rate check.
type RateLimitResult struct {
	Allowed   bool
	Count     int64
	Remaining int64
}

// RateLimitCache enforces fixed-window login rate limits per email and per
// source IP. The window TTL is set only when the first attempt creates the
// counter, so the window never slides.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// CheckEmail counts a login attempt against the per-email window.
func (c *RateLimitCache) CheckEmail(ctx context.Context, email string, max int64, window time.Duration) (*RateLimitResult, error) {
	return c.check(ctx, emailRatePrefix+email, max, window)
}

// CheckIP counts a login attempt against the per-IP window.
func (c *RateLimitCache) CheckIP(ctx context.Context, ip string, max int64, window time.Duration) (*RateLimitResult, error) {
	return c.check(ctx, ipRatePrefix+ip, max, window)
}

func (c *RateLimitCache) check(ctx context.Context, key string, max int64, window time.Duration) (*RateLimitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := c.client.IncrWithWindow(ctx, key, window)
	if err != nil {
		util.Error("Failed to increment rate limit counter",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimitResult{
		Allowed:   count <= max,
		Count:     count,
		Remaining: remaining,
	}, nil
}
