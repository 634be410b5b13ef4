package redis

import (
	"context"
	"fmt"
	"time"

	"crm-backend/internal/client"
)

const revokedSessionPrefix = "revoked_session:"

// RevocationCache mirrors session revocations into Redis so token
// verification can reject a revoked session without a Scylla round trip.
// Markers carry the session's remaining lifetime; after that the token
// itself has expired and the marker is no longer needed.
type RevocationCache struct {
	client *client.RedisClient
}

func NewRevocationCache(client *client.RedisClient) *RevocationCache {
	return &RevocationCache{client: client}
}

func (c *RevocationCache) MarkRevoked(ctx context.Context, sessionID string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, revokedSessionPrefix+sessionID, "revoked", remaining); err != nil {
		return fmt.Errorf("failed to mark session revoked: %w", err)
	}
	return nil
}

// IsRevoked degrades to false on cache errors. Scylla remains the source of
// truth for session state; this cache only exists to fail fast.
func (c *RevocationCache) IsRevoked(ctx context.Context, sessionID string) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	revoked, err := c.client.Exists(ctx, revokedSessionPrefix+sessionID)
	if err != nil {
		return false
	}
	return revoked
}
