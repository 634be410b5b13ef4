package bucketing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"crm-backend/internal/config"
)

func testManager() *BucketingManager {
	return NewBucketingManager(&config.Config{
		Bucketing: config.BucketingConfig{UserBuckets: 128, EventBuckets: 64},
	})
}

func TestUserBucketDeterministic(t *testing.T) {
	bm := testManager()

	first := bm.UserBucket("alice@example.com")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, bm.UserBucket("alice@example.com"))
	}
}

func TestUserBucketInRange(t *testing.T) {
	bm := testManager()

	inputs := []string{"a", "alice@example.com", "bob@example.com", "", "日本語"}
	for _, in := range inputs {
		bucket := bm.UserBucket(in)
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, 128)
	}
}

func TestEventBucketStableWithinHour(t *testing.T) {
	bm := testManager()

	base := time.Date(2025, 6, 1, 14, 5, 0, 0, time.UTC)
	assert.Equal(t, bm.EventBucket(base), bm.EventBucket(base.Add(30*time.Minute)))
	// Different hours may land anywhere, but must stay in range.
	bucket := bm.EventBucket(base.Add(2 * time.Hour))
	assert.GreaterOrEqual(t, bucket, 0)
	assert.Less(t, bucket, 64)
}
