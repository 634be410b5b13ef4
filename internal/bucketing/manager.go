package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"crm-backend/internal/config"
)

// BucketingManager assigns stable partition buckets for identities and
// security events so hot partitions stay bounded in Scylla and ClickHouse.
type BucketingManager struct {
	userBuckets  int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	bm := &BucketingManager{
		userBuckets:  cfg.Bucketing.UserBuckets,
		eventBuckets: cfg.Bucketing.EventBuckets,
	}

	// Pool of hash functions to avoid per-call allocation.
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// UserBucket returns a consistent bucket for a user id (0..userBuckets-1).
func (bm *BucketingManager) UserBucket(userID string) int {
	return bm.bucketFor(userID, bm.userBuckets)
}

// UserBucketForID is a convenience overload for uuid values.
func (bm *BucketingManager) UserBucketForID(userID uuid.UUID) int {
	return bm.UserBucket(userID.String())
}

// EventBucket buckets security events by their timestamp hour so audit
// scans stay bounded per partition.
func (bm *BucketingManager) EventBucket(t time.Time) int {
	return bm.bucketFor(t.UTC().Format("2006010215"), bm.eventBuckets)
}

func (bm *BucketingManager) bucketFor(value string, buckets int) int {
	if buckets <= 0 {
		return 0
	}

	h := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(h)

	h.Reset()
	_, _ = h.Write([]byte(value))
	return int(h.Sum64() % uint64(buckets))
}
