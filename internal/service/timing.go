package service

import (
	"context"
	"time"
)

// responseNormalizer pads authentication responses up to a fixed floor so
// response latency does not reveal which internal branch rejected the
// attempt. Every outcome of Login and VerifyMfa, success included, passes
// through the same pad.
type responseNormalizer struct {
	floor time.Duration
}

func newResponseNormalizer(floor time.Duration) *responseNormalizer {
	return &responseNormalizer{floor: floor}
}

// pad blocks until at least floor has elapsed since start. Responses slower
// than the floor are returned as-is. Context cancellation cuts the wait
// short; a caller that has gone away learns nothing from timing.
func (n *responseNormalizer) pad(ctx context.Context, start time.Time) {
	if n.floor <= 0 {
		return
	}
	remaining := n.floor - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
