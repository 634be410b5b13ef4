package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPadEnforcesFloor(t *testing.T) {
	n := newResponseNormalizer(40 * time.Millisecond)

	start := time.Now()
	n.pad(context.Background(), start)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPadSkipsWhenAlreadySlow(t *testing.T) {
	n := newResponseNormalizer(10 * time.Millisecond)

	start := time.Now().Add(-50 * time.Millisecond)
	padStart := time.Now()
	n.pad(context.Background(), start)
	assert.Less(t, time.Since(padStart), 5*time.Millisecond)
}

func TestPadDisabledWithZeroFloor(t *testing.T) {
	n := newResponseNormalizer(0)

	start := time.Now()
	n.pad(context.Background(), start)
	assert.Less(t, time.Since(start), 5*time.Millisecond)
}

func TestPadStopsOnContextCancel(t *testing.T) {
	n := newResponseNormalizer(5 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	n.pad(ctx, start)
	assert.Less(t, time.Since(start), time.Second)
}
