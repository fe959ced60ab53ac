package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucketPeekUnderCapacity(t *testing.T) {
	b := newBucket(time.Second, 3)
	now := time.Now()
	assert.Equal(t, time.Duration(0), b.peek(now))
}

func TestBucketReserveAtCapacityWaits(t *testing.T) {
	b := newBucket(10*time.Second, 2)
	now := time.Now()

	assert.Equal(t, time.Duration(0), b.reserve(now))
	assert.Equal(t, time.Duration(0), b.reserve(now))

	wait := b.reserve(now)
	assert.True(t, wait > 0, "third reservation within window must wait")
}

func TestBucketPrunesExpiredEntries(t *testing.T) {
	b := newSingleSlotBucket(50 * time.Millisecond)
	now := time.Now()
	b.reserve(now)

	later := now.Add(100 * time.Millisecond)
	assert.Equal(t, time.Duration(0), b.peek(later))
}

func TestBudgetsChainContainment(t *testing.T) {
	cfg := DefaultConfig()
	b := newBudgets(cfg)

	assert.Len(t, b.chain(StandardTarget()), 1)
	assert.Len(t, b.chain(RestrictedTarget("testlandia")), 2)
	assert.Len(t, b.chain(TelegramTarget("testlandia")), 3)
	assert.Len(t, b.chain(RecruitmentTarget("testlandia")), 4)
}

func TestAcquireReservesEveryBucketInChainAtSameInstant(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RestrictedWindow = 60 * time.Second
	b := newBudgets(cfg)
	now := time.Now()

	// Exhaust the restricted single-slot bucket so the next acquire waits.
	b.restrictedBucket("testlandia").reserve(now)

	wait := b.acquire(RecruitmentTarget("testlandia"), now)
	assert.True(t, wait > 0)

	reserveAt := now.Add(wait)
	for _, bk := range b.chain(RecruitmentTarget("testlandia")) {
		last := bk.entries[len(bk.entries)-1]
		assert.True(t, last.Equal(reserveAt), "every bucket in the chain must reserve at the composite wait instant")
	}
}

func TestPerNationRestrictedCooldownIsSerialized(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RestrictedWindow = 60 * time.Second
	b := newBudgets(cfg)
	now := time.Now()

	first := b.acquire(RestrictedTarget("testlandia"), now)
	assert.Equal(t, time.Duration(0), first)

	second := b.acquire(RestrictedTarget("testlandia"), now)
	assert.InDelta(t, float64(60*time.Second), float64(second), float64(time.Millisecond))
}
