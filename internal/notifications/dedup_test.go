package notifications

import (
	"fmt"
	"testing"
	"time"

	"github.com/slotwave/slotwave/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
)

func TestDedupCache_SeenAfterMark(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC))
	cache := newDedupCache(time.Hour, clk)

	assert.False(t, cache.Seen("apt-1:24h"))

	cache.Mark("apt-1:24h")
	assert.True(t, cache.Seen("apt-1:24h"))
	assert.False(t, cache.Seen("apt-1:1h"))
}

func TestDedupCache_EntriesExpire(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC))
	cache := newDedupCache(time.Hour, clk)

	cache.Mark("apt-1:24h")

	clk.Add(59 * time.Minute)
	assert.True(t, cache.Seen("apt-1:24h"))

	clk.Add(2 * time.Minute)
	assert.False(t, cache.Seen("apt-1:24h"))
}

func TestDedupCache_MarkSweepsExpired(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC))
	cache := newDedupCache(time.Hour, clk)

	for i := 0; i < 100; i++ {
		cache.Mark(fmt.Sprintf("apt-%d:24h", i))
	}
	assert.Equal(t, 100, cache.Len())

	clk.Add(2 * time.Hour)
	cache.Mark("apt-new:24h")

	// All expired entries were swept; only the fresh one remains.
	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Seen("apt-new:24h"))
}
