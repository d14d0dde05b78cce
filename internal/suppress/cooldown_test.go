package suppress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"whale_watcher/internal/core"
)

func testKey(kind core.EventKind, symbol string, side core.Side) core.CooldownKey {
	return core.CooldownKey{Kind: kind, Symbol: symbol, Side: side}
}

func TestRegistry_MarkAndExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry()
	r.now = func() time.Time { return now }

	key := testKey(core.KindCumulative, "BTCUSDT", core.SideBuy)

	assert.False(t, r.InCooldown(key))

	r.Mark(key, 10*time.Minute)
	assert.True(t, r.InCooldown(key))
	assert.Equal(t, 10*time.Minute, r.Remaining(key))

	// One second before the deadline the key is still held.
	now = now.Add(10*time.Minute - time.Second)
	assert.True(t, r.InCooldown(key))

	// At the deadline the entry expires lazily on query.
	now = now.Add(time.Second)
	assert.False(t, r.InCooldown(key))
	assert.Equal(t, 0, r.ActiveCount())
}

func TestRegistry_ZeroDurationDisables(t *testing.T) {
	r := NewRegistry()
	key := testKey(core.KindSingle, "ETHUSDT", core.SideSell)

	r.Mark(key, 0)
	assert.False(t, r.InCooldown(key))

	r.Mark(key, -time.Minute)
	assert.False(t, r.InCooldown(key))
	assert.Equal(t, 0, r.ActiveCount())
}

func TestRegistry_KeysAreIndependent(t *testing.T) {
	r := NewRegistry()

	buy := testKey(core.KindCumulative, "BTCUSDT", core.SideBuy)
	sell := testKey(core.KindCumulative, "BTCUSDT", core.SideSell)
	single := testKey(core.KindSingle, "BTCUSDT", core.SideBuy)
	other := testKey(core.KindCumulative, "ETHUSDT", core.SideBuy)

	r.Mark(buy, time.Minute)

	assert.True(t, r.InCooldown(buy))
	assert.False(t, r.InCooldown(sell))
	assert.False(t, r.InCooldown(single))
	assert.False(t, r.InCooldown(other))
}

func TestRegistry_CleanupExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry()
	r.now = func() time.Time { return now }

	r.Mark(testKey(core.KindSingle, "BTCUSDT", core.SideBuy), 30*time.Second)
	r.Mark(testKey(core.KindSingle, "ETHUSDT", core.SideBuy), 5*time.Minute)
	assert.Equal(t, 2, r.ActiveCount())

	now = now.Add(time.Minute)
	removed := r.CleanupExpired()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, r.ActiveCount())

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 1, r.CleanupExpired())
	assert.Equal(t, 0, r.ActiveCount())
}

func TestRegistry_RemainingCountsDown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry()
	r.now = func() time.Time { return now }

	key := testKey(core.KindCumulative, "SOLUSDT", core.SideSell)
	r.Mark(key, time.Minute)

	now = now.Add(40 * time.Second)
	assert.Equal(t, 20*time.Second, r.Remaining(key))

	now = now.Add(30 * time.Second)
	assert.Equal(t, time.Duration(0), r.Remaining(key))
	assert.Equal(t, 0, r.ActiveCount())
}
