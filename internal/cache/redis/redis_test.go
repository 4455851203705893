package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyNamespaces(t *testing.T) {
	require := require.New(t)
	require.Equal("lock:betengine:mutate", lockKey("betengine:mutate"))
	require.Equal("ratelimit:relay:10.0.0.1", rateLimitKey("relay:10.0.0.1"))
}

func TestHasPattern(t *testing.T) {
	require := require.New(t)
	require.True(hasPattern("ch:*"))
	require.True(hasPattern("ch:bet_?laced"))
	require.True(hasPattern("ch:[ab]"))
	require.False(hasPattern("ch:bet_placed"))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	require.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	require.Contains(t, slidingWindowLua, "ZADD")
}

func TestNewSignalBusDefaultsMaxLen(t *testing.T) {
	require := require.New(t)
	c := &Client{}
	require.Equal(defaultStreamMaxLen, NewSignalBus(c, 0).maxLen)
	require.Equal(int64(50), NewSignalBus(c, 50).maxLen)
}

func TestLockRefreshInterval(t *testing.T) {
	require := require.New(t)
	require.Equal(10*time.Second, refreshInterval(30*time.Second))
	require.Equal(10*time.Millisecond, refreshInterval(time.Millisecond))
	require.Contains(refreshLua, "PEXPIRE")
	require.Contains(unlockLua, "DEL")
}

func TestEvictionSafe(t *testing.T) {
	require := require.New(t)
	require.True(EvictionSafe("noeviction"))
	require.True(EvictionSafe(""))
	require.False(EvictionSafe("volatile-lru"))
	require.False(EvictionSafe("allkeys-lru"))
}
