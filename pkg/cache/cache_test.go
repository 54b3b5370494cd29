package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache_ExpiresStrictly(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	c := NewInMemoryCache[string, string](time.Minute).WithClock(func() time.Time { return now })

	c.Set("token", "abc", 10*time.Second)
	v, ok := c.Get("token")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	// 恰好到期的时刻视为过期
	now = now.Add(10 * time.Second)
	_, ok = c.Get("token")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestInMemoryCache_DefaultAndNegativeTTL(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	c := NewInMemoryCache[string, int](time.Minute).WithClock(func() time.Time { return now })

	c.Set("a", 1, 0)
	now = now.Add(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Set("a", 2, -time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestInMemoryCache_DeleteClear(t *testing.T) {
	c := NewInMemoryCache[string, int](time.Minute)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	assert.Equal(t, 2, c.Size())

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Size())
}
