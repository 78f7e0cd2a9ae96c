package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{"single part", []string{"test"}},
		{"multiple parts", []string{"test", "key", "with", "many", "parts"}},
		{"empty parts", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashed1 := HashKey(tt.parts...)
			hashed2 := HashKey(tt.parts...)

			if hashed1 != hashed2 {
				t.Errorf("HashKey() should be consistent, got %s and %s", hashed1, hashed2)
			}
			if len(hashed1) != 32 {
				t.Errorf("HashKey() should return 32 character hex string, got length %d", len(hashed1))
			}
		})
	}
}

func TestHashKeySeparatesParts(t *testing.T) {
	assert.NotEqual(t, HashKey("ab", "c"), HashKey("a", "bc"))
}

func TestCache_NamespaceKey(t *testing.T) {
	tests := []struct {
		name     string
		cache    *Cache
		key      string
		expected string
	}{
		{"simple key", &Cache{}, "test", "agora:test"},
		{"key with colon", &Cache{}, "test:key", "agora:test:key"},
		{"empty key", &Cache{}, "", "agora:"},
		{"custom prefix", &Cache{prefix: "staging"}, "test", "staging:test"},
		{"nil cache", nil, "test", "agora:test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.cache.namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestDisabledCache(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var dest []int64
	assert.True(t, errors.Is(c.GetJSON(ctx, "k", &dest), ErrCacheDisabled))
	assert.True(t, errors.Is(c.SetJSON(ctx, "k", []int64{1}, time.Minute), ErrCacheDisabled))
	assert.True(t, errors.Is(c.Delete(ctx, "k"), ErrCacheDisabled))
	assert.True(t, errors.Is(c.Health(ctx), ErrCacheDisabled))

	release, ok, err := c.TryLock(ctx, "nightly", time.Minute)
	assert.Nil(t, release)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrCacheDisabled))

	assert.NoError(t, c.Close())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "recs:nightly:42", NightlyRecommendationsKey(42))
	assert.Equal(t, "recs:posts:42:10:20", RecommendationsKey(42, 10, 20))
	assert.NotEqual(t, RankedKey("hot", 0, 20, 0), RankedKey("trending", 0, 20, 0))
}
