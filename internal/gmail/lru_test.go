package gmail

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenCacheEvictsOldest(t *testing.T) {
	cache := newSeenCache(3)

	cache.Add("a")
	cache.Add("b")
	cache.Add("c")
	assert.Equal(t, 3, cache.Len())
	assert.True(t, cache.Contains("a"))

	cache.Add("d")
	assert.Equal(t, 3, cache.Len())
	assert.False(t, cache.Contains("a"), "oldest entry should be evicted")
	assert.True(t, cache.Contains("b"))
	assert.True(t, cache.Contains("d"))
}

func TestSeenCacheDuplicateAddIsNoop(t *testing.T) {
	cache := newSeenCache(2)

	cache.Add("a")
	cache.Add("a")
	cache.Add("a")
	assert.Equal(t, 1, cache.Len())

	cache.Add("b")
	cache.Add("c")
	assert.False(t, cache.Contains("a"))
	assert.True(t, cache.Contains("b"))
	assert.True(t, cache.Contains("c"))
}

func TestSeenCacheNeverExceedsCapacity(t *testing.T) {
	cache := newSeenCache(10)
	for i := 0; i < 100; i++ {
		cache.Add(fmt.Sprintf("msg-%d", i))
	}
	assert.Equal(t, 10, cache.Len())
	assert.True(t, cache.Contains("msg-99"))
	assert.False(t, cache.Contains("msg-89"))
}

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"display name form", "HDFC Bank <alerts@hdfcbank.net>", "alerts@hdfcbank.net"},
		{"bare address", "alerts@icicibank.com", "alerts@icicibank.com"},
		{"unparseable", "VM-HDFCBK", "VM-HDFCBK"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, senderAddress(tt.input))
		})
	}
}
