package tokencache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreTTL(t *testing.T) {
	clock := &testClock{cur: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.Now

	require.NoError(t, store.Set("k", "v", time.Minute))

	val, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	clock.Advance(2 * time.Minute)
	_, err = store.Get("k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// An expired read also drops the entry, so the map does not grow
	// without bound under churn.
	assert.Empty(t, store.entries)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set("k", "v", time.Minute))
	require.NoError(t, store.Delete("k"))

	_, err := store.Get("k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
