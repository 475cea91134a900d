package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_Format(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)

	assert.Regexp(t, `^[0-9]{1,8}$`, pool.Suffix(), "suffix should be a short decimal")
}

func TestNewPool_Immutable(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)

	// Repeated reads return the same value for the lifetime of the pool
	first := pool.Suffix()
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, pool.Suffix())
	}
}

func TestNewPool_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	duplicates := 0
	total := 1000

	for i := 0; i < total; i++ {
		pool, err := NewPool()
		require.NoError(t, err)
		if seen[pool.Suffix()] {
			duplicates++
		}
		seen[pool.Suffix()] = true
	}

	// 24 bits of entropy makes collisions in 1000 draws rare; tolerate a
	// couple to keep the test stable.
	assert.LessOrEqual(t, duplicates, 2, "too many collisions for 24 bits of entropy")
}

func TestNewSeededPool_Deterministic(t *testing.T) {
	a := NewSeededPool(42)
	b := NewSeededPool(42)
	c := NewSeededPool(43)

	assert.Equal(t, a.Suffix(), b.Suffix(), "same seed should reproduce the suffix")
	assert.NotEqual(t, a.Suffix(), c.Suffix(), "different seeds should differ")
}
