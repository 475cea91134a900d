// Package identifier generates run-scoped random name suffixes.
//
// Every resource name template in a deployment embeds the same suffix so
// that independent runs in a shared namespace cannot collide, while names
// within one run stay consistent with each other.
package identifier

import (
	"crypto/rand"
	"fmt"
	mrand "math/rand/v2"
)

// ByteLength is the amount of entropy drawn for a pool. Three bytes keeps
// the decimal rendering short enough for strict naming limits (storage
// accounts cap at 24 lowercase characters) while leaving collisions across
// concurrent runs negligible.
const ByteLength = 3

// Pool holds the single generated value for one run. It is computed eagerly
// at construction and immutable afterwards, so it may be shared freely
// across concurrent appliers.
type Pool struct {
	value string
}

// NewPool draws fresh entropy for a new run.
func NewPool() (*Pool, error) {
	buf := make([]byte, ByteLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read entropy: %w", err)
	}
	return &Pool{value: render(buf)}, nil
}

// NewSeededPool derives the pool value from a fixed seed. Used for
// reproducible test runs; production runs should use NewPool.
func NewSeededPool(seed int64) *Pool {
	rng := mrand.New(mrand.NewPCG(uint64(seed), uint64(seed)>>1))
	buf := make([]byte, ByteLength)
	for i := range buf {
		buf[i] = byte(rng.UintN(256))
	}
	return &Pool{value: render(buf)}
}

// Suffix returns the decimal rendering of the pool's entropy. The result
// contains only digits and is at most 8 characters for a 3-byte pool.
func (p *Pool) Suffix() string {
	return p.value
}

func (p *Pool) String() string {
	return p.value
}

func render(buf []byte) string {
	var n uint64
	for _, b := range buf {
		n = n<<8 | uint64(b)
	}
	return fmt.Sprintf("%d", n)
}
