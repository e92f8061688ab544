package main

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
)

// GenerateUUID returns a random v4 UUID string.
func GenerateUUID() string {
	return uuid.NewString()
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Distance returns the distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

// randFloat returns a random float64 in [0, 1).
// Game randomness does not need to be cryptographic; a seeded xorshift
// keeps spawns cheap. The state is advanced with a CAS loop because
// spawns and respawns happen under different rooms' locks.
var randSrc atomic.Uint64

func randFloat() float64 {
	for {
		old := randSrc.Load()
		x := old
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		if x == 0 {
			x = 1
		}
		if randSrc.CompareAndSwap(old, x) {
			return float64(x%10000) / 10000.0
		}
	}
}

func init() {
	// Seed from crypto/rand
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	seed := binary.LittleEndian.Uint64(b)
	if seed == 0 {
		seed = 1
	}
	randSrc.Store(seed)
}
