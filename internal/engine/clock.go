package engine

import (
	"math/rand"
	"sync"
	"time"
)

// Clock abstracts wall-clock access so time-dependent behavior (goodbye
// timers, daily resets, idle sweeps) can be driven deterministically in
// tests without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Rand abstracts the random source behind the probabilistic behaviors
// (ignore surcharge, distraction, media trigger, soft-limit roll) so they
// are deterministic under test.
type Rand interface {
	// Float64 returns a pseudo-random number in [0.0, 1.0).
	Float64() float64
	// Intn returns a non-negative pseudo-random number in [0, n).
	Intn(n int) int
}

// lockedRand is a concurrency-safe Rand over math/rand. *rand.Rand is not
// safe for use from multiple goroutines, and the engine serves users
// concurrently.
type lockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

// NewRand returns a concurrency-safe Rand seeded from the given seed.
func NewRand(seed int64) Rand {
	return &lockedRand{src: rand.New(rand.NewSource(seed))}
}

// NewTimeSeededRand returns a concurrency-safe Rand seeded from the clock.
func NewTimeSeededRand() Rand {
	return NewRand(time.Now().UnixNano())
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float64()
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Intn(n)
}
