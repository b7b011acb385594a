package experiment

import (
	"math/rand"
	"sync"
	"time"
)

// Clock supplies the current time. Injected so lifecycle timestamps and
// last-activity updates are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// RandomSource supplies uniform draws in [0, 100) for the weighted variant
// pick. Injected so assignment is deterministic in tests.
type RandomSource interface {
	Next() float64
}

type lockedRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a time-seeded RandomSource safe for concurrent use.
func NewRandom() RandomSource {
	return &lockedRandom{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r *lockedRandom) Next() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() * 100
}
