package random

import (
	crand "crypto/rand"
	"math/rand/v2"
	"sync"
)

// Random provides random number generation that can be mocked for testing
type Random interface {
	// Intn returns a random int in [0, n)
	Intn(n int) int

	// String generates a random string of the given length from the given alphabet
	String(length int, alphabet string) string
}

// ChaChaRandom is a ChaCha8 stream seeded once from the OS entropy source.
// It is safe for concurrent use.
type ChaChaRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a ChaChaRandom seeded from crypto/rand
func New() *ChaChaRandom {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("random: seeding from crypto/rand failed: " + err.Error())
	}
	return NewSeeded(seed)
}

// NewSeeded creates a ChaChaRandom with a fixed seed, giving a reproducible stream
func NewSeeded(seed [32]byte) *ChaChaRandom {
	return &ChaChaRandom{rng: rand.New(rand.NewChaCha8(seed))}
}

// Intn returns a random int in [0, n), or 0 when n <= 0
func (r *ChaChaRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

// String generates a random string of the given length from the given alphabet
func (r *ChaChaRandom) String(length int, alphabet string) string {
	if length <= 0 || len(alphabet) == 0 {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]byte, length)
	for i := range result {
		result[i] = alphabet[r.rng.IntN(len(alphabet))]
	}
	return string(result)
}
