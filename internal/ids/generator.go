// Package ids allocates short random identifiers for sessions and rooms.
package ids

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcoot/gameserver/internal/dependencies/random"
)

// Alphabet is the character set identifiers are drawn from
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultMaxAttempts bounds the number of candidates tried before giving up
const DefaultMaxAttempts = 100

// ErrExhausted is returned when every attempt produced an id already in use
var ErrExhausted = errors.New("identifier space exhausted")

// ExistsFunc reports whether an id is already taken
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// Generator produces fixed-length ids that are unique according to an ExistsFunc
type Generator struct {
	random      random.Random
	length      int
	maxAttempts int
}

// NewGenerator creates a Generator producing ids of the given length
func NewGenerator(rnd random.Random, length int) *Generator {
	return &Generator{
		random:      rnd,
		length:      length,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Length returns the id length
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a fresh id for which exists reports false
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		id := g.random.String(g.length, Alphabet)
		taken, err := exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check id %q: %w", id, err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrExhausted
}
