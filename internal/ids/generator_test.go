package ids

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/gameserver/internal/dependencies/mocks"
	"github.com/mcoot/gameserver/internal/dependencies/random"
)

func never(context.Context, string) (bool, error) { return false, nil }

func TestGenerateUsesAlphabetAndLength(t *testing.T) {
	g := NewGenerator(random.New(), 8)

	id, err := g.Generate(context.Background(), never)
	require.NoError(t, err)
	assert.Len(t, id, 8)
	assert.Empty(t, strings.Trim(id, Alphabet))
}

func TestGenerateSkipsTakenIDs(t *testing.T) {
	rnd := mocks.NewMockRandom()
	rnd.QueueString("taken1", "taken2", "fresh1")
	g := NewGenerator(rnd, 6)

	taken := map[string]bool{"taken1": true, "taken2": true}
	id, err := g.Generate(context.Background(), func(_ context.Context, id string) (bool, error) {
		return taken[id], nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh1", id)
}

func TestGenerateExhausted(t *testing.T) {
	calls := 0
	g := NewGenerator(random.New(), 4)

	_, err := g.Generate(context.Background(), func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestGeneratePropagatesLookupError(t *testing.T) {
	boom := errors.New("boom")
	g := NewGenerator(random.New(), 4)

	_, err := g.Generate(context.Background(), func(context.Context, string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestGenerateStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGenerator(random.New(), 4).Generate(ctx, never)
	assert.ErrorIs(t, err, context.Canceled)
}
