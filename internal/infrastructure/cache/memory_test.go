package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	fresh, err := s.MarkProcessed(ctx, "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.MarkProcessed(ctx, "a", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	ok, err := s.IsProcessed(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	clock = clock.Add(2 * time.Minute)
	ok, _ = s.IsProcessed(ctx, "a")
	assert.False(t, ok)

	fresh, _ = s.MarkProcessed(ctx, "a", time.Second)
	assert.True(t, fresh)

	clock = clock.Add(time.Hour)
	s.sweep()
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	s := NewMemoryStore()
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestNewIdempotencyStore_FallsBackToMemory(t *testing.T) {
	s := NewIdempotencyStore(nil, zap.NewNop())
	defer s.Close()
	_, ok := s.(*MemoryStore)
	assert.True(t, ok)
}
