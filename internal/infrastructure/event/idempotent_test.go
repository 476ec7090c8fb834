package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/docsync/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mapStore struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (s *mapStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *mapStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[key], nil
}

func (s *mapStore) Close() error { return nil }

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	cfg := shared.DefaultIdempotencyConfig()

	t.Run("handles each event once", func(t *testing.T) {
		inner := &recordingHandler{types: []string{"A"}}
		h := NewIdempotentHandler(inner, &mapStore{}, cfg, zap.NewNop())
		ev := newTestEvent("A")

		require.NoError(t, h.Handle(ctx, ev))
		require.NoError(t, h.Handle(ctx, ev))
		require.NoError(t, h.Handle(ctx, newTestEvent("A")))

		assert.Equal(t, 2, inner.count())
		assert.Equal(t, int64(2), h.Stats().Handled.Load())
		assert.Equal(t, int64(1), h.Stats().Duplicates.Load())
		assert.Equal(t, []string{"A"}, h.EventTypes())
	})

	t.Run("store errors do not drop events", func(t *testing.T) {
		inner := &recordingHandler{}
		h := NewIdempotentHandler(inner, &mapStore{err: errors.New("redis down")}, cfg, zap.NewNop())
		require.NoError(t, h.Handle(ctx, newTestEvent("A")))
		assert.Equal(t, 1, inner.count())
	})

	t.Run("handler error is returned and counted", func(t *testing.T) {
		inner := &recordingHandler{err: errors.New("xero down")}
		h := NewIdempotentHandler(inner, &mapStore{}, cfg, zap.NewNop())
		assert.Error(t, h.Handle(ctx, newTestEvent("A")))
		assert.Equal(t, int64(1), h.Stats().Failed.Load())
	})

	t.Run("disabled passes through", func(t *testing.T) {
		inner := &recordingHandler{}
		h := NewIdempotentHandler(inner, &mapStore{}, shared.IdempotencyConfig{Enabled: false}, zap.NewNop())
		ev := newTestEvent("A")
		require.NoError(t, h.Handle(ctx, ev))
		require.NoError(t, h.Handle(ctx, ev))
		assert.Equal(t, 2, inner.count())
	})
}

func TestSubscribeIdempotent(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	inner := &recordingHandler{types: []string{"A"}}
	SubscribeIdempotent(bus, &mapStore{}, shared.DefaultIdempotencyConfig(), zap.NewNop(), inner)

	ev := newTestEvent("A")
	require.NoError(t, bus.Publish(context.Background(), ev, ev))
	assert.Equal(t, 1, inner.count())
}
