package event

import (
	"context"
	"sync/atomic"

	"github.com/docsync/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// HandlerStats counts what an idempotent handler did with its deliveries
type HandlerStats struct {
	Handled    atomic.Int64
	Duplicates atomic.Int64
	Failed     atomic.Int64
}

// IdempotentHandler runs the wrapped handler at most once per event id.
// A failed event is not unmarked: redelivery happens after the key expires.
type IdempotentHandler struct {
	next   shared.EventHandler
	store  shared.IdempotencyStore
	cfg    shared.IdempotencyConfig
	logger *zap.Logger
	stats  *HandlerStats
}

// NewIdempotentHandler wraps next with an idempotency check
func NewIdempotentHandler(next shared.EventHandler, store shared.IdempotencyStore, cfg shared.IdempotencyConfig, logger *zap.Logger) *IdempotentHandler {
	return &IdempotentHandler{
		next:   next,
		store:  store,
		cfg:    cfg,
		logger: logger,
		stats:  &HandlerStats{},
	}
}

// EventTypes delegates to the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.next.EventTypes()
}

// Handle skips events whose id was already recorded
func (h *IdempotentHandler) Handle(ctx context.Context, ev shared.DomainEvent) error {
	if !h.cfg.Enabled || h.store == nil {
		return h.next.Handle(ctx, ev)
	}

	key := ev.EventType() + ":" + ev.EventID().String()
	fresh, err := h.store.MarkProcessed(ctx, key, h.cfg.TTL)
	switch {
	case err != nil:
		h.logger.Warn("idempotency check failed, handling anyway",
			zap.String("event_id", ev.EventID().String()), zap.Error(err))
	case !fresh:
		h.stats.Duplicates.Add(1)
		h.logger.Debug("duplicate event skipped",
			zap.String("event_id", ev.EventID().String()),
			zap.String("event_type", ev.EventType()))
		return nil
	}

	if err := h.next.Handle(ctx, ev); err != nil {
		h.stats.Failed.Add(1)
		return err
	}
	h.stats.Handled.Add(1)
	return nil
}

// Stats returns the handler counters
func (h *IdempotentHandler) Stats() *HandlerStats {
	return h.stats
}

// SubscribeIdempotent wraps each handler and subscribes it to bus
func SubscribeIdempotent(bus shared.EventSubscriber, store shared.IdempotencyStore, cfg shared.IdempotencyConfig, logger *zap.Logger, handlers ...shared.EventHandler) {
	for _, h := range handlers {
		bus.Subscribe(NewIdempotentHandler(h, store, cfg, logger))
	}
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
