package event

import (
	"context"
	"sync"
	"time"

	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RelayConfig configures the outbox relay
type RelayConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultRelayConfig returns the default relay configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:        50,
		PollInterval:     2 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxRelay moves outbox entries onto the event bus
type OutboxRelay struct {
	store      shared.OutboxRepository
	bus        shared.EventPublisher
	serializer *EventSerializer
	cfg        RelayConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxRelay creates a new relay
func NewOutboxRelay(store shared.OutboxRepository, bus shared.EventPublisher, serializer *EventSerializer, cfg RelayConfig, logger *zap.Logger) *OutboxRelay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRelayConfig().BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultRelayConfig().PollInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRelayConfig().CleanupInterval
	}
	return &OutboxRelay{store: store, bus: bus, serializer: serializer, cfg: cfg, logger: logger}
}

// Start launches the relay loops
func (r *OutboxRelay) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.every(ctx, r.cfg.PollInterval, r.RunOnce)
	if r.cfg.CleanupEnabled {
		r.wg.Add(1)
		go r.every(ctx, r.cfg.CleanupInterval, r.cleanup)
	}

	r.logger.Info("outbox relay started",
		zap.Int("batch_size", r.cfg.BatchSize),
		zap.Duration("poll_interval", r.cfg.PollInterval))
	return nil
}

// Stop cancels the loops and waits for them, bounded by ctx
func (r *OutboxRelay) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("outbox relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *OutboxRelay) every(ctx context.Context, d time.Duration, fn func(context.Context)) {
	defer r.wg.Done()
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(ctx)
		}
	}
}

// RunOnce delivers one batch of pending entries and one batch of due retries
func (r *OutboxRelay) RunOnce(ctx context.Context) {
	pending, err := r.store.FindPending(ctx, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("failed to load pending outbox entries", zap.Error(err))
		return
	}
	r.deliver(ctx, pending)

	due, err := r.store.FindRetryable(ctx, time.Now(), r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("failed to load retryable outbox entries", zap.Error(err))
		return
	}
	r.deliver(ctx, due)
}

func (r *OutboxRelay) deliver(ctx context.Context, entries []*shared.OutboxEntry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	claimed, err := r.store.MarkProcessing(ctx, ids)
	if err != nil {
		r.logger.Error("failed to claim outbox entries", zap.Error(err))
		return
	}
	for _, e := range claimed {
		r.deliverOne(ctx, e)
	}
}

func (r *OutboxRelay) deliverOne(ctx context.Context, entry *shared.OutboxEntry) {
	log := r.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType))

	ev, err := r.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = r.bus.Publish(ctx, ev)
	}
	if err != nil {
		entry.MarkFailed(err.Error())
		if entry.IsDead() {
			log.Warn("outbox entry is dead",
				zap.String("aggregate_type", entry.AggregateType),
				zap.String("aggregate_id", entry.AggregateID.String()),
				zap.Int("retry_count", entry.RetryCount),
				zap.String("last_error", entry.LastError))
		} else {
			log.Error("outbox delivery failed", zap.Int("retry_count", entry.RetryCount), zap.Error(err))
		}
	} else {
		entry.MarkSent()
	}

	if err := r.store.Update(ctx, entry); err != nil {
		log.Error("failed to update outbox entry", zap.Error(err))
	}
}

func (r *OutboxRelay) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.CleanupRetention)
	n, err := r.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		r.logger.Error("outbox cleanup failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("outbox cleanup", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
}
