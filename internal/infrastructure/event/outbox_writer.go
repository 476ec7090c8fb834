package event

import (
	"context"
	"fmt"

	"github.com/docsync/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxWriter stores domain events in the outbox table inside the caller's transaction
type OutboxWriter struct {
	serializer *EventSerializer
	maxRetries int
}

// NewOutboxWriter creates a new outbox writer
func NewOutboxWriter(serializer *EventSerializer) *OutboxWriter {
	return &OutboxWriter{serializer: serializer}
}

// SetMaxRetries overrides the delivery attempts given to new entries
func (w *OutboxWriter) SetMaxRetries(n int) {
	w.maxRetries = n
}

// WriteTx serializes events and inserts them with tx
func (w *OutboxWriter) WriteTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, ev := range events {
		payload, err := w.serializer.Serialize(ev)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", ev.EventType(), err)
		}
		entry := shared.NewOutboxEntry(ev, payload)
		if w.maxRetries > 0 {
			entry.MaxRetries = w.maxRetries
		}
		entries = append(entries, entry)
	}
	return NewGormOutboxStore(tx).Save(ctx, entries...)
}

// SaveEvents implements shared.OutboxEventSaver; txProvider must be a *gorm.DB
func (w *OutboxWriter) SaveEvents(ctx context.Context, txProvider any, events ...shared.DomainEvent) error {
	tx, ok := txProvider.(*gorm.DB)
	if !ok {
		return fmt.Errorf("txProvider must be a *gorm.DB, got %T", txProvider)
	}
	return w.WriteTx(ctx, tx, events...)
}

var _ shared.OutboxEventSaver = (*OutboxWriter)(nil)
