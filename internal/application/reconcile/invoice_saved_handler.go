// Package reconcile keeps detail item states in line with invoices, receipts
// and Xero documents. Its handlers run off the outbox through the event bus.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceSavedHandler links detail items to a saved invoice and settles them
// against its total
type InvoiceSavedHandler struct {
	invoices procurement.InvoiceRepository
	items    procurement.DetailItemRepository
	logger   *zap.Logger
}

// NewInvoiceSavedHandler creates a new handler for invoice saved events
func NewInvoiceSavedHandler(
	invoices procurement.InvoiceRepository,
	items procurement.DetailItemRepository,
	logger *zap.Logger,
) *InvoiceSavedHandler {
	return &InvoiceSavedHandler{
		invoices: invoices,
		items:    items,
		logger:   logger.With(zap.String("component", "invoice_saved_handler")),
	}
}

// EventTypes returns the event types this handler is interested in
func (h *InvoiceSavedHandler) EventTypes() []string {
	return []string{procurement.EventTypeInvoiceSaved}
}

// Handle processes an InvoiceSavedEvent
func (h *InvoiceSavedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	ev, ok := event.(*procurement.InvoiceSavedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			procurement.EventTypeInvoiceSaved, event.EventType())
	}

	inv, err := h.invoices.FindByID(ctx, ev.InvoiceID)
	if errors.Is(err, shared.ErrNotFound) {
		h.logger.Warn("Invoice not found, skipping", zap.String("invoice_id", ev.InvoiceID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load invoice: %w", err)
	}

	candidates, err := h.items.FindByKey(ctx, inv.ProjectNumber, inv.PONumber, inv.InvoiceNumber)
	if err != nil {
		return fmt.Errorf("failed to load detail items: %w", err)
	}
	before := states(candidates)
	linked := procurement.LinkInvoice(inv, candidates)
	if len(linked) == 0 {
		h.logger.Info("No detail items for invoice",
			zap.String("project", inv.ProjectNumber),
			zap.String("po", inv.PONumber),
			zap.String("invoice", inv.InvoiceNumber),
		)
		return nil
	}
	procurement.SettleInvoice(inv, linked)

	// moved items are picked up again by DetailItemHandler
	for _, it := range linked {
		if before[it.ID] != it.State {
			it.RecordUpdated(procurement.FieldState)
		}
	}
	if err := h.items.SaveAll(ctx, linked); err != nil {
		return fmt.Errorf("failed to save detail items: %w", err)
	}

	h.logger.Info("Invoice reconciled",
		zap.String("project", inv.ProjectNumber),
		zap.String("po", inv.PONumber),
		zap.String("invoice", inv.InvoiceNumber),
		zap.Int("items", len(linked)),
		zap.String("total", inv.Total.String()),
	)
	return nil
}

func states(items []*procurement.DetailItem) map[uuid.UUID]procurement.DetailState {
	out := make(map[uuid.UUID]procurement.DetailState, len(items))
	for _, it := range items {
		out[it.ID] = it.State
	}
	return out
}

var _ shared.EventHandler = (*InvoiceSavedHandler)(nil)
