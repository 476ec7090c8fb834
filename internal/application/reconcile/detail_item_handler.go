package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pusher sends local Xero documents to Xero
type Pusher interface {
	SyncBill(ctx context.Context, billID uuid.UUID) error
	SyncSpendMoney(ctx context.Context, sm *procurement.SpendMoney, item *procurement.DetailItem) error
}

// DetailItemHandler reconciles a detail item after it is created or edited
// on the board
type DetailItemHandler struct {
	items    procurement.DetailItemRepository
	invoices procurement.InvoiceRepository
	receipts procurement.ReceiptRepository
	xero     procurement.XeroRepository
	pusher   Pusher
	now      func() time.Time
	logger   *zap.Logger
}

// NewDetailItemHandler creates a new handler for detail item events
func NewDetailItemHandler(
	items procurement.DetailItemRepository,
	invoices procurement.InvoiceRepository,
	receipts procurement.ReceiptRepository,
	xero procurement.XeroRepository,
	logger *zap.Logger,
) *DetailItemHandler {
	return &DetailItemHandler{
		items:    items,
		invoices: invoices,
		receipts: receipts,
		xero:     xero,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "detail_item_handler")),
	}
}

// SetPusher pushes authorized spend money and lines added to synced bills
func (h *DetailItemHandler) SetPusher(p Pusher) {
	h.pusher = p
}

// EventTypes returns the event types this handler is interested in
func (h *DetailItemHandler) EventTypes() []string {
	return []string{procurement.EventTypeDetailItemCreated, procurement.EventTypeDetailItemUpdated}
}

// Handle processes DetailItemCreated and DetailItemUpdated events
func (h *DetailItemHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var id uuid.UUID
	switch ev := event.(type) {
	case *procurement.DetailItemCreatedEvent:
		id = ev.DetailItemID
	case *procurement.DetailItemUpdatedEvent:
		id = ev.DetailItemID
	default:
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	item, err := h.items.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		h.logger.Warn("Detail item not found, skipping", zap.String("detail_item_id", id.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load detail item: %w", err)
	}
	return h.Reconcile(ctx, item)
}

// Reconcile settles the item against its document, books it in Xero when
// ready to pay and flags overdue or mismatched items
func (h *DetailItemHandler) Reconcile(ctx context.Context, item *procurement.DetailItem) error {
	before := item.State
	dirty := []*procurement.DetailItem{item}

	var spend *procurement.SpendMoney
	switch {
	case item.PaymentType.IsCard():
		sm, err := h.settleCard(ctx, item)
		if err != nil {
			return err
		}
		spend = sm
	case item.PaymentType.IsInvoiced():
		siblings, err := h.settleInvoiced(ctx, item)
		if err != nil {
			return err
		}
		dirty = siblings
	}

	procurement.MarkOverdue(item, h.now())
	if item.State.IsFinal() {
		if err := h.flagIssue(ctx, item, spend); err != nil {
			return err
		}
	}

	if err := h.items.SaveAll(ctx, dirty); err != nil {
		return fmt.Errorf("failed to save detail items: %w", err)
	}
	if item.State != before {
		h.logger.Info("Detail item state changed",
			zap.String("key", item.Key()),
			zap.String("from", string(before)),
			zap.String("to", string(item.State)),
		)
	}

	if spend != nil && h.pusher != nil {
		if err := h.pusher.SyncSpendMoney(ctx, spend, item); err != nil {
			h.logger.Warn("Failed to push spend money", zap.String("reference", spend.Reference), zap.Error(err))
		}
	}
	if item.State == procurement.DetailStateRTP && item.PaymentType.IsInvoiced() {
		return h.ensureBillLine(ctx, item)
	}
	return nil
}

// settleCard compares a card item with its receipt and upserts the spend
// money transaction. Items without a receipt are left alone.
func (h *DetailItemHandler) settleCard(ctx context.Context, item *procurement.DetailItem) (*procurement.SpendMoney, error) {
	receipt, err := h.receipts.FindByKey(ctx, item.ProjectNumber, item.PONumber, item.DetailNumber)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt: %w", err)
	}
	procurement.SettleReceipt(item, receipt.Total)

	ref := item.BillReference()
	sm, err := h.xero.FindSpendMoneyByReference(ctx, ref)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		sm = &procurement.SpendMoney{
			BaseEntity:   shared.NewBaseEntity(),
			Reference:    ref,
			DetailItemID: item.ID,
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load spend money: %w", err)
	}
	if sm.State != procurement.SpendMoneyAuthorized {
		sm.Amount = item.SubTotal
		sm.State = procurement.SpendMoneyStateFor(item)
	}
	if err := h.xero.SaveSpendMoney(ctx, sm); err != nil {
		return nil, fmt.Errorf("failed to save spend money: %w", err)
	}

	if receipt.SpendMoneyID == nil || *receipt.SpendMoneyID != sm.ID {
		id := sm.ID
		receipt.SpendMoneyID = &id
		if err := h.receipts.Save(ctx, receipt); err != nil {
			return nil, fmt.Errorf("failed to save receipt: %w", err)
		}
	}
	return sm, nil
}

// settleInvoiced compares the items sharing the item's key with their invoice
func (h *DetailItemHandler) settleInvoiced(ctx context.Context, item *procurement.DetailItem) ([]*procurement.DetailItem, error) {
	inv, err := h.invoices.FindByKey(ctx, item.ProjectNumber, item.PONumber, item.DetailNumber)
	if errors.Is(err, shared.ErrNotFound) {
		return []*procurement.DetailItem{item}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}

	siblings, err := h.items.FindByKey(ctx, item.ProjectNumber, item.PONumber, item.DetailNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load detail items: %w", err)
	}
	group := []*procurement.DetailItem{item}
	for _, s := range siblings {
		if s.ID != item.ID {
			group = append(group, s)
		}
	}
	procurement.SettleAgainstTotal(group, inv.Total)
	return group, nil
}

// flagIssue moves a final item to ISSUE when its booked amount differs
func (h *DetailItemHandler) flagIssue(ctx context.Context, item *procurement.DetailItem, spend *procurement.SpendMoney) error {
	if item.PaymentType.IsCard() {
		if spend == nil {
			sm, err := h.xero.FindSpendMoneyByReference(ctx, item.BillReference())
			if errors.Is(err, shared.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to load spend money: %w", err)
			}
			spend = sm
		}
		procurement.FlagIssue(item, spend.Amount)
		return nil
	}

	line, err := h.xero.FindLineItemByDetailItem(ctx, item.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load bill line: %w", err)
	}
	procurement.FlagIssue(item, line.LineAmount)
	return nil
}

// ensureBillLine creates the bill for the item's reference when missing and
// adds the item's line to it. The new bill raises XeroBillCreated.
func (h *DetailItemHandler) ensureBillLine(ctx context.Context, item *procurement.DetailItem) error {
	bill, err := h.xero.FindBillByReference(ctx, item.BillReference())
	created := false
	switch {
	case errors.Is(err, shared.ErrNotFound):
		bill = procurement.NewXeroBill(item)
		created = true
	case err != nil:
		return fmt.Errorf("failed to load bill: %w", err)
	}

	line, err := h.xero.FindLineItemByDetailItem(ctx, item.ID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		li := procurement.NewBillLineItem(bill.ID, item)
		line = &li
	case err != nil:
		return fmt.Errorf("failed to load bill line: %w", err)
	default:
		fresh := procurement.NewBillLineItem(bill.ID, item)
		if line.XeroBillID == bill.ID && !lineChanged(line, &fresh) {
			return nil
		}
		fresh.XeroID = line.XeroID
		line = &fresh
	}

	if created {
		if err := h.xero.SaveBillWithLine(ctx, bill, line); err != nil {
			return fmt.Errorf("failed to save bill: %w", err)
		}
		h.logger.Info("Bill created", zap.String("reference", bill.Reference))
		return nil
	}
	if err := h.xero.SaveLineItem(ctx, line); err != nil {
		return fmt.Errorf("failed to save bill line: %w", err)
	}

	h.logger.Info("Bill line saved", zap.String("reference", bill.Reference), zap.String("key", item.Key()))
	if bill.XeroID != "" && h.pusher != nil {
		if err := h.pusher.SyncBill(ctx, bill.ID); err != nil {
			return fmt.Errorf("failed to update bill %s: %w", bill.Reference, err)
		}
	}
	return nil
}

func lineChanged(a, b *procurement.XeroBillLineItem) bool {
	return a.Description != b.Description ||
		!a.Quantity.Equal(b.Quantity) ||
		!a.UnitAmount.Equal(b.UnitAmount) ||
		!a.LineAmount.Equal(b.LineAmount) ||
		a.AccountCode != b.AccountCode
}

var _ shared.EventHandler = (*DetailItemHandler)(nil)
