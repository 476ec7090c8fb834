package boardsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/docsync/backend/internal/infrastructure/accounts"
	"github.com/docsync/backend/internal/infrastructure/monday"
	"go.uber.org/zap"
)

const defaultDetailNumber = "01"

// Outcome describes what a webhook did to the local tables
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeCreated   Outcome = "created"
	OutcomeDeleted   Outcome = "deleted"
	OutcomeIgnored   Outcome = "ignored"
)

// Board fetches items that are not mirrored locally yet
type Board interface {
	FetchItem(ctx context.Context, itemID int64) (*monday.Item, error)
}

// Service applies board changes to detail items and purchase orders
type Service struct {
	items    procurement.DetailItemRepository
	orders   procurement.PurchaseOrderRepository
	contacts procurement.ContactRepository
	board    Board
	codes    *accounts.CodeMap
	audit    procurement.AuditLogRepository
	logger   *zap.Logger
}

// NewService creates a board sync service
func NewService(
	items procurement.DetailItemRepository,
	orders procurement.PurchaseOrderRepository,
	contacts procurement.ContactRepository,
	board Board,
	codes *accounts.CodeMap,
	logger *zap.Logger,
) *Service {
	if codes == nil {
		codes = accounts.Default()
	}
	return &Service{
		items:    items,
		orders:   orders,
		contacts: contacts,
		board:    board,
		codes:    codes,
		logger:   logger.With(zap.String("component", "boardsync")),
	}
}

// SetAuditLog records deletions and PO status changes in the audit log
func (s *Service) SetAuditLog(audit procurement.AuditLogRepository) {
	s.audit = audit
}

// ApplySubitemChange copies a changed subitem column to its detail item. A
// subitem without a detail item is fetched and created along with its PO.
func (s *Service) ApplySubitemChange(ctx context.Context, ev *Event) (Outcome, error) {
	if ev == nil {
		return "", ErrMissingEvent
	}
	if ev.PulseID == 0 {
		return "", ErrMissingPulseID
	}
	field, ok := FieldForColumn(ev.ColumnID)
	if !ok {
		s.logger.Debug("Ignoring unmapped subitem column", zap.String("column_id", ev.ColumnID))
		return OutcomeIgnored, nil
	}

	item, err := s.items.FindByPulseID(ctx, int64(ev.PulseID))
	if errors.Is(err, shared.ErrNotFound) {
		return s.createFromBoard(ctx, int64(ev.PulseID), int64(ev.ParentItemID))
	}
	if err != nil {
		return "", fmt.Errorf("failed to load detail item: %w", err)
	}

	value := s.fieldValue(field, ev.Text())
	if !procurement.IsDifferent(item.FieldValue(field), value) {
		return OutcomeUnchanged, nil
	}
	if err := item.ApplyField(field, value); err != nil {
		return "", err
	}
	item.RecordUpdated(field)
	if err := s.items.Save(ctx, item); err != nil {
		return "", fmt.Errorf("failed to save detail item: %w", err)
	}
	s.logger.Info("Applied subitem change",
		zap.Int64("pulse_id", int64(ev.PulseID)),
		zap.String("field", field),
		zap.String("value", value),
	)
	return OutcomeUpdated, nil
}

func (s *Service) fieldValue(field, text string) string {
	switch field {
	case procurement.FieldState:
		return normaliseState(text)
	case procurement.FieldAccountCode:
		if text != "" && !s.codes.Known(text) {
			s.logger.Warn("Unknown account code from board", zap.String("code", text))
		}
	}
	return text
}

// createFromBoard mirrors a subitem that has no detail item yet
func (s *Service) createFromBoard(ctx context.Context, pulseID, parentID int64) (Outcome, error) {
	sub, err := s.board.FetchItem(ctx, pulseID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch subitem %d: %w", pulseID, err)
	}
	if parentID == 0 {
		parentID = sub.ParentID
	}
	if parentID == 0 {
		s.logger.Warn("Ignoring orphan subitem", zap.Int64("pulse_id", pulseID))
		return OutcomeIgnored, nil
	}
	order, err := s.ensurePurchaseOrder(ctx, parentID)
	if err != nil {
		return "", err
	}

	detailNumber := sub.Text(monday.SubitemColumnFileNumber)
	if detailNumber == "" {
		detailNumber = defaultDetailNumber
	}
	item, err := procurement.NewDetailItem(order, detailNumber, 1)
	if err != nil {
		return "", err
	}
	for columnID, cv := range sub.ColumnValues {
		field, ok := FieldForColumn(columnID)
		if !ok || field == procurement.FieldDetailNumber {
			continue
		}
		text := itemColumnText(cv)
		if text == "" {
			continue
		}
		if err := item.ApplyField(field, s.fieldValue(field, text)); err != nil {
			s.logger.Warn("Skipping invalid subitem column",
				zap.Int64("pulse_id", pulseID),
				zap.String("column_id", columnID),
				zap.Error(err),
			)
		}
	}
	if item.Description == "" {
		item.Description = sub.Name
	}
	item.PulseID = &sub.ID
	item.ParentPulseID = &parentID
	item.Recalculate()
	item.RecordCreated()
	if err := s.items.Save(ctx, item); err != nil {
		return "", fmt.Errorf("failed to save detail item: %w", err)
	}
	s.logger.Info("Created detail item from board",
		zap.Int64("pulse_id", pulseID),
		zap.String("key", item.Key()),
	)
	return OutcomeCreated, nil
}

// ensurePurchaseOrder returns the local PO of a board item, creating it from
// the item when missing
func (s *Service) ensurePurchaseOrder(ctx context.Context, pulseID int64) (*procurement.PurchaseOrder, error) {
	order, err := s.orders.FindByPulseID(ctx, pulseID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to load purchase order: %w", err)
	}

	item, err := s.board.FetchItem(ctx, pulseID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PO item %d: %w", pulseID, err)
	}
	order, err = procurement.NewPurchaseOrder(
		item.Text(monday.ColumnProjectID),
		item.Text(monday.ColumnPONumber),
		item.Name,
		string(fileevent.POTypeVendor),
	)
	if err != nil {
		return nil, fmt.Errorf("PO item %d: %w", pulseID, err)
	}
	order.PulseID = &item.ID
	order.Description = item.Text(monday.ColumnDescription)
	order.FolderLink = itemColumnText(item.ColumnValues[monday.ColumnFolderLink])
	order.TaxFormLink = itemColumnText(item.ColumnValues[monday.ColumnTaxLink])
	if status := item.Text(monday.ColumnStatus); status != "" {
		order.State = status
		if status == procurement.POStatusCCPC {
			order.POType = string(fileevent.POTypeCC)
		}
	}
	if contactPulse, ok := linkedPulseID(item.ColumnValues[monday.ColumnContact]); ok && s.contacts != nil {
		if contact, err := s.contacts.FindByPulseID(ctx, contactPulse); err == nil {
			order.ContactID = &contact.ID
		}
	}

	if err := s.orders.EnsureProject(ctx, order.ProjectNumber); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save purchase order: %w", err)
	}
	s.logger.Info("Created purchase order from board",
		zap.Int64("pulse_id", pulseID),
		zap.String("project", order.ProjectNumber),
		zap.String("po", order.PONumber),
	)
	return order, nil
}

// linkedPulseID reads the first linked item of a connect column
func linkedPulseID(cv monday.ColumnValue) (int64, bool) {
	if cv.Value == "" {
		return 0, false
	}
	var v struct {
		LinkedPulseIDs []struct {
			LinkedPulseID json.Number `json:"linkedPulseId"`
		} `json:"linkedPulseIds"`
	}
	if err := json.Unmarshal([]byte(cv.Value), &v); err != nil || len(v.LinkedPulseIDs) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(v.LinkedPulseIDs[0].LinkedPulseID.String(), 10, 64)
	return id, err == nil
}

// DeleteSubitem removes the detail item of a deleted subitem
func (s *Service) DeleteSubitem(ctx context.Context, ev *Event) (Outcome, error) {
	if ev == nil {
		return "", ErrMissingEvent
	}
	if ev.PulseID == 0 {
		return "", ErrMissingPulseID
	}
	err := s.items.DeleteByPulseID(ctx, int64(ev.PulseID))
	if errors.Is(err, shared.ErrNotFound) {
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete detail item: %w", err)
	}
	s.record(ctx, "detail_item", ev.PulseID, "deleted", "")
	s.logger.Info("Deleted detail item", zap.Int64("pulse_id", int64(ev.PulseID)))
	return OutcomeDeleted, nil
}

// ApplyPOStatusChange records a new PO board status on the local PO
func (s *Service) ApplyPOStatusChange(ctx context.Context, ev *Event) (Outcome, error) {
	if ev == nil {
		return "", ErrMissingEvent
	}
	if ev.PulseID == 0 {
		return "", ErrMissingPulseID
	}
	label := ev.StatusLabel()
	if label == "" {
		return "", ErrMissingStatus
	}
	order, err := s.ensurePurchaseOrder(ctx, int64(ev.PulseID))
	if err != nil {
		return "", err
	}
	if order.State == label {
		return OutcomeUnchanged, nil
	}
	previous := order.State
	order.State = label
	order.Touch()
	if err := s.orders.Save(ctx, order); err != nil {
		return "", fmt.Errorf("failed to save purchase order: %w", err)
	}
	s.record(ctx, "purchase_order", ev.PulseID, "status_changed", previous+" -> "+label)
	s.logger.Info("PO status changed",
		zap.String("project", order.ProjectNumber),
		zap.String("po", order.PONumber),
		zap.String("status", label),
	)
	return OutcomeUpdated, nil
}

func (s *Service) record(ctx context.Context, entity string, id ID, action, detail string) {
	if s.audit == nil {
		return
	}
	entry := procurement.NewAuditLog(entity, strconv.FormatInt(int64(id), 10), action, detail)
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("Failed to append audit log", zap.Error(err))
	}
}
