package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDetailItemRepository implements procurement.DetailItemRepository using GORM
type GormDetailItemRepository struct {
	db          *Database
	outboxSaver shared.OutboxEventSaver // optional, for transactional outbox pattern
}

// NewGormDetailItemRepository creates a new GormDetailItemRepository
func NewGormDetailItemRepository(db *Database) *GormDetailItemRepository {
	return &GormDetailItemRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormDetailItemRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// FindByID finds a detail item by its ID
func (r *GormDetailItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*procurement.DetailItem, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByPulseID finds a detail item by its board subitem id
func (r *GormDetailItemRepository) FindByPulseID(ctx context.Context, pulseID int64) (*procurement.DetailItem, error) {
	return r.first(ctx, "pulse_id = ?", pulseID)
}

func (r *GormDetailItemRepository) first(ctx context.Context, query string, args ...any) (*procurement.DetailItem, error) {
	var item procurement.DetailItem
	if err := r.db.DB.WithContext(ctx).Where(query, args...).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindByKey returns all items sharing project, PO and detail number
func (r *GormDetailItemRepository) FindByKey(ctx context.Context, projectNumber, poNumber, detailNumber string) ([]*procurement.DetailItem, error) {
	var items []*procurement.DetailItem
	if err := r.db.DB.WithContext(ctx).
		Where("project_number = ? AND po_number = ? AND detail_number = ?", projectNumber, poNumber, detailNumber).
		Order("line_number ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FindByInvoice returns the items linked to an invoice
func (r *GormDetailItemRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*procurement.DetailItem, error) {
	var items []*procurement.DetailItem
	if err := r.db.DB.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("line_number ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Save creates or updates one item and writes its pending events to the outbox
func (r *GormDetailItemRepository) Save(ctx context.Context, item *procurement.DetailItem) error {
	return r.SaveAll(ctx, []*procurement.DetailItem{item})
}

// SaveAll creates or updates items in one transaction
func (r *GormDetailItemRepository) SaveAll(ctx context.Context, items []*procurement.DetailItem) error {
	if len(items) == 0 {
		return nil
	}
	err := r.db.Write(ctx, func(tx *gorm.DB) error {
		return saveDetailItems(ctx, tx, r.outboxSaver, items)
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		item.ClearDomainEvents()
	}
	return nil
}

func saveDetailItems(ctx context.Context, tx *gorm.DB, saver shared.OutboxEventSaver, items []*procurement.DetailItem) error {
	for _, item := range items {
		if err := tx.Save(item).Error; err != nil {
			return fmt.Errorf("failed to save detail item %s: %w", item.Key(), err)
		}
		if err := saveEvents(ctx, saver, tx, item); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByPulseID removes the item mirrored by a board subitem
func (r *GormDetailItemRepository) DeleteByPulseID(ctx context.Context, pulseID int64) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		result := tx.Where("pulse_id = ?", pulseID).Delete(&procurement.DetailItem{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}
