package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormReceiptRepository implements procurement.ReceiptRepository using GORM
type GormReceiptRepository struct {
	db          *Database
	outboxSaver shared.OutboxEventSaver
}

// NewGormReceiptRepository creates a new GormReceiptRepository
func NewGormReceiptRepository(db *Database) *GormReceiptRepository {
	return &GormReceiptRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormReceiptRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// FindByKey finds the latest receipt for project, PO and detail number
func (r *GormReceiptRepository) FindByKey(ctx context.Context, projectNumber, poNumber, detailNumber string) (*procurement.Receipt, error) {
	var rc procurement.Receipt
	if err := r.db.DB.WithContext(ctx).
		Where("project_number = ? AND po_number = ? AND detail_number = ?", projectNumber, poNumber, detailNumber).
		Order("created_at DESC").
		First(&rc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rc, nil
}

// Save creates or updates a receipt
func (r *GormReceiptRepository) Save(ctx context.Context, receipt *procurement.Receipt) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		return tx.Save(receipt).Error
	})
}

// SaveWithItem saves the receipt and its card detail item in one transaction
func (r *GormReceiptRepository) SaveWithItem(ctx context.Context, receipt *procurement.Receipt, item *procurement.DetailItem) error {
	err := r.db.Write(ctx, func(tx *gorm.DB) error {
		if err := tx.Save(receipt).Error; err != nil {
			return fmt.Errorf("failed to save receipt: %w", err)
		}
		item.ReceiptID = &receipt.ID
		return saveDetailItems(ctx, tx, r.outboxSaver, []*procurement.DetailItem{item})
	})
	if err != nil {
		return err
	}
	item.ClearDomainEvents()
	return nil
}
