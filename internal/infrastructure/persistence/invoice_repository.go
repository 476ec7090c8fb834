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

// GormInvoiceRepository implements procurement.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db          *Database
	outboxSaver shared.OutboxEventSaver
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *Database) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormInvoiceRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*procurement.Invoice, error) {
	var inv procurement.Invoice
	if err := r.db.DB.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// FindByKey finds an invoice by project, PO and invoice number
func (r *GormInvoiceRepository) FindByKey(ctx context.Context, projectNumber, poNumber, invoiceNumber string) (*procurement.Invoice, error) {
	var inv procurement.Invoice
	if err := r.db.DB.WithContext(ctx).
		Where("project_number = ? AND po_number = ? AND invoice_number = ?", projectNumber, poNumber, invoiceNumber).
		First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// SaveWithItems upserts the invoice by its key, saves the items and writes
// all pending events in one transaction
func (r *GormInvoiceRepository) SaveWithItems(ctx context.Context, inv *procurement.Invoice, items []*procurement.DetailItem) error {
	err := r.db.Write(ctx, func(tx *gorm.DB) error {
		var existing procurement.Invoice
		err := tx.Where("project_number = ? AND po_number = ? AND invoice_number = ?",
			inv.ProjectNumber, inv.PONumber, inv.InvoiceNumber).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(inv).Error; err != nil {
				return fmt.Errorf("failed to create invoice: %w", err)
			}
		case err != nil:
			return err
		default:
			inv.ID = existing.ID
			inv.CreatedAt = existing.CreatedAt
			if err := tx.Save(inv).Error; err != nil {
				return fmt.Errorf("failed to update invoice: %w", err)
			}
		}

		for _, item := range items {
			item.InvoiceID = &inv.ID
		}
		if err := saveDetailItems(ctx, tx, r.outboxSaver, items); err != nil {
			return err
		}
		// after the items so handlers see them committed together
		return saveEvents(ctx, r.outboxSaver, tx, inv)
	})
	if err != nil {
		return err
	}
	clearEvents(inv)
	for _, item := range items {
		item.ClearDomainEvents()
	}
	return nil
}
