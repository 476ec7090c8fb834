package persistence

import (
	"context"
	"errors"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormXeroRepository implements procurement.XeroRepository using GORM
type GormXeroRepository struct {
	db          *Database
	outboxSaver shared.OutboxEventSaver
}

// NewGormXeroRepository creates a new GormXeroRepository
func NewGormXeroRepository(db *Database) *GormXeroRepository {
	return &GormXeroRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormXeroRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// FindBillByID finds a bill with its line items
func (r *GormXeroRepository) FindBillByID(ctx context.Context, id uuid.UUID) (*procurement.XeroBill, error) {
	return r.findBill(ctx, "id = ?", id)
}

// FindBillByReference finds a bill with its line items by reference
func (r *GormXeroRepository) FindBillByReference(ctx context.Context, reference string) (*procurement.XeroBill, error) {
	return r.findBill(ctx, "xero_reference_number = ?", reference)
}

func (r *GormXeroRepository) findBill(ctx context.Context, query string, args ...any) (*procurement.XeroBill, error) {
	var bill procurement.XeroBill
	if err := r.db.DB.WithContext(ctx).
		Preload("LineItems").
		Where(query, args...).
		First(&bill).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &bill, nil
}

// SaveBill saves the bill header and writes its pending events to the outbox.
// Line items are saved separately with SaveLineItem.
func (r *GormXeroRepository) SaveBill(ctx context.Context, bill *procurement.XeroBill) error {
	err := r.db.Write(ctx, func(tx *gorm.DB) error {
		if err := tx.Omit("LineItems").Save(bill).Error; err != nil {
			return err
		}
		return saveEvents(ctx, r.outboxSaver, tx, bill)
	})
	if err != nil {
		return err
	}
	clearEvents(bill)
	return nil
}

// SaveBillWithLine saves a bill header, its outbox events and one line in a
// single transaction
func (r *GormXeroRepository) SaveBillWithLine(ctx context.Context, bill *procurement.XeroBill, line *procurement.XeroBillLineItem) error {
	err := r.db.Write(ctx, func(tx *gorm.DB) error {
		if err := tx.Omit("LineItems").Save(bill).Error; err != nil {
			return err
		}
		if err := saveLineItem(tx, line); err != nil {
			return err
		}
		return saveEvents(ctx, r.outboxSaver, tx, bill)
	})
	if err != nil {
		return err
	}
	clearEvents(bill)
	return nil
}

// FindLineItemByDetailItem finds the bill line of a detail item
func (r *GormXeroRepository) FindLineItemByDetailItem(ctx context.Context, detailItemID uuid.UUID) (*procurement.XeroBillLineItem, error) {
	var li procurement.XeroBillLineItem
	if err := r.db.DB.WithContext(ctx).First(&li, "detail_item_id = ?", detailItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &li, nil
}

// SaveLineItem upserts by detail_item_id
func (r *GormXeroRepository) SaveLineItem(ctx context.Context, item *procurement.XeroBillLineItem) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		return saveLineItem(tx, item)
	})
}

func saveLineItem(tx *gorm.DB, item *procurement.XeroBillLineItem) error {
	var existing procurement.XeroBillLineItem
	err := tx.Where("detail_item_id = ?", item.DetailItemID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(item).Error
	}
	if err != nil {
		return err
	}
	item.ID = existing.ID
	item.CreatedAt = existing.CreatedAt
	if item.XeroID == "" {
		item.XeroID = existing.XeroID
	}
	return tx.Save(item).Error
}

// FindSpendMoneyByReference finds a spend money transaction by reference
func (r *GormXeroRepository) FindSpendMoneyByReference(ctx context.Context, reference string) (*procurement.SpendMoney, error) {
	var sm procurement.SpendMoney
	if err := r.db.DB.WithContext(ctx).
		First(&sm, "xero_spend_money_reference_number = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &sm, nil
}

// SaveSpendMoney upserts by reference
func (r *GormXeroRepository) SaveSpendMoney(ctx context.Context, sm *procurement.SpendMoney) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		var existing procurement.SpendMoney
		err := tx.Where("xero_spend_money_reference_number = ?", sm.Reference).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(sm).Error
		}
		if err != nil {
			return err
		}
		sm.ID = existing.ID
		sm.CreatedAt = existing.CreatedAt
		if sm.XeroID == "" {
			sm.XeroID = existing.XeroID
			sm.XeroLink = existing.XeroLink
		}
		return tx.Save(sm).Error
	})
}
