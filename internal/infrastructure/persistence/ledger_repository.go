package persistence

import (
	"context"
	"errors"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTaxFormRepository implements procurement.TaxFormRepository using GORM
type GormTaxFormRepository struct {
	db *Database
}

// NewGormTaxFormRepository creates a new GormTaxFormRepository
func NewGormTaxFormRepository(db *Database) *GormTaxFormRepository {
	return &GormTaxFormRepository{db: db}
}

// Save upserts by file link
func (r *GormTaxFormRepository) Save(ctx context.Context, form *procurement.TaxForm) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		var existing procurement.TaxForm
		err := tx.Where("file_link = ?", form.FileLink).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(form).Error
		}
		if err != nil {
			return err
		}
		form.ID = existing.ID
		form.CreatedAt = existing.CreatedAt
		return tx.Save(form).Error
	})
}

// GormAccountCodeRepository implements procurement.AccountCodeRepository using GORM
type GormAccountCodeRepository struct {
	db *Database
}

// NewGormAccountCodeRepository creates a new GormAccountCodeRepository
func NewGormAccountCodeRepository(db *Database) *GormAccountCodeRepository {
	return &GormAccountCodeRepository{db: db}
}

// UpsertTaxAccount creates or updates a tax account by tax code
func (r *GormAccountCodeRepository) UpsertTaxAccount(ctx context.Context, account *procurement.TaxAccount) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		var existing procurement.TaxAccount
		err := tx.Where("tax_code = ?", account.TaxCode).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(account).Error
		}
		if err != nil {
			return err
		}
		account.ID = existing.ID
		account.CreatedAt = existing.CreatedAt
		return tx.Save(account).Error
	})
}

// UpsertAccountCode creates or updates an account code by code
func (r *GormAccountCodeRepository) UpsertAccountCode(ctx context.Context, code *procurement.AccountCode) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		var existing procurement.AccountCode
		err := tx.Where("code = ?", code.Code).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(code).Error
		}
		if err != nil {
			return err
		}
		code.ID = existing.ID
		code.CreatedAt = existing.CreatedAt
		return tx.Save(code).Error
	})
}

// GormPOLogRepository implements procurement.POLogRepository using GORM
type GormPOLogRepository struct {
	db *Database
}

// NewGormPOLogRepository creates a new GormPOLogRepository
func NewGormPOLogRepository(db *Database) *GormPOLogRepository {
	return &GormPOLogRepository{db: db}
}

// FindByID finds an import run by its ID
func (r *GormPOLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*procurement.POLog, error) {
	var log procurement.POLog
	if err := r.db.DB.WithContext(ctx).First(&log, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

// Save creates or updates an import run
func (r *GormPOLogRepository) Save(ctx context.Context, log *procurement.POLog) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		return tx.Save(log).Error
	})
}

// GormAuditLogRepository implements procurement.AuditLogRepository using GORM
type GormAuditLogRepository struct {
	db *Database
}

// NewGormAuditLogRepository creates a new GormAuditLogRepository
func NewGormAuditLogRepository(db *Database) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

// Append inserts an audit record
func (r *GormAuditLogRepository) Append(ctx context.Context, entry *procurement.AuditLog) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		return tx.Create(entry).Error
	})
}
