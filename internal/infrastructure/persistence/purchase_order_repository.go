package persistence

import (
	"context"
	"errors"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormPurchaseOrderRepository implements procurement.PurchaseOrderRepository using GORM
type GormPurchaseOrderRepository struct {
	db *Database
}

// NewGormPurchaseOrderRepository creates a new GormPurchaseOrderRepository
func NewGormPurchaseOrderRepository(db *Database) *GormPurchaseOrderRepository {
	return &GormPurchaseOrderRepository{db: db}
}

// FindByProjectAndPO finds a PO by its natural key
func (r *GormPurchaseOrderRepository) FindByProjectAndPO(ctx context.Context, projectNumber, poNumber string) (*procurement.PurchaseOrder, error) {
	var po procurement.PurchaseOrder
	if err := r.db.DB.WithContext(ctx).
		Where("project_number = ? AND po_number = ?", projectNumber, poNumber).
		First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

// FindByPulseID finds a PO by its board item id
func (r *GormPurchaseOrderRepository) FindByPulseID(ctx context.Context, pulseID int64) (*procurement.PurchaseOrder, error) {
	var po procurement.PurchaseOrder
	if err := r.db.DB.WithContext(ctx).First(&po, "pulse_id = ?", pulseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

// Save upserts by (project_number, po_number). Empty fields on po do not
// overwrite stored values.
func (r *GormPurchaseOrderRepository) Save(ctx context.Context, po *procurement.PurchaseOrder) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		var existing procurement.PurchaseOrder
		err := tx.Where("project_number = ? AND po_number = ?", po.ProjectNumber, po.PONumber).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(po).Error
		}
		if err != nil {
			return err
		}
		mergePurchaseOrder(po, &existing)
		return tx.Save(po).Error
	})
}

func mergePurchaseOrder(po, existing *procurement.PurchaseOrder) {
	po.ID = existing.ID
	po.CreatedAt = existing.CreatedAt
	if po.PulseID == nil {
		po.PulseID = existing.PulseID
	}
	if po.ContactID == nil {
		po.ContactID = existing.ContactID
	}
	if po.FolderLink == "" {
		po.FolderLink = existing.FolderLink
	}
	if po.TaxFormLink == "" {
		po.TaxFormLink = existing.TaxFormLink
	}
	if po.Description == "" {
		po.Description = existing.Description
	}
	if po.VendorName == "" {
		po.VendorName = existing.VendorName
	}
	if po.POType == "" {
		po.POType = existing.POType
	}
	if po.AmountTotal.IsZero() {
		po.AmountTotal = existing.AmountTotal
	}
}

// SaveFolder upserts a storage folder by path
func (r *GormPurchaseOrderRepository) SaveFolder(ctx context.Context, folder *procurement.DropboxFolder) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		var existing procurement.DropboxFolder
		err := tx.Where("path = ?", folder.Path).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(folder).Error
		}
		if err != nil {
			return err
		}
		folder.ID = existing.ID
		folder.CreatedAt = existing.CreatedAt
		return tx.Save(folder).Error
	})
}

// EnsureProject creates the project row when missing
func (r *GormPurchaseOrderRepository) EnsureProject(ctx context.Context, projectNumber string) error {
	if projectNumber == "" {
		return shared.NewDomainError("INVALID_INPUT", "project number cannot be empty")
	}
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&procurement.Project{}).Where("project_number = ?", projectNumber).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(procurement.NewProject(projectNumber)).Error
	})
}
