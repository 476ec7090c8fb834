package procurement

import (
	"strings"

	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Board status labels used on the PO board
const (
	POStatusCCPC              = "CC / PC"
	POStatusApproved          = "Approved"
	POStatusTaxFormNeeded     = "Tax Form Needed"
	POStatusNeedsVerification = "Needs Verification"
)

// Project groups the POs of one production
type Project struct {
	shared.BaseEntity
	ProjectNumber string          `gorm:"type:varchar(32);not null;uniqueIndex"`
	Name          string          `gorm:"type:varchar(100);not null"`
	Status        ProjectStatus   `gorm:"type:varchar(16);not null;default:Active"`
	TotalSpent    decimal.Decimal `gorm:"type:decimal(15,2);default:0"`
}

// TableName returns the table name for GORM
func (Project) TableName() string {
	return "project"
}

// NewProject creates an active project named after its number
func NewProject(projectNumber string) *Project {
	return &Project{
		BaseEntity:    shared.NewBaseEntity(),
		ProjectNumber: projectNumber,
		Name:          projectNumber,
		Status:        ProjectStatusActive,
		TotalSpent:    decimal.Zero,
	}
}

// PurchaseOrder is a PO folder in storage and an item on the PO board
type PurchaseOrder struct {
	shared.BaseEntity
	ProjectNumber string          `gorm:"type:varchar(32);not null;uniqueIndex:uq_purchase_order_project_po"`
	PONumber      string          `gorm:"column:po_number;type:varchar(32);not null;uniqueIndex:uq_purchase_order_project_po"`
	VendorName    string          `gorm:"type:varchar(255)"`
	Description   string          `gorm:"type:varchar(255)"`
	POType        string          `gorm:"column:po_type;type:varchar(45)"`
	State         string          `gorm:"type:varchar(45);not null;default:PENDING"`
	AmountTotal   decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0"`
	PulseID       *int64          `gorm:"index"`
	FolderLink    string          `gorm:"type:varchar(1024)"`
	TaxFormLink   string          `gorm:"type:varchar(1024)"`
	ContactID     *uuid.UUID      `gorm:"type:char(36)"`
}

// TableName returns the table name for GORM
func (PurchaseOrder) TableName() string {
	return "purchase_order"
}

// NewPurchaseOrder creates a PO for a project
func NewPurchaseOrder(projectNumber, poNumber, vendorName, poType string) (*PurchaseOrder, error) {
	if projectNumber == "" || poNumber == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "project and PO number are required")
	}
	return &PurchaseOrder{
		BaseEntity:    shared.NewBaseEntity(),
		ProjectNumber: projectNumber,
		PONumber:      poNumber,
		VendorName:    strings.TrimSpace(vendorName),
		POType:        poType,
		State:         "PENDING",
		AmountTotal:   decimal.Zero,
	}, nil
}

// DefaultPaymentType maps the PO type to the payment type of its detail items
func (po *PurchaseOrder) DefaultPaymentType() PaymentType {
	if strings.EqualFold(po.POType, "cc") {
		return PaymentTypeCC
	}
	return PaymentTypeInvoice
}

// DropboxFolder records the share link of a PO folder
type DropboxFolder struct {
	shared.BaseEntity
	ProjectNumber string `gorm:"type:varchar(32);not null;index:idx_dropbox_folder_po"`
	PONumber      string `gorm:"column:po_number;type:varchar(32);index:idx_dropbox_folder_po"`
	Path          string `gorm:"type:varchar(512);not null;uniqueIndex"`
	ShareLink     string `gorm:"type:varchar(1024)"`
}

// TableName returns the table name for GORM
func (DropboxFolder) TableName() string {
	return "dropbox_folder"
}
