package procurement

import (
	"time"

	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice is a vendor invoice document extracted from a PO folder
type Invoice struct {
	shared.BaseAggregateRoot
	ProjectNumber   string          `gorm:"type:varchar(32);not null;uniqueIndex:uq_invoice_key"`
	PONumber        string          `gorm:"column:po_number;type:varchar(32);not null;uniqueIndex:uq_invoice_key"`
	InvoiceNumber   string          `gorm:"type:varchar(16);not null;uniqueIndex:uq_invoice_key"`
	TransactionDate *time.Time
	DueDate         *time.Time
	Term            int
	Total           decimal.Decimal `gorm:"type:decimal(15,2);default:0"`
	Status          InvoiceStatus   `gorm:"type:varchar(16);not null;default:PENDING"`
	FileLink        string          `gorm:"type:varchar(1024)"`
}

// TableName returns the table name for GORM
func (Invoice) TableName() string {
	return "invoice"
}

// NewInvoice creates a pending invoice and raises InvoiceSaved
func NewInvoice(projectNumber, poNumber, invoiceNumber string, total decimal.Decimal) (*Invoice, error) {
	if projectNumber == "" || poNumber == "" || invoiceNumber == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "project, PO and invoice number are required")
	}
	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProjectNumber:     projectNumber,
		PONumber:          poNumber,
		InvoiceNumber:     invoiceNumber,
		Total:             total,
		Status:            InvoiceStatusPending,
	}
	inv.AddDomainEvent(NewInvoiceSavedEvent(inv))
	return inv, nil
}

// Receipt is a card purchase receipt extracted from a CC / PC folder
type Receipt struct {
	shared.BaseEntity
	ProjectNumber string          `gorm:"type:varchar(32);not null;index:idx_receipt_key"`
	PONumber      string          `gorm:"column:po_number;type:varchar(32);not null;index:idx_receipt_key"`
	DetailNumber  string          `gorm:"type:varchar(16);not null;index:idx_receipt_key"`
	LineNumber    int             `gorm:"not null;default:1"`
	Total         decimal.Decimal `gorm:"type:decimal(15,2);default:0"`
	Description   string          `gorm:"column:receipt_description;type:varchar(255)"`
	PurchaseDate  *time.Time
	FileLink      string     `gorm:"type:varchar(1024);not null"`
	SpendMoneyID  *uuid.UUID `gorm:"type:char(36)"`
}

// TableName returns the table name for GORM
func (Receipt) TableName() string {
	return "receipt"
}
