package procurement

import (
	"context"

	"github.com/google/uuid"
)

// ContactRepository persists vendor contacts
type ContactRepository interface {
	// FindByName finds a contact by exact name, case-insensitive
	FindByName(ctx context.Context, name string) (*Contact, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Contact, error)
	FindByPulseID(ctx context.Context, pulseID int64) (*Contact, error)
	Save(ctx context.Context, contact *Contact) error
}

// PurchaseOrderRepository persists POs and their storage folders
type PurchaseOrderRepository interface {
	FindByProjectAndPO(ctx context.Context, projectNumber, poNumber string) (*PurchaseOrder, error)
	FindByPulseID(ctx context.Context, pulseID int64) (*PurchaseOrder, error)

	// Save upserts by (project_number, po_number)
	Save(ctx context.Context, po *PurchaseOrder) error

	// SaveFolder upserts by path
	SaveFolder(ctx context.Context, folder *DropboxFolder) error

	// EnsureProject creates the project row when missing
	EnsureProject(ctx context.Context, projectNumber string) error
}

// DetailItemRepository persists detail items. Saves write pending domain
// events to the outbox in the same transaction.
type DetailItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*DetailItem, error)
	FindByPulseID(ctx context.Context, pulseID int64) (*DetailItem, error)

	// FindByKey returns all items sharing project, PO and detail number
	FindByKey(ctx context.Context, projectNumber, poNumber, detailNumber string) ([]*DetailItem, error)

	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*DetailItem, error)
	Save(ctx context.Context, item *DetailItem) error
	SaveAll(ctx context.Context, items []*DetailItem) error
	DeleteByPulseID(ctx context.Context, pulseID int64) error
}

// InvoiceRepository persists invoices
type InvoiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByKey(ctx context.Context, projectNumber, poNumber, invoiceNumber string) (*Invoice, error)

	// SaveWithItems writes the invoice, its detail items and all their
	// pending events in one transaction
	SaveWithItems(ctx context.Context, inv *Invoice, items []*DetailItem) error
}

// ReceiptRepository persists card receipts
type ReceiptRepository interface {
	FindByKey(ctx context.Context, projectNumber, poNumber, detailNumber string) (*Receipt, error)
	SaveWithItem(ctx context.Context, receipt *Receipt, item *DetailItem) error
	Save(ctx context.Context, receipt *Receipt) error
}

// XeroRepository persists the local copies of Xero documents
type XeroRepository interface {
	FindBillByID(ctx context.Context, id uuid.UUID) (*XeroBill, error)
	FindBillByReference(ctx context.Context, reference string) (*XeroBill, error)
	SaveBill(ctx context.Context, bill *XeroBill) error

	// SaveBillWithLine writes a new bill and its first line atomically
	SaveBillWithLine(ctx context.Context, bill *XeroBill, line *XeroBillLineItem) error
	FindLineItemByDetailItem(ctx context.Context, detailItemID uuid.UUID) (*XeroBillLineItem, error)

	// SaveLineItem upserts by detail_item_id
	SaveLineItem(ctx context.Context, item *XeroBillLineItem) error

	FindSpendMoneyByReference(ctx context.Context, reference string) (*SpendMoney, error)
	SaveSpendMoney(ctx context.Context, sm *SpendMoney) error
}

// TaxFormRepository persists received tax forms
type TaxFormRepository interface {
	// Save upserts by file link
	Save(ctx context.Context, form *TaxForm) error
}

// AccountCodeRepository persists the account code catalogue
type AccountCodeRepository interface {
	UpsertTaxAccount(ctx context.Context, account *TaxAccount) error
	UpsertAccountCode(ctx context.Context, code *AccountCode) error
}

// POLogRepository persists PO log import runs
type POLogRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*POLog, error)
	Save(ctx context.Context, log *POLog) error
}

// AuditLogRepository appends audit records
type AuditLogRepository interface {
	Append(ctx context.Context, entry *AuditLog) error
}
