package procurement

import (
	"fmt"
	"strings"
	"time"

	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultAccountCode is used when a line item has no usable account number
const DefaultAccountCode = "5000"

// DetailItem is one line under a PO, mirrored as a subitem on the board
type DetailItem struct {
	shared.BaseAggregateRoot
	PurchaseOrderID uuid.UUID       `gorm:"type:char(36);not null;index"`
	ProjectNumber   string          `gorm:"type:varchar(32);not null;index:idx_detail_item_key"`
	PONumber        string          `gorm:"column:po_number;type:varchar(32);not null;index:idx_detail_item_key"`
	DetailNumber    string          `gorm:"type:varchar(16);not null;index:idx_detail_item_key"`
	LineNumber      int             `gorm:"not null;default:1"`
	State           DetailState     `gorm:"type:varchar(20);not null;default:PENDING"`
	PaymentType     PaymentType     `gorm:"type:varchar(8)"`
	Vendor          string          `gorm:"type:varchar(255)"`
	Description     string          `gorm:"type:varchar(255)"`
	TransactionDate *time.Time
	DueDate         *time.Time
	Rate            decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0"`
	Quantity        decimal.Decimal `gorm:"type:decimal(15,2);not null;default:1"`
	OT              decimal.Decimal `gorm:"column:ot;type:decimal(15,2);default:0"`
	Fringes         decimal.Decimal `gorm:"type:decimal(15,2);default:0"`
	SubTotal        decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0"`
	AccountCode     string          `gorm:"type:varchar(16)"`
	FileLink        string          `gorm:"type:varchar(1024)"`
	PulseID         *int64          `gorm:"uniqueIndex"`
	ParentPulseID   *int64          `gorm:"index"`
	InvoiceID       *uuid.UUID      `gorm:"type:char(36)"`
	ReceiptID       *uuid.UUID      `gorm:"type:char(36)"`
}

// TableName returns the table name for GORM
func (DetailItem) TableName() string {
	return "detail_item"
}

// NewDetailItem creates a pending detail item for a PO
func NewDetailItem(po *PurchaseOrder, detailNumber string, lineNumber int) (*DetailItem, error) {
	if po == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "purchase order is required")
	}
	if detailNumber == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "detail number is required")
	}
	if lineNumber <= 0 {
		lineNumber = 1
	}
	return &DetailItem{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PurchaseOrderID:   po.ID,
		ProjectNumber:     po.ProjectNumber,
		PONumber:          po.PONumber,
		DetailNumber:      detailNumber,
		LineNumber:        lineNumber,
		State:             DetailStatePending,
		PaymentType:       po.DefaultPaymentType(),
		Vendor:            po.VendorName,
		Quantity:          decimal.NewFromInt(1),
		AccountCode:       DefaultAccountCode,
		ParentPulseID:     po.PulseID,
	}, nil
}

// RecordCreated raises DetailItemCreated; call once before the first save
func (d *DetailItem) RecordCreated() {
	d.AddDomainEvent(NewDetailItemCreatedEvent(d))
}

// RecordUpdated raises DetailItemUpdated for a changed field
func (d *DetailItem) RecordUpdated(field string) {
	d.AddDomainEvent(NewDetailItemUpdatedEvent(d, field))
}

// Recalculate sets SubTotal to rate times quantity
func (d *DetailItem) Recalculate() {
	qty := d.Quantity
	if qty.IsZero() {
		qty = decimal.NewFromInt(1)
	}
	d.SubTotal = d.Rate.Mul(qty).Round(2)
}

// Key identifies the group of items that share one invoice or receipt
func (d *DetailItem) Key() string {
	return fmt.Sprintf("%s_%s_%s", d.ProjectNumber, d.PONumber, d.DetailNumber)
}

// BillReference is the Xero reference for the bill covering this item
func (d *DetailItem) BillReference() string {
	detail := d.DetailNumber
	if detail == "" {
		detail = "XX"
	}
	return fmt.Sprintf("%s_%s_%s", d.ProjectNumber, d.PONumber, detail)
}

// SetState moves the item to a new state, reporting whether it changed
func (d *DetailItem) SetState(state DetailState) bool {
	if d.State == state {
		return false
	}
	d.State = state
	d.Touch()
	return true
}

// IsPastDue reports whether the due date is before now
func (d *DetailItem) IsPastDue(now time.Time) bool {
	return d.DueDate != nil && d.DueDate.Before(now)
}

// Field names that the board can change on a detail item
const (
	FieldState           = "state"
	FieldDetailNumber    = "detail_number"
	FieldDescription     = "description"
	FieldQuantity        = "quantity"
	FieldRate            = "rate"
	FieldTransactionDate = "transaction_date"
	FieldDueDate         = "due_date"
	FieldAccountCode     = "account_code"
	FieldFileLink        = "file_link"
)

// FieldValue returns the current value of a board-editable field as text
func (d *DetailItem) FieldValue(field string) string {
	switch field {
	case FieldState:
		return string(d.State)
	case FieldDetailNumber:
		return d.DetailNumber
	case FieldDescription:
		return d.Description
	case FieldQuantity:
		return d.Quantity.String()
	case FieldRate:
		return d.Rate.String()
	case FieldTransactionDate:
		return formatDate(d.TransactionDate)
	case FieldDueDate:
		return formatDate(d.DueDate)
	case FieldAccountCode:
		return d.AccountCode
	case FieldFileLink:
		return d.FileLink
	}
	return ""
}

// ApplyField sets a board-editable field from its text value
func (d *DetailItem) ApplyField(field, value string) error {
	value = strings.TrimSpace(value)
	switch field {
	case FieldState:
		st, ok := ParseDetailState(value)
		if !ok {
			return shared.NewDomainError("INVALID_INPUT", "unknown detail state: "+value)
		}
		d.State = st
	case FieldDetailNumber:
		d.DetailNumber = value
	case FieldDescription:
		d.Description = value
	case FieldQuantity, FieldRate:
		n, err := ParseAmount(value)
		if err != nil {
			return shared.WrapDomainError("INVALID_INPUT", "invalid "+field, err)
		}
		if field == FieldQuantity {
			d.Quantity = n
		} else {
			d.Rate = n
		}
		d.Recalculate()
	case FieldTransactionDate, FieldDueDate:
		t, err := ParseDate(value)
		if err != nil {
			return shared.WrapDomainError("INVALID_INPUT", "invalid "+field, err)
		}
		if field == FieldTransactionDate {
			d.TransactionDate = t
		} else {
			d.DueDate = t
		}
	case FieldAccountCode:
		d.AccountCode = value
	case FieldFileLink:
		d.FileLink = value
	default:
		return shared.NewDomainError("INVALID_INPUT", "unknown field: "+field)
	}
	d.Touch()
	return nil
}

// IsDifferent compares two field values, numerically when both parse as numbers
func IsDifferent(current, incoming string) bool {
	a, errA := ParseAmount(current)
	b, errB := ParseAmount(incoming)
	if errA == nil && errB == nil {
		return !a.Equal(b)
	}
	return strings.TrimSpace(current) != strings.TrimSpace(incoming)
}

// ParseAmount parses money text such as "$1,250.00"
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	return decimal.NewFromString(s)
}

// ParseDate parses a YYYY-MM-DD date; an empty value clears the date
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
