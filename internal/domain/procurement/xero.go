package procurement

import (
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// XeroBill is the local copy of an ACCPAY invoice in Xero
type XeroBill struct {
	shared.BaseAggregateRoot
	Reference     string `gorm:"column:xero_reference_number;type:varchar(64);uniqueIndex"`
	ProjectNumber string `gorm:"type:varchar(32);not null"`
	PONumber      string `gorm:"column:po_number;type:varchar(32);not null"`
	DetailNumber  string `gorm:"type:varchar(16)"`
	State         string `gorm:"type:varchar(45);not null;default:DRAFT"`
	XeroID        string `gorm:"type:varchar(64)"`
	XeroLink      string `gorm:"type:varchar(255)"`
	ContactID     *uuid.UUID `gorm:"type:char(36)"`
	LineItems     []XeroBillLineItem `gorm:"foreignKey:XeroBillID"`
}

// TableName returns the table name for GORM
func (XeroBill) TableName() string {
	return "xero_bill"
}

// NewXeroBill creates a draft bill for the item's reference and raises XeroBillCreated
func NewXeroBill(item *DetailItem) *XeroBill {
	bill := &XeroBill{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Reference:         item.BillReference(),
		ProjectNumber:     item.ProjectNumber,
		PONumber:          item.PONumber,
		DetailNumber:      item.DetailNumber,
		State:             "DRAFT",
	}
	bill.AddDomainEvent(NewXeroBillCreatedEvent(bill))
	return bill
}

// Total sums the line amounts
func (b *XeroBill) Total() decimal.Decimal {
	total := decimal.Zero
	for _, li := range b.LineItems {
		total = total.Add(li.LineAmount)
	}
	return total
}

// XeroBillLineItem is one line of a bill, tied to a detail item
type XeroBillLineItem struct {
	shared.BaseEntity
	XeroBillID   uuid.UUID       `gorm:"type:char(36);not null;index"`
	DetailItemID uuid.UUID       `gorm:"type:char(36);not null;uniqueIndex"`
	Description  string          `gorm:"type:varchar(255)"`
	Quantity     decimal.Decimal `gorm:"type:decimal(15,2)"`
	UnitAmount   decimal.Decimal `gorm:"type:decimal(15,2)"`
	LineAmount   decimal.Decimal `gorm:"type:decimal(15,2)"`
	AccountCode  string          `gorm:"type:varchar(16)"`
	XeroID       string          `gorm:"type:varchar(64)"`
}

// TableName returns the table name for GORM
func (XeroBillLineItem) TableName() string {
	return "xero_bill_line_item"
}

// NewBillLineItem builds the bill line for a detail item
func NewBillLineItem(billID uuid.UUID, item *DetailItem) XeroBillLineItem {
	qty := item.Quantity
	if qty.IsZero() {
		qty = decimal.NewFromInt(1)
	}
	return XeroBillLineItem{
		BaseEntity:   shared.NewBaseEntity(),
		XeroBillID:   billID,
		DetailItemID: item.ID,
		Description:  item.Description,
		Quantity:     qty,
		UnitAmount:   item.Rate,
		LineAmount:   item.SubTotal,
		AccountCode:  item.AccountCode,
	}
}

// SpendMoney is a Xero SPEND bank transaction for a card purchase
type SpendMoney struct {
	shared.BaseEntity
	Reference    string          `gorm:"column:xero_spend_money_reference_number;type:varchar(100);uniqueIndex"`
	DetailItemID uuid.UUID       `gorm:"type:char(36);index"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2)"`
	State        SpendMoneyState `gorm:"type:varchar(16);not null;default:DRAFT"`
	XeroID       string          `gorm:"type:varchar(64)"`
	XeroLink     string          `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (SpendMoney) TableName() string {
	return "spend_money"
}

// BankTransaction is an imported bank feed line matched to a bill or spend money
type BankTransaction struct {
	shared.BaseEntity
	MercuryTransactionID string     `gorm:"type:varchar(100);not null;uniqueIndex"`
	State                string     `gorm:"type:varchar(45);not null;default:Pending"`
	XeroBillID           *uuid.UUID `gorm:"type:char(36)"`
	XeroSpendMoneyID     *uuid.UUID `gorm:"type:char(36)"`
}

// TableName returns the table name for GORM
func (BankTransaction) TableName() string {
	return "bank_transaction"
}
