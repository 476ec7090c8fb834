package procurement

import (
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constants
const (
	AggregateTypeInvoice    = "Invoice"
	AggregateTypeDetailItem = "DetailItem"
	AggregateTypeXeroBill   = "XeroBill"
)

// Event type constants
const (
	EventTypeInvoiceSaved      = "InvoiceSaved"
	EventTypeDetailItemCreated = "DetailItemCreated"
	EventTypeDetailItemUpdated = "DetailItemUpdated"
	EventTypeXeroBillCreated   = "XeroBillCreated"
)

// InvoiceSavedEvent is published when an invoice row is written
type InvoiceSavedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	ProjectNumber string          `json:"project_number"`
	PONumber      string          `json:"po_number"`
	InvoiceNumber string          `json:"invoice_number"`
	Total         decimal.Decimal `json:"total"`
}

// NewInvoiceSavedEvent creates a new InvoiceSavedEvent
func NewInvoiceSavedEvent(inv *Invoice) *InvoiceSavedEvent {
	return &InvoiceSavedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceSaved, AggregateTypeInvoice, inv.ID),
		InvoiceID:       inv.ID,
		ProjectNumber:   inv.ProjectNumber,
		PONumber:        inv.PONumber,
		InvoiceNumber:   inv.InvoiceNumber,
		Total:           inv.Total,
	}
}

// DetailItemCreatedEvent is published when a detail item is first persisted
type DetailItemCreatedEvent struct {
	shared.BaseDomainEvent
	DetailItemID  uuid.UUID   `json:"detail_item_id"`
	ProjectNumber string      `json:"project_number"`
	PONumber      string      `json:"po_number"`
	DetailNumber  string      `json:"detail_number"`
	PaymentType   PaymentType `json:"payment_type"`
}

// NewDetailItemCreatedEvent creates a new DetailItemCreatedEvent
func NewDetailItemCreatedEvent(item *DetailItem) *DetailItemCreatedEvent {
	return &DetailItemCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDetailItemCreated, AggregateTypeDetailItem, item.ID),
		DetailItemID:    item.ID,
		ProjectNumber:   item.ProjectNumber,
		PONumber:        item.PONumber,
		DetailNumber:    item.DetailNumber,
		PaymentType:     item.PaymentType,
	}
}

// DetailItemUpdatedEvent is published when a board edit changes a detail item
type DetailItemUpdatedEvent struct {
	shared.BaseDomainEvent
	DetailItemID  uuid.UUID   `json:"detail_item_id"`
	ProjectNumber string      `json:"project_number"`
	PONumber      string      `json:"po_number"`
	DetailNumber  string      `json:"detail_number"`
	PaymentType   PaymentType `json:"payment_type"`
	Field         string      `json:"field"`
}

// NewDetailItemUpdatedEvent creates a new DetailItemUpdatedEvent
func NewDetailItemUpdatedEvent(item *DetailItem, field string) *DetailItemUpdatedEvent {
	return &DetailItemUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDetailItemUpdated, AggregateTypeDetailItem, item.ID),
		DetailItemID:    item.ID,
		ProjectNumber:   item.ProjectNumber,
		PONumber:        item.PONumber,
		DetailNumber:    item.DetailNumber,
		PaymentType:     item.PaymentType,
		Field:           field,
	}
}

// XeroBillCreatedEvent is published when a local bill is created and must be pushed to Xero
type XeroBillCreatedEvent struct {
	shared.BaseDomainEvent
	XeroBillID uuid.UUID `json:"xero_bill_id"`
	Reference  string    `json:"reference"`
}

// NewXeroBillCreatedEvent creates a new XeroBillCreatedEvent
func NewXeroBillCreatedEvent(bill *XeroBill) *XeroBillCreatedEvent {
	return &XeroBillCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeXeroBillCreated, AggregateTypeXeroBill, bill.ID),
		XeroBillID:      bill.ID,
		Reference:       bill.Reference,
	}
}
