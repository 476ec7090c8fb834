package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"github.com/docsync/backend/internal/infrastructure/xero"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	billLinkFormat       = "https://go.xero.com/AccountsPayable/Edit.aspx?InvoiceID=%s"
	spendMoneyLinkFormat = "https://go.xero.com/Bank/ViewTransaction.aspx?bankTransactionID=%s"
)

// XeroClient is the part of the accounting API the sync uses
type XeroClient interface {
	UpsertContact(ctx context.Context, contact xero.Contact) (*xero.Contact, error)
	CreateBill(ctx context.Context, bill xero.Invoice) (*xero.Invoice, error)
	UpdateBill(ctx context.Context, bill xero.Invoice) (*xero.Invoice, error)
	CreateSpendMoney(ctx context.Context, tx xero.BankTransaction) (*xero.BankTransaction, error)
}

// XeroSync pushes local bills and spend money to Xero. It handles
// XeroBillCreated and is called directly when a line joins a pushed bill.
type XeroSync struct {
	bills    procurement.XeroRepository
	orders   procurement.PurchaseOrderRepository
	contacts procurement.ContactRepository
	client   XeroClient
	now      func() time.Time
	logger   *zap.Logger
}

// NewXeroSync creates a Xero sync handler
func NewXeroSync(
	bills procurement.XeroRepository,
	orders procurement.PurchaseOrderRepository,
	contacts procurement.ContactRepository,
	client XeroClient,
	logger *zap.Logger,
) *XeroSync {
	return &XeroSync{
		bills:    bills,
		orders:   orders,
		contacts: contacts,
		client:   client,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "xero_sync")),
	}
}

// EventTypes returns the event types this handler is interested in
func (s *XeroSync) EventTypes() []string {
	return []string{procurement.EventTypeXeroBillCreated}
}

// Handle pushes a newly created bill
func (s *XeroSync) Handle(ctx context.Context, event shared.DomainEvent) error {
	ev, ok := event.(*procurement.XeroBillCreatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			procurement.EventTypeXeroBillCreated, event.EventType())
	}
	return s.SyncBill(ctx, ev.XeroBillID)
}

// SyncBill creates the bill in Xero, or updates it when it already has a
// Xero id, and stores the returned ids on the local rows
func (s *XeroSync) SyncBill(ctx context.Context, billID uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "reconcile.sync_bill")
	defer span.End()

	bill, err := s.bills.FindBillByID(ctx, billID)
	if errors.Is(err, shared.ErrNotFound) {
		s.logger.Warn("Bill vanished before sync", zap.String("bill_id", billID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load bill: %w", err)
	}
	if len(bill.LineItems) == 0 {
		s.logger.Info("Skipping bill without lines", zap.String("reference", bill.Reference))
		return nil
	}

	contact, err := s.resolveContact(ctx, bill.ProjectNumber, bill.PONumber)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	out := xero.Invoice{
		InvoiceID: bill.XeroID,
		Contact:   xero.Contact{ContactID: contact.ContactID},
		Reference: bill.Reference,
		Date:      xero.FormatDate(s.now()),
		LineItems: make([]xero.LineItem, 0, len(bill.LineItems)),
	}
	for _, li := range bill.LineItems {
		out.LineItems = append(out.LineItems, xero.LineItem{
			LineItemID:  li.XeroID,
			Description: li.Description,
			Quantity:    li.Quantity.InexactFloat64(),
			UnitAmount:  li.UnitAmount.InexactFloat64(),
			AccountCode: li.AccountCode,
		})
	}

	var pushed *xero.Invoice
	if bill.XeroID == "" {
		pushed, err = s.client.CreateBill(ctx, out)
	} else {
		pushed, err = s.client.UpdateBill(ctx, out)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to push bill %s: %w", bill.Reference, err)
	}

	bill.XeroID = pushed.InvoiceID
	bill.XeroLink = fmt.Sprintf(billLinkFormat, pushed.InvoiceID)
	if pushed.Status != "" {
		bill.State = pushed.Status
	}
	bill.Touch()
	if err := s.bills.SaveBill(ctx, bill); err != nil {
		return fmt.Errorf("failed to save bill: %w", err)
	}
	for i := range bill.LineItems {
		if i >= len(pushed.LineItems) || pushed.LineItems[i].LineItemID == "" {
			break
		}
		li := bill.LineItems[i]
		li.XeroID = pushed.LineItems[i].LineItemID
		if err := s.bills.SaveLineItem(ctx, &li); err != nil {
			return fmt.Errorf("failed to save bill line: %w", err)
		}
	}

	s.logger.Info("Bill synced",
		zap.String("reference", bill.Reference),
		zap.String("xero_id", bill.XeroID),
		zap.Int("lines", len(bill.LineItems)),
	)
	return nil
}

// SyncSpendMoney creates an authorized spend money transaction in Xero
func (s *XeroSync) SyncSpendMoney(ctx context.Context, sm *procurement.SpendMoney, item *procurement.DetailItem) error {
	if sm.XeroID != "" || sm.State != procurement.SpendMoneyAuthorized {
		return nil
	}
	contact, err := s.resolveContact(ctx, item.ProjectNumber, item.PONumber)
	if err != nil {
		return err
	}
	date := s.now()
	if item.TransactionDate != nil {
		date = *item.TransactionDate
	}
	pushed, err := s.client.CreateSpendMoney(ctx, xero.BankTransaction{
		Contact:   xero.Contact{ContactID: contact.ContactID},
		Reference: sm.Reference,
		Date:      xero.FormatDate(date),
		Status:    xero.StatusAuthorised,
		LineItems: []xero.LineItem{{
			Description: item.Description,
			Quantity:    1,
			UnitAmount:  sm.Amount.InexactFloat64(),
			AccountCode: item.AccountCode,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to push spend money %s: %w", sm.Reference, err)
	}
	sm.XeroID = pushed.BankTransactionID
	sm.XeroLink = fmt.Sprintf(spendMoneyLinkFormat, pushed.BankTransactionID)
	sm.Touch()
	if err := s.bills.SaveSpendMoney(ctx, sm); err != nil {
		return fmt.Errorf("failed to save spend money: %w", err)
	}
	s.logger.Info("Spend money synced", zap.String("reference", sm.Reference), zap.String("xero_id", sm.XeroID))
	return nil
}

// resolveContact upserts the PO's vendor as a Xero supplier and remembers
// the Xero id on the local contact
func (s *XeroSync) resolveContact(ctx context.Context, projectNumber, poNumber string) (*xero.Contact, error) {
	po, err := s.orders.FindByProjectAndPO(ctx, projectNumber, poNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load PO %s_%s: %w", projectNumber, poNumber, err)
	}

	want := xero.Contact{Name: po.VendorName, IsSupplier: true}
	var local *procurement.Contact
	if po.ContactID != nil && s.contacts != nil {
		local, err = s.contacts.FindByID(ctx, *po.ContactID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("failed to load contact: %w", err)
		}
	}
	if local != nil {
		want = contactToXero(local)
	}
	if want.Name == "" {
		return nil, shared.NewDomainError("INVALID_STATE", "PO "+projectNumber+"_"+poNumber+" has no vendor")
	}

	got, err := s.client.UpsertContact(ctx, want)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert contact %q: %w", want.Name, err)
	}
	if local != nil && local.XeroID != got.ContactID {
		local.XeroID = got.ContactID
		local.Touch()
		if err := s.contacts.Save(ctx, local); err != nil {
			s.logger.Warn("Failed to store contact Xero id", zap.String("contact", local.Name), zap.Error(err))
		}
	}
	return got, nil
}

func contactToXero(c *procurement.Contact) xero.Contact {
	out := xero.Contact{
		ContactID:    c.XeroID,
		Name:         c.Name,
		EmailAddress: c.Email,
		TaxNumber:    c.TaxNumber,
		IsSupplier:   true,
	}
	if c.AddressLine1 != "" || c.City != "" {
		out.Addresses = []xero.Address{{
			AddressType:  "POBOX",
			AddressLine1: c.AddressLine1,
			AddressLine2: c.AddressLine2,
			City:         c.City,
			Region:       c.Region,
			PostalCode:   c.Zip,
			Country:      c.Country,
		}}
	}
	if c.Phone != "" {
		out.Phones = []xero.Phone{{PhoneType: "DEFAULT", PhoneNumber: c.Phone}}
	}
	return out
}

var _ shared.EventHandler = (*XeroSync)(nil)
