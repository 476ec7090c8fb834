package xero

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FormatDate formats a date the way the API expects it
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// whereEquals builds a where filter, escaping embedded quotes
func whereEquals(field, value string) string {
	return fmt.Sprintf(`%s=="%s"`, field, strings.ReplaceAll(value, `"`, `\"`))
}

// FindContactByName returns the contact with exactly this name
func (c *Client) FindContactByName(ctx context.Context, name string) (*Contact, error) {
	q := url.Values{}
	q.Set("where", whereEquals("Name", name))
	var out contactsEnvelope
	if err := c.call(ctx, "find_contact", http.MethodGet, "/Contacts?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Contacts) == 0 {
		return nil, fmt.Errorf("%w: contact %q", ErrNotFound, name)
	}
	return &out.Contacts[0], nil
}

// UpsertContact updates the contact when it has an id or a contact with the
// same name exists, and creates it otherwise.
func (c *Client) UpsertContact(ctx context.Context, contact Contact) (*Contact, error) {
	if contact.ContactID == "" {
		existing, err := c.FindContactByName(ctx, contact.Name)
		switch {
		case err == nil:
			contact.ContactID = existing.ContactID
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	path := "/Contacts"
	if contact.ContactID != "" {
		path += "/" + contact.ContactID
	}
	var out contactsEnvelope
	if err := c.call(ctx, "upsert_contact", http.MethodPost, path, contactsEnvelope{Contacts: []Contact{contact}}, &out); err != nil {
		return nil, err
	}
	if len(out.Contacts) == 0 {
		return nil, fmt.Errorf("%w: empty contact response", ErrRequestFailed)
	}
	return &out.Contacts[0], nil
}

// CreateBill creates an ACCPAY invoice
func (c *Client) CreateBill(ctx context.Context, bill Invoice) (*Invoice, error) {
	bill.Type = InvoiceTypeBill
	if bill.Status == "" {
		bill.Status = StatusDraft
	}
	if bill.LineAmountTypes == "" {
		bill.LineAmountTypes = LineAmountsExclusive
	}
	var out invoicesEnvelope
	if err := c.call(ctx, "create_bill", http.MethodPut, "/Invoices", invoicesEnvelope{Invoices: []Invoice{bill}}, &out); err != nil {
		return nil, err
	}
	return firstInvoice(out)
}

// UpdateBill updates an existing bill by id
func (c *Client) UpdateBill(ctx context.Context, bill Invoice) (*Invoice, error) {
	if bill.InvoiceID == "" {
		return nil, fmt.Errorf("%w: bill id is required for update", ErrValidation)
	}
	bill.Type = InvoiceTypeBill
	var out invoicesEnvelope
	if err := c.call(ctx, "update_bill", http.MethodPost, "/Invoices/"+bill.InvoiceID, invoicesEnvelope{Invoices: []Invoice{bill}}, &out); err != nil {
		return nil, err
	}
	return firstInvoice(out)
}

// GetBillByReference returns the bill carrying reference
func (c *Client) GetBillByReference(ctx context.Context, reference string) (*Invoice, error) {
	q := url.Values{}
	q.Set("where", whereEquals("Type", InvoiceTypeBill)+" AND "+whereEquals("Reference", reference))
	var out invoicesEnvelope
	if err := c.call(ctx, "get_bill", http.MethodGet, "/Invoices?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Invoices) == 0 {
		return nil, fmt.Errorf("%w: bill %q", ErrNotFound, reference)
	}
	return &out.Invoices[0], nil
}

// CreateSpendMoney creates a SPEND bank transaction against the configured
// bank account unless one is set.
func (c *Client) CreateSpendMoney(ctx context.Context, tx BankTransaction) (*BankTransaction, error) {
	tx.Type = BankTransactionSpend
	if tx.BankAccount.Code == "" && tx.BankAccount.AccountID == "" {
		tx.BankAccount.Code = c.cfg.BankAccountCode
	}
	if tx.LineAmountTypes == "" {
		tx.LineAmountTypes = LineAmountsExclusive
	}
	var out bankTransactionsEnvelope
	if err := c.call(ctx, "create_spend_money", http.MethodPut, "/BankTransactions", bankTransactionsEnvelope{BankTransactions: []BankTransaction{tx}}, &out); err != nil {
		return nil, err
	}
	if len(out.BankTransactions) == 0 {
		return nil, fmt.Errorf("%w: empty bank transaction response", ErrRequestFailed)
	}
	return &out.BankTransactions[0], nil
}

func firstInvoice(out invoicesEnvelope) (*Invoice, error) {
	if len(out.Invoices) == 0 {
		return nil, fmt.Errorf("%w: empty invoice response", ErrRequestFailed)
	}
	return &out.Invoices[0], nil
}
