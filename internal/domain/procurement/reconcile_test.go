package procurement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(detail string, pt PaymentType, state DetailState, subTotal string) *DetailItem {
	return &DetailItem{
		ProjectNumber: "2416",
		PONumber:      "05",
		DetailNumber:  detail,
		PaymentType:   pt,
		State:         state,
		SubTotal:      decimal.RequireFromString(subTotal),
	}
}

func TestAmountsMatch(t *testing.T) {
	a := decimal.RequireFromString("100.00")
	assert.True(t, AmountsMatch(a, decimal.RequireFromString("100.00005"), InvoiceTolerance))
	assert.False(t, AmountsMatch(a, decimal.RequireFromString("100.01"), InvoiceTolerance))
	assert.True(t, AmountsMatch(a, decimal.RequireFromString("100.005"), POLogTolerance))
	assert.False(t, AmountsMatch(a, decimal.RequireFromString("100.01"), POLogTolerance))
}

func TestLinkAndSettleInvoice(t *testing.T) {
	inv, err := NewInvoice("2416", "05", "02", decimal.RequireFromString("300"))
	require.NoError(t, err)
	require.Len(t, inv.GetDomainEvents(), 1)
	assert.Equal(t, EventTypeInvoiceSaved, inv.GetDomainEvents()[0].EventType())

	a := item("02", PaymentTypeInvoice, DetailStateIssue, "100")
	b := item("02", PaymentTypeInvoice, DetailStatePending, "200")
	paid := item("02", PaymentTypeInvoice, DetailStatePaid, "50")
	other := item("03", PaymentTypeInvoice, DetailStatePending, "300")
	card := item("02", PaymentTypeCC, DetailStatePending, "300")

	linked := LinkInvoice(inv, []*DetailItem{a, b, paid, other, card})
	require.Len(t, linked, 3)
	assert.Equal(t, DetailStatePending, a.State)
	assert.Equal(t, DetailStatePaid, paid.State)
	assert.Nil(t, other.InvoiceID)
	assert.Nil(t, card.InvoiceID)
	require.NotNil(t, a.InvoiceID)
	assert.Equal(t, inv.ID, *a.InvoiceID)

	SettleInvoice(inv, linked)
	assert.Equal(t, DetailStateRTP, a.State)
	assert.Equal(t, DetailStateRTP, b.State)
	assert.Equal(t, DetailStatePaid, paid.State)

	b.SubTotal = decimal.RequireFromString("201")
	SettleInvoice(inv, linked)
	assert.Equal(t, DetailStatePOMismatch, a.State)
	assert.Equal(t, DetailStatePOMismatch, b.State)
}

func TestSettleAgainstTotal(t *testing.T) {
	a := item("01", PaymentTypeInvoice, DetailStatePending, "40")
	b := item("01", PaymentTypeInvoice, DetailStateApproved, "60")
	SettleAgainstTotal([]*DetailItem{a, b}, decimal.NewFromInt(100))
	assert.Equal(t, DetailStateRTP, a.State)
	assert.Equal(t, DetailStateApproved, b.State)

	SettleAgainstTotal([]*DetailItem{a, b}, decimal.NewFromInt(90))
	assert.Equal(t, DetailStatePOMismatch, a.State)
}

func TestSettleReceipt(t *testing.T) {
	c := item("01", PaymentTypeCC, DetailStatePending, "19.99")
	SettleReceipt(c, decimal.RequireFromString("19.99"))
	assert.Equal(t, DetailStateReviewed, c.State)
	assert.Equal(t, SpendMoneyAuthorized, SpendMoneyStateFor(c))

	SettleReceipt(c, decimal.RequireFromString("20"))
	assert.Equal(t, DetailStatePOMismatch, c.State)
	assert.Equal(t, SpendMoneyDraft, SpendMoneyStateFor(c))

	final := item("01", PaymentTypeCC, DetailStateAuthorized, "19.99")
	SettleReceipt(final, decimal.RequireFromString("1"))
	assert.Equal(t, DetailStateAuthorized, final.State)
}

func TestMarkOverdueAndFlagIssue(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, -3)

	r := item("01", PaymentTypeInvoice, DetailStateReviewed, "10")
	r.DueDate = &due
	assert.True(t, MarkOverdue(r, now))
	assert.Equal(t, DetailStateOverdue, r.State)

	p := item("01", PaymentTypeInvoice, DetailStatePending, "10")
	p.DueDate = &due
	assert.False(t, MarkOverdue(p, now))

	f := item("01", PaymentTypeInvoice, DetailStatePaid, "10")
	assert.False(t, FlagIssue(f, decimal.NewFromInt(10)))
	assert.True(t, FlagIssue(f, decimal.NewFromInt(11)))
	assert.Equal(t, DetailStateIssue, f.State)
	assert.False(t, FlagIssue(p, decimal.NewFromInt(11)))
}

func TestXeroBill(t *testing.T) {
	it := item("02", PaymentTypeInvoice, DetailStateRTP, "150")
	it.Rate = decimal.NewFromInt(75)
	it.Quantity = decimal.NewFromInt(2)
	bill := NewXeroBill(it)
	assert.Equal(t, "2416_05_02", bill.Reference)
	require.Len(t, bill.GetDomainEvents(), 1)
	assert.Equal(t, EventTypeXeroBillCreated, bill.GetDomainEvents()[0].EventType())

	bill.LineItems = append(bill.LineItems, NewBillLineItem(bill.ID, it))
	assert.True(t, decimal.NewFromInt(150).Equal(bill.Total()))
}

func TestPOLogLifecycle(t *testing.T) {
	l := NewPOLog("2416", "/2416 - Show/PO Log.csv")
	require.NoError(t, l.Start())
	assert.Equal(t, POLogStarted, l.Status)
	assert.Error(t, l.Start())
	l.Complete(4, 3)
	assert.Equal(t, POLogCompleted, l.Status)
	assert.Equal(t, 3, l.MatchedCount)
	assert.NotNil(t, l.CompletedAt)
}

func TestContact_HasCompleteTaxProfile(t *testing.T) {
	c := NewContact(" Acme ")
	assert.Equal(t, "Acme", c.Name)
	assert.False(t, c.HasCompleteTaxProfile())

	c.TaxNumber = "12-3456789"
	c.TaxFormLink = "https://dropbox/w9.pdf"
	c.AddressLine1 = "1 Main St"
	c.City = "Burbank"
	c.Zip = "91505"
	assert.False(t, c.HasCompleteTaxProfile())
	c.VendorStatus = VendorStatusVerified
	assert.True(t, c.HasCompleteTaxProfile())

	var nilContact *Contact
	assert.False(t, nilContact.HasCompleteTaxProfile())
}
