package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tolerances used when comparing computed totals with document totals
var (
	InvoiceTolerance = decimal.RequireFromString("0.0001")
	POLogTolerance   = decimal.RequireFromString("0.01")
)

// AmountsMatch reports |a-b| < tolerance
func AmountsMatch(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(tolerance)
}

// SumSubTotals adds up the sub totals of items
func SumSubTotals(items []*DetailItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.SubTotal)
	}
	return sum
}

// LinkInvoice attaches INV items with the invoice's number to it and resets
// unsettled ones to PENDING. It returns the items it linked.
func LinkInvoice(inv *Invoice, items []*DetailItem) []*DetailItem {
	var linked []*DetailItem
	for _, it := range items {
		if it.PaymentType != PaymentTypeInvoice || it.DetailNumber != inv.InvoiceNumber ||
			it.ProjectNumber != inv.ProjectNumber || it.PONumber != inv.PONumber {
			continue
		}
		id := inv.ID
		it.InvoiceID = &id
		switch it.State {
		case DetailStateReconciled, DetailStatePaid, DetailStateRTP, DetailStatePOMismatch:
		default:
			it.SetState(DetailStatePending)
		}
		linked = append(linked, it)
	}
	return linked
}

// SettleInvoice compares the unsettled items with the invoice total and moves
// them to RTP or PO MISMATCH
func SettleInvoice(inv *Invoice, items []*DetailItem) {
	var open []*DetailItem
	for _, it := range items {
		if !it.State.IsSettled() {
			open = append(open, it)
		}
	}
	if len(open) == 0 {
		return
	}
	state := DetailStatePOMismatch
	if AmountsMatch(SumSubTotals(open), inv.Total, InvoiceTolerance) {
		state = DetailStateRTP
	}
	for _, it := range open {
		it.SetState(state)
	}
}

// SettleAgainstTotal moves the non-final items of a key to RTP or PO MISMATCH
// depending on whether the key's sub totals add up to total
func SettleAgainstTotal(items []*DetailItem, total decimal.Decimal) {
	state := DetailStatePOMismatch
	if AmountsMatch(SumSubTotals(items), total, InvoiceTolerance) {
		state = DetailStateRTP
	}
	for _, it := range items {
		if !it.State.IsFinal() {
			it.SetState(state)
		}
	}
}

// SettleReceipt moves a card item to REVIEWED or PO MISMATCH against the receipt total
func SettleReceipt(item *DetailItem, receiptTotal decimal.Decimal) {
	if item.State.IsFinal() {
		return
	}
	if AmountsMatch(item.SubTotal, receiptTotal, InvoiceTolerance) {
		item.SetState(DetailStateReviewed)
	} else {
		item.SetState(DetailStatePOMismatch)
	}
}

// SpendMoneyStateFor is the spend money state matching a card item's state
func SpendMoneyStateFor(item *DetailItem) SpendMoneyState {
	if item.State == DetailStateReviewed {
		return SpendMoneyAuthorized
	}
	return SpendMoneyDraft
}

// MarkOverdue moves REVIEWED or PO MISMATCH items past their due date to OVERDUE
func MarkOverdue(item *DetailItem, now time.Time) bool {
	if item.State != DetailStateReviewed && item.State != DetailStatePOMismatch {
		return false
	}
	if !item.IsPastDue(now) {
		return false
	}
	return item.SetState(DetailStateOverdue)
}

// FlagIssue moves a final item to ISSUE when the booked amount differs from its sub total
func FlagIssue(item *DetailItem, booked decimal.Decimal) bool {
	if !item.State.IsFinal() {
		return false
	}
	if AmountsMatch(item.SubTotal, booked, InvoiceTolerance) {
		return false
	}
	return item.SetState(DetailStateIssue)
}
