package procurement

import "strings"

// DetailState is the workflow state of a detail item
type DetailState string

const (
	DetailStatePending    DetailState = "PENDING"
	DetailStateOverdue    DetailState = "OVERDUE"
	DetailStateReviewed   DetailState = "REVIEWED"
	DetailStateIssue      DetailState = "ISSUE"
	DetailStateRTP        DetailState = "RTP"
	DetailStateReconciled DetailState = "RECONCILED"
	DetailStatePaid       DetailState = "PAID"
	DetailStateApproved   DetailState = "APPROVED"
	DetailStateSubmitted  DetailState = "SUBMITTED"
	DetailStatePOMismatch DetailState = "PO MISMATCH"
	DetailStateVerified   DetailState = "VERIFIED"
	DetailStateAuthorized DetailState = "AUTHORIZED"
)

// ParseDetailState normalises a board label into a DetailState
func ParseDetailState(s string) (DetailState, bool) {
	st := DetailState(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.IsValid()
}

// IsValid checks if the state is known
func (s DetailState) IsValid() bool {
	switch s {
	case DetailStatePending, DetailStateOverdue, DetailStateReviewed, DetailStateIssue, DetailStateRTP,
		DetailStateReconciled, DetailStatePaid, DetailStateApproved, DetailStateSubmitted,
		DetailStatePOMismatch, DetailStateVerified, DetailStateAuthorized:
		return true
	}
	return false
}

// IsFinal reports states that reconciliation no longer moves
func (s DetailState) IsFinal() bool {
	switch s {
	case DetailStatePaid, DetailStateReconciled, DetailStateAuthorized, DetailStateApproved:
		return true
	}
	return false
}

// IsSettled reports states excluded from invoice sums
func (s DetailState) IsSettled() bool {
	return s == DetailStateReconciled || s == DetailStatePaid
}

// PaymentType is how a detail item is paid
type PaymentType string

const (
	PaymentTypeInvoice PaymentType = "INV"
	PaymentTypeProject PaymentType = "PROJ"
	PaymentTypeCC      PaymentType = "CC"
	PaymentTypePC      PaymentType = "PC"
)

// IsCard reports credit card and petty cash items
func (p PaymentType) IsCard() bool {
	return p == PaymentTypeCC || p == PaymentTypePC
}

// IsInvoiced reports items settled through a vendor bill
func (p PaymentType) IsInvoiced() bool {
	return p == PaymentTypeInvoice || p == PaymentTypeProject
}

// VendorStatus is the verification status of a contact
type VendorStatus string

const (
	VendorStatusPending  VendorStatus = "PENDING"
	VendorStatusToVerify VendorStatus = "TO VERIFY"
	VendorStatusApproved VendorStatus = "APPROVED"
	VendorStatusIssue    VendorStatus = "ISSUE"
	VendorStatusVerified VendorStatus = "VERIFIED"
)

// VendorType is the legal form of a contact
type VendorType string

const (
	VendorTypeVendor     VendorType = "VENDOR"
	VendorTypeCC         VendorType = "CC"
	VendorTypePC         VendorType = "PC"
	VendorTypeIndividual VendorType = "INDIVIDUAL"
	VendorTypeSCorp      VendorType = "S-CORP"
	VendorTypeCCorp      VendorType = "C-CORP"
)

// ProjectStatus is the lifecycle status of a project
type ProjectStatus string

const (
	ProjectStatusActive ProjectStatus = "Active"
	ProjectStatusClosed ProjectStatus = "Closed"
)

// InvoiceStatus is the review status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "PENDING"
	InvoiceStatusVerified InvoiceStatus = "VERIFIED"
	InvoiceStatusRejected InvoiceStatus = "REJECTED"
)

// SpendMoneyState is the Xero state of a spend money transaction
type SpendMoneyState string

const (
	SpendMoneyDraft      SpendMoneyState = "DRAFT"
	SpendMoneyAuthorized SpendMoneyState = "AUTHORIZED"
)

// TaxFormType is the kind of vendor tax form
type TaxFormType string

const (
	TaxFormW9     TaxFormType = "W9"
	TaxFormW8BEN  TaxFormType = "W8-BEN"
	TaxFormW8BENE TaxFormType = "W8-BEN-E"
)

// TaxFormStatus is the verification status of a tax form
type TaxFormStatus string

const (
	TaxFormVerified TaxFormStatus = "VERIFIED"
	TaxFormInvalid  TaxFormStatus = "INVALID"
	TaxFormPending  TaxFormStatus = "PENDING"
)

// POLogStatus tracks a PO log import run
type POLogStatus string

const (
	POLogPending   POLogStatus = "PENDING"
	POLogStarted   POLogStatus = "STARTED"
	POLogCompleted POLogStatus = "COMPLETED"
	POLogFailed    POLogStatus = "FAILED"
)
