package xero

// Invoice and bank transaction types used by the client
const (
	InvoiceTypeBill      = "ACCPAY"
	BankTransactionSpend = "SPEND"

	StatusDraft      = "DRAFT"
	StatusSubmitted  = "SUBMITTED"
	StatusAuthorised = "AUTHORISED"

	// LineAmountsExclusive means unit amounts exclude tax
	LineAmountsExclusive = "Exclusive"

	dateLayout = "2006-01-02"
)

// Address is a contact address
type Address struct {
	AddressType  string `json:"AddressType"`
	AddressLine1 string `json:"AddressLine1,omitempty"`
	AddressLine2 string `json:"AddressLine2,omitempty"`
	City         string `json:"City,omitempty"`
	Region       string `json:"Region,omitempty"`
	PostalCode   string `json:"PostalCode,omitempty"`
	Country      string `json:"Country,omitempty"`
}

// Phone is a contact phone number
type Phone struct {
	PhoneType   string `json:"PhoneType"`
	PhoneNumber string `json:"PhoneNumber,omitempty"`
}

// Contact is a Xero contact
type Contact struct {
	ContactID    string    `json:"ContactID,omitempty"`
	Name         string    `json:"Name,omitempty"`
	EmailAddress string    `json:"EmailAddress,omitempty"`
	TaxNumber    string    `json:"TaxNumber,omitempty"`
	IsSupplier   bool      `json:"IsSupplier,omitempty"`
	Addresses    []Address `json:"Addresses,omitempty"`
	Phones       []Phone   `json:"Phones,omitempty"`
}

// LineItem is a line of an invoice or bank transaction
type LineItem struct {
	LineItemID  string  `json:"LineItemID,omitempty"`
	Description string  `json:"Description,omitempty"`
	Quantity    float64 `json:"Quantity"`
	UnitAmount  float64 `json:"UnitAmount"`
	LineAmount  float64 `json:"LineAmount,omitempty"`
	AccountCode string  `json:"AccountCode,omitempty"`
	TaxType     string  `json:"TaxType,omitempty"`
}

// Invoice is a Xero invoice; bills are ACCPAY invoices
type Invoice struct {
	InvoiceID       string     `json:"InvoiceID,omitempty"`
	Type            string     `json:"Type,omitempty"`
	Contact         Contact    `json:"Contact"`
	Reference       string     `json:"Reference,omitempty"`
	InvoiceNumber   string     `json:"InvoiceNumber,omitempty"`
	Date            string     `json:"Date,omitempty"`
	DueDate         string     `json:"DueDate,omitempty"`
	Status          string     `json:"Status,omitempty"`
	LineAmountTypes string     `json:"LineAmountTypes,omitempty"`
	LineItems       []LineItem `json:"LineItems"`
	Total           float64    `json:"Total,omitempty"`
}

// BankAccount identifies the account a bank transaction posts to
type BankAccount struct {
	Code      string `json:"Code,omitempty"`
	AccountID string `json:"AccountID,omitempty"`
}

// BankTransaction is a Xero bank transaction; card spend uses SPEND
type BankTransaction struct {
	BankTransactionID string      `json:"BankTransactionID,omitempty"`
	Type              string      `json:"Type"`
	Contact           Contact     `json:"Contact"`
	BankAccount       BankAccount `json:"BankAccount"`
	Reference         string      `json:"Reference,omitempty"`
	Date              string      `json:"Date,omitempty"`
	Status            string      `json:"Status,omitempty"`
	LineAmountTypes   string      `json:"LineAmountTypes,omitempty"`
	LineItems         []LineItem  `json:"LineItems"`
}

type contactsEnvelope struct {
	Contacts []Contact `json:"Contacts"`
}

type invoicesEnvelope struct {
	Invoices []Invoice `json:"Invoices"`
}

type bankTransactionsEnvelope struct {
	BankTransactions []BankTransaction `json:"BankTransactions"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type apiError struct {
	Type        string `json:"Type"`
	Message     string `json:"Message"`
	Detail      string `json:"Detail"`
	ErrorNumber int    `json:"ErrorNumber"`
}
