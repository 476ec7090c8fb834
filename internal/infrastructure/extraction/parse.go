package extraction

import (
	"strings"

	"github.com/shopspring/decimal"
)

// InvoiceDetails are the fields read directly from invoice text
type InvoiceDetails struct {
	InvoiceNumber string
	TotalAmount   decimal.Decimal
	HasTotal      bool
}

// W9Details are the fields read from a W9 form
type W9Details struct {
	Name  string
	TaxID string
}

// ParseInvoiceDetails scans for "Invoice Number:" and "Total Amount:" lines
func ParseInvoiceDetails(text string) InvoiceDetails {
	var d InvoiceDetails
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.Contains(line, "Invoice Number:"):
			d.InvoiceNumber = valueAfterColon(line)
		case strings.Contains(line, "Total Amount:"):
			if amount, err := ParseAmount(valueAfterColon(line)); err == nil {
				d.TotalAmount = amount
				d.HasTotal = true
			}
		}
	}
	return d
}

// ParseW9Details takes the line following the "Name" and "Tax ID" labels
func ParseW9Details(text string) W9Details {
	var d W9Details
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i+1 >= len(lines) {
			break
		}
		next := strings.TrimSpace(lines[i+1])
		if d.Name == "" && strings.Contains(line, "Name") {
			d.Name = next
		}
		if d.TaxID == "" && strings.Contains(line, "Tax ID") {
			d.TaxID = next
		}
	}
	return d
}

// ParseAmount parses "$1,234.50" style amounts; parenthesised values are negative
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.NewReplacer("$", "", ",", "", "(", "", ")", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func valueAfterColon(line string) string {
	_, after, _ := strings.Cut(line, ":")
	return strings.TrimSpace(after)
}
