package monday

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PO board column ids
const (
	ColumnProjectID   = "project_id"
	ColumnPONumber    = "numbers08"
	ColumnDescription = "text6"
	ColumnContact     = "connect_boards1"
	ColumnFolderLink  = "dup__of_tax_form__1"
	ColumnStatus      = "status"
	ColumnTaxLink     = "dup__of_invoice"
)

// Subitem board column ids
const (
	SubitemColumnNotes         = "payment_notes__1"
	SubitemColumnStatus        = "status4"
	SubitemColumnFileNumber    = "text0"
	SubitemColumnDescription   = "text98"
	SubitemColumnQuantity      = "numbers0"
	SubitemColumnRate          = "numbers9"
	SubitemColumnDate          = "date"
	SubitemColumnDueDate       = "date_1__1"
	SubitemColumnAccountNumber = "dropdown"
	SubitemColumnLink          = "link"
)

// Contact board column ids
const (
	ContactColumnPhone        = "phone"
	ContactColumnEmail        = "email"
	ContactColumnAddressLine1 = "text1"
	ContactColumnCity         = "text3"
	ContactColumnZip          = "text84"
	ContactColumnCountry      = "text6"
	ContactColumnTaxType      = "text14"
	ContactColumnTaxNumber    = "text2"
)

// Subitem status labels written by the pipeline
const (
	SubitemStatusPending       = "PENDING"
	SubitemStatusRTP           = "RTP"
	SubitemStatusPaid          = "PAID"
	SubitemStatusPOLogMismatch = "PO Log Mismatch"
)

// ColumnValues is the column_values JSON argument of create and change mutations
type ColumnValues map[string]any

// Text sets a text or numbers column
func (c ColumnValues) Text(id, v string) ColumnValues {
	if v != "" {
		c[id] = v
	}
	return c
}

// Status sets a status column by label
func (c ColumnValues) Status(id, label string) ColumnValues {
	if label != "" {
		c[id] = map[string]string{"label": label}
	}
	return c
}

// Link sets a link column
func (c ColumnValues) Link(id, url, text string) ColumnValues {
	if url != "" {
		c[id] = map[string]string{"url": url, "text": text}
	}
	return c
}

// Date sets a date column from YYYY-MM-DD
func (c ColumnValues) Date(id, date string) ColumnValues {
	if date != "" {
		c[id] = map[string]string{"date": date}
	}
	return c
}

// Dropdown sets a dropdown column by label
func (c ColumnValues) Dropdown(id, label string) ColumnValues {
	if label != "" {
		c[id] = map[string][]string{"labels": {label}}
	}
	return c
}

// Connect links items of another board
func (c ColumnValues) Connect(id string, itemIDs ...int64) ColumnValues {
	if len(itemIDs) > 0 {
		c[id] = map[string][]int64{"item_ids": itemIDs}
	}
	return c
}

// ColumnValue is a column as returned by queries. Value is the raw JSON
// encoded column value; Text is the display text.
type ColumnValue struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// Item is a board item or subitem
type Item struct {
	ID           int64
	Name         string
	BoardID      int64
	ParentID     int64
	GroupID      string
	ColumnValues map[string]ColumnValue
}

// Text returns the display text of a column
func (i *Item) Text(columnID string) string {
	if i == nil {
		return ""
	}
	return strings.TrimSpace(i.ColumnValues[columnID].Text)
}

// Matches compares a column with want, by text, by decoded value, and
// numerically when both sides are integers ("05" matches "5").
func (i *Item) Matches(columnID, want string) bool {
	cv, ok := i.ColumnValues[columnID]
	if !ok {
		return false
	}
	candidates := []string{strings.TrimSpace(cv.Text)}
	if cv.Value != "" {
		var decoded any
		if err := json.Unmarshal([]byte(cv.Value), &decoded); err == nil {
			switch v := decoded.(type) {
			case string:
				candidates = append(candidates, v)
			case float64:
				candidates = append(candidates, strconv.FormatFloat(v, 'f', -1, 64))
			}
		} else {
			candidates = append(candidates, strings.Trim(cv.Value, `"`))
		}
	}
	wantN, wantErr := strconv.Atoi(want)
	for _, c := range candidates {
		if c == want {
			return true
		}
		if n, err := strconv.Atoi(c); err == nil && wantErr == nil && n == wantN {
			return true
		}
	}
	return false
}

// Contact is a row of the contact board
type Contact struct {
	ID           int64
	Name         string
	Phone        string
	Email        string
	AddressLine1 string
	City         string
	Zip          string
	Country      string
	TaxType      string
	TaxNumber    string
}

// Group is a board group; PO board groups are titled by project number
type Group struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
