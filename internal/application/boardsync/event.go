// Package boardsync applies PO board webhooks to the local procurement tables.
package boardsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/infrastructure/monday"
)

// Errors returned for malformed webhooks
var (
	ErrMissingEvent   = errors.New("boardsync: webhook without event")
	ErrMissingPulseID = errors.New("boardsync: event without pulse id")
	ErrMissingStatus  = errors.New("boardsync: status change without label")
)

// Webhook is the body of a board webhook call. The first call of a new
// subscription carries only Challenge.
type Webhook struct {
	Challenge string `json:"challenge,omitempty"`
	Event     *Event `json:"event,omitempty"`
}

// ID is a board id sent either as a JSON number or a string
type ID int64

// UnmarshalJSON accepts 123, "123" and null
func (id *ID) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if raw == "" || raw == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	*id = ID(n)
	return nil
}

// Event is a column change, item delete or status change on the board
type Event struct {
	PulseID       ID              `json:"pulseId"`
	ParentItemID  ID              `json:"parentItemId"`
	BoardID       ID              `json:"boardId"`
	ColumnID      string          `json:"columnId"`
	ColumnType    string          `json:"columnType"`
	Value         json.RawMessage `json:"value"`
	PreviousValue json.RawMessage `json:"previousValue"`
	ChangedAt     float64         `json:"changedAt"`
}

// subitemFields maps subitem column ids to detail item fields
var subitemFields = map[string]string{
	monday.SubitemColumnStatus:        procurement.FieldState,
	monday.SubitemColumnFileNumber:    procurement.FieldDetailNumber,
	monday.SubitemColumnDescription:   procurement.FieldDescription,
	monday.SubitemColumnQuantity:      procurement.FieldQuantity,
	monday.SubitemColumnRate:          procurement.FieldRate,
	monday.SubitemColumnDate:          procurement.FieldTransactionDate,
	monday.SubitemColumnDueDate:       procurement.FieldDueDate,
	monday.SubitemColumnAccountNumber: procurement.FieldAccountCode,
	monday.SubitemColumnLink:          procurement.FieldFileLink,
}

// FieldForColumn returns the detail item field a subitem column maps to
func FieldForColumn(columnID string) (string, bool) {
	f, ok := subitemFields[columnID]
	return f, ok
}

// columnValue is the union of the value shapes the board sends
type columnValue struct {
	Label *struct {
		Text string `json:"text"`
	} `json:"label"`
	Date         string          `json:"date"`
	URL          string          `json:"url"`
	ChosenValues []struct {
		Name string `json:"name"`
	} `json:"chosenValues"`
	Value json.RawMessage `json:"value"`
}

// Text extracts the new value of the changed column according to its type.
// Cleared columns yield an empty string.
func (e *Event) Text() string {
	return valueText(e.ColumnType, e.Value)
}

// StatusLabel is the new label of a status column change
func (e *Event) StatusLabel() string {
	return valueText("color", e.Value)
}

func valueText(columnType string, raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var v columnValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch columnType {
	case "color", "status":
		if v.Label != nil {
			return strings.TrimSpace(v.Label.Text)
		}
		return ""
	case "date":
		return v.Date
	case "link":
		return v.URL
	case "dropdown":
		if len(v.ChosenValues) > 0 {
			return strings.TrimSpace(v.ChosenValues[0].Name)
		}
		return ""
	}
	return scalarText(v.Value)
}

// scalarText renders a JSON string or number without quotes
func scalarText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}

// itemColumnText reads a column of a fetched item the way the webhook would
// report it. Link columns carry the url in their raw value.
func itemColumnText(cv monday.ColumnValue) string {
	if cv.Type == "link" && cv.Value != "" {
		var v columnValue
		if err := json.Unmarshal([]byte(cv.Value), &v); err == nil && v.URL != "" {
			return v.URL
		}
	}
	return strings.TrimSpace(cv.Text)
}

// boardStates maps board status labels that differ from detail states
var boardStates = map[string]procurement.DetailState{
	strings.ToUpper(monday.SubitemStatusPOLogMismatch): procurement.DetailStatePOMismatch,
}

// normaliseState turns a board status label into a detail state name
func normaliseState(label string) string {
	upper := strings.ToUpper(strings.TrimSpace(label))
	if st, ok := boardStates[upper]; ok {
		return string(st)
	}
	return upper
}
