// Package polog decodes and parses PO log exports from the budgeting tool.
package polog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// FolderName is the project folder PO logs are exported to
const FolderName = "1.5 PO Logs"

// UnknownProject is used when no project id can be read from the path
const UnknownProject = "Unknown"

// ErrUnsupportedFormat is returned for files that are not csv, tsv or txt
var ErrUnsupportedFormat = errors.New("polog: unsupported file format")

var (
	fileNamePattern = regexp.MustCompile(`^PO_LOG_(\d{4})[-_]\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}\.txt$`)
	leadingDigits   = regexp.MustCompile(`^(\d+)`)
)

// readyStatuses are the Status values of rows that are ready for payment
var readyStatuses = map[string]bool{
	"to process":     true,
	"ready":          true,
	"rtp":            true,
	"ready to pay":   true,
	"for processing": true,
	"to submit":      true,
}

// Entry is a PO log row ready for payment
type Entry struct {
	PONumber string
	Vendor   string
	Actual   decimal.Decimal
}

// MatchFileName reports whether name is a PO log export and returns its project id
func MatchFileName(name string) (string, bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsPOLogPath reports whether p is a PO log export inside a PO log folder
func IsPOLogPath(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.Contains(p, "/"+FolderName+"/") {
		return false
	}
	_, ok := MatchFileName(path.Base(p))
	return ok
}

// ProjectIDFromPath returns the leading digits of the first path segment
func ProjectIDFromPath(p string) string {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return UnknownProject
	}
	first, _, _ := strings.Cut(p, "/")
	if m := leadingDigits.FindStringSubmatch(first); m != nil {
		return m[1]
	}
	return UnknownProject
}

// Delimiter returns the field separator for a file name
func Delimiter(fileName string) (rune, error) {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".csv":
		return ',', nil
	case ".tsv", ".txt":
		return '\t', nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
}

// Decode converts raw file content to UTF-8. UTF-8 and UTF-16 byte order
// marks are honoured; content without a BOM that is not valid UTF-8 is read
// as Windows-1252.
func Decode(raw []byte) (string, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return string(raw[3:]), nil
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return "", fmt.Errorf("failed to decode UTF-16 po log: %w", err)
		}
		return string(out), nil
	case utf8.Valid(raw):
		return string(raw), nil
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode Windows-1252 po log: %w", err)
	}
	return string(out), nil
}

// Parse decodes a PO log and returns the rows ready for payment. Rows with an
// unparseable amount are skipped; the second return value counts them.
func Parse(fileName string, raw []byte) ([]Entry, int, error) {
	delim, err := Delimiter(fileName)
	if err != nil {
		return nil, 0, err
	}
	text, err := Decode(raw)
	if err != nil {
		return nil, 0, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read po log header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		entries []Entry
		skipped int
	)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to read po log row: %w", err)
		}
		if !readyStatuses[strings.ToLower(field(row, "Status"))] {
			continue
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(field(row, "Actualized $"), ",", ""))
		if err != nil {
			skipped++
			continue
		}
		po := field(row, "No.")
		if po == "" {
			po = UnknownProject
		}
		entries = append(entries, Entry{PONumber: po, Vendor: field(row, "Vendor"), Actual: amount})
	}
	return entries, skipped, nil
}
