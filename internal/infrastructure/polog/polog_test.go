package polog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const sampleTSV = "No.\tVendor\tStatus\tActualized $\n" +
	"5\tAcme Rentals\tRTP\t1,250.00\n" +
	"6\tGrip Co\tPaid\t300\n" +
	"7\tCafé Noir\tReady To Pay\t42.10\n" +
	"8\tBad Amount\tready\tTBD\n" +
	"\tNo Number\tto submit\t10\n"

func TestParse(t *testing.T) {
	entries, skipped, err := Parse("PO_LOG_2416-2024-03-01_10-00-00.txt", []byte(sampleTSV))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, entries, 3)

	assert.Equal(t, "5", entries[0].PONumber)
	assert.True(t, entries[0].Actual.Equal(decimal.NewFromInt(1250)))
	assert.Equal(t, "Café Noir", entries[1].Vendor)
	assert.Equal(t, UnknownProject, entries[2].PONumber)
}

func TestParse_CSV(t *testing.T) {
	raw := "No.,Vendor,Status,Actualized $\n12,\"Lights, Inc\",to process,\"2,000.50\"\n"
	entries, _, err := Parse("log.CSV", []byte(raw))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Lights, Inc", entries[0].Vendor)
	assert.True(t, entries[0].Actual.Equal(decimal.RequireFromString("2000.50")))
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, _, err := Parse("log.xlsx", []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecode(t *testing.T) {
	t.Run("utf8 bom", func(t *testing.T) {
		out, err := Decode(append([]byte{0xEF, 0xBB, 0xBF}, "No.\tVendor"...))
		require.NoError(t, err)
		assert.Equal(t, "No.\tVendor", out)
	})

	t.Run("utf16 le bom", func(t *testing.T) {
		enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
		raw, _, err := transform.Bytes(enc, []byte("Café"))
		require.NoError(t, err)
		out, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, "Café", out)
	})

	t.Run("windows-1252", func(t *testing.T) {
		raw, _, err := transform.Bytes(charmap.Windows1252.NewEncoder(), []byte("Café – rental"))
		require.NoError(t, err)
		out, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, "Café – rental", out)
	})
}

func TestProjectIDFromPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/2416 - Film/1.5 PO Logs/PO_LOG_2416-2024-03-01_10-00-00.txt", "2416"},
		{"2417_Ad/log.csv", "2417"},
		{"/Budgets/log.csv", UnknownProject},
		{"", UnknownProject},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectIDFromPath(tt.in))
		})
	}
}

func TestMatchFileName(t *testing.T) {
	project, ok := MatchFileName("PO_LOG_2416-2024-03-01_10-00-00.txt")
	assert.True(t, ok)
	assert.Equal(t, "2416", project)

	_, ok = MatchFileName("PO_LOG_2416.txt")
	assert.False(t, ok)

	assert.True(t, IsPOLogPath("/2416 - Film/1.5 PO Logs/PO_LOG_2416_2024-03-01_10-00-00.txt"))
	assert.False(t, IsPOLogPath("/2416 - Film/PO_LOG_2416_2024-03-01_10-00-00.txt"))
}
