package event

import (
	"testing"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcurementSerializer_RoundTrip(t *testing.T) {
	s := NewProcurementSerializer()
	assert.Equal(t, []string{
		procurement.EventTypeDetailItemCreated,
		procurement.EventTypeDetailItemUpdated,
		procurement.EventTypeInvoiceSaved,
		procurement.EventTypeXeroBillCreated,
	}, s.RegisteredTypes())

	inv, err := procurement.NewInvoice("2416", "05", "02", decimal.RequireFromString("1250.50"))
	require.NoError(t, err)
	ev := inv.GetDomainEvents()[0]

	data, err := s.Serialize(ev)
	require.NoError(t, err)

	decoded, err := s.Deserialize(ev.EventType(), data)
	require.NoError(t, err)
	saved, ok := decoded.(*procurement.InvoiceSavedEvent)
	require.True(t, ok)
	assert.Equal(t, ev.EventID(), saved.EventID())
	assert.Equal(t, inv.ID, saved.InvoiceID)
	assert.Equal(t, "02", saved.InvoiceNumber)
	assert.True(t, inv.Total.Equal(saved.Total))
}

func TestEventSerializer_Unknown(t *testing.T) {
	s := NewEventSerializer()
	_, err := s.Deserialize("Nope", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown event type")

	s = NewProcurementSerializer()
	_, err = s.Deserialize(procurement.EventTypeInvoiceSaved, []byte(`{bad`))
	assert.Error(t, err)
}
