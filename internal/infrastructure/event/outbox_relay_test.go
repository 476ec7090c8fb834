package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOutboxRelay_RunOnce(t *testing.T) {
	ctx := context.Background()
	db := setupSQLiteDB(t)
	store := NewGormOutboxStore(db)
	serializer := NewProcurementSerializer()
	writer := NewOutboxWriter(serializer)

	inv, err := procurement.NewInvoice("2416", "05", "01", decimal.NewFromInt(10))
	require.NoError(t, err)
	require.NoError(t, writer.SaveEvents(ctx, db, inv.GetDomainEvents()...))

	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{procurement.EventTypeInvoiceSaved}}
	bus.Subscribe(handler)

	relay := NewOutboxRelay(store, bus, serializer, RelayConfig{BatchSize: 10, PollInterval: time.Hour}, zap.NewNop())
	relay.RunOnce(ctx)

	require.Equal(t, 1, handler.count())
	got, ok := handler.handled[0].(*procurement.InvoiceSavedEvent)
	require.True(t, ok)
	assert.Equal(t, inv.ID, got.InvoiceID)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusSent])

	relay.RunOnce(ctx)
	assert.Equal(t, 1, handler.count())
}

func TestOutboxRelay_FailureSchedulesRetry(t *testing.T) {
	ctx := context.Background()
	db := setupSQLiteDB(t)
	store := NewGormOutboxStore(db)
	serializer := NewProcurementSerializer()

	inv, err := procurement.NewInvoice("2416", "05", "01", decimal.NewFromInt(10))
	require.NoError(t, err)
	require.NoError(t, NewOutboxWriter(serializer).WriteTx(ctx, db, inv.GetDomainEvents()...))

	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(&recordingHandler{err: errors.New("db locked")})

	relay := NewOutboxRelay(store, bus, serializer, DefaultRelayConfig(), zap.NewNop())
	relay.RunOnce(ctx)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusFailed])
}

func TestOutboxWriter_RejectsNonGormTx(t *testing.T) {
	w := NewOutboxWriter(NewProcurementSerializer())
	err := w.SaveEvents(context.Background(), "not a tx", newTestEvent("A"))
	assert.ErrorContains(t, err, "*gorm.DB")
}

func TestOutboxRelay_StartStop(t *testing.T) {
	db := setupSQLiteDB(t)
	relay := NewOutboxRelay(NewGormOutboxStore(db), NewInMemoryEventBus(zap.NewNop()), NewProcurementSerializer(),
		RelayConfig{BatchSize: 5, PollInterval: 10 * time.Millisecond, CleanupEnabled: true, CleanupInterval: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, relay.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, relay.Stop(ctx))
}
