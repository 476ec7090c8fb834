package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/docsync/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedEvents(t *testing.T, repo *persistence.GormFileEventRepository, statuses ...fileevent.Status) []uuid.UUID {
	t.Helper()
	ctx := context.Background()
	ids := make([]uuid.UUID, len(statuses))
	for i, s := range statuses {
		ev := fileEvent(t, "2416_05_0"+string(rune('1'+i))+" Acme Invoice.pdf")
		id, dup, err := repo.Add(ctx, ev)
		require.NoError(t, err)
		require.False(t, dup)
		require.NoError(t, repo.UpdateStatus(ctx, id, s))
		ids[i] = id
	}
	return ids
}

func TestEventAdmin_List(t *testing.T) {
	repo := persistence.NewGormFileEventRepository(newTestDB(t))
	seedEvents(t, repo, fileevent.StatusFailed, fileevent.StatusProcessed, fileevent.StatusFailed)
	admin := NewEventAdmin(repo, zap.NewNop())

	failed, err := admin.List(context.Background(), fileevent.StatusFailed, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), failed.Total)
	for _, e := range failed.Items {
		assert.Equal(t, "failed", e.Status)
		assert.Equal(t, "2416", e.ProjectID)
		assert.Equal(t, "INVOICE", e.FileType)
	}

	all, err := admin.List(context.Background(), "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Equal(t, 20, all.PageSize)

	_, err = admin.List(context.Background(), fileevent.Status("archived"), 1, 20)
	var de *shared.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "INVALID_INPUT", de.Code)
}

func TestEventAdmin_Retry(t *testing.T) {
	repo := persistence.NewGormFileEventRepository(newTestDB(t))
	ids := seedEvents(t, repo, fileevent.StatusFailed, fileevent.StatusProcessed)
	admin := NewEventAdmin(repo, zap.NewNop())
	ctx := context.Background()

	out, err := admin.Retry(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "pending", out.Status)
	stored, err := repo.FindByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, fileevent.StatusPending, stored.Status)

	tests := []struct {
		name string
		id   uuid.UUID
		code string
	}{
		{"processed event", ids[1], "INVALID_STATE"},
		{"already requeued", ids[0], "INVALID_STATE"},
		{"unknown event", uuid.New(), "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := admin.Retry(ctx, tt.id)
			var de *shared.DomainError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.code, de.Code)
		})
	}
}
