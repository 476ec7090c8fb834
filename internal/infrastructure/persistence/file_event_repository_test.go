package persistence

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInvoiceEvent(t *testing.T, file string) *fileevent.FileEvent {
	t.Helper()
	path := "/2024/1001 - Feature/1. Purchase Orders/1001_23 Acme/" + file
	e, err := fileevent.NewFileEvent(fileevent.EventTypeFileAdded, "id:"+file, file, path, time.Now())
	require.NoError(t, err)
	info, ok := fileevent.ParseFilename(file)
	require.True(t, ok)
	e.ApplyFileInfo(info)
	return e
}

func TestGormFileEventRepository_Add(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts new event", func(t *testing.T) {
		repo := NewGormFileEventRepository(setupSQLiteDB(t))
		e := newInvoiceEvent(t, "1001_23 Acme Invoice.pdf")

		id, dup, err := repo.Add(ctx, e)
		require.NoError(t, err)
		assert.False(t, dup)
		assert.Equal(t, e.ID, id)

		stored, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, fileevent.StatusPending, stored.Status)
		assert.Equal(t, "1001", stored.Project())
		assert.Equal(t, "01", stored.Number())
	})

	t.Run("second event with the same key marks the first duplicate", func(t *testing.T) {
		repo := NewGormFileEventRepository(setupSQLiteDB(t))
		first := newInvoiceEvent(t, "1001_23 Acme Invoice.pdf")
		firstID, _, err := repo.Add(ctx, first)
		require.NoError(t, err)

		id, dup, err := repo.Add(ctx, newInvoiceEvent(t, "1001_23 Acme Invoice.pdf"))
		require.NoError(t, err)
		assert.True(t, dup)
		assert.Equal(t, firstID, id)

		stored, err := repo.FindByID(ctx, firstID)
		require.NoError(t, err)
		assert.Equal(t, fileevent.StatusDuplicate, stored.Status)

		page, err := repo.List(ctx, "", shared.DefaultFilter())
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("events without a full key are never deduplicated", func(t *testing.T) {
		repo := NewGormFileEventRepository(setupSQLiteDB(t))
		for i := 0; i < 2; i++ {
			e, err := fileevent.NewFileEvent(fileevent.EventTypeFolderAdded, "id:folder", "1001_23 Acme",
				"/2024/1001 - Feature/1. Purchase Orders/1001_23 Acme", time.Now())
			require.NoError(t, err)
			_, dup, err := repo.Add(ctx, e)
			require.NoError(t, err)
			assert.False(t, dup)
		}
		page, err := repo.List(ctx, fileevent.StatusPending, shared.DefaultFilter())
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
	})

	t.Run("existing duplicate row is left as is", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewGormFileEventRepository(db)
		e := newInvoiceEvent(t, "1001_23 Acme Invoice.pdf")
		existingID := uuid.New()
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "file_events" WHERE project_id = $1 AND po_number = $2 AND file_number = $3 AND file_type = $4`)).
			WithArgs("1001", "23", "01", "INVOICE", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "file_name", "path", "status", "created_at", "updated_at"}).
				AddRow(existingID.String(), e.FileName, e.Path, "duplicate", now, now))
		mock.ExpectCommit()

		id, dup, err := repo.Add(ctx, e)
		require.NoError(t, err)
		assert.True(t, dup)
		assert.Equal(t, existingID, id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormFileEventRepository_ClaimPending(t *testing.T) {
	ctx := context.Background()

	t.Run("claims once", func(t *testing.T) {
		repo := NewGormFileEventRepository(setupSQLiteDB(t))
		_, _, err := repo.Add(ctx, newInvoiceEvent(t, "1001_23 Acme Invoice.pdf"))
		require.NoError(t, err)
		_, _, err = repo.Add(ctx, newInvoiceEvent(t, "1001_23_02 Acme Invoice.pdf"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		claimed := make([]int, 2)
		for i := range claimed {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				events, err := repo.ClaimPending(ctx, 10)
				assert.NoError(t, err)
				claimed[i] = len(events)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 2, claimed[0]+claimed[1])

		pending, err := repo.FetchPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("postgres uses skip locked", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewGormFileEventRepository(db)
		id := uuid.New()
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE SKIP LOCKED`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "file_name", "path", "status", "created_at", "updated_at"}).
				AddRow(id.String(), "a.pdf", "/a.pdf", "pending", now, now))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "file_events" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		events, err := repo.ClaimPending(ctx, 5)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, fileevent.StatusProcessing, events[0].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormFileEventRepository_ReleaseStale(t *testing.T) {
	ctx := context.Background()
	repo := NewGormFileEventRepository(setupSQLiteDB(t))
	_, _, err := repo.Add(ctx, newInvoiceEvent(t, "1001_23 Acme Invoice.pdf"))
	require.NoError(t, err)
	_, _, err = repo.Add(ctx, newInvoiceEvent(t, "1001_23_02 Acme Invoice.pdf"))
	require.NoError(t, err)

	claimed, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	released, err := repo.ReleaseStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, released, "recent claims are kept")

	released, err = repo.ReleaseStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), released)

	pending, err := repo.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	released, err = repo.ReleaseStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, released, "pending events are not touched")
}

func TestGormFileEventRepository_Updates(t *testing.T) {
	ctx := context.Background()
	repo := NewGormFileEventRepository(setupSQLiteDB(t))
	id, _, err := repo.Add(ctx, newInvoiceEvent(t, "1001_23 Acme Invoice.pdf"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateEnrichment(ctx, id, fileevent.Enrichment{
		ShareLink:  "https://dropbox/s/abc",
		OCRData:    "Invoice Number: 1",
		OpenAIData: `{"line_items":[]}`,
		Status:     fileevent.StatusProcessed,
	}))
	stored, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://dropbox/s/abc", stored.DropboxShareLink)
	assert.Equal(t, "Invoice Number: 1", stored.OCRData)
	assert.Equal(t, fileevent.StatusProcessed, stored.Status)

	require.NoError(t, repo.UpdateStatus(ctx, id, fileevent.StatusFailed))
	page, err := repo.List(ctx, fileevent.StatusFailed, shared.DefaultFilter())
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	assert.Error(t, repo.UpdateStatus(ctx, id, "bogus"))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.New(), fileevent.StatusFailed), shared.ErrNotFound)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
