package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/infrastructure/cache"
	"github.com/docsync/backend/internal/infrastructure/dropbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const member = "dbmid:abc"

type mockFeed struct {
	mock.Mock
}

func (m *mockFeed) ListFolder(ctx context.Context, path string, recursive bool) (*dropbox.ListFolderResult, error) {
	args := m.Called(ctx, path, recursive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dropbox.ListFolderResult), args.Error(1)
}

func (m *mockFeed) ListFolderContinue(ctx context.Context, cursor string) (*dropbox.ListFolderResult, error) {
	args := m.Called(ctx, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dropbox.ListFolderResult), args.Error(1)
}

func (m *mockFeed) MemberID() string { return member }

type memCursors struct {
	cursors map[string]string
	saves   int
}

func newMemCursors() *memCursors { return &memCursors{cursors: map[string]string{}} }

func (s *memCursors) Load(ctx context.Context, memberID string) (string, bool, error) {
	c, ok := s.cursors[memberID]
	return c, ok, nil
}

func (s *memCursors) Save(ctx context.Context, memberID, cursor string) error {
	s.saves++
	s.cursors[memberID] = cursor
	return nil
}

type fakeRecorder struct {
	events []*fileevent.FileEvent
	dup    bool
	err    error
}

func (f *fakeRecorder) Add(ctx context.Context, ev *fileevent.FileEvent) (uuid.UUID, bool, error) {
	if f.err != nil {
		return uuid.Nil, false, f.err
	}
	f.events = append(f.events, ev)
	return ev.ID, f.dup, nil
}

type fakePOLogQueue struct {
	pologs []string
}

func (f *fakePOLogQueue) EnqueuePOLog(ctx context.Context, path string) error {
	f.pologs = append(f.pologs, path)
	return nil
}

var ts = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func file(path string, modified *time.Time) dropbox.Metadata {
	return dropbox.Metadata{Tag: dropbox.TagFile, Name: fileevent.BaseName(path), ID: "id:" + path, PathDisplay: path, ServerModified: modified}
}

func folder(path string) dropbox.Metadata {
	return dropbox.Metadata{Tag: dropbox.TagFolder, Name: fileevent.BaseName(path), PathDisplay: path}
}

func deleted(path string, modified *time.Time) dropbox.Metadata {
	return dropbox.Metadata{Tag: dropbox.TagDeleted, Name: fileevent.BaseName(path), PathDisplay: path, ServerModified: modified}
}

func setup(t *testing.T) (*Router, *mockFeed, *memCursors, *fakeRecorder, *fakePOLogQueue) {
	t.Helper()
	feed := new(mockFeed)
	cursors := newMemCursors()
	rec := &fakeRecorder{}
	queue := &fakePOLogQueue{}
	r := NewRouter(feed, cursors, rec, zap.NewNop())
	r.SetPOLogQueue(queue)
	return r, feed, cursors, rec, queue
}

func TestRouter_Sync_InitialisesCursor(t *testing.T) {
	r, feed, cursors, rec, _ := setup(t)
	ctx := context.Background()

	feed.On("ListFolder", mock.Anything, "", true).
		Return(&dropbox.ListFolderResult{Cursor: "c1", HasMore: true, Entries: []dropbox.Metadata{folder("/2416 - Film")}}, nil)
	feed.On("ListFolderContinue", mock.Anything, "c1").
		Return(&dropbox.ListFolderResult{Cursor: "c2"}, nil)

	require.NoError(t, r.Sync(ctx))
	assert.Equal(t, "c2", cursors.cursors[member])
	assert.Empty(t, rec.events)
	feed.AssertExpectations(t)
}

func TestRouter_Sync_RecordsFileAdded(t *testing.T) {
	r, feed, cursors, rec, _ := setup(t)
	cursors.cursors[member] = "c1"

	path := "/2416 - Film/1. Purchase Orders/2416_05 Acme Rentals/2416_05_02 Acme Rentals Invoice.pdf"
	feed.On("ListFolderContinue", mock.Anything, "c1").
		Return(&dropbox.ListFolderResult{Cursor: "c2", HasMore: true, Entries: []dropbox.Metadata{file(path, &ts)}}, nil)
	feed.On("ListFolderContinue", mock.Anything, "c2").
		Return(&dropbox.ListFolderResult{Cursor: "c3"}, nil)

	require.NoError(t, r.Sync(context.Background()))

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, fileevent.EventTypeFileAdded, ev.EventType)
	assert.Equal(t, "2416", ev.Project())
	assert.Equal(t, "05", ev.PO())
	assert.Equal(t, "02", ev.Number())
	assert.Equal(t, fileevent.FileTypeInvoice, ev.Type())
	assert.Equal(t, string(fileevent.POTypeVendor), ev.VendorType)
	assert.True(t, ev.Timestamp.Equal(ts))
	assert.Equal(t, "c3", cursors.cursors[member])
}

func TestRouter_Sync_SkipsMismatchAndUnknown(t *testing.T) {
	r, feed, cursors, rec, _ := setup(t)
	cursors.cursors[member] = "c1"

	entries := []dropbox.Metadata{
		// PO in the file name differs from the folder
		file("/2416 - Film/1. Purchase Orders/2416_05 Acme/2416_06 Acme Invoice.pdf", &ts),
		// outside the naming convention
		file("/2416 - Film/1. Purchase Orders/2416_05 Acme/notes.txt", &ts),
		// folder that is not a PO folder
		folder("/2416 - Film/Scripts"),
		{Tag: "unknown", Name: "x", PathDisplay: "/x"},
		deleted("/2416 - Film/old.pdf", nil),
	}
	feed.On("ListFolderContinue", mock.Anything, "c1").
		Return(&dropbox.ListFolderResult{Cursor: "c2", Entries: entries}, nil)

	require.NoError(t, r.Sync(context.Background()))
	assert.Empty(t, rec.events)
	assert.Equal(t, "c2", cursors.cursors[member])
}

func TestRouter_Sync_FolderAdded(t *testing.T) {
	r, feed, cursors, rec, _ := setup(t)
	cursors.cursors[member] = "c1"

	feed.On("ListFolderContinue", mock.Anything, "c1").
		Return(&dropbox.ListFolderResult{Cursor: "c2", Entries: []dropbox.Metadata{
			folder("/2416 - Film/1. Purchase Orders/2416_07 Card Spend 1234"),
		}}, nil)

	require.NoError(t, r.Sync(context.Background()))
	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, fileevent.EventTypeFolderAdded, ev.EventType)
	assert.Equal(t, "07", ev.PO())
	assert.Equal(t, string(fileevent.POTypeCC), ev.VendorType)
}

func TestRouter_Sync_RenameAndMove(t *testing.T) {
	r, feed, cursors, rec, _ := setup(t)
	cursors.cursors[member] = "c1"

	later := ts.Add(time.Minute)
	poDir := "/2416 - Film/1. Purchase Orders/2416_05 Acme"
	entries := []dropbox.Metadata{
		deleted(poDir+"/scan.pdf", &ts),
		file(poDir+"/2416_05 Acme Invoice.pdf", &ts),
		deleted(poDir+"/2416_05_03 Acme Receipt.pdf", &later),
		file("/2416 - Film/1. Purchase Orders/2416_06 Grip/2416_05_03 Acme Receipt.pdf", &later),
	}
	feed.On("ListFolderContinue", mock.Anything, "c1").
		Return(&dropbox.ListFolderResult{Cursor: "c2", Entries: entries}, nil)

	require.NoError(t, r.Sync(context.Background()))
	require.Len(t, rec.events, 2)

	renamed := rec.events[0]
	assert.Equal(t, fileevent.EventTypeFileRenamed, renamed.EventType)
	assert.Equal(t, poDir+"/scan.pdf", renamed.OldPath)
	assert.Equal(t, "01", renamed.Number())

	moved := rec.events[1]
	assert.Equal(t, fileevent.EventTypeFileMoved, moved.EventType)
	assert.Equal(t, poDir+"/2416_05_03 Acme Receipt.pdf", moved.OldPath)
	assert.Equal(t, "06", moved.PO(), "folder info wins for moved files")
}

func TestPair(t *testing.T) {
	other := ts.Add(time.Second)
	t.Run("deletion without timestamp never matches", func(t *testing.T) {
		m, added, del := pair(
			[]dropbox.Metadata{file("/a/new.pdf", &ts)},
			[]dropbox.Metadata{deleted("/a/old.pdf", nil)},
		)
		assert.Empty(t, m)
		assert.Len(t, added, 1)
		assert.Len(t, del, 1)
	})
	t.Run("different timestamps never match", func(t *testing.T) {
		m, _, _ := pair(
			[]dropbox.Metadata{file("/a/new.pdf", &other)},
			[]dropbox.Metadata{deleted("/a/old.pdf", &ts)},
		)
		assert.Empty(t, m)
	})
	t.Run("same path is neither rename nor move", func(t *testing.T) {
		m, _, _ := pair(
			[]dropbox.Metadata{file("/a/x.pdf", &ts)},
			[]dropbox.Metadata{deleted("/a/x.pdf", &ts)},
		)
		assert.Empty(t, m)
	})
	t.Run("each addition matches once", func(t *testing.T) {
		m, added, del := pair(
			[]dropbox.Metadata{file("/a/new.pdf", &ts)},
			[]dropbox.Metadata{deleted("/a/one.pdf", &ts), deleted("/a/two.pdf", &ts)},
		)
		assert.Len(t, m, 1)
		assert.Empty(t, added)
		assert.Len(t, del, 1)
	})
}

func TestRouter_Sync_POLogExport(t *testing.T) {
	r, feed, cursors, rec, queue := setup(t)
	cursors.cursors[member] = "c1"

	path := "/2416 - Film/1.5 PO Logs/PO_LOG_2416-2024-03-01_10-00-00.txt"
	feed.On("ListFolderContinue", mock.Anything, "c1").
		Return(&dropbox.ListFolderResult{Cursor: "c2", Entries: []dropbox.Metadata{file(path, &ts)}}, nil)

	require.NoError(t, r.Sync(context.Background()))
	assert.Empty(t, rec.events)
	assert.Equal(t, []string{path}, queue.pologs)
}

func TestRouter_Sync_SavesCursorOnError(t *testing.T) {
	r, feed, cursors, _, _ := setup(t)
	cursors.cursors[member] = "c1"

	feed.On("ListFolderContinue", mock.Anything, "c1").
		Return(&dropbox.ListFolderResult{Cursor: "c2", HasMore: true}, nil)
	feed.On("ListFolderContinue", mock.Anything, "c2").
		Return(nil, errors.New("boom"))

	err := r.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, "c2", cursors.cursors[member])
	assert.Equal(t, 1, cursors.saves)
}

func TestRouter_Sync_RecorderErrorsAreSkipped(t *testing.T) {
	r, feed, cursors, rec, _ := setup(t)
	cursors.cursors[member] = "c1"
	rec.err = errors.New("db down")

	feed.On("ListFolderContinue", mock.Anything, "c1").
		Return(&dropbox.ListFolderResult{Cursor: "c2", Entries: []dropbox.Metadata{
			folder("/2416 - Film/1. Purchase Orders/2416_05 Acme"),
		}}, nil)

	require.NoError(t, r.Sync(context.Background()))
	assert.Equal(t, "c2", cursors.cursors[member])
}

func TestRouter_Accept(t *testing.T) {
	r, _, _, _, _ := setup(t)
	ctx := context.Background()

	assert.True(t, r.Accept(ctx, []byte("a")), "accepts everything without a store")
	assert.True(t, r.Accept(ctx, []byte("a")))

	store := cache.NewMemoryStore()
	defer store.Close()
	r.SetDeduplication(store, time.Minute)

	assert.True(t, r.Accept(ctx, []byte(`{"list_folder":{"accounts":["a"]}}`)))
	assert.False(t, r.Accept(ctx, []byte(`{"list_folder":{"accounts":["a"]}}`)))
	assert.True(t, r.Accept(ctx, []byte(`{"list_folder":{"accounts":["b"]}}`)))
}
