package fileevent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileEvent(t *testing.T) {
	t.Run("creates pending event", func(t *testing.T) {
		ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		e, err := NewFileEvent(EventTypeFileAdded, "id:1", "a.pdf", "/p/a.pdf", ts)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, e.Status)
		assert.Equal(t, ts, e.Timestamp)
		assert.NotEqual(t, "", e.ID.String())
	})

	t.Run("requires name and path", func(t *testing.T) {
		_, err := NewFileEvent(EventTypeFileAdded, "", "", "/p", time.Now())
		assert.Error(t, err)
		_, err = NewFileEvent(EventTypeFileAdded, "", "a", "", time.Now())
		assert.Error(t, err)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		_, err := NewFileEvent(EventType("copied"), "", "a", "/a", time.Now())
		assert.Error(t, err)
	})
}

func TestFileEvent_DedupKey(t *testing.T) {
	e, err := NewFileEvent(EventTypeFileAdded, "id:1", "2416_05 Acme Invoice.pdf", "/x/2416_05 Acme Invoice.pdf", time.Now())
	require.NoError(t, err)
	assert.False(t, e.HasDedupKey())

	info, ok := ParseFilename(e.FileName)
	require.True(t, ok)
	e.ApplyFileInfo(info)
	e.ApplyFolderInfo(FolderInfo{ProjectID: "2416", PONumber: "05", VendorName: "Acme Folder", POType: POTypeVendor})

	assert.True(t, e.HasDedupKey())
	assert.Equal(t, "Acme", e.VendorName)
	assert.Equal(t, "vendor", e.VendorType)
	assert.Equal(t, FileTypeInvoice, e.Type())
	assert.Equal(t, "01", e.Number())
}

func TestFileEvent_MarkStatus(t *testing.T) {
	e := &FileEvent{Status: StatusPending}
	require.NoError(t, e.MarkStatus(StatusProcessed))
	assert.True(t, e.Status.IsTerminal())
	assert.Error(t, e.MarkStatus(Status("archived")))
	assert.False(t, StatusFailed.IsTerminal())
}

func TestFileEvent_Retry(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusProcessed, StatusSkipped, StatusDuplicate} {
		e := &FileEvent{Status: s}
		assert.Error(t, e.Retry(), "status %s", s)
		assert.Equal(t, s, e.Status)
	}

	e := &FileEvent{Status: StatusFailed}
	require.NoError(t, e.Retry())
	assert.Equal(t, StatusPending, e.Status)
}
