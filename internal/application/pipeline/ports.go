// Package pipeline processes recorded file events: it mirrors PO folders and
// documents on the board, extracts invoice and receipt data and persists the
// procurement records that drive reconciliation.
package pipeline

import (
	"context"
	"errors"

	"github.com/docsync/backend/internal/infrastructure/extraction"
	"github.com/docsync/backend/internal/infrastructure/monday"
	"github.com/docsync/backend/internal/infrastructure/scheduler"
)

// Errors returned by the processor
var (
	ErrPOMismatch          = errors.New("pipeline: file name does not match the event's PO")
	ErrUnsupportedDocument = errors.New("pipeline: unsupported document for this PO type")
	ErrInvalidFileName     = errors.New("pipeline: file name outside naming convention")
)

// Storage is the document store the pipeline reads from
type Storage interface {
	Download(ctx context.Context, path string) ([]byte, error)
	CreateShareLink(ctx context.Context, path string) (string, error)
}

// Board is the PO board the pipeline mirrors documents to
type Board interface {
	FindItemByProjectAndPO(ctx context.Context, projectID, poNumber string) (*monday.Item, error)
	FindGroupByProjectID(ctx context.Context, projectID string) (string, error)
	CreateItem(ctx context.Context, groupID, name string, cols monday.ColumnValues) (int64, error)
	UpdateItemColumns(ctx context.Context, itemID int64, cols monday.ColumnValues) error
	ListSubitems(ctx context.Context, parentID int64) ([]monday.Item, error)
	CreateSubitem(ctx context.Context, parentID int64, name string, cols monday.ColumnValues) (int64, error)
	FindContactByName(ctx context.Context, name string) (*monday.Contact, error)
}

// TextExtractor reads document text
type TextExtractor interface {
	ExtractText(ctx context.Context, fileName string, data []byte) (string, error)
}

// DocumentExtractor turns document text into structured data
type DocumentExtractor interface {
	ExtractInvoice(ctx context.Context, text string) (*extraction.InvoiceData, error)
	ExtractReceipt(ctx context.Context, text string) (*extraction.ReceiptData, error)
}

// JobSubmitter queues background jobs
type JobSubmitter interface {
	Submit(job *scheduler.Job) error
}
