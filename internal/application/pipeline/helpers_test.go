package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/docsync/backend/internal/infrastructure/extraction"
	"github.com/docsync/backend/internal/infrastructure/monday"
	"github.com/docsync/backend/internal/infrastructure/persistence"
	"github.com/docsync/backend/internal/infrastructure/scheduler"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const poDir = "/2416 - Film/1. Purchase Orders/2416_05 Acme Lighting"

func newTestDB(t *testing.T) *persistence.Database {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	d := persistence.NewDatabaseFromGorm(db)
	require.NoError(t, d.AutoMigrate())
	return d
}

func newRepos(db *persistence.Database) Repositories {
	return Repositories{
		Contacts:       persistence.NewGormContactRepository(db),
		PurchaseOrders: persistence.NewGormPurchaseOrderRepository(db),
		Invoices:       persistence.NewGormInvoiceRepository(db),
		Receipts:       persistence.NewGormReceiptRepository(db),
		TaxForms:       persistence.NewGormTaxFormRepository(db),
	}
}

func notFound() error {
	return fmt.Errorf("lookup: %w", monday.ErrNotFound)
}

// fileEvent builds a file_added event the way the router records it
func fileEvent(t *testing.T, name string) *fileevent.FileEvent {
	t.Helper()
	p := poDir + "/" + name
	ev, err := fileevent.NewFileEvent(fileevent.EventTypeFileAdded, "id:"+name, name, p, ts)
	require.NoError(t, err)
	if info, ok := fileevent.ParseFilename(name); ok {
		ev.ApplyFileInfo(info)
	}
	folder, ok := fileevent.ParseFolderPath(poDir)
	require.True(t, ok)
	ev.ApplyFolderInfo(folder)
	return ev
}

// MockBoard is a mock implementation of Board and POLogBoard
type MockBoard struct {
	mock.Mock
}

func (m *MockBoard) FindItemByProjectAndPO(ctx context.Context, projectID, poNumber string) (*monday.Item, error) {
	args := m.Called(ctx, projectID, poNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*monday.Item), args.Error(1)
}

func (m *MockBoard) FindGroupByProjectID(ctx context.Context, projectID string) (string, error) {
	args := m.Called(ctx, projectID)
	return args.String(0), args.Error(1)
}

func (m *MockBoard) CreateItem(ctx context.Context, groupID, name string, cols monday.ColumnValues) (int64, error) {
	args := m.Called(ctx, groupID, name, cols)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBoard) UpdateItemColumns(ctx context.Context, itemID int64, cols monday.ColumnValues) error {
	args := m.Called(ctx, itemID, cols)
	return args.Error(0)
}

func (m *MockBoard) CreateSubitem(ctx context.Context, parentID int64, name string, cols monday.ColumnValues) (int64, error) {
	args := m.Called(ctx, parentID, name, cols)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBoard) FindContactByName(ctx context.Context, name string) (*monday.Contact, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*monday.Contact), args.Error(1)
}

func (m *MockBoard) ListSubitems(ctx context.Context, parentID int64) ([]monday.Item, error) {
	args := m.Called(ctx, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]monday.Item), args.Error(1)
}

func (m *MockBoard) UpdateSubitemColumns(ctx context.Context, subitemID int64, cols monday.ColumnValues) error {
	args := m.Called(ctx, subitemID, cols)
	return args.Error(0)
}

// MockStorage is a mock implementation of Storage
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Download(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorage) CreateShareLink(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

// MockTextExtractor is a mock implementation of TextExtractor
type MockTextExtractor struct {
	mock.Mock
}

func (m *MockTextExtractor) ExtractText(ctx context.Context, fileName string, data []byte) (string, error) {
	args := m.Called(ctx, fileName, data)
	return args.String(0), args.Error(1)
}

// MockDocumentExtractor is a mock implementation of DocumentExtractor
type MockDocumentExtractor struct {
	mock.Mock
}

func (m *MockDocumentExtractor) ExtractInvoice(ctx context.Context, text string) (*extraction.InvoiceData, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extraction.InvoiceData), args.Error(1)
}

func (m *MockDocumentExtractor) ExtractReceipt(ctx context.Context, text string) (*extraction.ReceiptData, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extraction.ReceiptData), args.Error(1)
}

// MockJobSubmitter records submitted jobs
type MockJobSubmitter struct {
	mock.Mock
}

func (m *MockJobSubmitter) Submit(job *scheduler.Job) error {
	args := m.Called(job)
	return args.Error(0)
}

// MockEventRepository is a mock implementation of fileevent.Repository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Add(ctx context.Context, event *fileevent.FileEvent) (uuid.UUID, bool, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(uuid.UUID), args.Bool(1), args.Error(2)
}

func (m *MockEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*fileevent.FileEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fileevent.FileEvent), args.Error(1)
}

func (m *MockEventRepository) FetchPending(ctx context.Context, limit int) ([]*fileevent.FileEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*fileevent.FileEvent), args.Error(1)
}

func (m *MockEventRepository) ClaimPending(ctx context.Context, limit int) ([]*fileevent.FileEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*fileevent.FileEvent), args.Error(1)
}

func (m *MockEventRepository) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEventRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status fileevent.Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockEventRepository) UpdateEnrichment(ctx context.Context, id uuid.UUID, e fileevent.Enrichment) error {
	args := m.Called(ctx, id, e)
	return args.Error(0)
}

func (m *MockEventRepository) List(ctx context.Context, status fileevent.Status, filter shared.Filter) (shared.Paginated[*fileevent.FileEvent], error) {
	args := m.Called(ctx, status, filter)
	return args.Get(0).(shared.Paginated[*fileevent.FileEvent]), args.Error(1)
}
