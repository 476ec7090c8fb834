package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/docsync/backend/internal/application/event"
	"github.com/docsync/backend/internal/application/pipeline"
	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/docsync/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEventAdmin is a mock implementation of EventAdmin
type MockEventAdmin struct {
	mock.Mock
}

func (m *MockEventAdmin) List(ctx context.Context, status fileevent.Status, page, pageSize int) (shared.Paginated[pipeline.FileEventDTO], error) {
	args := m.Called(ctx, status, page, pageSize)
	return args.Get(0).(shared.Paginated[pipeline.FileEventDTO]), args.Error(1)
}

func (m *MockEventAdmin) Retry(ctx context.Context, id uuid.UUID) (*pipeline.FileEventDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.FileEventDTO), args.Error(1)
}

// MockPOLogImporter is a mock implementation of POLogImporter
type MockPOLogImporter struct {
	mock.Mock
}

func (m *MockPOLogImporter) Import(ctx context.Context, filePath string) (*procurement.POLog, error) {
	args := m.Called(ctx, filePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*procurement.POLog), args.Error(1)
}

// MockOutboxAdmin is a mock implementation of OutboxAdmin
type MockOutboxAdmin struct {
	mock.Mock
}

func (m *MockOutboxAdmin) ListDead(ctx context.Context, page, pageSize int) (shared.Paginated[event.DeadLetterDTO], error) {
	args := m.Called(ctx, page, pageSize)
	return args.Get(0).(shared.Paginated[event.DeadLetterDTO]), args.Error(1)
}

func (m *MockOutboxAdmin) Retry(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxAdmin) RetryAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockOutboxAdmin) Stats(ctx context.Context) (*event.OutboxStatsDTO, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.OutboxStatsDTO), args.Error(1)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func serve(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func TestFileEventHandler_List(t *testing.T) {
	admin := new(MockEventAdmin)
	items := []pipeline.FileEventDTO{{ID: uuid.New(), Status: "failed", FileName: "2416_05 Acme Invoice.pdf"}}
	admin.On("List", mock.Anything, fileevent.StatusFailed, 2, 10).
		Return(shared.NewPaginated(items, 11, 2, 10), nil)
	admin.On("List", mock.Anything, fileevent.Status("archived"), 1, 20).
		Return(shared.Paginated[pipeline.FileEventDTO]{}, shared.NewDomainError("INVALID_INPUT", "unknown status: archived"))

	h := NewFileEventHandler(admin)
	router := gin.New()
	router.GET("/api/v1/events", h.List)

	w := serve(router, http.MethodGet, "/api/v1/events?status=failed&page=2&page_size=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(11), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)
	assert.Len(t, resp.Data, 1)

	w = serve(router, http.MethodGet, "/api/v1/events?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, http.MethodGet, "/api/v1/events?page_size=500", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Error.Code)
}

func TestFileEventHandler_Retry(t *testing.T) {
	failed, done, missing := uuid.New(), uuid.New(), uuid.New()
	admin := new(MockEventAdmin)
	admin.On("Retry", mock.Anything, failed).Return(&pipeline.FileEventDTO{ID: failed, Status: "pending"}, nil)
	admin.On("Retry", mock.Anything, done).Return(nil, shared.NewDomainError("INVALID_STATE", "only failed events can be retried"))
	admin.On("Retry", mock.Anything, missing).Return(nil, shared.NewDomainError("NOT_FOUND", "file event not found"))

	h := NewFileEventHandler(admin)
	router := gin.New()
	router.POST("/api/v1/events/:id/retry", h.Retry)

	tests := []struct {
		id   string
		want int
	}{
		{failed.String(), http.StatusOK},
		{done.String(), http.StatusUnprocessableEntity},
		{missing.String(), http.StatusNotFound},
		{"42", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			w := serve(router, http.MethodPost, "/api/v1/events/"+tt.id+"/retry", "")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestPOLogHandler_Import(t *testing.T) {
	const path = "/2416 - Film/PO Log.csv"
	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ok := procurement.NewPOLog("2416", path)
	ok.Status = procurement.POLogCompleted
	ok.EntryCount, ok.MatchedCount, ok.StartedAt = 4, 3, &started
	bad := procurement.NewPOLog("2416", "/2416 - Film/Broken.csv")
	bad.Status = procurement.POLogFailed
	bad.Error = "no header row"

	importer := new(MockPOLogImporter)
	importer.On("Import", mock.Anything, path).Return(ok, nil)
	importer.On("Import", mock.Anything, "/2416 - Film/Broken.csv").Return(bad, errors.New("no header row"))
	importer.On("Import", mock.Anything, "/gone.csv").Return(nil, errors.New("dropbox: 409 path/not_found"))

	router := gin.New()
	router.POST("/api/v1/polog", NewPOLogHandler(importer).Import)

	w := serve(router, http.MethodPost, "/api/v1/polog", `{"path":"`+path+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, "COMPLETED", data["status"])
	assert.Equal(t, float64(3), data["matched"])

	w = serve(router, http.MethodPost, "/api/v1/polog", `{"path":"/2416 - Film/Broken.csv"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode(t, w)
	assert.Equal(t, dto.ErrCodeBusinessRule, resp.Error.Code)
	assert.Equal(t, "FAILED", resp.Data.(map[string]any)["status"])

	w = serve(router, http.MethodPost, "/api/v1/polog", `{"path":"/gone.csv"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = serve(router, http.MethodPost, "/api/v1/polog", `{"path":"relative.csv"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOutboxHandler(t *testing.T) {
	id := uuid.New()
	outbox := new(MockOutboxAdmin)
	outbox.On("ListDead", mock.Anything, 1, 20).
		Return(shared.NewPaginated([]event.DeadLetterDTO{{ID: id, EventType: "XeroBillCreated"}}, 1, 1, 20), nil)
	outbox.On("Retry", mock.Anything, id).Return(nil)
	outbox.On("RetryAll", mock.Anything).Return(3, nil)
	outbox.On("Stats", mock.Anything).Return(&event.OutboxStatsDTO{Pending: 2, Dead: 1, Total: 3}, nil)

	h := NewOutboxHandler(outbox)
	router := gin.New()
	router.GET("/api/v1/outbox/dead", h.GetDeadLetterEntries)
	router.POST("/api/v1/outbox/dead/:id/retry", h.RetryDeadEntry)
	router.POST("/api/v1/outbox/dead/retry", h.RetryAllDeadEntries)
	router.GET("/api/v1/outbox/stats", h.GetStats)

	w := serve(router, http.MethodGet, "/api/v1/outbox/dead", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode(t, w).Meta.Total)

	w = serve(router, http.MethodPost, "/api/v1/outbox/dead/"+id.String()+"/retry", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodPost, "/api/v1/outbox/dead/retry", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w).Data.(map[string]any)["count"])

	w = serve(router, http.MethodGet, "/api/v1/outbox/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w).Data.(map[string]any)["dead"])
	outbox.AssertExpectations(t)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantDB     string
	}{
		{"database up", nil, http.StatusOK, "connected"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/health", NewHealthHandler(stubPinger{err: tt.pingErr}, "1.2.0").Health)

			w := serve(router, http.MethodGet, "/health", "")

			require.Equal(t, tt.wantStatus, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantDB, body["database"])
			assert.Equal(t, "1.2.0", body["version"])
			_, err := time.Parse(time.RFC3339, body["time"].(string))
			assert.NoError(t, err)
		})
	}
}
