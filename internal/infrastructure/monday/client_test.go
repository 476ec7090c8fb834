package monday

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docsync/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(config.MondayConfig{
		APIToken:          "token-1",
		APIURL:            srv.URL,
		APIVersion:        "2023-10",
		POBoardID:         100,
		ContactBoardID:    200,
		RequestsPerMinute: 6000,
		MaxAttempts:       3,
	}, zap.NewNop())
	require.NoError(t, err)
	c.backoffUnit = time.Millisecond
	c.complexityWait = 5 * time.Millisecond
	return c
}

func decodeRequest(t *testing.T, r *http.Request) capturedRequest {
	var req capturedRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func respond(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestNewClient_MissingToken(t *testing.T) {
	_, err := NewClient(config.MondayConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"ComplexityException: budget exhausted", ErrComplexity},
		{"DAILY_LIMIT_EXCEEDED: come back tomorrow", ErrDailyLimit},
		{"Minute limit rate exceeded", ErrMinuteLimit},
		{"Concurrency limit exceeded", ErrConcurrencyLimit},
		{"Column not found", ErrRequestFailed},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.ErrorIs(t, classify([]string{tt.msg}), tt.want)
		})
	}
}

func TestWithComplexity(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "query with variables",
			query: `query ($ids: [ID!]) { items(ids: $ids) { id } }`,
			want:  `query ($ids: [ID!]) { complexity { before after reset_in_x_seconds }  items(ids: $ids) { id } }`,
		},
		{
			name:  "mutation",
			query: `mutation { create_item(board_id: 1, item_name: "x") { id } }`,
			want:  `mutation { complexity { before after reset_in_x_seconds }  create_item(board_id: 1, item_name: "x") { id } }`,
		},
		{
			name:  "already present",
			query: `query { complexity { after } boards { id } }`,
			want:  `query { complexity { after } boards { id } }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, withComplexity(tt.query))
		})
	}
}

func TestExecute_SendsHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "2023-10", r.Header.Get("API-Version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		respond(w, map[string]any{"me": map[string]string{"name": "ops"}})
	})

	var out struct {
		Me struct {
			Name string `json:"name"`
		} `json:"me"`
	}
	require.NoError(t, c.Execute(context.Background(), "me", `query { me { name } }`, nil, &out))
	assert.Equal(t, "ops", out.Me.Name)
}

func TestExecute_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		respond(w, map[string]any{})
	})
	// Retry-After absent means the default wait, which is too long for a test.
	c.cfg.MaxAttempts = 2

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Execute(ctx, "op", `query { me { id } }`, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_RetriesComplexityThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"errors": []map[string]any{{"message": "ComplexityException"}},
			})
			return
		}
		respond(w, map[string]any{"ok": true})
	})

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.Execute(context.Background(), "op", `query { ok }`, nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_MaxAttempts(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "Concurrency limit exceeded"}},
		})
	})

	err := c.Execute(context.Background(), "op", `query { ok }`, nil, nil)
	assert.ErrorIs(t, err, ErrMaxAttemptsReached)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_NonRetryableReturnsImmediately(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_code":    "DAILY_LIMIT_EXCEEDED",
			"error_message": "Daily limit exceeded",
		})
	})

	err := c.Execute(context.Background(), "op", `query { ok }`, nil, nil)
	assert.ErrorIs(t, err, ErrDailyLimit)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_TracksComplexity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]any{
			"complexity": map[string]int{"before": 1000, "after": 10, "reset_in_x_seconds": 30},
		})
	})

	require.NoError(t, c.Execute(context.Background(), "op", `query { ok }`, nil, nil))
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 10, c.remaining)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), c.resetAt, 2*time.Second)
}

func TestFindItemByProjectAndPO(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "100", req.Variables["board"])
		assert.Equal(t, "2416", req.Variables["project"])
		respond(w, map[string]any{
			"items_page_by_column_values": map[string]any{
				"items": []map[string]any{
					{"id": "11", "name": "Other", "column_values": []map[string]any{{"id": "numbers08", "text": "4", "value": `"4"`}}},
					{"id": "12", "name": "Acme", "group": map[string]string{"id": "g1"}, "column_values": []map[string]any{{"id": "numbers08", "text": "5", "value": `"5"`}}},
				},
			},
		})
	})

	item, err := c.FindItemByProjectAndPO(context.Background(), "2416", "5")
	require.NoError(t, err)
	assert.Equal(t, int64(12), item.ID)
	assert.Equal(t, "g1", item.GroupID)
	assert.Equal(t, int64(100), item.BoardID)

	_, err = c.FindItemByProjectAndPO(context.Background(), "2416", "9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindGroupByProjectID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]any{
			"boards": []map[string]any{{
				"groups": []map[string]string{{"id": "g0", "title": "2415 Old"}, {"id": "g1", "title": "2416 - Film"}},
			}},
		})
	})

	group, err := c.FindGroupByProjectID(context.Background(), "2416")
	require.NoError(t, err)
	assert.Equal(t, "g1", group)

	_, err = c.FindGroupByProjectID(context.Background(), "9999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateItem_EncodesColumns(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.True(t, strings.Contains(req.Query, "create_item"))
		cols, ok := req.Variables["cols"].(string)
		require.True(t, ok)
		assert.JSONEq(t, `{"project_id":"2416","status":{"label":"Approved"}}`, cols)
		respond(w, map[string]any{"create_item": map[string]string{"id": "77"}})
	})

	cols := ColumnValues{}.Text(ColumnProjectID, "2416").Status(ColumnStatus, "Approved")
	id, err := c.CreateItem(context.Background(), "g1", "Acme", cols)
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
}

func TestUpdateSubitemColumns_UsesSubitemBoard(t *testing.T) {
	var step atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		switch step.Add(1) {
		case 1:
			respond(w, map[string]any{"items": []map[string]any{{
				"id": "501", "name": "1", "board": map[string]string{"id": "900"},
				"parent_item": map[string]string{"id": "12"}, "column_values": []any{},
			}}})
		default:
			assert.Equal(t, "900", req.Variables["board"])
			assert.Equal(t, "501", req.Variables["item"])
			respond(w, map[string]any{"change_multiple_column_values": map[string]string{"id": "501"}})
		}
	})

	err := c.UpdateSubitemColumns(context.Background(), 501, ColumnValues{}.Status(SubitemColumnStatus, SubitemStatusRTP))
	require.NoError(t, err)
	assert.Equal(t, int32(2), step.Load())
}

func TestListSubitems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]any{"items": []map[string]any{{
			"subitems": []map[string]any{
				{"id": "501", "name": "a", "column_values": []map[string]any{{"id": "text0", "text": "1"}}},
				{"id": "502", "name": "b", "column_values": []map[string]any{{"id": "text0", "text": "2"}}},
			},
		}}})
	})

	subs, err := c.ListSubitems(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, int64(502), subs[1].ID)
	assert.Equal(t, int64(12), subs[1].ParentID)
	assert.True(t, subs[1].Matches(SubitemColumnFileNumber, "2"))
	assert.False(t, subs[0].Matches(SubitemColumnFileNumber, "2"))
}

func TestFindContactByName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "200", req.Variables["board"])
		respond(w, map[string]any{
			"items_page_by_column_values": map[string]any{
				"items": []map[string]any{{
					"id": "3001", "name": "Acme",
					"column_values": []map[string]any{
						{"id": "email", "text": "ap@acme.test"},
						{"id": "text14", "text": "SSN"},
						{"id": "text2", "text": "123-45-6789"},
					},
				}},
			},
		})
	})

	contact, err := c.FindContactByName(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, int64(3001), contact.ID)
	assert.Equal(t, "ap@acme.test", contact.Email)
	assert.Equal(t, "SSN", contact.TaxType)
	assert.Equal(t, "123-45-6789", contact.TaxNumber)
}
