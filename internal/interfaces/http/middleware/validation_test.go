package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docsync/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleValidationError(t *testing.T) {
	type request struct {
		Path   string `json:"path" binding:"required,startswith=/"`
		Status string `form:"status" json:"status" binding:"omitempty,oneof=pending failed"`
	}
	SetupValidator()

	router := gin.New()
	router.Use(RequestID())
	router.POST("/api/v1/polog", func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantFields []string
	}{
		{"valid", `{"path":"/2416 Show/PO Log.csv"}`, http.StatusOK, "", nil},
		{"missing path", `{}`, http.StatusBadRequest, dto.ErrCodeValidation, []string{"path"}},
		{"bad status", `{"path":"x","status":"done"}`, http.StatusBadRequest, dto.ErrCodeValidation, []string{"path", "status"}},
		{"malformed", `{"path":`, http.StatusBadRequest, dto.ErrCodeInvalidJSON, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/polog", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode == "" {
				return
			}
			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
			var fields []string
			for _, d := range resp.Error.Details {
				fields = append(fields, d.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}
