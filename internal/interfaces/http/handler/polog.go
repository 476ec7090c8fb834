package handler

import (
	"context"
	"time"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/interfaces/http/dto"
	"github.com/docsync/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// POLogImporter applies a PO log export to the board
type POLogImporter interface {
	Import(ctx context.Context, filePath string) (*procurement.POLog, error)
}

// POLogHandler serves POST /api/v1/polog
type POLogHandler struct {
	BaseHandler
	importer POLogImporter
}

// NewPOLogHandler creates the handler
func NewPOLogHandler(importer POLogImporter) *POLogHandler {
	return &POLogHandler{importer: importer}
}

// ImportPOLogRequest names the PO log file in storage
type ImportPOLogRequest struct {
	Path string `json:"path" binding:"required,startswith=/"`
}

// POLogRunResponse describes one import run
type POLogRunResponse struct {
	ID          uuid.UUID  `json:"id"`
	Project     string     `json:"project"`
	Path        string     `json:"path"`
	Status      string     `json:"status"`
	Entries     int        `json:"entries"`
	Matched     int        `json:"matched"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Import runs the PO log import synchronously. A failed run is still
// returned, with a 422 and the run in the error response data.
func (h *POLogHandler) Import(c *gin.Context) {
	var req ImportPOLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	run, err := h.importer.Import(c.Request.Context(), req.Path)
	if err != nil && run == nil {
		h.HandleError(c, err)
		return
	}
	if err != nil {
		resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeBusinessRule, "PO log import failed: "+err.Error(), middleware.GetRequestID(c))
		resp.Data = toPOLogRunResponse(run)
		c.JSON(dto.GetHTTPStatus(dto.ErrCodeBusinessRule), resp)
		return
	}
	h.Success(c, toPOLogRunResponse(run))
}

func toPOLogRunResponse(run *procurement.POLog) POLogRunResponse {
	return POLogRunResponse{
		ID:          run.ID,
		Project:     run.ProjectNumber,
		Path:        run.FilePath,
		Status:      string(run.Status),
		Entries:     run.EntryCount,
		Matched:     run.MatchedCount,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}
