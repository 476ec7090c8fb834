package handler

import (
	"context"

	"github.com/docsync/backend/internal/application/pipeline"
	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventAdmin lists and requeues recorded file events
type EventAdmin interface {
	List(ctx context.Context, status fileevent.Status, page, pageSize int) (shared.Paginated[pipeline.FileEventDTO], error)
	Retry(ctx context.Context, id uuid.UUID) (*pipeline.FileEventDTO, error)
}

// FileEventHandler serves /api/v1/events
type FileEventHandler struct {
	BaseHandler
	admin EventAdmin
}

// NewFileEventHandler creates the handler
func NewFileEventHandler(admin EventAdmin) *FileEventHandler {
	return &FileEventHandler{admin: admin}
}

// List godoc
// @Summary      List file events
// @Tags         events
// @Param        status query string false "pending, processing, processed, failed, skipped or duplicate"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]pipeline.FileEventDTO]
// @Router       /events [get]
func (h *FileEventHandler) List(c *gin.Context) {
	q, ok := h.listQuery(c)
	if !ok {
		return
	}
	res, err := h.admin.List(c.Request.Context(), fileevent.Status(c.Query("status")), q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, res.Items, res.Total, res.Page, res.PageSize)
}

// Retry godoc
// @Summary      Requeue a failed file event
// @Tags         events
// @Param        id path string true "File event ID"
// @Success      200 {object} APIResponse[pipeline.FileEventDTO]
// @Failure      404 {object} APIResponse[any]
// @Failure      422 {object} APIResponse[any]
// @Router       /events/{id}/retry [post]
func (h *FileEventHandler) Retry(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	ev, err := h.admin.Retry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ev)
}
