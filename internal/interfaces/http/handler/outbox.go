package handler

import (
	"context"

	"github.com/docsync/backend/internal/application/event"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OutboxAdmin lists and requeues undeliverable domain events
type OutboxAdmin interface {
	ListDead(ctx context.Context, page, pageSize int) (shared.Paginated[event.DeadLetterDTO], error)
	Retry(ctx context.Context, id uuid.UUID) error
	RetryAll(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*event.OutboxStatsDTO, error)
}

// OutboxHandler handles outbox management HTTP requests
type OutboxHandler struct {
	BaseHandler
	outbox OutboxAdmin
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(outbox OutboxAdmin) *OutboxHandler {
	return &OutboxHandler{outbox: outbox}
}

// GetDeadLetterEntries godoc
// @Summary      List dead letter entries
// @Tags         outbox
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]event.DeadLetterDTO]
// @Router       /outbox/dead [get]
func (h *OutboxHandler) GetDeadLetterEntries(c *gin.Context) {
	q, ok := h.listQuery(c)
	if !ok {
		return
	}
	res, err := h.outbox.ListDead(c.Request.Context(), q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, res.Items, res.Total, res.Page, res.PageSize)
}

// RetryDeadEntry godoc
// @Summary      Requeue a dead letter entry
// @Tags         outbox
// @Param        id path string true "Outbox entry ID"
// @Success      200 {object} APIResponse[any]
// @Failure      404 {object} APIResponse[any]
// @Router       /outbox/dead/{id}/retry [post]
func (h *OutboxHandler) RetryDeadEntry(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.outbox.Retry(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"id": id, "status": "pending"})
}

// RetryAllDeadEntries requeues every dead letter entry
func (h *OutboxHandler) RetryAllDeadEntries(c *gin.Context) {
	count, err := h.outbox.RetryAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: count})
}

// GetStats returns outbox entry counts per status
func (h *OutboxHandler) GetStats(c *gin.Context) {
	stats, err := h.outbox.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
