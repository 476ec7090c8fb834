package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/docsync/backend/internal/application/boardsync"
	"github.com/docsync/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BoardSync applies board events to the local tables
type BoardSync interface {
	ApplySubitemChange(ctx context.Context, ev *boardsync.Event) (boardsync.Outcome, error)
	DeleteSubitem(ctx context.Context, ev *boardsync.Event) (boardsync.Outcome, error)
	ApplyPOStatusChange(ctx context.Context, ev *boardsync.Event) (boardsync.Outcome, error)
}

// MondayWebhookHandler serves the three board webhooks
type MondayWebhookHandler struct {
	BaseHandler
	sync   BoardSync
	logger *zap.Logger
}

// NewMondayWebhookHandler creates the handler
func NewMondayWebhookHandler(sync BoardSync, logger *zap.Logger) *MondayWebhookHandler {
	return &MondayWebhookHandler{
		sync:   sync,
		logger: logger.With(zap.String("component", "monday_webhook")),
	}
}

// SubitemChange handles a subitem column change
func (h *MondayWebhookHandler) SubitemChange(c *gin.Context) {
	h.handle(c, "subitem_change", h.sync.ApplySubitemChange)
}

// SubitemDelete handles a deleted subitem
func (h *MondayWebhookHandler) SubitemDelete(c *gin.Context) {
	h.handle(c, "subitem_delete", h.sync.DeleteSubitem)
}

// POStatusChange handles a status change on a PO item
func (h *MondayWebhookHandler) POStatusChange(c *gin.Context) {
	h.handle(c, "po_status_change", h.sync.ApplyPOStatusChange)
}

type applyFunc func(context.Context, *boardsync.Event) (boardsync.Outcome, error)

func (h *MondayWebhookHandler) handle(c *gin.Context, kind string, apply applyFunc) {
	var hook boardsync.Webhook
	if err := c.ShouldBindJSON(&hook); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if hook.Challenge != "" {
		h.logger.Info("Responding to webhook challenge", zap.String("webhook", kind))
		c.JSON(http.StatusOK, challengeBody{Challenge: hook.Challenge})
		return
	}
	if hook.Event == nil {
		h.BadRequest(c, "No event field in payload")
		return
	}

	outcome, err := apply(c.Request.Context(), hook.Event)
	switch {
	case errors.Is(err, boardsync.ErrMissingEvent),
		errors.Is(err, boardsync.ErrMissingPulseID),
		errors.Is(err, boardsync.ErrMissingStatus):
		h.BadRequest(c, err.Error())
		return
	case err != nil:
		h.HandleError(c, err)
		return
	}

	h.logger.Info("Board event applied",
		zap.String("webhook", kind),
		zap.Int64("pulse_id", int64(hook.Event.PulseID)),
		zap.String("column", hook.Event.ColumnID),
		zap.String("outcome", string(outcome)),
	)
	h.Success(c, gin.H{"outcome": outcome})
}
