package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChangeNotifier turns a storage notification into recorded file events
type ChangeNotifier interface {
	Accept(ctx context.Context, body []byte) bool
	Sync(ctx context.Context) error
}

// DropboxWebhookHandler answers the storage webhook. The signature is checked
// by middleware.DropboxSignature before Notify runs.
type DropboxWebhookHandler struct {
	BaseHandler
	notifier    ChangeNotifier
	syncTimeout time.Duration
	// spawn runs the sync off the request goroutine
	spawn  func(func())
	logger *zap.Logger
}

// NewDropboxWebhookHandler creates the handler. Each sync gets syncTimeout.
func NewDropboxWebhookHandler(notifier ChangeNotifier, syncTimeout time.Duration, logger *zap.Logger) *DropboxWebhookHandler {
	if syncTimeout <= 0 {
		syncTimeout = 5 * time.Minute
	}
	return &DropboxWebhookHandler{
		notifier:    notifier,
		syncTimeout: syncTimeout,
		spawn:       func(f func()) { go f() },
		logger:      logger.With(zap.String("component", "dropbox_webhook")),
	}
}

// Verify echoes the challenge of a new webhook subscription as plain text
func (h *DropboxWebhookHandler) Verify(c *gin.Context) {
	challenge := c.Query("challenge")
	if challenge == "" {
		h.logger.Warn("No challenge parameter provided")
		c.String(http.StatusBadRequest, "No challenge parameter provided")
		return
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(challenge))
}

// Notify acknowledges a change notification and syncs in the background
func (h *DropboxWebhookHandler) Notify(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.String(http.StatusBadRequest, "No event data")
		return
	}

	if !h.notifier.Accept(c.Request.Context(), body) {
		h.logger.Debug("Duplicate notification ignored")
		c.Status(http.StatusOK)
		return
	}

	// the sync outlives the request; keep its trace and logger, drop its deadline
	ctx := context.WithoutCancel(c.Request.Context())
	h.spawn(func() {
		ctx, cancel := context.WithTimeout(ctx, h.syncTimeout)
		defer cancel()
		if err := h.notifier.Sync(ctx); err != nil {
			h.logger.Error("Change sync failed", zap.Error(err))
		}
	})
	c.Status(http.StatusOK)
}
