package router

import (
	"github.com/docsync/backend/internal/interfaces/http/handler"
	"github.com/docsync/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers are the endpoints served by the docsync API
type Handlers struct {
	Dropbox *handler.DropboxWebhookHandler
	Monday  *handler.MondayWebhookHandler
	Health  *handler.HealthHandler
	Events  *handler.FileEventHandler
	POLog   *handler.POLogHandler
	Outbox  *handler.OutboxHandler
}

// Security holds the secrets checked on each route group
type Security struct {
	DropboxAppSecret string
	Monday           middleware.MondayAuthConfig
	// AdminToken guards /api/v1. The admin API is not mounted when empty.
	AdminToken string
}

// Mount registers every docsync route on the engine. Global middleware is
// expected to be installed by the caller.
func Mount(engine *gin.Engine, h Handlers, sec Security) *Router {
	r := NewRouter(engine, WithAPIVersion("v1"))

	if h.Health != nil {
		r.RegisterRoot(NewDomainGroup("health", "/health").GET("", h.Health.Health))
	}
	if h.Dropbox != nil {
		r.RegisterRoot(DropboxRoutes(h.Dropbox, sec.DropboxAppSecret))
	}
	if h.Monday != nil {
		r.RegisterRoot(MondayRoutes(h.Monday, sec.Monday))
	}

	if sec.AdminToken != "" {
		r.Use(middleware.AdminAuth(sec.AdminToken))
		if h.Events != nil {
			events := NewDomainGroup("events", "/events")
			events.GET("", h.Events.List)
			events.POST("/:id/retry", h.Events.Retry)
			r.Register(events)
		}
		if h.POLog != nil {
			r.Register(NewDomainGroup("polog", "/polog").POST("", h.POLog.Import))
		}
		if h.Outbox != nil {
			r.Register(OutboxRoutes(h.Outbox))
		}
	}

	r.Setup()
	return r
}

// DropboxRoutes serves the Dropbox verification challenge and change
// notifications. Notifications must carry a valid X-Dropbox-Signature.
func DropboxRoutes(h *handler.DropboxWebhookHandler, appSecret string) *DomainGroup {
	g := NewDomainGroup("dropbox", "/dropbox-webhook")
	g.GET("", h.Verify)
	g.POST("", middleware.DropboxSignature(appSecret), h.Notify)
	return g
}

// MondayRoutes serves the board webhooks
func MondayRoutes(h *handler.MondayWebhookHandler, auth middleware.MondayAuthConfig) *DomainGroup {
	g := NewDomainGroup("monday", "").Use(middleware.MondayAuth(auth))
	g.POST("/monday-subitem-change", h.SubitemChange)
	g.POST("/monday-subitem-delete", h.SubitemDelete)
	g.POST("/monday-po-status-change", h.POStatusChange)
	return g
}

// OutboxRoutes exposes the dead letter queue
func OutboxRoutes(h *handler.OutboxHandler) *DomainGroup {
	g := NewDomainGroup("outbox", "/outbox")
	g.GET("/stats", h.GetStats)
	dead := g.Group("dead", "/dead")
	dead.GET("", h.GetDeadLetterEntries)
	dead.POST("/retry", h.RetryAllDeadEntries)
	dead.POST("/:id/retry", h.RetryDeadEntry)
	return g
}
