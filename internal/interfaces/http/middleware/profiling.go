package middleware

import (
	"context"
	"strings"

	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// ProfilingConfig holds configuration for the profiling middleware
type ProfilingConfig struct {
	Enabled bool
	// SkipPaths are not labelled, e.g. /health
	SkipPaths []string
}

// Profiling tags the goroutines serving a request with its method and route
// so profiles can be filtered per webhook in Pyroscope
func Profiling(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || skipped(route, cfg.SkipPaths) {
			c.Next()
			return
		}
		telemetry.WithRouteLabels(c.Request.Context(), c.Request.Method, route, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func skipped(route string, paths []string) bool {
	for _, p := range paths {
		if route == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(route, p)) {
			return true
		}
	}
	return false
}
