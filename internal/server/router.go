// Package server exposes the dispatch API over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"botswarm/internal/runtime/supervisor"
	"botswarm/internal/storage"
	logx "botswarm/pkg/logx"
)

// Deps carries everything the router serves. Store and Metrics may be nil.
type Deps struct {
	Dispatcher Dispatcher
	Store      storage.Store
	Metrics    http.Handler
	Supervisor *supervisor.Supervisor
	Log        logx.Logger
}

// NewRouter wires the API routes.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestLog(deps.Log), gin.Recovery())

	h := &handlers{deps: deps}

	api := r.Group("/api")
	api.POST("/dispatch", h.dispatch)
	api.GET("/history", h.history)

	r.GET("/healthz", h.health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	return r
}

// requestLog replaces gin.Logger with the structured logger used everywhere
// else.
func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("client", c.ClientIP()))
	}
}
