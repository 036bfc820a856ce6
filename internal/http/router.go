// Package httpapi is the optional local status server of a run. It exposes
// liveness, progress and the run's Prometheus registry so long dispatch
// runs (chunk pauses, the settlement wait, shortening pauses) can be
// watched without tailing logs.
//
// Routes:
//
//	GET /healthz   liveness
//	GET /progress  JSON progress snapshot
//	GET /metrics   Prometheus exposition of the run registry
package httpapi

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-outreach-batch/internal/http/handlers"
	"github.com/tbourn/go-outreach-batch/internal/http/middleware"
)

// Options are the dependencies of the router.
type Options struct {
	ServiceName string
	Log         zerolog.Logger
	Progress    handlers.ProgressSource

	// Registry receives the HTTP collectors; Metrics serves /metrics.
	Registry prometheus.Registerer
	Metrics  http.Handler
}

// NewRouter builds the status router.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger
//  4. Recovery
//  5. Metrics (when a registry is given)
//  6. NoStore headers
//  7. gzip
func NewRouter(opt Options) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	name := opt.ServiceName
	if name == "" {
		name = "go-outreach-batch"
	}
	r.Use(otelgin.Middleware(name))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(opt.Log))
	r.Use(middleware.Recovery(opt.Log))
	if opt.Registry != nil {
		r.Use(middleware.NewHTTPMetrics(opt.Registry).Handler())
	}
	r.Use(middleware.NoStore())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(opt.Progress)
	r.GET("/healthz", h.Health)
	r.GET("/progress", h.Snapshot)
	if opt.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opt.Metrics))
	}
	return r
}
