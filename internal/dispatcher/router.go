package dispatcher

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router. Path routes are served
// on any hostname; everything else falls through to hostname-based routing.
func SetupRouter(deps *Dependencies, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	r.Use(MetricsMiddleware(deps.Metrics))

	h := NewHandler(deps)

	r.GET("/health", h.Health)
	r.Any("/dispatch", h.DispatchQuery)
	r.GET("/docs", h.Docs)
	r.GET("/openapi.json", h.OpenAPI)
	r.POST("/v1/screenshots", h.EnqueueScreenshot)

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Hostname-based routing for everything without a path route.
	r.NoRoute(h.Route)

	return r
}
