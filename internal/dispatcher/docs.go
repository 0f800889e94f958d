package dispatcher

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const docsPage = `<!DOCTYPE html>
<html>
<head>
  <title>Libra Dispatcher API</title>
  <meta charset="utf-8"/>
  <style>
    body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
    code { background: #f4f4f4; padding: 0.1rem 0.3rem; border-radius: 3px; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border: 1px solid #ddd; padding: 0.4rem 0.6rem; text-align: left; }
  </style>
</head>
<body>
  <h1>Libra Dispatcher</h1>
  <p>Routes platform subdomains and custom domains to deployed workers.</p>
  <table>
    <tr><th>Route</th><th>Description</th></tr>
    <tr><td><code>GET /health</code></td><td>Service, database, and queue health</td></tr>
    <tr><td><code>GET /dispatch</code></td><td>Dispatch namespace info</td></tr>
    <tr><td><code>ALL /dispatch?worker=&lt;name&gt;</code></td><td>Forward this request to the named worker</td></tr>
    <tr><td><code>POST /v1/screenshots</code></td><td>Enqueue a screenshot capture</td></tr>
    <tr><td><code>GET /openapi.json</code></td><td>Machine-readable API description</td></tr>
    <tr><td><code>GET /metrics</code></td><td>Prometheus metrics</td></tr>
    <tr><td><code>ALL *</code></td><td>Hostname-based routing to workers and custom domains</td></tr>
  </table>
</body>
</html>`

// Docs handles GET /docs
func (h *Handler) Docs(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(docsPage))
}

// OpenAPI handles GET /openapi.json
func (h *Handler) OpenAPI(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"openapi": "3.0.3",
		"info": gin.H{
			"title":       "Libra Dispatcher",
			"version":     h.deps.ServiceVersion,
			"description": "Request dispatcher for platform subdomains and custom domains",
		},
		"paths": gin.H{
			"/health": gin.H{
				"get": gin.H{
					"summary": "Health check",
					"responses": gin.H{
						"200": gin.H{"description": "Service is healthy"},
						"503": gin.H{"description": "A dependency is unhealthy"},
					},
				},
			},
			"/dispatch": gin.H{
				"get": gin.H{
					"summary": "Namespace info, or dispatch when ?worker= is present",
					"parameters": []gin.H{
						{
							"name":     "worker",
							"in":       "query",
							"required": false,
							"schema":   gin.H{"type": "string"},
						},
					},
					"responses": gin.H{
						"200": gin.H{"description": "Namespace info or worker response"},
						"400": gin.H{"description": "Invalid worker name"},
						"404": gin.H{"description": "Worker not found"},
					},
				},
			},
			"/v1/screenshots": gin.H{
				"post": gin.H{
					"summary": "Enqueue a screenshot capture",
					"responses": gin.H{
						"202": gin.H{"description": "Screenshot enqueued"},
						"400": gin.H{"description": "Invalid request"},
					},
				},
			},
		},
	})
}
