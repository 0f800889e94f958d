package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/libra-sh/libra-edge/internal/screenshot"
)

// HealthChecker is the liveness surface of the database client
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// QueueStatus is the liveness surface of the queue client
type QueueStatus interface {
	IsConnected() bool
}

// ScreenshotEnqueuer is the producer side of the screenshot queue
type ScreenshotEnqueuer interface {
	Enqueue(ctx context.Context, params screenshot.Params, config *screenshot.CaptureConfig) (string, error)
}

// Dependencies holds everything the HTTP handlers need
type Dependencies struct {
	Logger      *slog.Logger
	Classifier  *Classifier
	Validator   *SubdomainValidator
	Forwarder   *Forwarder
	Resolver    *Resolver
	Namespace   Namespace
	DB          HealthChecker
	Queue       QueueStatus
	Screenshots ScreenshotEnqueuer
	Metrics     *Metrics

	ServiceName    string
	ServiceVersion string
	Environment    string
	PlatformDomain string
}

// Handler serves the dispatcher's HTTP surface
type Handler struct {
	deps *Dependencies
}

// NewHandler creates the dispatcher handler
func NewHandler(deps *Dependencies) *Handler {
	return &Handler{deps: deps}
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "healthy"
	queueStatus := "healthy"

	if err := h.deps.DB.HealthCheck(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = "unhealthy"
	}

	if !h.deps.Queue.IsConnected() {
		status = http.StatusServiceUnavailable
		queueStatus = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":   statusWord(status == http.StatusOK),
		"service":  h.deps.ServiceName,
		"database": dbStatus,
		"queue":    queueStatus,
	})
}

func statusWord(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

// serviceInfo is the platform-root JSON body
func (h *Handler) serviceInfo() gin.H {
	return gin.H{
		"service":     h.deps.ServiceName,
		"version":     h.deps.ServiceVersion,
		"environment": h.deps.Environment,
		"namespace":   h.deps.Namespace.Name(),
		"domain":      h.deps.PlatformDomain,
		"endpoints": []string{
			"/dispatch", "/health", "/docs", "/openapi.json", "/metrics", "/v1/screenshots",
		},
	}
}

// DispatchQuery handles ALL /dispatch. Without a worker query parameter a
// GET returns namespace info; with one, the request is validated and
// forwarded.
func (h *Handler) DispatchQuery(c *gin.Context) {
	workerName := c.Query("worker")

	if workerName == "" {
		if c.Request.Method != http.MethodGet {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:     CodeInvalidWorkerName,
				Message:   "Query parameter 'worker' is required",
				RequestID: RequestID(c),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"namespace": h.deps.Namespace.Name(),
			"domain":    h.deps.PlatformDomain,
			"usage":     "/dispatch?worker=<name> forwards this request to the named worker",
		})
		return
	}

	if validation := h.deps.Validator.Validate(workerName); !validation.Valid {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:      CodeInvalidWorkerName,
			Message:    validation.Reason,
			WorkerName: workerName,
			RequestID:  RequestID(c),
		})
		return
	}

	h.deps.Forwarder.Dispatch(c.Writer, c.Request, workerName, RequestID(c))
}

// EnqueueScreenshotRequest is the POST /v1/screenshots body
type EnqueueScreenshotRequest struct {
	ProjectID      string                    `json:"projectId" binding:"required"`
	PlanID         string                    `json:"planId"`
	OrganizationID string                    `json:"organizationId" binding:"required"`
	UserID         string                    `json:"userId" binding:"required"`
	PreviewURL     string                    `json:"previewUrl"`
	Config         *screenshot.CaptureConfig `json:"config"`
}

// EnqueueScreenshot handles POST /v1/screenshots
func (h *Handler) EnqueueScreenshot(c *gin.Context) {
	var req EnqueueScreenshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     screenshot.CodeValidationFailed,
			Message:   "Invalid request body: " + err.Error(),
			RequestID: RequestID(c),
		})
		return
	}

	screenshotID, err := h.deps.Screenshots.Enqueue(c.Request.Context(), screenshot.Params{
		ProjectID:  req.ProjectID,
		PlanID:     req.PlanID,
		OrgID:      req.OrganizationID,
		UserID:     req.UserID,
		PreviewURL: req.PreviewURL,
	}, req.Config)
	if err != nil {
		if errors.Is(err, screenshot.ErrValidationFailed) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:     screenshot.CodeValidationFailed,
				Message:   err.Error(),
				RequestID: RequestID(c),
			})
			return
		}

		h.deps.Logger.Error("Failed to enqueue screenshot",
			slog.String("project_id", req.ProjectID),
			slog.String("request_id", RequestID(c)),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     CodeInternalError,
			Message:   "Failed to enqueue screenshot",
			RequestID: RequestID(c),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"screenshotId": screenshotID,
		"status":       "pending",
		"requestId":    RequestID(c),
	})
}

// Route handles every request that matched no path route: hostname-based
// routing for platform root, worker subdomains, and custom domains.
func (h *Handler) Route(c *gin.Context) {
	hostname := NormalizeHostname(c.Request.Host)
	decision := h.deps.Classifier.Classify(hostname)

	switch decision.Kind {
	case RoutePlatformRoot:
		if c.Request.URL.Path == "/" {
			c.JSON(http.StatusOK, h.serviceInfo())
			return
		}
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "Not found",
			Message:   "No such path on the platform root",
			RequestID: RequestID(c),
		})

	case RouteInvalid:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     CodeInvalidSubdomain,
			Message:   decision.Reason,
			Hostname:  hostname,
			RequestID: RequestID(c),
		})

	case RouteWorker:
		if validation := h.deps.Validator.Validate(decision.Subdomain); !validation.Valid {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:      CodeInvalidWorkerName,
				Message:    validation.Reason,
				WorkerName: decision.Subdomain,
				Hostname:   hostname,
				RequestID:  RequestID(c),
			})
			return
		}
		h.deps.Forwarder.Dispatch(c.Writer, c.Request, decision.Subdomain, RequestID(c))

	case RouteCustomDomain:
		h.routeCustomDomain(c, hostname)
	}
}

// routeCustomDomain resolves and proxies a customer-owned hostname
func (h *Handler) routeCustomDomain(c *gin.Context, hostname string) {
	resolution, err := h.deps.Resolver.Resolve(c.Request.Context(), hostname)
	if err != nil {
		if errors.Is(err, ErrDomainNotConfigured) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:     "Custom domain not configured",
				Message:   err.Error(),
				Hostname:  hostname,
				RequestID: RequestID(c),
			})
			return
		}

		message := "Failed to resolve custom domain"
		if h.deps.Environment != "production" {
			message = err.Error()
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     CodeInternalError,
			Message:   message,
			Hostname:  hostname,
			RequestID: RequestID(c),
		})
		return
	}

	h.deps.Forwarder.ProxyTo(c.Writer, c.Request, resolution.Target, hostname, RequestID(c))
}
