package dispatcher

import "errors"

// Error codes returned in JSON error envelopes
const (
	CodeInvalidSubdomain          = "INVALID_SUBDOMAIN"
	CodeInvalidWorkerName         = "INVALID_WORKER_NAME"
	CodeWorkerNotFound            = "WORKER_NOT_FOUND"
	CodeDispatchFailed            = "DISPATCH_FAILED"
	CodeCustomDomainNotConfigured = "CUSTOM_DOMAIN_NOT_CONFIGURED"
	CodeInternalError             = "INTERNAL_ERROR"
)

// ErrWorkerNotFound is returned by a Namespace when no worker deployment
// exists for the requested name.
var ErrWorkerNotFound = errors.New("worker not found in dispatch namespace")

// ErrDomainNotConfigured is returned by the Resolver when a hostname has no
// eligible project behind it.
var ErrDomainNotConfigured = errors.New("custom domain not configured")

// ErrorResponse is the uniform JSON error envelope. Context-specific fields
// are omitted when empty.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RequestID  string `json:"requestId"`
	WorkerName string `json:"workerName,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}
