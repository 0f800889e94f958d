package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"
)

// Forwarder dispatches requests to worker deployments looked up in a
// Namespace. Requests are forwarded unmodified; delivery semantics beyond a
// single attempt belong to the platform, so no retry happens here.
type Forwarder struct {
	namespace Namespace
	transport http.RoundTripper
	logger    *slog.Logger
	metrics   *Metrics
}

// ForwarderConfig configures a Forwarder
type ForwarderConfig struct {
	Namespace Namespace
	Logger    *slog.Logger
	Metrics   *Metrics
	// Transport overrides http.DefaultTransport for upstream round trips.
	Transport http.RoundTripper
	// UpstreamTimeout bounds the round trip to the worker deployment.
	UpstreamTimeout time.Duration
}

// NewForwarder creates a dispatch forwarder
func NewForwarder(cfg ForwarderConfig) *Forwarder {
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if cfg.UpstreamTimeout > 0 {
		transport = &timeoutTransport{
			inner:   transport,
			timeout: cfg.UpstreamTimeout,
		}
	}

	return &Forwarder{
		namespace: cfg.Namespace,
		transport: transport,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Dispatch looks up workerName in the namespace and proxies the request to
// it, translating lookup failures into JSON error responses.
func (f *Forwarder) Dispatch(w http.ResponseWriter, r *http.Request, workerName, requestID string) {
	f.logger.Info("Dispatching request to worker",
		slog.String("worker_name", workerName),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", requestID),
	)

	target, err := f.namespace.Endpoint(r.Context(), workerName)
	if err != nil {
		if errors.Is(err, ErrWorkerNotFound) {
			f.logger.Warn("Worker not found in dispatch namespace",
				slog.String("worker_name", workerName),
				slog.String("namespace", f.namespace.Name()),
				slog.String("request_id", requestID),
			)
			f.metrics.RecordDispatch(OutcomeWorkerNotFound)
			f.writeWorkerNotFound(w, workerName, requestID)
			return
		}

		f.logger.Error("Dispatch namespace lookup failed",
			slog.String("worker_name", workerName),
			slog.String("request_id", requestID),
			slog.Any("error", err),
		)
		f.metrics.RecordDispatch(OutcomeFailed)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:      CodeDispatchFailed,
			Message:    "Failed to dispatch request to worker",
			WorkerName: workerName,
			RequestID:  requestID,
		})
		return
	}

	f.proxy(w, r, target, workerName, requestID)
}

// proxy forwards the request verbatim to the target deployment
func (f *Forwarder) proxy(w http.ResponseWriter, r *http.Request, target *url.URL, workerName, requestID string) {
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = target.Host
			pr.SetXForwarded()
		},
		Transport: f.transport,
		ModifyResponse: func(resp *http.Response) error {
			f.logger.Info("Dispatch succeeded",
				slog.String("worker_name", workerName),
				slog.Int("status", resp.StatusCode),
				slog.String("request_id", requestID),
			)
			f.metrics.RecordDispatch(OutcomeForwarded)
			return nil
		},
		ErrorHandler: func(ew http.ResponseWriter, _ *http.Request, err error) {
			// Without an existence probe an undeployed worker only shows up
			// here, as an unresolvable hostname.
			if isHostNotFound(err) {
				f.logger.Warn("Worker hostname does not resolve",
					slog.String("worker_name", workerName),
					slog.String("request_id", requestID),
				)
				f.metrics.RecordDispatch(OutcomeWorkerNotFound)
				f.writeWorkerNotFound(ew, workerName, requestID)
				return
			}

			f.logger.Error("Dispatch to worker failed",
				slog.String("worker_name", workerName),
				slog.String("request_id", requestID),
				slog.Any("error", err),
			)
			f.metrics.RecordDispatch(OutcomeFailed)
			writeJSON(ew, http.StatusInternalServerError, ErrorResponse{
				Error:      CodeDispatchFailed,
				Message:    "Failed to dispatch request to worker",
				WorkerName: workerName,
				RequestID:  requestID,
			})
		},
	}

	rp.ServeHTTP(w, r)
}

// ProxyTo forwards the request to an arbitrary deployment URL. Used by the
// custom-domain path, which resolves its target from the project store.
func (f *Forwarder) ProxyTo(w http.ResponseWriter, r *http.Request, target *url.URL, hostname, requestID string) {
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = target.Host
			pr.SetXForwarded()
		},
		Transport: f.transport,
		ModifyResponse: func(resp *http.Response) error {
			f.logger.Info("Custom domain proxied",
				slog.String("hostname", hostname),
				slog.String("target", target.String()),
				slog.Int("status", resp.StatusCode),
				slog.String("request_id", requestID),
			)
			return nil
		},
		ErrorHandler: func(ew http.ResponseWriter, _ *http.Request, err error) {
			f.logger.Error("Custom domain proxy failed",
				slog.String("hostname", hostname),
				slog.String("target", target.String()),
				slog.String("request_id", requestID),
				slog.Any("error", err),
			)
			writeJSON(ew, http.StatusBadGateway, ErrorResponse{
				Error:     CodeDispatchFailed,
				Message:   "Failed to reach the production deployment",
				Hostname:  hostname,
				RequestID: requestID,
			})
		},
	}

	rp.ServeHTTP(w, r)
}

// writeWorkerNotFound writes the uniform 404 envelope for a worker name with
// no deployment behind it.
func (f *Forwarder) writeWorkerNotFound(w http.ResponseWriter, workerName, requestID string) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error:      "Worker not found",
		Message:    fmt.Sprintf("No deployed worker named %q exists in this namespace", workerName),
		WorkerName: workerName,
		RequestID:  requestID,
		Suggestion: "Check the subdomain spelling or deploy the project first",
	})
}

// isHostNotFound reports whether a proxy error means the upstream hostname
// has no DNS record, i.e. no worker is deployed under that name.
func isHostNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

// writeJSON writes a JSON response with a status code
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// timeoutTransport bounds each upstream round trip
type timeoutTransport struct {
	inner   http.RoundTripper
	timeout time.Duration
}

func (t *timeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.inner.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelBody releases the round-trip timeout once the body is closed
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
