package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Namespace maps a worker name to the URL of a routable deployment. It is
// the Go shape of a platform dispatch namespace capability.
type Namespace interface {
	// Name returns the logical namespace name for logs and info endpoints.
	Name() string
	// Endpoint resolves a worker name to its deployment URL. Returns
	// ErrWorkerNotFound when no such deployment exists.
	Endpoint(ctx context.Context, workerName string) (*url.URL, error)
}

// HTTPNamespace resolves worker names to <scheme>://<worker>.<base domain>
// and optionally probes the deployment to distinguish "worker not found"
// from transient dispatch failures.
type HTTPNamespace struct {
	name       string
	scheme     string
	baseDomain string
	probe      *http.Client
}

// HTTPNamespaceConfig configures an HTTPNamespace
type HTTPNamespaceConfig struct {
	Name       string
	Scheme     string
	BaseDomain string
	// ProbeTimeout enables an existence probe when positive.
	ProbeTimeout time.Duration
}

// NewHTTPNamespace creates a dispatch namespace backed by per-worker
// hostnames under a base domain.
func NewHTTPNamespace(cfg HTTPNamespaceConfig) *HTTPNamespace {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	ns := &HTTPNamespace{
		name:       cfg.Name,
		scheme:     scheme,
		baseDomain: cfg.BaseDomain,
	}

	if cfg.ProbeTimeout > 0 {
		ns.probe = &http.Client{Timeout: cfg.ProbeTimeout}
	}

	return ns
}

// Name returns the logical namespace name
func (n *HTTPNamespace) Name() string {
	return n.name
}

// Endpoint resolves a worker name to its deployment URL
func (n *HTTPNamespace) Endpoint(ctx context.Context, workerName string) (*url.URL, error) {
	if workerName == "" {
		return nil, ErrWorkerNotFound
	}

	target := &url.URL{
		Scheme: n.scheme,
		Host:   fmt.Sprintf("%s.%s", workerName, n.baseDomain),
	}

	if n.probe != nil {
		if err := n.probeEndpoint(ctx, target); err != nil {
			return nil, err
		}
	}

	return target, nil
}

// probeEndpoint issues a HEAD request to the candidate deployment. An
// unresolvable or unreachable host means no worker is deployed under that
// name; any HTTP status counts as existence.
func (n *HTTPNamespace) probeEndpoint(ctx context.Context, target *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := n.probe.Do(req)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return ErrWorkerNotFound
		}

		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return ErrWorkerNotFound
		}

		return fmt.Errorf("namespace probe failed: %w", err)
	}
	resp.Body.Close()

	return nil
}

// StaticNamespace is an in-memory namespace used for local development and
// tests: a fixed map of worker names to deployment URLs.
type StaticNamespace struct {
	name    string
	workers map[string]*url.URL
}

// NewStaticNamespace creates a namespace from a name→URL map
func NewStaticNamespace(name string, workers map[string]string) (*StaticNamespace, error) {
	resolved := make(map[string]*url.URL, len(workers))
	for workerName, rawURL := range workers {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid URL for worker %q: %w", workerName, err)
		}
		resolved[workerName] = u
	}

	return &StaticNamespace{name: name, workers: resolved}, nil
}

// Name returns the logical namespace name
func (n *StaticNamespace) Name() string {
	return n.name
}

// Endpoint resolves a worker name against the static map
func (n *StaticNamespace) Endpoint(_ context.Context, workerName string) (*url.URL, error) {
	target, ok := n.workers[workerName]
	if !ok {
		return nil, ErrWorkerNotFound
	}
	return target, nil
}
