package dispatcher

import (
	"net"
	"strings"
)

// RouteKind discriminates the routing classes a hostname can fall into
type RouteKind int

const (
	// RoutePlatformRoot is the platform apex domain itself
	RoutePlatformRoot RouteKind = iota
	// RouteWorker is a platform subdomain addressing a deployed worker
	RouteWorker
	// RouteCustomDomain is a customer-owned hostname resolved via the
	// project store
	RouteCustomDomain
	// RouteInvalid is a platform hostname that yields no usable subdomain
	RouteInvalid
)

// RouteDecision is the outcome of classifying a request hostname. Exactly
// the field matching Kind is populated.
type RouteDecision struct {
	Kind      RouteKind
	Subdomain string // RouteWorker
	Hostname  string // RouteCustomDomain
	Reason    string // RouteInvalid
}

// Classifier decides how a hostname should be routed
type Classifier struct {
	platformDomain string
}

// NewClassifier creates a classifier for the given platform apex domain
func NewClassifier(platformDomain string) *Classifier {
	return &Classifier{platformDomain: strings.ToLower(platformDomain)}
}

// NormalizeHostname lowercases a request host and strips any port and
// trailing dot.
func NormalizeHostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
}

// ExtractSubdomain returns the first label of a hostname with at least three
// dot-separated labels. The platform apex itself and bare two-label domains
// yield no subdomain. The extraction is generic: it applies to any
// multi-tenant subdomain scheme, not only the platform domain.
func ExtractSubdomain(hostname string) (string, bool) {
	hostname = NormalizeHostname(hostname)

	labels := strings.Split(hostname, ".")
	if len(labels) < 3 {
		return "", false
	}

	return labels[0], true
}

// Classify determines the routing class for a hostname
func (c *Classifier) Classify(hostname string) RouteDecision {
	hostname = NormalizeHostname(hostname)

	if hostname == c.platformDomain {
		return RouteDecision{Kind: RoutePlatformRoot}
	}

	if strings.HasSuffix(hostname, "."+c.platformDomain) {
		subdomain, ok := ExtractSubdomain(hostname)
		if !ok || subdomain == "" {
			return RouteDecision{
				Kind:   RouteInvalid,
				Reason: "platform hostname yields no subdomain",
			}
		}
		return RouteDecision{Kind: RouteWorker, Subdomain: subdomain}
	}

	// Everything else is a candidate custom domain, resolved against the
	// project store.
	return RouteDecision{Kind: RouteCustomDomain, Hostname: hostname}
}
