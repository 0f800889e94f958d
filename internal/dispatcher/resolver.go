package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/libra-sh/libra-edge/internal/project"
)

// ProjectStore is the read path the resolver needs from the project table
type ProjectStore interface {
	GetByCustomDomain(ctx context.Context, hostname string) (*project.Project, error)
}

// Resolution is a successful custom-domain lookup: the matched project and
// the deployment URL to proxy to.
type Resolution struct {
	Project *project.Project
	Target  *url.URL
}

// Resolver maps customer-owned hostnames to production deployments. This is
// a pure read path: every request re-queries the store, nothing is cached.
type Resolver struct {
	store   ProjectStore
	logger  *slog.Logger
	metrics *Metrics
}

// NewResolver creates a custom-domain resolver
func NewResolver(store ProjectStore, logger *slog.Logger, metrics *Metrics) *Resolver {
	return &Resolver{store: store, logger: logger, metrics: metrics}
}

// Resolve looks up the project behind a hostname and validates that it is
// eligible for proxying. Returns ErrDomainNotConfigured (wrapped with a
// descriptive reason) on any failure.
func (r *Resolver) Resolve(ctx context.Context, hostname string) (*Resolution, error) {
	p, err := r.store.GetByCustomDomain(ctx, hostname)
	if err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			r.metrics.RecordResolve("not_found")
			return nil, fmt.Errorf("%w: no project claims hostname %q", ErrDomainNotConfigured, hostname)
		}

		r.logger.Error("Custom domain lookup failed",
			slog.String("hostname", hostname),
			slog.Any("error", err),
		)
		r.metrics.RecordResolve("error")
		return nil, fmt.Errorf("custom domain lookup failed: %w", err)
	}

	// The query already filters on activity and verification state, but the
	// row is validated again after fetch so a resolver in front of any
	// store implementation enforces the same eligibility rules.
	if err := validateProjectForProxy(p); err != nil {
		r.logger.Warn("Custom domain failed post-fetch validation",
			slog.String("hostname", hostname),
			slog.String("project_id", p.ID),
			slog.Any("error", err),
		)
		r.metrics.RecordResolve("ineligible")
		return nil, err
	}

	target, err := url.Parse(p.ProductionDeployURL.String)
	if err != nil {
		r.metrics.RecordResolve("ineligible")
		return nil, fmt.Errorf("%w: malformed production deploy URL for project %s", ErrDomainNotConfigured, p.ID)
	}

	r.logger.Info("Custom domain resolved",
		slog.String("hostname", hostname),
		slog.String("project_id", p.ID),
		slog.String("target", target.String()),
	)
	r.metrics.RecordResolve("resolved")

	return &Resolution{Project: p, Target: target}, nil
}

// validateProjectForProxy enforces the proxy eligibility invariant: active
// project, verified or active domain status, and a well-formed http(s)
// deploy URL.
func validateProjectForProxy(p *project.Project) error {
	if !p.IsActive {
		return fmt.Errorf("%w: project %s is inactive", ErrDomainNotConfigured, p.ID)
	}

	status := p.CustomDomainStatus.String
	if status != project.DomainStatusVerified && status != project.DomainStatusActive {
		return fmt.Errorf("%w: domain status %q is not verified or active", ErrDomainNotConfigured, status)
	}

	if !p.ProductionDeployURL.Valid || p.ProductionDeployURL.String == "" {
		return fmt.Errorf("%w: project %s has no production deployment", ErrDomainNotConfigured, p.ID)
	}

	u, err := url.Parse(p.ProductionDeployURL.String)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: project %s has a malformed production deploy URL", ErrDomainNotConfigured, p.ID)
	}

	return nil
}
