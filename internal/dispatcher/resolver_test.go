package dispatcher

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libra-sh/libra-edge/internal/project"
)

// fakeProjectStore serves a fixed project (or error) per hostname
type fakeProjectStore struct {
	projects map[string]*project.Project
	err      error
}

func (s *fakeProjectStore) GetByCustomDomain(_ context.Context, hostname string) (*project.Project, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.projects[hostname]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func eligibleProject() *project.Project {
	return &project.Project{
		ID:                  "proj-1",
		OrganizationID:      "org-1",
		Name:                "shop",
		CustomDomain:        nullString("shop.example.com"),
		CustomDomainStatus:  nullString(project.DomainStatusVerified),
		ProductionDeployURL: nullString("https://shop-prod.workers.libra.internal"),
		IsActive:            true,
	}
}

func newTestResolver(store ProjectStore) *Resolver {
	return NewResolver(store, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestResolver_Resolve(t *testing.T) {
	store := &fakeProjectStore{projects: map[string]*project.Project{
		"shop.example.com": eligibleProject(),
	}}
	r := newTestResolver(store)

	res, err := r.Resolve(context.Background(), "shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", res.Project.ID)
	assert.Equal(t, "https://shop-prod.workers.libra.internal", res.Target.String())
}

func TestResolver_Resolve_NotConfigured(t *testing.T) {
	r := newTestResolver(&fakeProjectStore{})

	_, err := r.Resolve(context.Background(), "unknown.example.com")
	assert.ErrorIs(t, err, ErrDomainNotConfigured)
}

func TestResolver_Resolve_StoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	r := newTestResolver(&fakeProjectStore{err: storeErr})

	_, err := r.Resolve(context.Background(), "shop.example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrDomainNotConfigured)
}

func TestResolver_Resolve_Ineligible(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *project.Project)
	}{
		{
			name:   "inactive project",
			mutate: func(p *project.Project) { p.IsActive = false },
		},
		{
			name: "pending domain status",
			mutate: func(p *project.Project) {
				p.CustomDomainStatus = nullString(project.DomainStatusPending)
			},
		},
		{
			name: "failed domain status",
			mutate: func(p *project.Project) {
				p.CustomDomainStatus = nullString(project.DomainStatusFailed)
			},
		},
		{
			name:   "no production deployment",
			mutate: func(p *project.Project) { p.ProductionDeployURL = sql.NullString{} },
		},
		{
			name: "deploy URL without scheme",
			mutate: func(p *project.Project) {
				p.ProductionDeployURL = nullString("shop-prod.workers.libra.internal")
			},
		},
		{
			name: "deploy URL with unsupported scheme",
			mutate: func(p *project.Project) {
				p.ProductionDeployURL = nullString("ftp://shop-prod.workers.libra.internal")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := eligibleProject()
			tt.mutate(p)

			r := newTestResolver(&fakeProjectStore{projects: map[string]*project.Project{
				"shop.example.com": p,
			}})

			_, err := r.Resolve(context.Background(), "shop.example.com")
			assert.ErrorIs(t, err, ErrDomainNotConfigured)
		})
	}
}

func TestResolver_Resolve_ActiveStatusIsEligible(t *testing.T) {
	p := eligibleProject()
	p.CustomDomainStatus = nullString(project.DomainStatusActive)

	r := newTestResolver(&fakeProjectStore{projects: map[string]*project.Project{
		"shop.example.com": p,
	}})

	_, err := r.Resolve(context.Background(), "shop.example.com")
	assert.NoError(t, err)
}
