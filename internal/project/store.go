package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/libra-sh/libra-edge/shared/postgresql"
)

// ErrProjectNotFound is returned when no project matches the lookup
var ErrProjectNotFound = errors.New("project not found")

const projectColumns = `
	id, organization_id, name, custom_domain, custom_domain_status,
	production_deploy_url, preview_image_url, deployment_status,
	is_active, created_at, updated_at
`

// Store provides read access to the project table plus the single write
// the screenshot pipeline needs.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a project store backed by the shared PostgreSQL client
func NewStore(pg *postgresql.Client) *Store {
	return &Store{db: pg.GetDB()}
}

// NewStoreFromDB creates a project store from a raw sqlx handle
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// GetByCustomDomain returns the project eligible for custom-domain routing:
// matching hostname, active, and with a verified or active domain status.
func (s *Store) GetByCustomDomain(ctx context.Context, hostname string) (*Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM project
		WHERE custom_domain = $1
		  AND is_active = TRUE
		  AND custom_domain_status IN ('verified', 'active')
		LIMIT 1
	`

	var p Project
	err := s.db.GetContext(ctx, &p, query, hostname)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to query project by custom domain: %w", err)
	}

	return &p, nil
}

// GetByIDAndOrg returns the project only when it belongs to the given
// organization. Callers distinguish a missing project from a permission
// mismatch with a second unscoped lookup.
func (s *Store) GetByIDAndOrg(ctx context.Context, id, organizationID string) (*Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM project
		WHERE id = $1 AND organization_id = $2
		LIMIT 1
	`

	var p Project
	err := s.db.GetContext(ctx, &p, query, id, organizationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to query project by id and org: %w", err)
	}

	return &p, nil
}

// Exists reports whether a project with the given id exists at all,
// regardless of owning organization.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var found string
	err := s.db.GetContext(ctx, &found, `SELECT id FROM project WHERE id = $1 LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check project existence: %w", err)
	}

	return true, nil
}

// UpdatePreviewImage stores the CDN URL of the latest screenshot
func (s *Store) UpdatePreviewImage(ctx context.Context, id, previewImageURL string) error {
	query := `
		UPDATE project
		SET preview_image_url = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, previewImageURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update preview image: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrProjectNotFound
	}

	return nil
}
