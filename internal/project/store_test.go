package project

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStoreFromDB(sqlx.NewDb(db, "sqlmock")), mock
}

func projectRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "organization_id", "name", "custom_domain", "custom_domain_status",
		"production_deploy_url", "preview_image_url", "deployment_status",
		"is_active", "created_at", "updated_at",
	})
}

func TestStore_GetByCustomDomain(t *testing.T) {
	now := time.Now()

	t.Run("eligible project found", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("SELECT(.|\n)*FROM project(.|\n)*custom_domain = \\$1").
			WithArgs("shop.example.com").
			WillReturnRows(projectRows().AddRow(
				"proj-123", "org-1", "shop", "shop.example.com", "verified",
				"https://p123.workers.dev", nil, "deployed",
				true, now, now,
			))

		p, err := store.GetByCustomDomain(context.Background(), "shop.example.com")
		require.NoError(t, err)
		assert.Equal(t, "proj-123", p.ID)
		assert.Equal(t, "verified", p.CustomDomainStatus.String)
		assert.Equal(t, "https://p123.workers.dev", p.ProductionDeployURL.String)
		assert.True(t, p.IsActive)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no matching row", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("SELECT(.|\n)*FROM project").
			WithArgs("unknown.example.com").
			WillReturnError(sql.ErrNoRows)

		p, err := store.GetByCustomDomain(context.Background(), "unknown.example.com")
		assert.ErrorIs(t, err, ErrProjectNotFound)
		assert.Nil(t, p)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_GetByIDAndOrg(t *testing.T) {
	now := time.Now()

	t.Run("project in organization", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("SELECT(.|\n)*FROM project(.|\n)*id = \\$1 AND organization_id = \\$2").
			WithArgs("proj-123", "org-1").
			WillReturnRows(projectRows().AddRow(
				"proj-123", "org-1", "shop", nil, nil,
				"https://p123.workers.dev", nil, "deployed",
				true, now, now,
			))

		p, err := store.GetByIDAndOrg(context.Background(), "proj-123", "org-1")
		require.NoError(t, err)
		assert.Equal(t, "org-1", p.OrganizationID)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong organization", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("SELECT(.|\n)*FROM project").
			WithArgs("proj-123", "org-2").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetByIDAndOrg(context.Background(), "proj-123", "org-2")
		assert.ErrorIs(t, err, ErrProjectNotFound)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Exists(t *testing.T) {
	t.Run("exists", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("SELECT id FROM project").
			WithArgs("proj-123").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("proj-123"))

		found, err := store.Exists(context.Background(), "proj-123")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("missing", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("SELECT id FROM project").
			WithArgs("proj-999").
			WillReturnError(sql.ErrNoRows)

		found, err := store.Exists(context.Background(), "proj-999")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestStore_UpdatePreviewImage(t *testing.T) {
	t.Run("updates one row", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE project(.|\n)*SET preview_image_url").
			WithArgs("proj-123", "https://cdn.libra.sh/screenshots/abc.png", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.UpdatePreviewImage(context.Background(), "proj-123", "https://cdn.libra.sh/screenshots/abc.png")
		require.NoError(t, err)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown project", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE project").
			WithArgs("proj-999", "https://cdn.libra.sh/screenshots/abc.png", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.UpdatePreviewImage(context.Background(), "proj-999", "https://cdn.libra.sh/screenshots/abc.png")
		assert.ErrorIs(t, err, ErrProjectNotFound)
	})
}
