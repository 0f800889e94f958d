package project

import (
	"database/sql"
	"time"
)

// Custom domain verification states
const (
	DomainStatusPending  = "pending"
	DomainStatusVerified = "verified"
	DomainStatusActive   = "active"
	DomainStatusFailed   = "failed"
)

// Project is a read model over the platform's project table. The dispatcher
// and screenshot services read it to resolve custom domains and authorize
// captures; only preview_image_url is ever written back.
type Project struct {
	ID                  string         `db:"id"`
	OrganizationID      string         `db:"organization_id"`
	Name                string         `db:"name"`
	CustomDomain        sql.NullString `db:"custom_domain"`
	CustomDomainStatus  sql.NullString `db:"custom_domain_status"`
	ProductionDeployURL sql.NullString `db:"production_deploy_url"`
	PreviewImageURL     sql.NullString `db:"preview_image_url"`
	DeploymentStatus    sql.NullString `db:"deployment_status"`
	IsActive            bool           `db:"is_active"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}
