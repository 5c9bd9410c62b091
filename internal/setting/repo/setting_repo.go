package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/setting/entity"
)

// Repo is the repository implementation for tenant settings backed by PostgreSQL.
type Repo struct {
	db *sqlx.DB
}

// NewRepo constructs a new Repo with an existing connection.
func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable ensures the tenant_settings table exists. The tenants table
// must exist first because of the foreign key.
// Fields:
// - tenant_id varchar(32) PRIMARY KEY REFERENCES tenants(id)
// - custom_fields_definition jsonb
func (r *Repo) EnsureTable(ctx context.Context) error {
	// Check if table exists using to_regclass (Postgres). If it exists, skip creation.
	var tblName sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT to_regclass('public.tenant_settings')").Scan(&tblName)
	if err != nil {
		return err
	}
	if tblName.Valid {
		return nil
	}
	createTable := `CREATE TABLE tenant_settings (
		tenant_id varchar(32) PRIMARY KEY REFERENCES tenants(id),
		custom_fields_definition jsonb NOT NULL DEFAULT '{}'::jsonb,
		updated_at timestamptz NOT NULL DEFAULT NOW()
	)`
	_, err = r.db.ExecContext(ctx, createTable)
	return err
}

// GetBySchema returns the settings of the tenant owning schemaName, or
// sql.ErrNoRows.
func (r *Repo) GetBySchema(ctx context.Context, schemaName string) (*entity.TenantSettings, error) {
	const q = `SELECT ts.tenant_id, ts.custom_fields_definition
		FROM tenants t
		JOIN tenant_settings ts ON t.id = ts.tenant_id
		WHERE t.schema_name = $1`
	var (
		tenantID string
		raw      []byte
	)
	if err := r.db.QueryRowxContext(ctx, q, schemaName).Scan(&tenantID, &raw); err != nil {
		return nil, err
	}
	return &entity.TenantSettings{TenantID: tenantID, CustomFieldsDefinition: raw}, nil
}
