package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/tenant/entity"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/pkg/database"
)

// TenantRepo provides data access for the tenants table and the per-tenant
// schemas using sqlx.
type TenantRepo struct {
	db *sqlx.DB
}

func NewTenantRepo(db *sqlx.DB) *TenantRepo { return &TenantRepo{db: db} }

// EnsureTable creates the tenants table if not exists (idempotent).
func (r *TenantRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tenants (
  id varchar(32) PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT,
  schema_name varchar(63) NOT NULL UNIQUE,
  role varchar(16) NOT NULL DEFAULT 'client',
  password_reset_token TEXT,
  password_reset_token_expires_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_reset_token ON tenants(password_reset_token) WHERE password_reset_token IS NOT NULL;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// tenantTables are created inside every tenant schema.
var tenantTables = []struct {
	name string
	ddl  string
}{
	{"orders", `(
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  racket_count INT NOT NULL,
  custom_fields JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`},
	{"players", `(
  id BIGSERIAL PRIMARY KEY,
  bwf_id TEXT NOT NULL,
  name TEXT NOT NULL,
  custom_fields JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`},
}

// Provision inserts the tenant row and creates its schema and tables in a
// single transaction; either all of it exists afterwards or none of it.
func (r *TenantRepo) Provision(ctx context.Context, t *entity.Tenant) (err error) {
	if !database.ValidIdentifier(t.SchemaName) {
		return database.ErrInvalidIdentifier
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		// a failed Commit already ended the transaction
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = multierror.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	const ins = `INSERT INTO tenants (id, name, email, password_hash, schema_name, role) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, ins, t.ID, t.Name, t.Email, t.PasswordHash, t.SchemaName, t.Role); err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "CREATE SCHEMA "+pq.QuoteIdentifier(t.SchemaName)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	for _, tbl := range tenantTables {
		var qualified string
		if qualified, err = database.QualifiedTable(t.SchemaName, tbl.name); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, "CREATE TABLE "+qualified+" "+tbl.ddl); err != nil {
			return fmt.Errorf("create table %s: %w", tbl.name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const selectTenant = `SELECT id, name, email, password_hash, schema_name, role,
		password_reset_token, password_reset_token_expires_at, created_at, updated_at
	  FROM tenants`

// GetByEmail returns the tenant with the given (normalized) email or sql.ErrNoRows.
func (r *TenantRepo) GetByEmail(ctx context.Context, email string) (*entity.Tenant, error) {
	var row entity.Tenant
	if err := r.db.GetContext(ctx, &row, selectTenant+` WHERE email=$1`, email); err != nil {
		return nil, err
	}
	return &row, nil
}

// SetResetToken stores a password reset token and its expiry, replacing any
// earlier token.
func (r *TenantRepo) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	const q = `UPDATE tenants SET password_reset_token=$2, password_reset_token_expires_at=$3, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, token, expiresAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ConsumeResetToken sets a new password hash for the tenant holding token,
// provided the token expires after now, and clears the token. It returns
// the tenant id, or sql.ErrNoRows when no live token matched.
func (r *TenantRepo) ConsumeResetToken(ctx context.Context, token, hash string, now time.Time) (string, error) {
	const q = `UPDATE tenants
		SET password_hash=$2, password_reset_token=NULL, password_reset_token_expires_at=NULL, updated_at=NOW()
		WHERE password_reset_token=$1 AND password_reset_token_expires_at > $3
		RETURNING id`
	var id string
	if err := r.db.GetContext(ctx, &id, q, token, hash, now); err != nil {
		return "", err
	}
	return id, nil
}
