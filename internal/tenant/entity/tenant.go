package entity

import "time"

// Tenant represents a row in the `tenants` table: one client organization
// and the schema that holds its records.
type Tenant struct {
	ID                          string     `db:"id"`
	Name                        string     `db:"name"`
	Email                       string     `db:"email"`
	PasswordHash                *string    `db:"password_hash"`
	SchemaName                  string     `db:"schema_name"`
	Role                        string     `db:"role"`
	PasswordResetToken          *string    `db:"password_reset_token"`
	PasswordResetTokenExpiresAt *time.Time `db:"password_reset_token_expires_at"`
	CreatedAt                   time.Time  `db:"created_at"`
	UpdatedAt                   time.Time  `db:"updated_at"`
}

// HasPassword reports whether a password has been set.
func (t *Tenant) HasPassword() bool {
	return t.PasswordHash != nil && *t.PasswordHash != ""
}
