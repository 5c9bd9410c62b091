package database

import (
	"errors"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// maxIdentifierLen is PostgreSQL's NAMEDATALEN-1.
const maxIdentifierLen = 63

// TenantSchemaPrefix prefixes every per-tenant schema.
const TenantSchemaPrefix = "client_"

var (
	identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// SchemaNameFor derives the tenant schema from a display name:
// lower-case, spaces to underscores, anything outside [a-z0-9_] dropped,
// capped at 63 bytes. A name with nothing usable left is rejected.
func SchemaNameFor(name string) (string, error) {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	var b strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "", ErrInvalidIdentifier
	}
	schema := TenantSchemaPrefix + clean
	if len(schema) > maxIdentifierLen {
		schema = schema[:maxIdentifierLen]
	}
	return schema, nil
}

// ValidIdentifier reports whether s is a plain lower-case identifier that
// needs no quoting tricks.
func ValidIdentifier(s string) bool {
	return len(s) <= maxIdentifierLen && identRe.MatchString(s)
}

// QualifiedTable returns "schema"."table" after validating both parts.
func QualifiedTable(schema, table string) (string, error) {
	if !ValidIdentifier(schema) || !ValidIdentifier(table) {
		return "", ErrInvalidIdentifier
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table), nil
}

// Postgres error codes the services care about.
const (
	codeUniqueViolation = "23505"
	codeDuplicateSchema = "42P06"
)

// IsUniqueViolation reports whether err is a unique constraint violation
// or an attempt to create a schema that already exists.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == codeUniqueViolation || pqErr.Code == codeDuplicateSchema
	}
	return false
}
