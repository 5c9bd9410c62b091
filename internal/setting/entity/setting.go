package entity

import "encoding/json"

// TenantSettings is a row of `tenant_settings`: the form field definition a
// tenant's frontend renders dynamically.
type TenantSettings struct {
	TenantID               string          `db:"tenant_id" json:"tenant_id"`
	CustomFieldsDefinition json.RawMessage `db:"custom_fields_definition" json:"custom_fields_definition"`
}
