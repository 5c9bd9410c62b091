package setting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/setting/entity"
)

// Store is the read side the service needs; *repo.Repo satisfies it.
type Store interface {
	GetBySchema(ctx context.Context, schemaName string) (*entity.TenantSettings, error)
}

// Service encapsulates lookup of tenant form settings.
type Service struct {
	repo Store
}

// NewService constructs a Service with the provided repository.
func NewService(r Store) *Service {
	return &Service{repo: r}
}

// sentinel errors for common failure modes
var (
	ErrNotFound    = errors.New("customer settings not found")
	ErrUnknownForm = errors.New("unknown form type")
)

// Forms that have their own settings entry.
var knownForms = map[string]bool{"order": true, "player": true}

// Get returns the tenant's whole custom_fields_definition.
func (s *Service) Get(ctx context.Context, schemaName string) (json.RawMessage, error) {
	st, err := s.repo.GetBySchema(ctx, schemaName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return st.CustomFieldsDefinition, nil
}

// GetForForm returns the definition entry for one form. A definition that
// is not keyed by form type applies to every form and is returned whole.
func (s *Service) GetForForm(ctx context.Context, schemaName, form string) (json.RawMessage, error) {
	if !knownForms[form] {
		return nil, ErrUnknownForm
	}
	raw, err := s.Get(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	var byForm map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byForm); err != nil {
		// arrays and scalars are passed through untouched
		return raw, nil
	}
	if entry, ok := byForm[form]; ok {
		return entry, nil
	}
	return raw, nil
}
