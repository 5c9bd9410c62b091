package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/submission/entity"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/pkg/database"
)

// Store is implemented by *repo.Repo.
type Store interface {
	InsertOrder(ctx context.Context, schema string, o *entity.Order) (int64, error)
	InsertPlayer(ctx context.Context, schema string, p *entity.Player) (int64, error)
}

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidSchema = errors.New("session does not name a valid tenant schema")
)

// Service validates submissions and writes them to the caller's schema.
type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

// SubmitOrder validates and stores an order.
func (s *Service) SubmitOrder(ctx context.Context, schema string, o *entity.Order) (int64, error) {
	if !database.ValidIdentifier(schema) {
		return 0, ErrInvalidSchema
	}
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return 0, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if o.RacketCount < 1 {
		return 0, fmt.Errorf("%w: racket_count must be at least 1", ErrInvalidInput)
	}
	cf, err := normalizeCustomFields(o.CustomFields)
	if err != nil {
		return 0, err
	}
	o.CustomFields = cf
	id, err := s.store.InsertOrder(ctx, schema, o)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

// SubmitPlayer validates and stores a player.
func (s *Service) SubmitPlayer(ctx context.Context, schema string, p *entity.Player) (int64, error) {
	if !database.ValidIdentifier(schema) {
		return 0, ErrInvalidSchema
	}
	p.Name = strings.TrimSpace(p.Name)
	p.BwfID = strings.TrimSpace(p.BwfID)
	if p.Name == "" || p.BwfID == "" {
		return 0, fmt.Errorf("%w: bwfId and name are required", ErrInvalidInput)
	}
	cf, err := normalizeCustomFields(p.CustomFields)
	if err != nil {
		return 0, err
	}
	p.CustomFields = cf
	id, err := s.store.InsertPlayer(ctx, schema, p)
	if err != nil {
		return 0, fmt.Errorf("insert player: %w", err)
	}
	return id, nil
}

// normalizeCustomFields accepts a JSON object; absent or null becomes {}.
func normalizeCustomFields(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("%w: custom_fields must be a JSON object", ErrInvalidInput)
	}
	return json.RawMessage(trimmed), nil
}
