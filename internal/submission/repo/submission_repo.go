package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/submission/entity"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/pkg/database"
)

// Repo writes order and player records into tenant schemas.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

// InsertOrder stores o in <schema>.orders and returns the new id.
func (r *Repo) InsertOrder(ctx context.Context, schema string, o *entity.Order) (int64, error) {
	table, err := database.QualifiedTable(schema, "orders")
	if err != nil {
		return 0, err
	}
	q := `INSERT INTO ` + table + ` (name, racket_count, custom_fields) VALUES ($1, $2, $3) RETURNING id`
	var id int64
	if err := r.db.QueryRowxContext(ctx, q, o.Name, o.RacketCount, string(o.CustomFields)).Scan(&id); err != nil {
		return 0, err
	}
	o.ID = id
	return id, nil
}

// InsertPlayer stores p in <schema>.players and returns the new id.
func (r *Repo) InsertPlayer(ctx context.Context, schema string, p *entity.Player) (int64, error) {
	table, err := database.QualifiedTable(schema, "players")
	if err != nil {
		return 0, err
	}
	q := `INSERT INTO ` + table + ` (bwf_id, name, custom_fields) VALUES ($1, $2, $3) RETURNING id`
	var id int64
	if err := r.db.QueryRowxContext(ctx, q, p.BwfID, p.Name, string(p.CustomFields)).Scan(&id); err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}
