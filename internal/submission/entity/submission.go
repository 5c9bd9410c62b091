package entity

import "encoding/json"

// Order is a row of <tenant schema>.orders.
type Order struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	RacketCount  int             `json:"racket_count"`
	CustomFields json.RawMessage `json:"custom_fields"`
}

// Player is a row of <tenant schema>.players.
type Player struct {
	ID           int64           `json:"id"`
	BwfID        string          `json:"bwfId"`
	Name         string          `json:"name"`
	CustomFields json.RawMessage `json:"custom_fields"`
}
