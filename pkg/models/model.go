package models

import "time"

// ModelRecord is one discoverable model and the group whose UI serves it
type ModelRecord struct {
	ID        string    `json:"id"`
	Group     string    `json:"group"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
