package models

import "time"

// Territory types
const (
	TerritoryTypeGeographic   = "geographic"
	TerritoryTypeAccountBased = "account-based"
)

// Territory statuses
const (
	TerritoryStatusActive   = "active"
	TerritoryStatusInactive = "inactive"
)

// Territory is a named scope entities can be assigned to.
// UserID is the default owner of entities in the territory; empty means none.
type Territory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,max=255"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type" validate:"required,oneof=geographic account-based"`
	Status      string    `json:"status" validate:"required,oneof=active inactive"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsActive reports whether the territory takes part in auto-matching.
func (t *Territory) IsActive() bool {
	return t.Status == TerritoryStatusActive
}

// HasOwner reports whether the territory has a default owner.
func (t *Territory) HasOwner() bool {
	return t.UserID != ""
}
