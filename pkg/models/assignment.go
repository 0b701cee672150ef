package models

import "time"

// Assignment types
const (
	AssignmentTypeManual    = "manual"
	AssignmentTypeAutomatic = "automatic"
)

// Assignment links one entity to one territory at a point in time.
// Superseded assignments keep IsCurrent=false and a SupersededAt timestamp.
type Assignment struct {
	ID             string     `json:"id"`
	TerritoryID    string     `json:"territory_id"`
	AssignableType EntityType `json:"assignable_type"`
	AssignableID   string     `json:"assignable_id"`
	AssignedBy     string     `json:"assigned_by,omitempty"`
	AssignmentType string     `json:"assignment_type"`
	AssignedAt     time.Time  `json:"assigned_at"`
	IsCurrent      bool       `json:"is_current"`
	SupersededAt   *time.Time `json:"superseded_at,omitempty"`
}

// Refers reports whether the assignment belongs to the given entity.
func (a *Assignment) Refers(e Assignable) bool {
	return e != nil && a.AssignableType == e.EntityType() && a.AssignableID == e.EntityID()
}
