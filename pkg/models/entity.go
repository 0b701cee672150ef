package models

import "time"

// EntityType tags the concrete kind of an assignable entity.
type EntityType string

// Supported entity types
const (
	EntityTypeLead         EntityType = "lead"
	EntityTypeOrganization EntityType = "organization"
	EntityTypePerson       EntityType = "person"
)

// Valid reports whether t is one of the supported entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeLead, EntityTypeOrganization, EntityTypePerson:
		return true
	}
	return false
}

// Assignable is an entity that can be assigned to a territory.
type Assignable interface {
	EntityType() EntityType
	EntityID() string
	// Attributes exposes the fields rules are evaluated against.
	Attributes() map[string]any
}

// Ownable is implemented by entities that carry a mutable owner.
type Ownable interface {
	OwnerID() string
	SetOwnerID(userID string)
}

// Lead stage codes
const (
	StageNew         = "new"
	StageContacted   = "contacted"
	StageQualified   = "qualified"
	StageNegotiating = "negotiating"
	StageWon         = "won"
	StageLost        = "lost"
)

// Lead is a sales lead with a pipeline stage and a monetary value.
type Lead struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	LeadValue float64   `json:"lead_value"`
	StageCode string    `json:"stage_code"`
	Source    string    `json:"source,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	Country   string    `json:"country,omitempty"`
	Region    string    `json:"region,omitempty"`
	City      string    `json:"city,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *Lead) EntityType() EntityType { return EntityTypeLead }
func (l *Lead) EntityID() string       { return l.ID }
func (l *Lead) OwnerID() string        { return l.UserID }
func (l *Lead) SetOwnerID(id string)   { l.UserID = id }

func (l *Lead) Attributes() map[string]any {
	return map[string]any{
		"id":         l.ID,
		"title":      l.Title,
		"lead_value": l.LeadValue,
		"stage":      l.StageCode,
		"source":     l.Source,
		"industry":   l.Industry,
		"country":    l.Country,
		"region":     l.Region,
		"city":       l.City,
		"user_id":    l.UserID,
	}
}

// IsWon reports whether the lead closed successfully.
func (l *Lead) IsWon() bool { return l.StageCode == StageWon }

// IsLost reports whether the lead closed unsuccessfully.
func (l *Lead) IsLost() bool { return l.StageCode == StageLost }

// IsOpen reports whether the lead is still in the pipeline.
func (l *Lead) IsOpen() bool { return !l.IsWon() && !l.IsLost() }

// Organization is an account.
type Organization struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Industry      string    `json:"industry,omitempty"`
	Country       string    `json:"country,omitempty"`
	Region        string    `json:"region,omitempty"`
	City          string    `json:"city,omitempty"`
	EmployeeCount int       `json:"employee_count"`
	AnnualRevenue float64   `json:"annual_revenue"`
	UserID        string    `json:"user_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (o *Organization) EntityType() EntityType { return EntityTypeOrganization }
func (o *Organization) EntityID() string       { return o.ID }
func (o *Organization) OwnerID() string        { return o.UserID }
func (o *Organization) SetOwnerID(id string)   { o.UserID = id }

func (o *Organization) Attributes() map[string]any {
	return map[string]any{
		"id":             o.ID,
		"name":           o.Name,
		"industry":       o.Industry,
		"country":        o.Country,
		"region":         o.Region,
		"city":           o.City,
		"employee_count": o.EmployeeCount,
		"annual_revenue": o.AnnualRevenue,
		"user_id":        o.UserID,
	}
}

// Person is a contact, optionally working for an organization.
type Person struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	JobTitle       string    `json:"job_title,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Country        string    `json:"country,omitempty"`
	City           string    `json:"city,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (p *Person) EntityType() EntityType { return EntityTypePerson }
func (p *Person) EntityID() string       { return p.ID }
func (p *Person) OwnerID() string        { return p.UserID }
func (p *Person) SetOwnerID(id string)   { p.UserID = id }

func (p *Person) Attributes() map[string]any {
	return map[string]any{
		"id":              p.ID,
		"name":            p.Name,
		"email":           p.Email,
		"job_title":       p.JobTitle,
		"organization_id": p.OrganizationID,
		"country":         p.Country,
		"city":            p.City,
		"user_id":         p.UserID,
	}
}
