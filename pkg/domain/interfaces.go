package domain

import (
	"context"
	"time"

	"github.com/jordanlanch/territoryengine/pkg/models"
)

// TerritoryFilter narrows FindWhere results. Zero values match everything.
type TerritoryFilter struct {
	Type     string
	Status   string
	OwnerID  string
	HasOwner *bool
}

// TerritoryStore provides read access to territories.
// Listing methods order by created_at, then id.
type TerritoryStore interface {
	Find(ctx context.Context, id string) (*models.Territory, error)
	All(ctx context.Context) ([]*models.Territory, error)
	GetActiveTerritories(ctx context.Context) ([]*models.Territory, error)
	GetByType(ctx context.Context, territoryType string) ([]*models.Territory, error)
	FindWhere(ctx context.Context, filter TerritoryFilter) ([]*models.Territory, error)
}

// RuleStore provides read access to territory rules.
type RuleStore interface {
	// GetActiveRulesByPriority returns the territory's active rules, highest priority first.
	GetActiveRulesByPriority(ctx context.Context, territoryID string) ([]*models.Rule, error)
	GetActiveRulesByType(ctx context.Context, ruleType string) ([]*models.Rule, error)
	GetActiveRulesByTerritoryAndType(ctx context.Context, territoryID, ruleType string) ([]*models.Rule, error)
}

// AssignResult is the outcome of an atomic assignment write.
type AssignResult struct {
	Assignment *models.Assignment
	// Previous is the assignment that was current before the write, if any.
	Previous *models.Assignment
	// Created is false when the entity was already assigned to the target territory.
	Created bool
}

// AssignmentStore persists assignments. Assign and Reassign are atomic per entity.
type AssignmentStore interface {
	GetCurrentAssignment(ctx context.Context, entityType models.EntityType, entityID string) (*models.Assignment, error)
	// Assign creates a as the current assignment unless the entity is already
	// assigned to a.TerritoryID, in which case the existing one is returned.
	Assign(ctx context.Context, a *models.Assignment) (*AssignResult, error)
	// Reassign supersedes any current assignment and creates a unconditionally.
	Reassign(ctx context.Context, a *models.Assignment) (*AssignResult, error)
	DeleteByAssignable(ctx context.Context, entityType models.EntityType, entityID string) (bool, error)
	GetAssignmentsByTerritory(ctx context.Context, territoryID string) ([]*models.Assignment, error)
	GetAssignmentsByDateRange(ctx context.Context, territoryID string, start, end time.Time) ([]*models.Assignment, error)
	GetAssignmentHistory(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Assignment, error)
	IsAssignedToTerritory(ctx context.Context, entityType models.EntityType, entityID, territoryID string) (bool, error)
}

// LeadRepository resolves and persists leads.
type LeadRepository interface {
	Find(ctx context.Context, id string) (*models.Lead, error)
	FindByIDs(ctx context.Context, ids []string) ([]*models.Lead, error)
	Save(ctx context.Context, lead *models.Lead) error
}

// OrganizationRepository resolves and persists organizations.
type OrganizationRepository interface {
	Find(ctx context.Context, id string) (*models.Organization, error)
	Save(ctx context.Context, org *models.Organization) error
}

// PersonRepository resolves and persists persons.
type PersonRepository interface {
	Find(ctx context.Context, id string) (*models.Person, error)
	Save(ctx context.Context, person *models.Person) error
}

// CacheRepository defines caching operations
type CacheRepository interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error
	// GetJSON decodes the value at key into dest; a missing key is reported by cache.IsMiss.
	GetJSON(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Close() error
}
