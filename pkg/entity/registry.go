// Package entity resolves polymorphic assignment references to concrete
// entities. The set of supported types is closed: lead, organization, person.
package entity

import (
	"context"
	"fmt"

	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/models"
)

// Registry maps entity type tags to their repositories.
type Registry struct {
	leads         domain.LeadRepository
	organizations domain.OrganizationRepository
	persons       domain.PersonRepository
}

// NewRegistry creates a registry over the three entity repositories.
func NewRegistry(leads domain.LeadRepository, organizations domain.OrganizationRepository, persons domain.PersonRepository) *Registry {
	return &Registry{leads: leads, organizations: organizations, persons: persons}
}

// Resolve loads the entity referenced by an assignment. Unknown types and
// missing rows resolve to nil without error.
func (r *Registry) Resolve(ctx context.Context, entityType models.EntityType, id string) (models.Assignable, error) {
	var (
		e   models.Assignable
		err error
	)
	switch entityType {
	case models.EntityTypeLead:
		var l *models.Lead
		if l, err = r.leads.Find(ctx, id); err == nil {
			e = l
		}
	case models.EntityTypeOrganization:
		var o *models.Organization
		if o, err = r.organizations.Find(ctx, id); err == nil {
			e = o
		}
	case models.EntityTypePerson:
		var p *models.Person
		if p, err = r.persons.Find(ctx, id); err == nil {
			e = p
		}
	default:
		return nil, nil
	}
	if domain.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s %s: %w", entityType, id, err)
	}
	return e, nil
}

// ResolveAssignment loads the entity an assignment points at.
func (r *Registry) ResolveAssignment(ctx context.Context, a *models.Assignment) (models.Assignable, error) {
	return r.Resolve(ctx, a.AssignableType, a.AssignableID)
}

// Save persists an entity through the repository of its type.
func (r *Registry) Save(ctx context.Context, e models.Assignable) error {
	switch v := e.(type) {
	case *models.Lead:
		return r.leads.Save(ctx, v)
	case *models.Organization:
		return r.organizations.Save(ctx, v)
	case *models.Person:
		return r.persons.Save(ctx, v)
	default:
		return domain.NewValidationError(fmt.Sprintf("unsupported entity type %q", e.EntityType()))
	}
}
