// Package assignment places entities into territories, either by rule
// matching or by hand, and keeps entity ownership in step with the
// territory that holds them.
package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/entity"
	"github.com/jordanlanch/territoryengine/pkg/events"
	"github.com/jordanlanch/territoryengine/pkg/logger"
	"github.com/jordanlanch/territoryengine/pkg/metrics"
	"github.com/jordanlanch/territoryengine/pkg/models"
	"github.com/jordanlanch/territoryengine/pkg/rules"
)

// Matcher finds the territory an entity belongs to.
type Matcher interface {
	FindBestMatchingTerritory(ctx context.Context, e models.Assignable, strategy rules.Strategy) (*models.Territory, error)
}

// Failure records an entity a bulk operation could not process.
type Failure struct {
	EntityType models.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Reason     string            `json:"reason"`
	Err        error             `json:"-"`
}

// BulkResult is the outcome of a bulk operation. Earlier writes stay
// committed when a later entity fails.
type BulkResult struct {
	Assignments []*models.Assignment `json:"assignments"`
	Failures    []Failure            `json:"failures,omitempty"`
}

// Service handles territory assignment operations.
type Service struct {
	territories domain.TerritoryStore
	assignments domain.AssignmentStore
	matcher     Matcher
	entities    *entity.Registry
	publisher   events.Publisher
	metrics     *metrics.Metrics
	now         func() time.Time
	logger      logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for assigned_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets where domain events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a new assignment service.
func NewService(
	territories domain.TerritoryStore,
	assignments domain.AssignmentStore,
	matcher Matcher,
	entities *entity.Registry,
	log logger.Logger,
	opts ...Option,
) *Service {
	if log == nil {
		log = logger.Default()
	}
	s := &Service{
		territories: territories,
		assignments: assignments,
		matcher:     matcher,
		entities:    entities,
		publisher:   events.Nop{},
		now:         time.Now,
		logger:      log.With("component", "assignment_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoAssign assigns the entity to its best matching territory, requiring
// every active rule of that territory to match. It returns nil when no
// territory matches.
func (s *Service) AutoAssign(ctx context.Context, e models.Assignable, assignedBy string) (*models.Assignment, error) {
	if err := validateEntity(e); err != nil {
		return nil, err
	}

	territory, err := s.matcher.FindBestMatchingTerritory(ctx, e, rules.StrategyAll)
	if err != nil {
		return nil, fmt.Errorf("failed to match territory: %w", err)
	}
	s.metrics.RecordMatch(territory != nil)

	if territory == nil {
		s.logger.Debug("No matching territory",
			"entity_type", e.EntityType(),
			"entity_id", e.EntityID())
		return nil, nil
	}

	return s.assignToTerritory(ctx, e, territory.ID, assignedBy, models.AssignmentTypeAutomatic)
}

// ManualAssign assigns the entity to territoryID without evaluating rules.
func (s *Service) ManualAssign(ctx context.Context, e models.Assignable, territoryID, assignedBy string) (*models.Assignment, error) {
	if err := validateEntity(e); err != nil {
		return nil, err
	}
	if _, err := s.territories.Find(ctx, territoryID); err != nil {
		return nil, err
	}
	return s.assignToTerritory(ctx, e, territoryID, assignedBy, models.AssignmentTypeManual)
}

// assignToTerritory returns the current assignment unchanged when it already
// points at territoryID. Otherwise the current one is superseded.
func (s *Service) assignToTerritory(ctx context.Context, e models.Assignable, territoryID, assignedBy, assignmentType string) (*models.Assignment, error) {
	res, err := s.assignments.Assign(ctx, s.newAssignment(e, territoryID, assignedBy, assignmentType))
	if err != nil {
		s.metrics.RecordAssignment(assignmentType, "failed")
		return nil, fmt.Errorf("failed to assign %s %s: %w", e.EntityType(), e.EntityID(), err)
	}

	if !res.Created {
		s.metrics.RecordAssignment(assignmentType, "unchanged")
		return res.Assignment, nil
	}

	s.metrics.RecordAssignment(assignmentType, "created")
	s.logger.Info("Entity assigned to territory",
		"entity_type", e.EntityType(),
		"entity_id", e.EntityID(),
		"territory_id", territoryID,
		"assignment_type", assignmentType)

	eventType := events.AssignmentCreated
	if res.Previous != nil {
		eventType = events.AssignmentReassigned
	}
	s.publish(ctx, eventType, res)
	return res.Assignment, nil
}

// Reassign always records a new manual assignment to territoryID, superseding
// the current one. With transferOwnership set and an owned territory, the
// entity's owner becomes the territory owner. A failed ownership save does
// not fail the reassignment.
func (s *Service) Reassign(ctx context.Context, e models.Assignable, territoryID, assignedBy string, transferOwnership bool) (*models.Assignment, error) {
	if err := validateEntity(e); err != nil {
		return nil, err
	}
	territory, err := s.territories.Find(ctx, territoryID)
	if err != nil {
		return nil, err
	}
	return s.reassign(ctx, e, territory, assignedBy, transferOwnership)
}

func (s *Service) reassign(ctx context.Context, e models.Assignable, territory *models.Territory, assignedBy string, transferOwnership bool) (*models.Assignment, error) {
	res, err := s.assignments.Reassign(ctx, s.newAssignment(e, territory.ID, assignedBy, models.AssignmentTypeManual))
	if err != nil {
		s.metrics.RecordAssignment("reassign", "failed")
		return nil, fmt.Errorf("failed to reassign %s %s: %w", e.EntityType(), e.EntityID(), err)
	}
	s.metrics.RecordAssignment("reassign", "created")
	s.publish(ctx, events.AssignmentReassigned, res)

	if transferOwnership && territory.HasOwner() {
		s.transferOwnership(ctx, e, territory.UserID, territory.ID)
	}
	return res.Assignment, nil
}

// BulkReassign reassigns each entity in turn. Nil entries are skipped and a
// failing entity does not stop the rest.
func (s *Service) BulkReassign(ctx context.Context, entities []models.Assignable, territoryID, assignedBy string, transferOwnership bool) (*BulkResult, error) {
	territory, err := s.territories.Find(ctx, territoryID)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	for _, e := range entities {
		if e == nil || !e.EntityType().Valid() {
			continue
		}
		a, err := s.reassign(ctx, e, territory, assignedBy, transferOwnership)
		if err != nil {
			result.Failures = append(result.Failures, newFailure(e, err))
			continue
		}
		result.Assignments = append(result.Assignments, a)
	}

	s.logger.Info("Bulk reassignment finished",
		"territory_id", territoryID,
		"reassigned", len(result.Assignments),
		"failed", len(result.Failures))
	return result, nil
}

// BulkAutoAssign auto-assigns each entity. Entities without a matching
// territory are left out of the result without being reported as failures.
func (s *Service) BulkAutoAssign(ctx context.Context, entities []models.Assignable, assignedBy string) (*BulkResult, error) {
	result := &BulkResult{}
	for _, e := range entities {
		if e == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		a, err := s.AutoAssign(ctx, e, assignedBy)
		if err != nil {
			result.Failures = append(result.Failures, newFailure(e, err))
			continue
		}
		if a != nil {
			result.Assignments = append(result.Assignments, a)
		}
	}
	return result, nil
}

// Unassign deletes the entity's current assignment. It reports false when
// the entity had none.
func (s *Service) Unassign(ctx context.Context, e models.Assignable) (bool, error) {
	if err := validateEntity(e); err != nil {
		return false, err
	}

	current, err := s.assignments.GetCurrentAssignment(ctx, e.EntityType(), e.EntityID())
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}

	deleted, err := s.assignments.DeleteByAssignable(ctx, e.EntityType(), e.EntityID())
	if err != nil {
		return false, err
	}
	if deleted {
		s.metrics.RecordAssignment("unassign", "removed")
		s.publish(ctx, events.AssignmentRemoved, &domain.AssignResult{Previous: current})
	}
	return deleted, nil
}

// GetCurrentTerritory returns the territory the entity is assigned to, or nil.
func (s *Service) GetCurrentTerritory(ctx context.Context, e models.Assignable) (*models.Territory, error) {
	if err := validateEntity(e); err != nil {
		return nil, err
	}
	current, err := s.assignments.GetCurrentAssignment(ctx, e.EntityType(), e.EntityID())
	if err != nil || current == nil {
		return nil, err
	}

	territory, err := s.territories.Find(ctx, current.TerritoryID)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	return territory, err
}

// IsAssignedToTerritory reports whether the entity currently sits in territoryID.
func (s *Service) IsAssignedToTerritory(ctx context.Context, e models.Assignable, territoryID string) (bool, error) {
	if err := validateEntity(e); err != nil {
		return false, err
	}
	return s.assignments.IsAssignedToTerritory(ctx, e.EntityType(), e.EntityID(), territoryID)
}

// GetAssignmentHistory returns every assignment the entity has had, newest first.
func (s *Service) GetAssignmentHistory(ctx context.Context, e models.Assignable) ([]*models.Assignment, error) {
	if err := validateEntity(e); err != nil {
		return nil, err
	}
	return s.assignments.GetAssignmentHistory(ctx, e.EntityType(), e.EntityID())
}

// GetAssignedEntities loads the entities currently in the territory. An empty
// entityType returns every type. Assignments whose entity no longer exists
// are skipped.
func (s *Service) GetAssignedEntities(ctx context.Context, territoryID string, entityType models.EntityType) ([]models.Assignable, error) {
	assignments, err := s.assignments.GetAssignmentsByTerritory(ctx, territoryID)
	if err != nil {
		return nil, err
	}

	var entities []models.Assignable
	for _, a := range assignments {
		if entityType != "" && a.AssignableType != entityType {
			continue
		}
		e, err := s.entities.ResolveAssignment(ctx, a)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entities = append(entities, e)
		}
	}
	return entities, nil
}

// transferOwnership hands the entity to ownerID. Save failures are logged and
// reported as not applied.
func (s *Service) transferOwnership(ctx context.Context, e models.Assignable, ownerID, territoryID string) bool {
	previous := ""
	if o, ok := e.(models.Ownable); ok {
		previous = o.OwnerID()
	}

	updated, err := s.entities.TransferOwnership(ctx, e, ownerID)
	if err != nil {
		s.metrics.RecordOwnershipTransfer("failed")
		s.logger.Warn("Ownership transfer not applied",
			"entity_type", e.EntityType(),
			"entity_id", e.EntityID(),
			"owner_id", ownerID,
			"error", err)
		return false
	}
	if !updated {
		s.metrics.RecordOwnershipTransfer("skipped")
		return false
	}

	s.metrics.RecordOwnershipTransfer("updated")
	evt := events.New(events.OwnershipTransferred, s.now())
	evt.TerritoryID = territoryID
	evt.EntityType = string(e.EntityType())
	evt.EntityID = e.EntityID()
	evt.Payload = map[string]any{"previous_owner_id": previous, "owner_id": ownerID}
	s.publisher.Publish(ctx, evt)
	return true
}

func (s *Service) newAssignment(e models.Assignable, territoryID, assignedBy, assignmentType string) *models.Assignment {
	return &models.Assignment{
		ID:             uuid.NewString(),
		TerritoryID:    territoryID,
		AssignableType: e.EntityType(),
		AssignableID:   e.EntityID(),
		AssignedBy:     assignedBy,
		AssignmentType: assignmentType,
		AssignedAt:     s.now().UTC(),
	}
}

func (s *Service) publish(ctx context.Context, eventType string, res *domain.AssignResult) {
	evt := events.New(eventType, s.now())
	if a := res.Assignment; a != nil {
		evt.TerritoryID = a.TerritoryID
		evt.EntityType = string(a.AssignableType)
		evt.EntityID = a.AssignableID
		evt.ActorID = a.AssignedBy
		evt.Payload = map[string]any{"assignment_id": a.ID, "assignment_type": a.AssignmentType}
	}
	if p := res.Previous; p != nil {
		if res.Assignment == nil {
			evt.TerritoryID = p.TerritoryID
			evt.EntityType = string(p.AssignableType)
			evt.EntityID = p.AssignableID
		} else {
			evt.PreviousTerritoryID = p.TerritoryID
		}
	}
	s.publisher.Publish(ctx, evt)
}

func validateEntity(e models.Assignable) error {
	if e == nil {
		return domain.NewValidationError("entity is required")
	}
	if !e.EntityType().Valid() {
		return domain.NewValidationError(fmt.Sprintf("unsupported entity type %q", e.EntityType()))
	}
	if e.EntityID() == "" {
		return domain.NewValidationError("entity id is required")
	}
	return nil
}

func newFailure(e models.Assignable, err error) Failure {
	return Failure{
		EntityType: e.EntityType(),
		EntityID:   e.EntityID(),
		Reason:     err.Error(),
		Err:        err,
	}
}
