// Package ownership keeps the owners of assigned entities in line with the
// owners of their territories.
package ownership

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/entity"
	"github.com/jordanlanch/territoryengine/pkg/events"
	"github.com/jordanlanch/territoryengine/pkg/logger"
	"github.com/jordanlanch/territoryengine/pkg/metrics"
	"github.com/jordanlanch/territoryengine/pkg/models"
)

// TransferFailure is an entity whose new owner could not be saved.
type TransferFailure struct {
	EntityType models.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Reason     string            `json:"reason"`
}

// TransferResult summarizes an ownership transfer over one territory.
// Entities that failed to save are listed in Failures and not counted.
type TransferResult struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	UpdatedCount int               `json:"updated_count"`
	Failures     []TransferFailure `json:"failures,omitempty"`
}

// TerritoryTransferResult is one territory's outcome in a bulk transfer.
type TerritoryTransferResult struct {
	TerritoryID string          `json:"territory_id"`
	Result      *TransferResult `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// BulkTransferResult summarizes a transfer over many territories.
type BulkTransferResult struct {
	Success      bool                      `json:"success"`
	Message      string                    `json:"message"`
	TotalUpdated int                       `json:"total_updated"`
	Results      []TerritoryTransferResult `json:"results"`
}

// SyncCandidate is an assigned entity whose owner differs from the territory owner.
type SyncCandidate struct {
	Assignment      *models.Assignment `json:"assignment"`
	Entity          models.Assignable  `json:"entity"`
	CurrentOwnerID  string             `json:"current_owner_id"`
	ExpectedOwnerID string             `json:"expected_owner_id"`
}

// OwnershipStatistics buckets every assigned entity by how its owner relates
// to the territory owner.
type OwnershipStatistics struct {
	TerritoryID         string `json:"territory_id"`
	TerritoryOwnerID    string `json:"territory_owner_id"`
	TotalAssignments    int    `json:"total_assignments"`
	CorrectOwnerCount   int    `json:"correct_owner_count"`
	IncorrectOwnerCount int    `json:"incorrect_owner_count"`
	NoOwnerCount        int    `json:"no_owner_count"`
}

// OwnershipMismatch is a territory with entities that need syncing.
type OwnershipMismatch struct {
	Territory     *models.Territory `json:"territory"`
	MismatchCount int               `json:"mismatch_count"`
	Entities      []SyncCandidate   `json:"entities"`
}

// Handler reconciles entity ownership with territory ownership.
type Handler struct {
	territories domain.TerritoryStore
	assignments domain.AssignmentStore
	entities    *entity.Registry
	publisher   events.Publisher
	metrics     *metrics.Metrics
	now         func() time.Time
	logger      logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithPublisher sets where ownership events go.
func WithPublisher(p events.Publisher) Option {
	return func(h *Handler) { h.publisher = p }
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithClock overrides the event time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates an ownership handler.
func NewHandler(territories domain.TerritoryStore, assignments domain.AssignmentStore, entities *entity.Registry, log logger.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logger.Default()
	}
	h := &Handler{
		territories: territories,
		assignments: assignments,
		entities:    entities,
		publisher:   events.Nop{},
		now:         time.Now,
		logger:      log.With("component", "ownership_handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleTerritoryOwnerChange moves every entity in the territory to the new
// owner. Nothing happens when the owner did not change or no new owner is given.
func (h *Handler) HandleTerritoryOwnerChange(ctx context.Context, territoryID, oldOwnerID, newOwnerID string) (*TransferResult, error) {
	if newOwnerID == "" {
		return &TransferResult{Success: true, Message: "No new owner specified"}, nil
	}
	if oldOwnerID == newOwnerID {
		return &TransferResult{Success: true, Message: "Territory owner unchanged"}, nil
	}

	h.logger.Info("Territory owner changed",
		"territory_id", territoryID,
		"old_owner_id", oldOwnerID,
		"new_owner_id", newOwnerID)
	return h.transferAll(ctx, territoryID, newOwnerID)
}

// TransferTerritoryEntitiesOwnership moves every entity in the territory to newOwnerID.
func (h *Handler) TransferTerritoryEntitiesOwnership(ctx context.Context, territoryID, newOwnerID string) (*TransferResult, error) {
	if newOwnerID == "" {
		return nil, domain.NewValidationError("new owner is required")
	}
	if _, err := h.territories.Find(ctx, territoryID); err != nil {
		return nil, err
	}
	return h.transferAll(ctx, territoryID, newOwnerID)
}

// SyncTerritoryOwnership moves every entity in the territory to the
// territory's own owner.
func (h *Handler) SyncTerritoryOwnership(ctx context.Context, territoryID string) (*TransferResult, error) {
	territory, err := h.territories.Find(ctx, territoryID)
	if err != nil {
		return nil, err
	}
	if !territory.HasOwner() {
		return nil, domain.ErrTerritoryHasNoOwner
	}
	return h.transferAll(ctx, territory.ID, territory.UserID)
}

// BulkTransferOwnership transfers several territories to one owner. A
// territory that fails is recorded in its result and the rest continue.
func (h *Handler) BulkTransferOwnership(ctx context.Context, territoryIDs []string, newOwnerID string) (*BulkTransferResult, error) {
	if newOwnerID == "" {
		return nil, domain.NewValidationError("new owner is required")
	}

	result := &BulkTransferResult{Success: true, Results: make([]TerritoryTransferResult, 0, len(territoryIDs))}
	for _, id := range territoryIDs {
		res, err := h.TransferTerritoryEntitiesOwnership(ctx, id, newOwnerID)
		if err != nil {
			result.Success = false
			result.Results = append(result.Results, TerritoryTransferResult{TerritoryID: id, Error: err.Error()})
			continue
		}
		result.TotalUpdated += res.UpdatedCount
		result.Results = append(result.Results, TerritoryTransferResult{TerritoryID: id, Result: res})
	}

	result.Message = fmt.Sprintf("Updated ownership for %d entities across %d territories", result.TotalUpdated, len(territoryIDs))
	return result, nil
}

// GetEntitiesNeedingOwnershipSync lists the territory's entities whose owner
// differs from the territory owner. Ownerless territories have none.
func (h *Handler) GetEntitiesNeedingOwnershipSync(ctx context.Context, territoryID string) ([]SyncCandidate, error) {
	territory, err := h.territories.Find(ctx, territoryID)
	if err != nil {
		return nil, err
	}
	return h.syncCandidates(ctx, territory)
}

// GetOwnershipStatistics classifies each resolvable assigned entity as
// correctly owned, owned by someone else, or unowned. TotalAssignments
// counts every current assignment.
func (h *Handler) GetOwnershipStatistics(ctx context.Context, territoryID string) (*OwnershipStatistics, error) {
	territory, err := h.territories.Find(ctx, territoryID)
	if err != nil {
		return nil, err
	}

	assignments, err := h.assignments.GetAssignmentsByTerritory(ctx, territoryID)
	if err != nil {
		return nil, err
	}

	stats := &OwnershipStatistics{
		TerritoryID:      territory.ID,
		TerritoryOwnerID: territory.UserID,
		TotalAssignments: len(assignments),
	}
	for _, a := range assignments {
		e, err := h.entities.ResolveAssignment(ctx, a)
		if err != nil {
			return nil, err
		}
		o, ok := e.(models.Ownable)
		if !ok {
			continue
		}
		switch owner := o.OwnerID(); {
		case owner == "":
			stats.NoOwnerCount++
		case owner == territory.UserID:
			stats.CorrectOwnerCount++
		default:
			stats.IncorrectOwnerCount++
		}
	}
	return stats, nil
}

// GetTerritoriesWithOwnershipMismatches scans active, owned territories and
// returns those with at least one entity needing sync.
func (h *Handler) GetTerritoriesWithOwnershipMismatches(ctx context.Context) ([]OwnershipMismatch, error) {
	hasOwner := true
	territories, err := h.territories.FindWhere(ctx, domain.TerritoryFilter{
		Status:   models.TerritoryStatusActive,
		HasOwner: &hasOwner,
	})
	if err != nil {
		return nil, err
	}

	var mismatches []OwnershipMismatch
	for _, t := range territories {
		candidates, err := h.syncCandidates(ctx, t)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			continue
		}
		mismatches = append(mismatches, OwnershipMismatch{
			Territory:     t,
			MismatchCount: len(candidates),
			Entities:      candidates,
		})
	}
	return mismatches, nil
}

func (h *Handler) syncCandidates(ctx context.Context, territory *models.Territory) ([]SyncCandidate, error) {
	if !territory.HasOwner() {
		return nil, nil
	}

	assignments, err := h.assignments.GetAssignmentsByTerritory(ctx, territory.ID)
	if err != nil {
		return nil, err
	}

	var candidates []SyncCandidate
	for _, a := range assignments {
		e, err := h.entities.ResolveAssignment(ctx, a)
		if err != nil {
			return nil, err
		}
		o, ok := e.(models.Ownable)
		if !ok || o.OwnerID() == territory.UserID {
			continue
		}
		candidates = append(candidates, SyncCandidate{
			Assignment:      a,
			Entity:          e,
			CurrentOwnerID:  o.OwnerID(),
			ExpectedOwnerID: territory.UserID,
		})
	}
	return candidates, nil
}

// transferAll updates each assigned entity not already owned by newOwnerID.
// One entity failing to save does not stop the others.
func (h *Handler) transferAll(ctx context.Context, territoryID, newOwnerID string) (*TransferResult, error) {
	assignments, err := h.assignments.GetAssignmentsByTerritory(ctx, territoryID)
	if err != nil {
		return nil, err
	}

	result := &TransferResult{Success: true}
	for _, a := range assignments {
		e, err := h.entities.ResolveAssignment(ctx, a)
		if err != nil {
			result.Failures = append(result.Failures, TransferFailure{
				EntityType: a.AssignableType,
				EntityID:   a.AssignableID,
				Reason:     err.Error(),
			})
			continue
		}
		if e == nil {
			continue
		}

		previous := ""
		if o, ok := e.(models.Ownable); ok {
			previous = o.OwnerID()
		}

		updated, err := h.entities.TransferOwnership(ctx, e, newOwnerID)
		if err != nil {
			h.metrics.RecordOwnershipTransfer("failed")
			h.logger.Warn("Ownership transfer not applied",
				"territory_id", territoryID,
				"entity_type", e.EntityType(),
				"entity_id", e.EntityID(),
				"error", err)
			result.Failures = append(result.Failures, TransferFailure{
				EntityType: e.EntityType(),
				EntityID:   e.EntityID(),
				Reason:     err.Error(),
			})
			continue
		}
		if !updated {
			continue
		}

		h.metrics.RecordOwnershipTransfer("updated")
		result.UpdatedCount++

		evt := events.New(events.OwnershipTransferred, h.now())
		evt.TerritoryID = territoryID
		evt.EntityType = string(e.EntityType())
		evt.EntityID = e.EntityID()
		evt.Payload = map[string]any{"previous_owner_id": previous, "owner_id": newOwnerID}
		h.publisher.Publish(ctx, evt)
	}

	result.Message = fmt.Sprintf("Updated ownership for %d entities", result.UpdatedCount)
	if len(result.Failures) > 0 {
		result.Message += fmt.Sprintf(", %d failed", len(result.Failures))
	}

	h.logger.Info("Territory ownership transferred",
		"territory_id", territoryID,
		"owner_id", newOwnerID,
		"updated", result.UpdatedCount,
		"failed", len(result.Failures))
	return result, nil
}
