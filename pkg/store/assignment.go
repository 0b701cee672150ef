package store

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/territoryengine/pkg/database"
	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/models"
)

const assignmentsTable = "territory_assignments"

var assignmentColumns = []string{
	"id", "territory_id", "assignable_type", "assignable_id", "assigned_by",
	"assignment_type", "assigned_at", "is_current", "superseded_at",
}

// AssignmentStore persists territory assignments. A partial unique index keeps
// at most one current row per entity; writers that lose a race retry once.
type AssignmentStore struct {
	drv     *sql.Driver
	dialect string

	// beforeInsert runs inside the write transaction just before the new
	// current row is inserted. Tests use it to simulate a racing writer.
	beforeInsert func(ctx context.Context, tx dialect.ExecQuerier) error
}

// NewAssignmentStore creates an assignment store.
func NewAssignmentStore(db *database.Client) *AssignmentStore {
	return &AssignmentStore{drv: db.Driver, dialect: db.Dialect()}
}

// GetCurrentAssignment returns the entity's current assignment, or nil.
func (s *AssignmentStore) GetCurrentAssignment(ctx context.Context, entityType models.EntityType, entityID string) (*models.Assignment, error) {
	return s.current(ctx, s.drv, entityType, entityID)
}

// Assign makes a the current assignment unless the entity already sits in a.TerritoryID.
func (s *AssignmentStore) Assign(ctx context.Context, a *models.Assignment) (*domain.AssignResult, error) {
	return s.write(ctx, a, false)
}

// Reassign supersedes the current assignment, if any, and makes a current.
func (s *AssignmentStore) Reassign(ctx context.Context, a *models.Assignment) (*domain.AssignResult, error) {
	return s.write(ctx, a, true)
}

func (s *AssignmentStore) write(ctx context.Context, a *models.Assignment, force bool) (*domain.AssignResult, error) {
	res, err := s.writeTx(ctx, a, force)
	if err != nil && database.IsUniqueViolation(err) {
		// Another writer made an assignment current between our read and insert.
		res, err = s.writeTx(ctx, a, force)
	}
	if err != nil && database.IsUniqueViolation(err) {
		return nil, domain.NewConflictError(fmt.Sprintf("%s %s is being assigned concurrently", a.AssignableType, a.AssignableID))
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *AssignmentStore) writeTx(ctx context.Context, a *models.Assignment, force bool) (res *domain.AssignResult, err error) {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cur, err := s.current(ctx, tx, a.AssignableType, a.AssignableID)
	if err != nil {
		return nil, err
	}

	if cur != nil && !force && cur.TerritoryID == a.TerritoryID {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return &domain.AssignResult{Assignment: cur, Previous: cur, Created: false}, nil
	}

	a.AssignedAt = utc(a.AssignedAt)
	if cur != nil {
		query, args := sql.Dialect(s.dialect).
			Update(assignmentsTable).
			Set("is_current", false).
			Set("superseded_at", a.AssignedAt).
			Where(sql.And(sql.EQ("id", cur.ID), sql.EQ("is_current", true))).
			Query()
		if err = tx.Exec(ctx, query, args, nil); err != nil {
			return nil, fmt.Errorf("failed to supersede assignment: %w", err)
		}
	}

	if s.beforeInsert != nil {
		if err = s.beforeInsert(ctx, tx); err != nil {
			return nil, err
		}
	}

	a.IsCurrent = true
	a.SupersededAt = nil
	query, args := sql.Dialect(s.dialect).
		Insert(assignmentsTable).
		Columns(assignmentColumns[:8]...).
		Values(a.ID, a.TerritoryID, string(a.AssignableType), a.AssignableID, nullString(a.AssignedBy),
			a.AssignmentType, a.AssignedAt, true).
		Query()
	if err = tx.Exec(ctx, query, args, nil); err != nil {
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if cur != nil {
		supersededAt := a.AssignedAt
		cur.IsCurrent = false
		cur.SupersededAt = &supersededAt
	}
	return &domain.AssignResult{Assignment: a, Previous: cur, Created: true}, nil
}

// DeleteByAssignable removes the entity's current assignment. History is kept.
func (s *AssignmentStore) DeleteByAssignable(ctx context.Context, entityType models.EntityType, entityID string) (bool, error) {
	query, args := sql.Dialect(s.dialect).
		Delete(assignmentsTable).
		Where(sql.And(
			sql.EQ("assignable_type", string(entityType)),
			sql.EQ("assignable_id", entityID),
			sql.EQ("is_current", true),
		)).
		Query()
	n, err := execAffected(ctx, s.drv, query, args)
	if err != nil {
		return false, fmt.Errorf("failed to delete assignment: %w", err)
	}
	return n > 0, nil
}

// GetAssignmentsByTerritory returns the territory's current assignments, oldest first.
func (s *AssignmentStore) GetAssignmentsByTerritory(ctx context.Context, territoryID string) ([]*models.Assignment, error) {
	return s.list(ctx, s.drv, sql.And(
		sql.EQ("territory_id", territoryID),
		sql.EQ("is_current", true),
	), false)
}

// GetAssignmentsByDateRange returns current assignments made within [start, end].
func (s *AssignmentStore) GetAssignmentsByDateRange(ctx context.Context, territoryID string, start, end time.Time) ([]*models.Assignment, error) {
	return s.list(ctx, s.drv, sql.And(
		sql.EQ("territory_id", territoryID),
		sql.EQ("is_current", true),
		sql.GTE("assigned_at", utc(start)),
		sql.LTE("assigned_at", utc(end)),
	), false)
}

// GetAssignmentHistory returns every assignment of the entity, newest first.
func (s *AssignmentStore) GetAssignmentHistory(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Assignment, error) {
	return s.list(ctx, s.drv, sql.And(
		sql.EQ("assignable_type", string(entityType)),
		sql.EQ("assignable_id", entityID),
	), true)
}

// IsAssignedToTerritory reports whether the entity is currently in the territory.
func (s *AssignmentStore) IsAssignedToTerritory(ctx context.Context, entityType models.EntityType, entityID, territoryID string) (bool, error) {
	query, args := sql.Dialect(s.dialect).
		Select(sql.Count("*")).
		From(sql.Table(assignmentsTable)).
		Where(sql.And(
			sql.EQ("assignable_type", string(entityType)),
			sql.EQ("assignable_id", entityID),
			sql.EQ("territory_id", territoryID),
			sql.EQ("is_current", true),
		)).
		Query()
	count, err := queryCount(ctx, s.drv, query, args)
	if err != nil {
		return false, fmt.Errorf("failed to count assignments: %w", err)
	}
	return count > 0, nil
}

func (s *AssignmentStore) current(ctx context.Context, q dialect.ExecQuerier, entityType models.EntityType, entityID string) (*models.Assignment, error) {
	assignments, err := s.list(ctx, q, sql.And(
		sql.EQ("assignable_type", string(entityType)),
		sql.EQ("assignable_id", entityID),
		sql.EQ("is_current", true),
	), false)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}
	return assignments[0], nil
}

func (s *AssignmentStore) list(ctx context.Context, q dialect.ExecQuerier, pred *sql.Predicate, newestFirst bool) ([]*models.Assignment, error) {
	selector := sql.Dialect(s.dialect).
		Select(assignmentColumns...).
		From(sql.Table(assignmentsTable)).
		Where(pred)
	if newestFirst {
		selector.OrderBy(sql.Desc("assigned_at"), sql.Desc("id"))
	} else {
		selector.OrderBy("assigned_at", "id")
	}
	query, args := selector.Query()

	var assignments []*models.Assignment
	err := queryRows(ctx, q, query, args, func(row scanner) error {
		var (
			a              models.Assignment
			assignableType string
			assignedBy     stdsql.NullString
			supersededAt   stdsql.NullTime
		)
		if err := row.Scan(&a.ID, &a.TerritoryID, &assignableType, &a.AssignableID, &assignedBy,
			&a.AssignmentType, &a.AssignedAt, &a.IsCurrent, &supersededAt); err != nil {
			return err
		}
		a.AssignableType = models.EntityType(assignableType)
		a.AssignedBy = assignedBy.String
		if supersededAt.Valid {
			t := supersededAt.Time
			a.SupersededAt = &t
		}
		assignments = append(assignments, &a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	return assignments, nil
}
