package store

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/territoryengine/pkg/database"
	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/models"
)

const territoriesTable = "territories"

var territoryColumns = []string{"id", "name", "description", "type", "status", "user_id", "created_at", "updated_at"}

// TerritoryStore reads and writes territories.
type TerritoryStore struct {
	drv     *sql.Driver
	dialect string
}

// NewTerritoryStore creates a territory store.
func NewTerritoryStore(db *database.Client) *TerritoryStore {
	return &TerritoryStore{drv: db.Driver, dialect: db.Dialect()}
}

// Create inserts a territory.
func (s *TerritoryStore) Create(ctx context.Context, t *models.Territory) error {
	if err := validateModel("territory", t); err != nil {
		return err
	}
	query, args := sql.Dialect(s.dialect).
		Insert(territoriesTable).
		Columns(territoryColumns...).
		Values(t.ID, t.Name, t.Description, t.Type, t.Status, nullString(t.UserID), utc(t.CreatedAt), utc(t.UpdatedAt)).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to create territory: %w", err)
	}
	return nil
}

// Update persists the mutable territory fields.
func (s *TerritoryStore) Update(ctx context.Context, t *models.Territory) error {
	if err := validateModel("territory", t); err != nil {
		return err
	}
	query, args := sql.Dialect(s.dialect).
		Update(territoriesTable).
		Set("name", t.Name).
		Set("description", t.Description).
		Set("type", t.Type).
		Set("status", t.Status).
		Set("user_id", nullString(t.UserID)).
		Set("updated_at", utc(t.UpdatedAt)).
		Where(sql.EQ("id", t.ID)).
		Query()
	n, err := execAffected(ctx, s.drv, query, args)
	if err != nil {
		return fmt.Errorf("failed to update territory: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("territory")
	}
	return nil
}

// Find returns the territory or a not found error.
func (s *TerritoryStore) Find(ctx context.Context, id string) (*models.Territory, error) {
	territories, err := s.list(ctx, sql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(territories) == 0 {
		return nil, domain.NewNotFoundError("territory")
	}
	return territories[0], nil
}

// All returns every territory.
func (s *TerritoryStore) All(ctx context.Context) ([]*models.Territory, error) {
	return s.list(ctx)
}

// GetActiveTerritories returns territories that take part in matching.
func (s *TerritoryStore) GetActiveTerritories(ctx context.Context) ([]*models.Territory, error) {
	return s.list(ctx, sql.EQ("status", models.TerritoryStatusActive))
}

// GetByType returns territories of the given type regardless of status.
func (s *TerritoryStore) GetByType(ctx context.Context, territoryType string) ([]*models.Territory, error) {
	return s.list(ctx, sql.EQ("type", territoryType))
}

// FindWhere returns territories matching every set field of the filter.
func (s *TerritoryStore) FindWhere(ctx context.Context, filter domain.TerritoryFilter) ([]*models.Territory, error) {
	var preds []*sql.Predicate
	if filter.Type != "" {
		preds = append(preds, sql.EQ("type", filter.Type))
	}
	if filter.Status != "" {
		preds = append(preds, sql.EQ("status", filter.Status))
	}
	if filter.OwnerID != "" {
		preds = append(preds, sql.EQ("user_id", filter.OwnerID))
	}
	if filter.HasOwner != nil {
		if *filter.HasOwner {
			preds = append(preds, sql.NotNull("user_id"))
		} else {
			preds = append(preds, sql.IsNull("user_id"))
		}
	}
	return s.list(ctx, preds...)
}

func (s *TerritoryStore) list(ctx context.Context, preds ...*sql.Predicate) ([]*models.Territory, error) {
	selector := sql.Dialect(s.dialect).
		Select(territoryColumns...).
		From(sql.Table(territoriesTable))
	if len(preds) > 0 {
		selector.Where(sql.And(preds...))
	}
	query, args := selector.OrderBy("created_at", "id").Query()

	var territories []*models.Territory
	err := queryRows(ctx, s.drv, query, args, func(row scanner) error {
		var (
			t      models.Territory
			userID stdsql.NullString
		)
		if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Type, &t.Status, &userID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return err
		}
		t.UserID = userID.String
		territories = append(territories, &t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query territories: %w", err)
	}
	return territories, nil
}
