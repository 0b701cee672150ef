package store

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"

	"entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/territoryengine/pkg/database"
	"github.com/jordanlanch/territoryengine/pkg/models"
)

const rulesTable = "territory_rules"

var ruleColumns = []string{"id", "territory_id", "type", "field", "operator", "value", "priority", "is_active", "created_at"}

// RuleStore reads and writes territory rules. Rule values are stored as JSON.
type RuleStore struct {
	drv     *sql.Driver
	dialect string
}

// NewRuleStore creates a rule store.
func NewRuleStore(db *database.Client) *RuleStore {
	return &RuleStore{drv: db.Driver, dialect: db.Dialect()}
}

// Create inserts a rule.
func (s *RuleStore) Create(ctx context.Context, r *models.Rule) error {
	if err := validateModel("rule", r); err != nil {
		return err
	}
	value, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Errorf("failed to encode rule value: %w", err)
	}

	query, args := sql.Dialect(s.dialect).
		Insert(rulesTable).
		Columns(ruleColumns...).
		Values(r.ID, r.TerritoryID, r.Type, r.Field, r.Operator, string(value), r.Priority, r.IsActive, utc(r.CreatedAt)).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// GetActiveRulesByPriority returns active rules of a territory, highest priority first.
func (s *RuleStore) GetActiveRulesByPriority(ctx context.Context, territoryID string) ([]*models.Rule, error) {
	return s.list(ctx, sql.And(sql.EQ("territory_id", territoryID), sql.EQ("is_active", true)))
}

// GetActiveRulesByType returns active rules of the given type across territories.
func (s *RuleStore) GetActiveRulesByType(ctx context.Context, ruleType string) ([]*models.Rule, error) {
	return s.list(ctx, sql.And(sql.EQ("type", ruleType), sql.EQ("is_active", true)))
}

// GetActiveRulesByTerritoryAndType returns active rules of one type within a territory.
func (s *RuleStore) GetActiveRulesByTerritoryAndType(ctx context.Context, territoryID, ruleType string) ([]*models.Rule, error) {
	return s.list(ctx, sql.And(
		sql.EQ("territory_id", territoryID),
		sql.EQ("type", ruleType),
		sql.EQ("is_active", true),
	))
}

func (s *RuleStore) list(ctx context.Context, pred *sql.Predicate) ([]*models.Rule, error) {
	query, args := sql.Dialect(s.dialect).
		Select(ruleColumns...).
		From(sql.Table(rulesTable)).
		Where(pred).
		OrderBy(sql.Desc("priority"), "created_at", "id").
		Query()

	var rules []*models.Rule
	err := queryRows(ctx, s.drv, query, args, func(row scanner) error {
		var (
			r     models.Rule
			value stdsql.NullString
		)
		if err := row.Scan(&r.ID, &r.TerritoryID, &r.Type, &r.Field, &r.Operator, &value, &r.Priority, &r.IsActive, &r.CreatedAt); err != nil {
			return err
		}
		if value.Valid && value.String != "" {
			if err := json.Unmarshal([]byte(value.String), &r.Value); err != nil {
				return fmt.Errorf("rule %s has malformed value: %w", r.ID, err)
			}
		}
		rules = append(rules, &r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	return rules, nil
}
