// Package rules evaluates territory rules against entities and ranks the
// territories an entity matches.
package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/logger"
	"github.com/jordanlanch/territoryengine/pkg/models"
)

// Strategy decides how a rule set combines.
type Strategy string

const (
	// StrategyAll requires every rule to match.
	StrategyAll Strategy = "all"
	// StrategyAny requires at least one rule to match.
	StrategyAny Strategy = "any"
)

// TerritoryMatch is a territory an entity matched, with the priority of the
// territory's highest-priority active rule.
type TerritoryMatch struct {
	Territory     *models.Territory `json:"territory"`
	Priority      int               `json:"priority"`
	MatchingRules []*models.Rule    `json:"matching_rules"`
}

// EvaluationDetails explains how a rule set evaluated for one entity.
type EvaluationDetails struct {
	Matched          bool           `json:"matched"`
	Strategy         Strategy       `json:"strategy"`
	MatchingRules    []*models.Rule `json:"matching_rules"`
	NonMatchingRules []*models.Rule `json:"non_matching_rules"`
}

// Evaluator evaluates rules and matches entities to territories.
type Evaluator struct {
	territories domain.TerritoryStore
	rules       domain.RuleStore
	logger      logger.Logger
}

// NewEvaluator creates an evaluator backed by the territory and rule stores.
func NewEvaluator(territories domain.TerritoryStore, rules domain.RuleStore, log logger.Logger) *Evaluator {
	if log == nil {
		log = logger.Default()
	}
	return &Evaluator{
		territories: territories,
		rules:       rules,
		logger:      log.With("component", "rule_evaluator"),
	}
}

// EvaluateRule reports whether an active, valid rule matches the entity.
// Invalid rules never match.
func (e *Evaluator) EvaluateRule(rule *models.Rule, entity models.Assignable) bool {
	if rule == nil || entity == nil || !rule.IsActive {
		return false
	}
	if err := ValidateRule(rule); err != nil {
		e.logger.Warn("Skipping invalid rule", "rule_id", rule.ID, "territory_id", rule.TerritoryID, "error", err)
		return false
	}
	return matches(rule, entity.Attributes())
}

// EvaluateRules combines rules with the strategy. An empty set never matches.
func (e *Evaluator) EvaluateRules(rules []*models.Rule, entity models.Assignable, strategy Strategy) bool {
	if len(rules) == 0 {
		return false
	}

	if strategy == StrategyAny {
		for _, r := range rules {
			if e.EvaluateRule(r, entity) {
				return true
			}
		}
		return false
	}

	for _, r := range rules {
		if !e.EvaluateRule(r, entity) {
			return false
		}
	}
	return true
}

// GetMatchingRules returns the rules that match the entity.
func (e *Evaluator) GetMatchingRules(rules []*models.Rule, entity models.Assignable) []*models.Rule {
	var matched []*models.Rule
	for _, r := range rules {
		if e.EvaluateRule(r, entity) {
			matched = append(matched, r)
		}
	}
	return matched
}

// GetNonMatchingRules returns the rules that do not match the entity.
func (e *Evaluator) GetNonMatchingRules(rules []*models.Rule, entity models.Assignable) []*models.Rule {
	var unmatched []*models.Rule
	for _, r := range rules {
		if !e.EvaluateRule(r, entity) {
			unmatched = append(unmatched, r)
		}
	}
	return unmatched
}

// GetEvaluationDetails partitions the rules and reports the combined result.
func (e *Evaluator) GetEvaluationDetails(rules []*models.Rule, entity models.Assignable, strategy Strategy) *EvaluationDetails {
	return &EvaluationDetails{
		Matched:          e.EvaluateRules(rules, entity, strategy),
		Strategy:         strategy,
		MatchingRules:    e.GetMatchingRules(rules, entity),
		NonMatchingRules: e.GetNonMatchingRules(rules, entity),
	}
}

// FindMatchingTerritories returns every active territory the entity matches,
// highest priority first. Territories with equal priority keep store order.
func (e *Evaluator) FindMatchingTerritories(ctx context.Context, entity models.Assignable, strategy Strategy) ([]TerritoryMatch, error) {
	territories, err := e.territories.GetActiveTerritories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active territories: %w", err)
	}
	return e.matchTerritories(ctx, territories, entity, strategy)
}

// FindMatchingTerritoriesByType is FindMatchingTerritories restricted to one territory type.
func (e *Evaluator) FindMatchingTerritoriesByType(ctx context.Context, territoryType string, entity models.Assignable, strategy Strategy) ([]TerritoryMatch, error) {
	territories, err := e.territories.FindWhere(ctx, domain.TerritoryFilter{
		Type:   territoryType,
		Status: models.TerritoryStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s territories: %w", territoryType, err)
	}
	return e.matchTerritories(ctx, territories, entity, strategy)
}

// FindBestMatchingTerritory returns the highest-priority match, or nil.
func (e *Evaluator) FindBestMatchingTerritory(ctx context.Context, entity models.Assignable, strategy Strategy) (*models.Territory, error) {
	found, err := e.FindMatchingTerritories(ctx, entity, strategy)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0].Territory, nil
}

// FindMatchingEntities returns the entities that satisfy a territory's active rules.
func (e *Evaluator) FindMatchingEntities(ctx context.Context, territoryID string, entities []models.Assignable, strategy Strategy) ([]models.Assignable, error) {
	if _, err := e.territories.Find(ctx, territoryID); err != nil {
		return nil, err
	}

	rules, err := e.rules.GetActiveRulesByPriority(ctx, territoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for territory %s: %w", territoryID, err)
	}

	var matched []models.Assignable
	for _, entity := range entities {
		if entity != nil && e.EvaluateRules(rules, entity, strategy) {
			matched = append(matched, entity)
		}
	}
	return matched, nil
}

func (e *Evaluator) matchTerritories(ctx context.Context, territories []*models.Territory, entity models.Assignable, strategy Strategy) ([]TerritoryMatch, error) {
	if entity == nil {
		return nil, domain.NewValidationError("entity is required")
	}

	var found []TerritoryMatch
	for _, t := range territories {
		if !t.IsActive() {
			continue
		}

		rules, err := e.rules.GetActiveRulesByPriority(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules for territory %s: %w", t.ID, err)
		}
		if len(rules) == 0 {
			continue
		}

		if !e.EvaluateRules(rules, entity, strategy) {
			continue
		}

		found = append(found, TerritoryMatch{
			Territory:     t,
			Priority:      rules[0].Priority,
			MatchingRules: e.GetMatchingRules(rules, entity),
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Priority > found[j].Priority
	})

	e.logger.Debug("Matched territories",
		"entity_type", entity.EntityType(),
		"entity_id", entity.EntityID(),
		"strategy", strategy,
		"matches", len(found))

	return found, nil
}
