package models

import "time"

// Rule types
const (
	RuleTypeGeographic  = "geographic"
	RuleTypeIndustry    = "industry"
	RuleTypeAccountSize = "account_size"
	RuleTypeCustom      = "custom"
)

// Rule operators
const (
	OperatorEquals             = "equals"
	OperatorNotEquals          = "not_equals"
	OperatorGreaterThan        = "greater_than"
	OperatorGreaterThanOrEqual = "greater_than_or_equal"
	OperatorLessThan           = "less_than"
	OperatorLessThanOrEqual    = "less_than_or_equal"
	OperatorIn                 = "in"
	OperatorNotIn              = "not_in"
	OperatorContains           = "contains"
	OperatorNotContains        = "not_contains"
	OperatorStartsWith         = "starts_with"
	OperatorEndsWith           = "ends_with"
	OperatorBetween            = "between"
	OperatorIsEmpty            = "is_empty"
	OperatorIsNotEmpty         = "is_not_empty"
)

// Rule is a predicate attached to a territory.
// The predicate is Operator(entity.Attributes()[Field], Value).
type Rule struct {
	ID          string    `json:"id"`
	TerritoryID string    `json:"territory_id" validate:"required"`
	Type        string    `json:"type" validate:"required,oneof=geographic industry account_size custom"`
	Field       string    `json:"field" validate:"required,max=128"`
	Operator    string    `json:"operator" validate:"required,oneof=equals not_equals greater_than greater_than_or_equal less_than less_than_or_equal in not_in contains not_contains starts_with ends_with between is_empty is_not_empty"`
	Value       any       `json:"value,omitempty"`
	Priority    int       `json:"priority"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
