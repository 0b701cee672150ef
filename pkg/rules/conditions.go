package rules

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var validate = validator.New()

// ValidateRule checks that a rule can be evaluated.
func ValidateRule(r *models.Rule) error {
	if r == nil {
		return domain.NewValidationError("rule is required")
	}
	if err := validate.Struct(r); err != nil {
		return domain.NewValidationError(fmt.Sprintf("invalid rule %s: %v", r.ID, err))
	}

	switch r.Operator {
	case models.OperatorIn, models.OperatorNotIn:
		if _, ok := toList(r.Value); !ok {
			return domain.NewValidationError(fmt.Sprintf("rule %s: %s needs a list value", r.ID, r.Operator))
		}
	case models.OperatorBetween:
		list, ok := toList(r.Value)
		if !ok || len(list) != 2 {
			return domain.NewValidationError(fmt.Sprintf("rule %s: between needs exactly two bounds", r.ID))
		}
		if _, ok := toFloat(list[0]); !ok {
			return domain.NewValidationError(fmt.Sprintf("rule %s: between bounds must be numeric", r.ID))
		}
		if _, ok := toFloat(list[1]); !ok {
			return domain.NewValidationError(fmt.Sprintf("rule %s: between bounds must be numeric", r.ID))
		}
	case models.OperatorGreaterThan, models.OperatorGreaterThanOrEqual,
		models.OperatorLessThan, models.OperatorLessThanOrEqual:
		if _, ok := toFloat(r.Value); !ok {
			return domain.NewValidationError(fmt.Sprintf("rule %s: %s needs a numeric value", r.ID, r.Operator))
		}
	}
	return nil
}

// matches applies the rule's operator to the entity attribute it names.
// The rule must already be valid.
func matches(r *models.Rule, attrs map[string]any) bool {
	actual := lookup(attrs, r.Field)

	switch r.Operator {
	case models.OperatorEquals:
		return equal(actual, r.Value)
	case models.OperatorNotEquals:
		return !equal(actual, r.Value)
	case models.OperatorGreaterThan:
		return compare(actual, r.Value, func(a, b float64) bool { return a > b })
	case models.OperatorGreaterThanOrEqual:
		return compare(actual, r.Value, func(a, b float64) bool { return a >= b })
	case models.OperatorLessThan:
		return compare(actual, r.Value, func(a, b float64) bool { return a < b })
	case models.OperatorLessThanOrEqual:
		return compare(actual, r.Value, func(a, b float64) bool { return a <= b })
	case models.OperatorIn:
		return inList(actual, r.Value)
	case models.OperatorNotIn:
		return !inList(actual, r.Value)
	case models.OperatorContains:
		return contains(actual, r.Value)
	case models.OperatorNotContains:
		return !contains(actual, r.Value)
	case models.OperatorStartsWith:
		return !isEmpty(actual) && strings.HasPrefix(fold(actual), fold(r.Value))
	case models.OperatorEndsWith:
		return !isEmpty(actual) && strings.HasSuffix(fold(actual), fold(r.Value))
	case models.OperatorBetween:
		bounds, _ := toList(r.Value)
		return compare(actual, bounds[0], func(a, b float64) bool { return a >= b }) &&
			compare(actual, bounds[1], func(a, b float64) bool { return a <= b })
	case models.OperatorIsEmpty:
		return isEmpty(actual)
	case models.OperatorIsNotEmpty:
		return !isEmpty(actual)
	}
	return false
}

// lookup resolves a dotted path such as "address.country" through nested maps.
func lookup(attrs map[string]any, field string) any {
	if v, ok := attrs[field]; ok {
		return v
	}
	var current any = attrs
	for _, part := range strings.Split(field, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		if current, ok = m[part]; !ok {
			return nil
		}
	}
	return current
}

// equal compares numerically when either side is a number, so 1000 matches
// "1000". Two strings compare as text: postal code "02134" is not "2134".
func equal(actual, expected any) bool {
	if actual == nil || expected == nil {
		return isEmpty(actual) && isEmpty(expected)
	}
	_, actualText := actual.(string)
	_, expectedText := expected.(string)
	if actualText && expectedText {
		return fold(actual) == fold(expected)
	}
	if a, ok := toFloat(actual); ok {
		if b, ok := toFloat(expected); ok {
			return a == b
		}
	}
	return fold(actual) == fold(expected)
}

func compare(actual, expected any, cmp func(a, b float64) bool) bool {
	a, ok := toFloat(actual)
	if !ok {
		return false
	}
	b, ok := toFloat(expected)
	if !ok {
		return false
	}
	return cmp(a, b)
}

func inList(actual, expected any) bool {
	list, ok := toList(expected)
	if !ok {
		return false
	}
	for _, candidate := range list {
		if equal(actual, candidate) {
			return true
		}
	}
	return false
}

func contains(actual, expected any) bool {
	if list, ok := toList(actual); ok {
		for _, item := range list {
			if equal(item, expected) {
				return true
			}
		}
		return false
	}
	if isEmpty(actual) {
		return false
	}
	return strings.Contains(fold(actual), fold(expected))
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// fold normalizes and case-folds a value for string comparison.
func fold(v any) string {
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
