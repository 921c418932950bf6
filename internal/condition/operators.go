package condition

import (
	"fmt"
	"strings"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEq       Operator = "=="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
)

// Strings compare case-insensitively, like the typed name conditions.
func equal(left, right any) bool {
	switch l := left.(type) {
	case float64:
		r, ok := right.(float64)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	case string:
		r, ok := right.(string)
		return ok && strings.EqualFold(l, r)
	}
	return false
}

func compare(c *ComparisonExpr, left, right any) bool {
	switch c.Op {
	case OpEq:
		return equal(left, right)
	case OpNeq:
		return !equal(left, right)
	case OpGt, OpGte, OpLt, OpLte:
		l, lok := left.(float64)
		r, rok := right.(float64)
		if !lok || !rok {
			return false
		}
		switch c.Op {
		case OpGt:
			return l > r
		case OpGte:
			return l >= r
		case OpLt:
			return l < r
		default:
			return l <= r
		}
	case OpContains:
		l, ok := left.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(l), strings.ToLower(fmt.Sprint(right)))
	case OpMatches:
		l, ok := left.(string)
		return ok && c.re != nil && c.re.MatchString(l)
	}
	return false
}
