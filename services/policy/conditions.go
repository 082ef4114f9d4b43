package policy

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/upb/governance-ledger/models"
)

// Condition keys understood by the evaluator
const (
	ConditionMinTrustScore      = "minTrustScore"
	ConditionMinStakedTokens    = "minStakedTokens"
	ConditionMinCompletedDreams = "minCompletedDreams"
	ConditionRequiredBadges     = "requiredBadges"
)

// Condition is a closed set of rule preconditions. The unexported method
// keeps other packages from adding variants the evaluator does not know.
type Condition interface {
	Key() string
	condition()
}

// MinTrustScore requires actor.TrustScore >= Min
type MinTrustScore struct{ Min float64 }

// MinStakedTokens requires actor.StakedTokens >= Min
type MinStakedTokens struct{ Min float64 }

// MinCompletedDreams requires actor.CompletedDreams >= Min
type MinCompletedDreams struct{ Min float64 }

// RequiredBadges requires every badge to be held by the actor
type RequiredBadges struct{ Badges []string }

// UnknownCondition is an unrecognized key or a known key with a malformed
// value. It never evaluates to true.
type UnknownCondition struct {
	Name  string
	Value interface{}
}

func (MinTrustScore) Key() string      { return ConditionMinTrustScore }
func (MinStakedTokens) Key() string    { return ConditionMinStakedTokens }
func (MinCompletedDreams) Key() string { return ConditionMinCompletedDreams }
func (RequiredBadges) Key() string     { return ConditionRequiredBadges }
func (c UnknownCondition) Key() string { return c.Name }

func (MinTrustScore) condition()      {}
func (MinStakedTokens) condition()    {}
func (MinCompletedDreams) condition() {}
func (RequiredBadges) condition()     {}
func (UnknownCondition) condition()   {}

// ParseConditions converts a rule's raw conditions map into typed conditions,
// sorted by key so evaluation order is stable.
func ParseConditions(raw map[string]interface{}) []Condition {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Condition, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, parseCondition(k, raw[k]))
	}
	return conds
}

func parseCondition(key string, value interface{}) Condition {
	switch key {
	case ConditionMinTrustScore:
		if n, ok := toFloat(value); ok {
			return MinTrustScore{Min: n}
		}
	case ConditionMinStakedTokens:
		if n, ok := toFloat(value); ok {
			return MinStakedTokens{Min: n}
		}
	case ConditionMinCompletedDreams:
		if n, ok := toFloat(value); ok {
			return MinCompletedDreams{Min: n}
		}
	case ConditionRequiredBadges:
		if badges, ok := toStrings(value); ok {
			return RequiredBadges{Badges: badges}
		}
	}
	return UnknownCondition{Name: key, Value: value}
}

// Evaluate reports whether actor satisfies c
func Evaluate(c Condition, actor *models.ActorContext) bool {
	switch cond := c.(type) {
	case MinTrustScore:
		return actor.TrustScore >= cond.Min
	case MinStakedTokens:
		return actor.StakedTokens >= cond.Min
	case MinCompletedDreams:
		return float64(actor.CompletedDreams) >= cond.Min
	case RequiredBadges:
		for _, b := range cond.Badges {
			if !actor.HasBadge(b) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EvaluateAll applies AND semantics over conds. On failure it returns the
// key of the first condition that did not hold.
func EvaluateAll(conds []Condition, actor *models.ActorContext) (bool, string) {
	for _, c := range conds {
		if !Evaluate(c, actor) {
			return false, c.Key()
		}
	}
	return true, ""
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toStrings(v interface{}) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Describe renders a condition for reasons and CLI output
func Describe(c Condition) string {
	switch cond := c.(type) {
	case MinTrustScore:
		return fmt.Sprintf("trustScore >= %g", cond.Min)
	case MinStakedTokens:
		return fmt.Sprintf("stakedTokens >= %g", cond.Min)
	case MinCompletedDreams:
		return fmt.Sprintf("completedDreams >= %g", cond.Min)
	case RequiredBadges:
		return fmt.Sprintf("badges include %v", cond.Badges)
	case UnknownCondition:
		return fmt.Sprintf("unknown condition %q", cond.Name)
	default:
		return "unsupported condition"
	}
}
