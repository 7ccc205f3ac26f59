package rules

import (
	"errors"
	"time"

	"github.com/liamcoop/claims/claims"
)

var (
	// ErrRuleNotFound is returned when a rule id is not in the store
	ErrRuleNotFound = errors.New("rule not found")
	// ErrRuleExists is returned when adding a rule whose id is taken
	ErrRuleExists = errors.New("rule already exists")
)

// Rule is a risk predicate over claim facts.
// Rules are evaluated in ascending Priority, then ID.
type Rule struct {
	ID          string
	Name        string
	Description string
	Severity    claims.Severity
	Expression  string
	Priority    int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Factor converts the rule descriptor to the form reported on an evaluation
func (r *Rule) Factor() claims.RiskFactor {
	return claims.RiskFactor{
		Name:        r.Name,
		Severity:    r.Severity,
		Description: r.Description,
	}
}

// EvaluationResult contains the outcome of evaluating a rule
type EvaluationResult struct {
	RuleID      string
	RuleName    string
	Severity    claims.Severity
	Description string
	Matched     bool
	Error       error
	Trace       any // CEL evaluation state, nil on error
}

// Factor returns the risk factor of a matched result
func (r *EvaluationResult) Factor() claims.RiskFactor {
	return claims.RiskFactor{
		Name:        r.RuleName,
		Severity:    r.Severity,
		Description: r.Description,
	}
}
