// Package liability turns a claim's merged fields and a policy bundle into an
// advisory liability decision.
//
// Coverage, exclusions, risk rules, payout, confidence and reasons are always
// computed in full. The evaluation is a function of the fields, the policy
// and the evaluator's clock; nothing is cached between calls.
package liability

import (
	"math"
	"strings"
	"time"

	"github.com/liamcoop/claims/claims"
	"github.com/liamcoop/claims/internal/logger"
	"github.com/liamcoop/claims/rules"
)

// Confidence adjustments
const (
	baseConfidence    = 0.9
	notCoveredPenalty = 0.3
	exclusionPenalty  = 0.2
	riskPenalty       = 0.1
	minimumConfidence = 0.1
)

// Evaluator applies policy terms and risk rules to merged claim fields.
// Safe for concurrent use.
type Evaluator struct {
	engine        *rules.Engine
	defaultPolicy *claims.PolicyTerms
	now           func() time.Time
	waitingPeriod bool
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithClock sets the clock used to derive ages and waiting periods
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithWaitingPeriodCheck makes coverage fail when the incident falls inside
// the policy's waiting period. Off by default.
func WithWaitingPeriodCheck() Option {
	return func(e *Evaluator) {
		e.waitingPeriod = true
	}
}

// New returns an evaluator that runs engine's active rules and falls back to
// defaultPolicy when Evaluate is given none
func New(engine *rules.Engine, defaultPolicy *claims.PolicyTerms, opts ...Option) *Evaluator {
	e := &Evaluator{
		engine:        engine,
		defaultPolicy: defaultPolicy,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the risk rule engine
func (e *Evaluator) Engine() *rules.Engine {
	return e.engine
}

// Evaluate produces the liability decision for fields under policy.
// A nil policy selects the default bundle.
func (e *Evaluator) Evaluate(fields claims.Fields, policy *claims.PolicyTerms) claims.LiabilityEvaluation {
	if policy == nil {
		policy = e.defaultPolicy
	}
	if policy == nil {
		policy = &claims.PolicyTerms{}
	}
	now := e.now()

	covered, issues := e.checkCoverage(fields, policy)
	exclusions := checkExclusions(fields, policy)
	risks := e.applyRiskRules(fields, now)

	eval := claims.LiabilityEvaluation{
		CoverageApplicable: covered,
		ExclusionFactors:   exclusions,
		RecommendedPayout:  calculatePayout(fields, policy, covered, exclusions),
		EvaluationReasons:  reasons(covered, issues, exclusions, risks),
		Confidence:         calculateConfidence(covered, len(exclusions), len(risks)),
		RiskFactors:        risks,
	}
	if limit, ok := policy.Limit(claims.LimitAnnual); ok {
		eval.CoverageLimit = &limit
	}
	return eval
}

func (e *Evaluator) checkCoverage(fields claims.Fields, policy *claims.PolicyTerms) (bool, []string) {
	if strings.TrimSpace(fields.Value(FieldDiagnosis)) == "" {
		return false, []string{msgMissingDiagnosis}
	}

	if e.waitingPeriod && policy.WaitingPeriod > 0 {
		if elapsed, ok := daysSinceEffective(fields); ok && elapsed < policy.WaitingPeriod {
			return false, []string{msgWaitingPeriod(elapsed, policy.WaitingPeriod)}
		}
	}

	return true, nil
}

// daysSinceEffective measures from effective_date to the incident, taken
// from accident_date or else admission_date
func daysSinceEffective(fields claims.Fields) (int, bool) {
	start, ok := ParseDate(fields.Value(FieldEffectiveDate))
	if !ok {
		return 0, false
	}
	incident, ok := ParseDate(fields.Value(FieldAccidentDate))
	if !ok {
		incident, ok = ParseDate(fields.Value(FieldAdmissionDate))
	}
	if !ok {
		return 0, false
	}
	return int(incident.Sub(start).Hours() / 24), true
}

func checkExclusions(fields claims.Fields, policy *claims.PolicyTerms) []string {
	diagnosis := strings.ToLower(fields.Value(FieldDiagnosis))
	treatment := strings.ToLower(fields.Value(FieldTreatmentDetails))

	found := []string{}
	seen := make(map[string]bool)
	for _, label := range policy.Exclusions {
		key := strings.ToLower(label)
		if key == "" || seen[key] {
			continue
		}
		if strings.Contains(diagnosis, key) || strings.Contains(treatment, key) {
			seen[key] = true
			found = append(found, label)
		}
	}
	return found
}

func (e *Evaluator) applyRiskRules(fields claims.Fields, now time.Time) []claims.RiskFactor {
	if e.engine == nil {
		return nil
	}

	results, err := e.engine.EvaluateAll(Facts(fields, now))
	if err != nil {
		logger.Warn("Risk rules unavailable", "error", err)
		return nil
	}

	var risks []claims.RiskFactor
	for _, r := range results {
		if r.Error != nil {
			logger.Debug("Risk rule did not evaluate", "rule_id", r.RuleID, "error", r.Error)
			continue
		}
		if r.Matched {
			risks = append(risks, r.Factor())
		}
	}
	return risks
}

func calculatePayout(fields claims.Fields, policy *claims.PolicyTerms, covered bool, exclusions []string) float64 {
	if !covered || len(exclusions) > 0 {
		return 0
	}

	amount := ParseAmount(fields.Value(FieldInvoiceAmount))
	selfPay, _ := policy.Limit(claims.LimitSelfPayRatio)
	maxCoverage, ok := policy.Limit(claims.LimitAnnual)
	if !ok {
		maxCoverage = math.Inf(1)
	}

	payout := math.Min(amount*(1-selfPay), maxCoverage)
	if payout < 0 {
		payout = 0
	}
	return round2(payout)
}

func calculateConfidence(covered bool, exclusions, risks int) float64 {
	c := baseConfidence
	if !covered {
		c -= notCoveredPenalty
	}
	c -= exclusionPenalty * float64(exclusions)
	c -= riskPenalty * float64(risks)
	return round2(math.Max(c, minimumConfidence))
}

func reasons(covered bool, issues, exclusions []string, risks []claims.RiskFactor) []string {
	var out []string
	if covered {
		out = append(out, msgCovered)
	} else {
		out = append(out, msgNotCovered)
		out = append(out, issues...)
	}

	if len(exclusions) > 0 {
		out = append(out, msgExclusions(exclusions))
	}

	if len(risks) > 0 {
		names := make([]string, len(risks))
		for i, r := range risks {
			names[i] = r.Name
		}
		out = append(out, msgRisks(names))
	}

	if len(issues) == 0 && len(exclusions) == 0 && len(risks) == 0 {
		out = append(out, msgNoIssues)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
