package rules

import (
	"errors"
	"fmt"

	"github.com/liamcoop/claims/claims"
)

// Built-in risk rule ids
const (
	RuleGenderAgeInconsistency = "gender_age_inconsistency"
	RulePreExistingCondition   = "pre_existing_condition"
	RuleAbnormalCost           = "abnormal_cost"
	RuleMedicationMismatch     = "medication_diagnosis_mismatch"
)

// AbnormalCostThreshold is the invoice amount above which a claim is flagged
const AbnormalCostThreshold = 20000

// DefaultRiskRules returns the four built-in risk rules in evaluation order
func DefaultRiskRules() []*Rule {
	return []*Rule{
		{
			ID:          RuleGenderAgeInconsistency,
			Name:        "性别年龄不符",
			Description: "被保险人性别与年龄不匹配",
			Severity:    claims.SeverityHigh,
			Priority:    10,
			Active:      true,
			Expression: `fields.gender.contains("女") && derived.age_known && derived.age < 18 &&
				(fields.diagnosis.contains("孕") || fields.diagnosis.contains("产") || fields.diagnosis.contains("妇科"))`,
		},
		{
			ID:          RulePreExistingCondition,
			Name:        "既往症检测",
			Description: "疑似既往症",
			Severity:    claims.SeverityHigh,
			Priority:    20,
			Active:      true,
			Expression: `fields.medical_history != "" && fields.diagnosis != "" &&
				fields.medical_history.contains(fields.diagnosis)`,
		},
		{
			ID:          RuleAbnormalCost,
			Name:        "费用异常高",
			Description: "费用超出合理范围",
			Severity:    claims.SeverityMedium,
			Priority:    30,
			Active:      true,
			Expression:  fmt.Sprintf(`derived.invoice_amount > %d.0`, AbnormalCostThreshold),
		},
		{
			ID:          RuleMedicationMismatch,
			Name:        "诊断与用药不符",
			Description: "药物与诊断不匹配",
			Severity:    claims.SeverityHigh,
			Priority:    40,
			Active:      true,
			Expression: `fields.medications.contains("抗生素") &&
				!fields.diagnosis.contains("感染") && !fields.diagnosis.contains("炎症")`,
		},
	}
}

// SeedDefaults adds each built-in rule that the store does not already hold.
// Rules an operator has edited or deactivated are left alone.
func SeedDefaults(store RuleStore) (int, error) {
	added := 0
	for _, rule := range DefaultRiskRules() {
		_, err := store.Get(rule.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRuleNotFound) {
			return added, fmt.Errorf("failed to look up rule %s: %w", rule.ID, err)
		}
		if err := store.Add(rule); err != nil && !errors.Is(err, ErrRuleExists) {
			return added, fmt.Errorf("failed to seed rule %s: %w", rule.ID, err)
		}
		added++
	}
	return added, nil
}

// NewDefaultEngine returns an engine over an in-memory store holding the built-in rules
func NewDefaultEngine() (*Engine, error) {
	store := NewInMemoryRuleStore()
	if _, err := SeedDefaults(store); err != nil {
		return nil, err
	}
	return NewEngine(store)
}
