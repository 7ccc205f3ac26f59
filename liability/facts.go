package liability

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/liamcoop/claims/claims"
	"github.com/liamcoop/claims/rules"
)

// Field names the evaluator reads
const (
	FieldDiagnosis        = "diagnosis"
	FieldTreatmentDetails = "treatment_details"
	FieldInvoiceAmount    = "invoice_amount"
	FieldGender           = "gender"
	FieldAge              = "age"
	FieldBirthDate        = "birth_date"
	FieldMedicalHistory   = "medical_history"
	FieldMedications      = "medications"
	FieldEffectiveDate    = "effective_date"
	FieldAccidentDate     = "accident_date"
	FieldAdmissionDate    = "admission_date"
)

// ruleFields are always present in the facts map so built-in rules never hit a missing key
var ruleFields = []string{
	FieldGender,
	FieldAge,
	FieldBirthDate,
	FieldDiagnosis,
	FieldMedicalHistory,
	FieldMedications,
	FieldTreatmentDetails,
	FieldInvoiceAmount,
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// dateLayouts are tried in order after 年/月 are turned into dashes
var dateLayouts = []string{"2006-1-2", "2006/1/2"}

// ParseAmount returns the first numeric token of s with thousands separators
// removed, or 0 when there is none
func ParseAmount(s string) float64 {
	token := numberPattern.FindString(strings.ReplaceAll(s, ",", ""))
	if token == "" {
		return 0
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseDate reads dates like 2023年10月5日 or 2023-10-05
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	s = strings.NewReplacer("年", "-", "月", "-", "日", "").Replace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// resolveAge prefers an explicit numeric age and falls back to whole
// 365-day years elapsed since birth_date
func resolveAge(fields claims.Fields, now time.Time) (int64, bool) {
	if raw := strings.TrimSpace(fields.Value(FieldAge)); isDigits(raw) {
		age, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			return age, true
		}
	}

	birth, ok := ParseDate(fields.Value(FieldBirthDate))
	if !ok {
		return 0, false
	}
	days := int64(now.Sub(birth).Hours() / 24)
	return days / 365, true
}

// Facts builds the activation risk rules evaluate against. Field values are
// lower-cased and every field a built-in rule reads is present, empty when
// it was not extracted.
func Facts(fields claims.Fields, now time.Time) map[string]any {
	values := make(map[string]string, len(fields)+len(ruleFields))
	for _, name := range ruleFields {
		values[name] = ""
	}
	for name, fv := range fields {
		values[name] = strings.ToLower(fv.Value)
	}

	age, known := resolveAge(fields, now)

	return map[string]any{
		rules.VarFields: values,
		rules.VarDerived: map[string]any{
			"age":            age,
			"age_known":      known,
			"invoice_amount": ParseAmount(fields.Value(FieldInvoiceAmount)),
		},
	}
}
