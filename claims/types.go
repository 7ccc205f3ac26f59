// Package claims defines the data model shared by the classification,
// extraction and liability stages and by the claim store.
package claims

import (
	"encoding/json"
	"fmt"
	"time"
)

// DocumentType is the closed category a document is classified into
type DocumentType string

const (
	MedicalRecord     DocumentType = "medical_record"
	AccidentReport    DocumentType = "accident_report"
	Invoice           DocumentType = "invoice"
	IdentityCard      DocumentType = "identity_card"
	BankStatement     DocumentType = "bank_statement"
	InsuranceContract DocumentType = "insurance_contract"
)

// documentTypes is ordered; classification ties resolve to the earliest entry
var documentTypes = []DocumentType{
	MedicalRecord,
	AccidentReport,
	Invoice,
	IdentityCard,
	BankStatement,
	InsuranceContract,
}

// DocumentTypes returns every document type in enumeration order
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, len(documentTypes))
	copy(out, documentTypes)
	return out
}

// ParseDocumentType converts a label to a DocumentType
func ParseDocumentType(s string) (DocumentType, error) {
	for _, t := range documentTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

// Valid reports whether t is one of the enumerated document types
func (t DocumentType) Valid() bool {
	_, err := ParseDocumentType(string(t))
	return err == nil
}

// UnmarshalJSON rejects labels outside the enumeration
func (t *DocumentType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDocumentType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ClassificationResult is the classifier output for one document
type ClassificationResult struct {
	DocumentID       string         `json:"document_id" yaml:"document_id"`
	PredictedType    DocumentType   `json:"predicted_type" yaml:"predicted_type"`
	Confidence       float64        `json:"confidence" yaml:"confidence"`
	AlternativeTypes []DocumentType `json:"alternative_types,omitempty" yaml:"alternative_types,omitempty"`
}

// FieldPosition is the byte span of an extracted value inside the document text
type FieldPosition struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// ExtractedField is a named value pulled from document text
type ExtractedField struct {
	FieldName  string         `json:"field_name" yaml:"field_name"`
	FieldValue string         `json:"field_value" yaml:"field_value"`
	Confidence float64        `json:"confidence" yaml:"confidence"`
	PageNumber *int           `json:"page_number,omitempty" yaml:"page_number,omitempty"`
	Position   *FieldPosition `json:"position,omitempty" yaml:"position,omitempty"`
}

// ExtractionResult is the extractor output for one document
type ExtractionResult struct {
	DocumentID         string           `json:"document_id" yaml:"document_id"`
	ExtractedFields    []ExtractedField `json:"extracted_fields" yaml:"extracted_fields"`
	ExtractionAccuracy float64          `json:"extraction_accuracy" yaml:"extraction_accuracy"`
}

// PolicyTerms is a named bundle of coverage rules, exclusions and limits
type PolicyTerms struct {
	Name          string             `json:"name" yaml:"name"`
	DisplayName   string             `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Coverage      []string           `json:"coverage" yaml:"coverage"`
	Exclusions    []string           `json:"exclusions" yaml:"exclusions"`
	Limits        map[string]float64 `json:"limits" yaml:"limits"`
	WaitingPeriod int                `json:"waiting_period" yaml:"waiting_period"`
}

// Well-known limit keys
const (
	LimitAnnual            = "annual_limit"
	LimitPerVisit          = "per_visit_limit"
	LimitSelfPayRatio      = "self_pay_ratio"
	LimitAccidentalDeath   = "accidental_death"
	LimitAccidentalMedical = "accidental_medical"
)

// Limit returns the named limit and whether the policy defines it
func (p *PolicyTerms) Limit(name string) (float64, bool) {
	if p == nil || p.Limits == nil {
		return 0, false
	}
	v, ok := p.Limits[name]
	return v, ok
}

// Severity grades a triggered risk rule
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// RiskFactor describes one triggered risk rule
type RiskFactor struct {
	Name        string   `json:"name" yaml:"name"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description" yaml:"description"`
}

// LiabilityEvaluation is the advisory liability decision for a claim
type LiabilityEvaluation struct {
	CoverageApplicable bool         `json:"coverage_applicable" yaml:"coverage_applicable"`
	ExclusionFactors   []string     `json:"exclusion_factors" yaml:"exclusion_factors"`
	CoverageLimit      *float64     `json:"coverage_limit,omitempty" yaml:"coverage_limit,omitempty"`
	RecommendedPayout  float64      `json:"recommended_payout" yaml:"recommended_payout"`
	EvaluationReasons  []string     `json:"evaluation_reasons" yaml:"evaluation_reasons"`
	Confidence         float64      `json:"confidence" yaml:"confidence"`
	RiskFactors        []RiskFactor `json:"risk_factors,omitempty" yaml:"risk_factors,omitempty"`
}

// Claim is a single insurance-claim case and its accumulated results
type Claim struct {
	ID                    string                 `json:"id" yaml:"id"`
	Status                Status                 `json:"status" yaml:"status"`
	Documents             []string               `json:"documents" yaml:"documents"`
	PolicyHolder          string                 `json:"policy_holder,omitempty" yaml:"policy_holder,omitempty"`
	InsuredPerson         string                 `json:"insured_person,omitempty" yaml:"insured_person,omitempty"`
	IncidentDate          *time.Time             `json:"incident_date,omitempty" yaml:"incident_date,omitempty"`
	ClaimAmount           *float64               `json:"claim_amount,omitempty" yaml:"claim_amount,omitempty"`
	ClassificationResults []ClassificationResult `json:"classification_results,omitempty" yaml:"classification_results,omitempty"`
	ExtractionResults     []ExtractionResult     `json:"extraction_results,omitempty" yaml:"extraction_results,omitempty"`
	LiabilityEvaluation   *LiabilityEvaluation   `json:"liability_evaluation,omitempty" yaml:"liability_evaluation,omitempty"`
	Error                 string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Version               int64                  `json:"version" yaml:"version"`
	CreatedAt             time.Time              `json:"created_at" yaml:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy so store implementations never share slices with callers
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	out := *c
	out.Documents = append([]string(nil), c.Documents...)
	if c.IncidentDate != nil {
		d := *c.IncidentDate
		out.IncidentDate = &d
	}
	if c.ClaimAmount != nil {
		a := *c.ClaimAmount
		out.ClaimAmount = &a
	}
	if c.ClassificationResults != nil {
		out.ClassificationResults = make([]ClassificationResult, len(c.ClassificationResults))
		for i, r := range c.ClassificationResults {
			r.AlternativeTypes = append([]DocumentType(nil), r.AlternativeTypes...)
			out.ClassificationResults[i] = r
		}
	}
	if c.ExtractionResults != nil {
		out.ExtractionResults = make([]ExtractionResult, len(c.ExtractionResults))
		for i, r := range c.ExtractionResults {
			r.ExtractedFields = append([]ExtractedField(nil), r.ExtractedFields...)
			out.ExtractionResults[i] = r
		}
	}
	if c.LiabilityEvaluation != nil {
		ev := *c.LiabilityEvaluation
		ev.ExclusionFactors = append([]string(nil), ev.ExclusionFactors...)
		ev.EvaluationReasons = append([]string(nil), ev.EvaluationReasons...)
		ev.RiskFactors = append([]RiskFactor(nil), ev.RiskFactors...)
		out.LiabilityEvaluation = &ev
	}
	return &out
}
