package claims

import (
	"encoding/json"
	"testing"
	"time"
)

// TestDocumentTypesOrder verifies the enumeration order used for tie-breaks
func TestDocumentTypesOrder(t *testing.T) {
	want := []DocumentType{
		MedicalRecord, AccidentReport, Invoice,
		IdentityCard, BankStatement, InsuranceContract,
	}

	got := DocumentTypes()
	if len(got) != len(want) {
		t.Fatalf("DocumentTypes() returned %d types, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DocumentTypes()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// Mutating the returned slice must not affect later calls
	got[0] = Invoice
	if DocumentTypes()[0] != MedicalRecord {
		t.Error("DocumentTypes() should return a copy")
	}
}

// TestParseDocumentType verifies label parsing
func TestParseDocumentType(t *testing.T) {
	tests := []struct {
		label   string
		want    DocumentType
		wantErr bool
	}{
		{"medical_record", MedicalRecord, false},
		{"invoice", Invoice, false},
		{"insurance_contract", InsuranceContract, false},
		{"MEDICAL_RECORD", "", true},
		{"passport", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseDocumentType(tt.label)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDocumentType(%q) error = %v, wantErr %v", tt.label, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDocumentType(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

// TestDocumentTypeJSON verifies enumerations serialize as their string labels
func TestDocumentTypeJSON(t *testing.T) {
	result := ClassificationResult{
		DocumentID:       "doc-1",
		PredictedType:    Invoice,
		Confidence:       0.5,
		AlternativeTypes: []DocumentType{MedicalRecord},
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("json.Marshal() failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	if raw["predicted_type"] != "invoice" {
		t.Errorf("predicted_type = %v, want invoice", raw["predicted_type"])
	}

	var bad ClassificationResult
	err = json.Unmarshal([]byte(`{"predicted_type":"receipt"}`), &bad)
	if err == nil {
		t.Error("Unmarshal should reject an unknown document type")
	}
}

// TestStatusTransitions verifies the one-way claim state machine
func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusUploaded, StatusClassifying, true},
		{StatusClassifying, StatusExtracting, true},
		{StatusExtracting, StatusEvaluating, true},
		{StatusEvaluating, StatusCompleted, true},
		{StatusCompleted, StatusCompleted, true},
		{StatusUploaded, StatusRejected, true},
		{StatusEvaluating, StatusRejected, true},
		{StatusExtracting, StatusClassifying, false},
		{StatusCompleted, StatusEvaluating, false},
		{StatusCompleted, StatusRejected, false},
		{StatusRejected, StatusUploaded, false},
		{StatusUploaded, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("%s.CanTransition(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}

	if !StatusRejected.Terminal() {
		t.Error("rejected should be terminal")
	}
}

// TestMergeExtractionResultsLastWriteWins verifies later documents override earlier ones
func TestMergeExtractionResultsLastWriteWins(t *testing.T) {
	first := ExtractionResult{
		DocumentID: "doc-1",
		ExtractedFields: []ExtractedField{
			{FieldName: "diagnosis", FieldValue: "急性阑尾炎", Confidence: 0.9},
			{FieldName: "patient_name", FieldValue: "张三", Confidence: 0.9},
		},
	}
	second := ExtractionResult{
		DocumentID: "doc-2",
		ExtractedFields: []ExtractedField{
			{FieldName: "diagnosis", FieldValue: "骨折", Confidence: 0.8},
		},
	}

	merged := MergeExtractionResults(first, second)
	if got := merged.Value("diagnosis"); got != "骨折" {
		t.Errorf("diagnosis = %q, want value from the last merged document", got)
	}
	if merged["diagnosis"].Confidence != 0.8 {
		t.Errorf("diagnosis confidence = %v, want 0.8", merged["diagnosis"].Confidence)
	}
	if got := merged.Value("patient_name"); got != "张三" {
		t.Errorf("patient_name = %q, want 张三", got)
	}

	reversed := MergeExtractionResults(second, first)
	if got := reversed.Value("diagnosis"); got != "急性阑尾炎" {
		t.Errorf("reversed diagnosis = %q, want 急性阑尾炎", got)
	}

	if got := Fields(nil).Value("diagnosis"); got != "" {
		t.Errorf("nil Fields Value() = %q, want empty", got)
	}
}

// TestClaimClone verifies clones do not share mutable state
func TestClaimClone(t *testing.T) {
	now := time.Now()
	amount := 100.0
	original := &Claim{
		ID:           "claim-1",
		Status:       StatusCompleted,
		Documents:    []string{"a.txt"},
		IncidentDate: &now,
		ClaimAmount:  &amount,
		ExtractionResults: []ExtractionResult{{
			DocumentID:      "doc-1",
			ExtractedFields: []ExtractedField{{FieldName: "diagnosis", FieldValue: "x"}},
		}},
		LiabilityEvaluation: &LiabilityEvaluation{ExclusionFactors: []string{"美容手术"}},
	}

	clone := original.Clone()
	clone.Documents[0] = "b.txt"
	clone.ExtractionResults[0].ExtractedFields[0].FieldValue = "y"
	clone.LiabilityEvaluation.ExclusionFactors[0] = "牙科治疗"
	*clone.ClaimAmount = 5

	if original.Documents[0] != "a.txt" {
		t.Error("Clone() shares Documents")
	}
	if original.ExtractionResults[0].ExtractedFields[0].FieldValue != "x" {
		t.Error("Clone() shares ExtractedFields")
	}
	if original.LiabilityEvaluation.ExclusionFactors[0] != "美容手术" {
		t.Error("Clone() shares ExclusionFactors")
	}
	if *original.ClaimAmount != 100 {
		t.Error("Clone() shares ClaimAmount")
	}
}

// TestPolicyTermsLimit verifies limit lookup on nil and populated policies
func TestPolicyTermsLimit(t *testing.T) {
	var nilPolicy *PolicyTerms
	if _, ok := nilPolicy.Limit(LimitAnnual); ok {
		t.Error("nil policy should not report limits")
	}

	p := &PolicyTerms{Limits: map[string]float64{LimitAnnual: 100000}}
	if v, ok := p.Limit(LimitAnnual); !ok || v != 100000 {
		t.Errorf("Limit(annual_limit) = %v, %v; want 100000, true", v, ok)
	}
	if _, ok := p.Limit(LimitSelfPayRatio); ok {
		t.Error("undefined limit should report false")
	}
}
