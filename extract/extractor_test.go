package extract

import (
	"math"
	"testing"

	"github.com/liamcoop/claims/catalog"
	"github.com/liamcoop/claims/claims"
)

const scenarioA = "患者：张三\n诊断：急性阑尾炎\n入院日期：2023年10月5日\n出院日期：2023年10月10日\n医院：XX市人民医院\n主治医师：李医生\n发票金额：¥5000.00"

func fieldMap(result claims.ExtractionResult) map[string]claims.ExtractedField {
	m := make(map[string]claims.ExtractedField)
	for _, f := range result.ExtractedFields {
		m[f.FieldName] = f
	}
	return m
}

// TestExtractMedicalRecord verifies extraction of the medical record field set
func TestExtractMedicalRecord(t *testing.T) {
	e := New(catalog.Default())

	result := e.Extract(scenarioA, claims.MedicalRecord)
	got := fieldMap(result)

	want := map[string]string{
		"patient_name":   "张三",
		"diagnosis":      "急性阑尾炎",
		"admission_date": "2023年10月5日",
		"discharge_date": "2023年10月10日",
		"hospital_name":  "XX市人民医院",
		"doctor_name":    "李医生",
	}
	for name, value := range want {
		f, ok := got[name]
		if !ok {
			t.Errorf("field %s not extracted", name)
			continue
		}
		if f.FieldValue != value {
			t.Errorf("%s = %q, want %q", name, f.FieldValue, value)
		}
		if f.Confidence != FieldConfidence {
			t.Errorf("%s confidence = %v, want %v", name, f.Confidence, FieldConfidence)
		}
	}

	// definition order is preserved
	if result.ExtractedFields[0].FieldName != "patient_name" {
		t.Errorf("first field = %s, want patient_name", result.ExtractedFields[0].FieldName)
	}

	wantAccuracy := 0.7*0.9 + 0.3*1.0
	if math.Abs(result.ExtractionAccuracy-wantAccuracy) > 1e-9 {
		t.Errorf("ExtractionAccuracy = %v, want %v", result.ExtractionAccuracy, wantAccuracy)
	}
}

// TestExtractInvoiceAmount verifies the amount pattern keeps the currency prefix
func TestExtractInvoiceAmount(t *testing.T) {
	e := New(catalog.Default())

	got := fieldMap(e.Extract(scenarioA, claims.Invoice))
	if got["invoice_amount"].FieldValue != "¥5000.00" {
		t.Errorf("invoice_amount = %q, want ¥5000.00", got["invoice_amount"].FieldValue)
	}
}

// TestExtractNoMatches verifies an empty result has zero accuracy
func TestExtractNoMatches(t *testing.T) {
	e := New(catalog.Default())

	result := e.Extract("nothing useful here", claims.BankStatement)
	if len(result.ExtractedFields) != 0 {
		t.Errorf("ExtractedFields = %v, want none", result.ExtractedFields)
	}
	if result.ExtractionAccuracy != 0 {
		t.Errorf("ExtractionAccuracy = %v, want 0", result.ExtractionAccuracy)
	}
}

// TestExtractUnknownType verifies an unconfigured type yields an empty result
func TestExtractUnknownType(t *testing.T) {
	e := New(catalog.Default())

	result := e.Extract(scenarioA, claims.DocumentType("passport"))
	if len(result.ExtractedFields) != 0 || result.ExtractionAccuracy != 0 {
		t.Errorf("Extract() = %+v, want empty result", result)
	}
}

// TestExtractSkipsEmptyValues verifies whitespace-only values are omitted
func TestExtractSkipsEmptyValues(t *testing.T) {
	e := New(catalog.Default())

	// account_number's value class admits whitespace only
	result := e.Extract("账号：   \n户名：王五", claims.BankStatement)
	got := fieldMap(result)
	if _, ok := got["account_number"]; ok {
		t.Errorf("account_number = %q, want it omitted", got["account_number"].FieldValue)
	}
	if got["account_holder"].FieldValue != "王五" {
		t.Errorf("account_holder = %q, want 王五", got["account_holder"].FieldValue)
	}
}

// TestExtractFirstMatchWins verifies only the first occurrence is used
func TestExtractFirstMatchWins(t *testing.T) {
	e := New(catalog.Default())

	got := fieldMap(e.Extract("诊断：骨折\n初步诊断：扭伤", claims.MedicalRecord))
	if got["diagnosis"].FieldValue != "骨折" {
		t.Errorf("diagnosis = %q, want 骨折", got["diagnosis"].FieldValue)
	}
}

// TestExtractWholeMatchWithoutGroups verifies patterns without groups use the whole match
func TestExtractWholeMatchWithoutGroups(t *testing.T) {
	spec := catalog.DefaultSpec()
	spec.DocumentTypes[0].Fields = []catalog.FieldDefinition{
		{Name: "claim_code", Pattern: `CLM-\d+`, Label: "案件编号"},
	}
	cat, err := catalog.New(spec)
	if err != nil {
		t.Fatalf("catalog.New() failed: %v", err)
	}

	got := fieldMap(New(cat).Extract("ref clm-0042 end", claims.MedicalRecord))
	if got["claim_code"].FieldValue != "clm-0042" {
		t.Errorf("claim_code = %q, want clm-0042", got["claim_code"].FieldValue)
	}
}

// TestExtractPositionAndPage verifies spans and form-feed page numbers
func TestExtractPositionAndPage(t *testing.T) {
	e := New(catalog.Default())

	text := "第一页\f患者： 张三 \n诊断：急性阑尾炎"
	got := fieldMap(e.Extract(text, claims.MedicalRecord))

	f := got["patient_name"]
	if f.Position == nil {
		t.Fatal("patient_name Position should be set")
	}
	if text[f.Position.Start:f.Position.End] != "张三" {
		t.Errorf("span = %q, want 张三", text[f.Position.Start:f.Position.End])
	}
	if f.PageNumber == nil || *f.PageNumber != 2 {
		t.Errorf("PageNumber = %v, want 2", f.PageNumber)
	}

	plain := fieldMap(e.Extract("诊断：急性阑尾炎", claims.MedicalRecord))
	if plain["diagnosis"].PageNumber != nil {
		t.Error("PageNumber should be nil for text without page breaks")
	}
}

// TestAccuracyPartial verifies the completeness term below the ideal count
func TestAccuracyPartial(t *testing.T) {
	e := New(catalog.Default())

	fields := []claims.ExtractedField{
		{FieldName: "a", FieldValue: "x", Confidence: 0.9},
		{FieldName: "b", FieldValue: "y", Confidence: 0.9},
	}
	want := 0.7*0.9 + 0.3*(2.0/5.0)
	if got := e.Accuracy(fields); math.Abs(got-want) > 1e-9 {
		t.Errorf("Accuracy() = %v, want %v", got, want)
	}
}

// TestExtractDocumentSetsID verifies the document id is carried through
func TestExtractDocumentSetsID(t *testing.T) {
	e := New(catalog.Default())

	if got := e.ExtractDocument("doc-7", scenarioA, claims.MedicalRecord).DocumentID; got != "doc-7" {
		t.Errorf("DocumentID = %q, want doc-7", got)
	}
}
