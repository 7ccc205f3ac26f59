package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/liamcoop/claims/claims"
	"github.com/liamcoop/claims/internal/bootstrap"
	"github.com/liamcoop/claims/internal/config"
)

const (
	medicalText  = "门诊病历\n患者：张三\n诊断：急性阑尾炎\n入院日期：2023年10月5日\n医院：市第一人民医院"
	invoiceText  = "医疗费用发票\n发票号码：A12345\n金额：¥25000.00\n收费单位：市第一人民医院"
	contractText = "保险合同\n投保人：李四\n被保险人：张三\n保单号：P2023001"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.UploadDir = t.TempDir()
	cfg.RateLimit.Enabled = false
	cfg.Liability.ReferenceDate = "2024-01-01"

	svc, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("bootstrap.New() failed: %v", err)
	}
	s := NewServer(svc)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close(ctx)
		svc.Close()
	})
	return s
}

func writeDocs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	docs := map[string]string{
		"record.txt":   medicalText,
		"invoice.txt":  invoiceText,
		"contract.txt": contractText,
	}
	var paths []string
	for _, name := range []string{"record.txt", "invoice.txt", "contract.txt"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(docs[name]), 0o644); err != nil {
			t.Fatalf("WriteFile() failed: %v", err)
		}
		paths = append(paths, path)
	}
	return paths
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Encode() failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Decode() failed: %v (body %q)", err, rec.Body.String())
	}
}

func createClaim(t *testing.T, s *Server, docs []string) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/claims", CreateClaimRequest{Documents: docs})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create claim status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ClaimCreatedResponse
	decodeBody(t, rec, &resp)
	return resp.ClaimID
}

// waitForStatus polls a claim until it reaches want or the deadline passes
func waitForStatus(t *testing.T, s *Server, id string, want claims.Status) *claims.Claim {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/claims/"+id, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("get claim status = %d", rec.Code)
		}
		var claim claims.Claim
		decodeBody(t, rec, &claim)
		if claim.Status == want {
			return &claim
		}
		if time.Now().After(deadline) {
			t.Fatalf("claim status = %s, want %s (error %q)", claim.Status, want, claim.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestHealth verifies the health endpoint reports the wired service
func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "healthy" || resp.Driver != config.DriverMemory {
		t.Errorf("health = %+v", resp)
	}
	if resp.DefaultPolicy != "health_insurance_basic" {
		t.Errorf("DefaultPolicy = %q", resp.DefaultPolicy)
	}
}

// TestClaimStagesOverHTTP verifies each stage endpoint advances a claim
func TestClaimStagesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := createClaim(t, s, writeDocs(t))

	// Extraction cannot start before classification
	rec := doJSON(t, s, http.MethodPost, "/api/v1/claims/"+id+"/extract", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("early extract status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/claims/"+id+"/classify", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("classify status = %d, body %s", rec.Code, rec.Body.String())
	}
	claim := waitForStatus(t, s, id, claims.StatusExtracting)
	if len(claim.ClassificationResults) != 3 {
		t.Fatalf("got %d classification results", len(claim.ClassificationResults))
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/claims/"+id+"/extract", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("extract status = %d", rec.Code)
	}
	claim = waitForStatus(t, s, id, claims.StatusEvaluating)
	if claim.InsuredPerson != "张三" || claim.PolicyHolder != "李四" {
		t.Errorf("metadata = %q / %q", claim.InsuredPerson, claim.PolicyHolder)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/claims/"+id+"/evaluate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate status = %d, body %s", rec.Code, rec.Body.String())
	}
	var eval ClaimEvaluationResponse
	decodeBody(t, rec, &eval)
	if eval.Status != claims.StatusCompleted || eval.LiabilityResult == nil {
		t.Fatalf("evaluation = %+v", eval)
	}
	if eval.LiabilityResult.RecommendedPayout != 22500 {
		t.Errorf("RecommendedPayout = %v, want 22500", eval.LiabilityResult.RecommendedPayout)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/claims/"+id+"/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d", rec.Code)
	}
	var report map[string]any
	decodeBody(t, rec, &report)
	if report["claim_id"] != id {
		t.Errorf("report claim_id = %v", report["claim_id"])
	}
}

// TestProcessEndpoint verifies the process endpoint runs every stage
func TestProcessEndpoint(t *testing.T) {
	s := newTestServer(t)
	id := createClaim(t, s, writeDocs(t))

	rec := doJSON(t, s, http.MethodPost, "/api/v1/claims/"+id+"/process?policy=missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown policy status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/claims/"+id+"/process", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("process status = %d", rec.Code)
	}
	claim := waitForStatus(t, s, id, claims.StatusCompleted)
	if claim.LiabilityEvaluation == nil || !claim.LiabilityEvaluation.CoverageApplicable {
		t.Errorf("evaluation = %+v", claim.LiabilityEvaluation)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/claims?status=completed", nil)
	var list ClaimsListResponse
	decodeBody(t, rec, &list)
	if len(list.Claims) != 1 || list.Claims[0].ID != id {
		t.Errorf("completed claims = %d", len(list.Claims))
	}
}

// TestCreateClaimMultipart verifies uploaded files are stored and recorded
func TestCreateClaimMultipart(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, text := range map[string]string{"invoice.txt": invoiceText, "../record.txt": medicalText} {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		part.Write([]byte(text))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ClaimCreatedResponse
	decodeBody(t, rec, &resp)
	if resp.DocumentCount != 2 {
		t.Fatalf("DocumentCount = %d", resp.DocumentCount)
	}
	for _, path := range resp.Claim.Documents {
		rel, err := filepath.Rel(s.cfg.Storage.UploadDir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			t.Errorf("document %s stored outside the upload dir", path)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Stat(%s) failed: %v", path, err)
		}
	}
}

// TestCreateClaimValidation verifies bad submissions are refused
func TestCreateClaimValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/claims", CreateClaimRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty documents status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", bytes.NewBufferString("{"))
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/claims/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown claim status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/claims?status=lost", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", rec.Code)
	}
}

// TestStatelessEvaluate verifies fields can be evaluated without a claim
func TestStatelessEvaluate(t *testing.T) {
	s := newTestServer(t)

	body := EvaluateRequest{
		Fields: claims.Fields{
			"diagnosis":      {Value: "急性阑尾炎", Confidence: 0.9},
			"invoice_amount": {Value: "1000.00", Confidence: 0.9},
		},
	}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/evaluate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp EvaluateResponse
	decodeBody(t, rec, &resp)
	if resp.Policy != "health_insurance_basic" || resp.Evaluation.RecommendedPayout != 900 {
		t.Errorf("response = %+v", resp)
	}

	body.Policy = "missing"
	rec = doJSON(t, s, http.MethodPost, "/api/v1/evaluate", body)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown policy status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/evaluate", map[string]string{"policy": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing fields status = %d, want 400", rec.Code)
	}
}

// TestPolicyEndpoints verifies policy CRUD
func TestPolicyEndpoints(t *testing.T) {
	s := newTestServer(t)

	terms := claims.PolicyTerms{
		DisplayName: "团体医疗",
		Coverage:    []string{"住院医疗"},
		Exclusions:  []string{"美容"},
		Limits:      map[string]float64{claims.LimitAnnual: 50000, claims.LimitSelfPayRatio: 0.2},
	}
	rec := doJSON(t, s, http.MethodPut, "/api/v1/policies/group_medical", terms)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/policies/group_medical", nil)
	var got claims.PolicyTerms
	decodeBody(t, rec, &got)
	if got.Name != "group_medical" || got.Limits[claims.LimitAnnual] != 50000 {
		t.Errorf("policy = %+v", got)
	}

	terms.Limits[claims.LimitSelfPayRatio] = 2
	rec = doJSON(t, s, http.MethodPut, "/api/v1/policies/group_medical", terms)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid policy status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/policies/health_insurance_basic", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete default status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/policies/group_medical", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/api/v1/policies/group_medical", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", rec.Code)
	}
}

// TestRiskRuleEndpoints verifies risk rule CRUD and that new rules take effect
func TestRiskRuleEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/risk-rules", CreateRuleRequest{
		ID:         "huge_invoice",
		Name:       "巨额发票",
		Severity:   "high",
		Expression: "derived.invoice_amount > 500.0",
		Priority:   5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/risk-rules", CreateRuleRequest{
		ID: "huge_invoice", Name: "重复", Expression: "true",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/risk-rules", CreateRuleRequest{
		Name: "坏规则", Expression: "derived.invoice_amount >",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid expression status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/risk-rules", CreateRuleRequest{
		Name: "低风险", Severity: "low", Expression: "true",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid severity status = %d, want 400", rec.Code)
	}

	eval := doJSON(t, s, http.MethodPost, "/api/v1/evaluate", EvaluateRequest{
		Fields: claims.Fields{"invoice_amount": {Value: "1000.00", Confidence: 0.9}},
	})
	var resp EvaluateResponse
	decodeBody(t, eval, &resp)
	found := false
	for _, f := range resp.Evaluation.RiskFactors {
		if f.Name == "巨额发票" {
			found = true
		}
	}
	if !found {
		t.Errorf("risk factors = %+v, want 巨额发票", resp.Evaluation.RiskFactors)
	}

	inactive := false
	rec = doJSON(t, s, http.MethodPut, "/api/v1/risk-rules/huge_invoice", UpdateRuleRequest{Active: &inactive})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	var updated RuleResponse
	decodeBody(t, rec, &updated)
	if updated.Active || updated.Name != "巨额发票" {
		t.Errorf("updated = %+v", updated)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/risk-rules", nil)
	var list RulesListResponse
	decodeBody(t, rec, &list)
	if len(list.Rules) != 5 {
		t.Errorf("got %d rules, want 5", len(list.Rules))
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/risk-rules/huge_invoice", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/api/v1/risk-rules/huge_invoice", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", rec.Code)
	}
}

// TestRateLimit verifies clients over budget receive 429
func TestRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.Burst = 1

	svc, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("bootstrap.New() failed: %v", err)
	}
	defer svc.Close()
	s := NewServer(svc)
	defer s.Close(context.Background())

	if rec := doJSON(t, s, http.MethodGet, "/api/v1/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodGet, "/api/v1/health", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/metrics", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("metrics status = %d, want 429", rec.Code)
	}
}
