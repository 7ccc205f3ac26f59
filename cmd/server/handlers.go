package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liamcoop/claims/catalog"
	"github.com/liamcoop/claims/claims"
	"github.com/liamcoop/claims/internal/logger"
	"github.com/liamcoop/claims/pipeline"
	"github.com/liamcoop/claims/policy"
	"github.com/liamcoop/claims/rules"
	"github.com/liamcoop/claims/store"
	"github.com/liamcoop/claims/worker"
)

// Health and metrics

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Driver:        s.cfg.Database.Driver,
		Policies:      len(s.svc.Policies.List()),
		DefaultPolicy: s.svc.Policies.DefaultName(),
	}

	if err := s.svc.Ping(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := logger.Snapshot()
	metrics["text_cache_entries"] = int64(s.svc.Texts.Len())
	metrics["stage_workers"] = int64(s.jobs.Workers())
	if s.limiter != nil {
		metrics["rate_limited_clients"] = int64(s.limiter.Len())
	}
	respondJSON(w, http.StatusOK, metrics)
}

// Claims

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	var filter store.Filter
	q := r.URL.Query()

	if v := q.Get("status"); v != "" {
		status, err := claims.ParseStatus(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid status filter", err)
			return
		}
		filter.Status = status
	}

	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid offset", err)
		return
	}

	list, err := s.svc.Processor.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list claims", err)
		return
	}
	if list == nil {
		list = []*claims.Claim{}
	}

	respondJSON(w, http.StatusOK, ClaimsListResponse{Claims: list, Limit: filter.Limit, Offset: filter.Offset})
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return n, nil
}

// handleCreateClaim accepts either multipart uploads or a JSON list of
// document paths already readable by the server
func (s *Server) handleCreateClaim(w http.ResponseWriter, r *http.Request) {
	var documents []string

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		saved, err := s.saveUploads(w, r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to store uploaded documents", err)
			return
		}
		documents = saved
	} else {
		var req CreateClaimRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		documents = req.Documents
	}

	claim, err := s.svc.Processor.Submit(r.Context(), documents)
	if err != nil {
		respondDomainError(w, "Failed to create claim", err)
		return
	}

	respondJSON(w, http.StatusCreated, ClaimCreatedResponse{
		ClaimID:       claim.ID,
		Message:       "文档上传成功",
		DocumentCount: len(claim.Documents),
		Claim:         claim,
	})
}

// saveUploads writes every "files" part under a fresh directory of the
// upload root and returns the stored paths in upload order
func (s *Server) saveUploads(w http.ResponseWriter, r *http.Request) ([]string, error) {
	maxBytes := int64(s.cfg.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, err
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		return nil, pipeline.ErrNoDocuments
	}

	dir := filepath.Join(s.cfg.Storage.UploadDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	paths := make([]string, 0, len(headers))
	for i, fh := range headers {
		path := filepath.Join(dir, uploadName(fh.Filename, i))
		if err := saveUpload(fh, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	logger.Debug("Stored uploaded documents", "dir", dir, "count", len(paths))
	return paths, nil
}

func uploadName(name string, i int) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return fmt.Sprintf("document-%d", i+1)
	}
	return fmt.Sprintf("%02d-%s", i+1, base)
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write %s: %w", fh.Filename, err)
	}
	return dst.Close()
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := s.svc.Processor.Get(r.Context(), chi.URLParam(r, "claimId"))
	if err != nil {
		respondDomainError(w, "Failed to get claim", err)
		return
	}
	respondJSON(w, http.StatusOK, claim)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	s.startStage(w, r, pipeline.StageClassify, "文档分类任务已启动", s.svc.Processor.Classify)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	s.startStage(w, r, pipeline.StageExtract, "信息提取任务已启动", s.svc.Processor.Extract)
}

// handleProcess queues every remaining stage for the claim
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	policyName := r.URL.Query().Get("policy")
	if _, err := s.svc.Policies.Resolve(policyName); err != nil {
		respondDomainError(w, "Unknown policy", err)
		return
	}

	s.startStage(w, r, pipeline.StageClassify, "理赔处理任务已启动", func(ctx context.Context, id string) (*claims.Claim, error) {
		return s.svc.Processor.Process(ctx, id, policyName)
	})
}

// startStage checks the claim can enter stage now, then runs it on the
// background pool. The stage outcome is recorded on the claim itself.
func (s *Server) startStage(w http.ResponseWriter, r *http.Request, stage pipeline.Stage, message string, run func(context.Context, string) (*claims.Claim, error)) {
	id := chi.URLParam(r, "claimId")

	if err := s.svc.Processor.Ready(r.Context(), id, stage); err != nil {
		respondDomainError(w, fmt.Sprintf("Cannot start %s", stage), err)
		return
	}

	job := worker.JobFunc(func(ctx context.Context) worker.Result {
		_, err := run(ctx, id)
		if err != nil {
			err = fmt.Errorf("claim %s %s: %w", id, stage, err)
		}
		return worker.ErrorResult{Err: err}
	})
	if !s.jobs.TrySubmit(job) {
		respondError(w, http.StatusServiceUnavailable, "Processing queue is full", nil)
		return
	}

	respondJSON(w, http.StatusAccepted, StageAcceptedResponse{
		ClaimID: id,
		Stage:   string(stage),
		Message: message,
	})
}

// handleEvaluateClaim runs the liability stage synchronously
func (s *Server) handleEvaluateClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "claimId")

	claim, err := s.svc.Processor.Evaluate(r.Context(), id, r.URL.Query().Get("policy"))
	if err != nil {
		if claim != nil {
			respondError(w, http.StatusUnprocessableEntity, "Liability evaluation failed", err)
			return
		}
		respondDomainError(w, "Liability evaluation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, ClaimEvaluationResponse{
		ClaimID:         claim.ID,
		Status:          claim.Status,
		LiabilityResult: claim.LiabilityEvaluation,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Processor.Report(r.Context(), chi.URLParam(r, "claimId"))
	if err != nil {
		respondDomainError(w, "Failed to build report", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Stateless evaluation

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Fields == nil {
		respondError(w, http.StatusBadRequest, "fields are required", nil)
		return
	}

	start := time.Now()
	eval, err := s.svc.Processor.EvaluateFields(req.Fields, req.Policy)
	if err != nil {
		respondDomainError(w, "Evaluation failed", err)
		return
	}

	name := req.Policy
	if name == "" {
		name = s.svc.Policies.DefaultName()
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		Evaluation:     eval,
		Policy:         name,
		EvaluationTime: time.Since(start).String(),
	})
}

// Policies

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, PoliciesListResponse{
		Policies: s.svc.Policies.List(),
		Default:  s.svc.Policies.DefaultName(),
	})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := s.svc.Policies.Get(name)
	if !ok {
		respondError(w, http.StatusNotFound, "Policy not found", fmt.Errorf("%w: %s", policy.ErrNotFound, name))
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutPolicy(w http.ResponseWriter, r *http.Request) {
	var p claims.PolicyTerms
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p.Name = chi.URLParam(r, "name")

	if err := catalog.ValidatePolicy(p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid policy", err)
		return
	}

	if err := s.svc.Policies.Upsert(r.Context(), p); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}

	logger.Info("Policy saved", "policy", p.Name)
	saved, _ := s.svc.Policies.Get(p.Name)
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.svc.Policies.Delete(r.Context(), name); err != nil {
		respondDomainError(w, "Failed to delete policy", err)
		return
	}
	logger.Info("Policy deleted", "policy", name)
	w.WriteHeader(http.StatusNoContent)
}

// Risk rules

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Engine.Store().List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}

	resp := RulesListResponse{Rules: make([]RuleResponse, 0, len(list))}
	for _, rule := range list {
		resp.Rules = append(resp.Rules, toRuleResponse(rule))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Engine.Store().Get(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondDomainError(w, "Failed to get rule", err)
		return
	}
	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

func parseSeverity(v string) (claims.Severity, error) {
	switch claims.Severity(v) {
	case "":
		return claims.SeverityMedium, nil
	case claims.SeverityHigh, claims.SeverityMedium:
		return claims.Severity(v), nil
	}
	return "", fmt.Errorf("severity must be %q or %q", claims.SeverityHigh, claims.SeverityMedium)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Name == "" || req.Expression == "" {
		respondError(w, http.StatusBadRequest, "name and expression are required", nil)
		return
	}
	severity, err := parseSeverity(req.Severity)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid severity", err)
		return
	}

	rule := &rules.Rule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Severity:    severity,
		Expression:  req.Expression,
		Priority:    req.Priority,
		Active:      true,
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if err := s.svc.Engine.AddRule(rule); err != nil {
		if errors.Is(err, rules.ErrRuleExists) {
			respondError(w, http.StatusConflict, "Rule already exists", err)
			return
		}
		respondError(w, http.StatusBadRequest, "Failed to create rule", err)
		return
	}

	logger.Info("Risk rule created", "rule_id", rule.ID)
	respondJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Engine.Store().Get(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondDomainError(w, "Failed to get rule", err)
		return
	}

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Name != "" {
		rule.Name = req.Name
	}
	if req.Description != "" {
		rule.Description = req.Description
	}
	if req.Expression != "" {
		rule.Expression = req.Expression
	}
	if req.Severity != "" {
		if rule.Severity, err = parseSeverity(req.Severity); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid severity", err)
			return
		}
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if err := s.svc.Engine.UpdateRule(rule); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			respondError(w, http.StatusNotFound, "Rule not found", err)
			return
		}
		respondError(w, http.StatusBadRequest, "Failed to update rule", err)
		return
	}

	logger.Info("Risk rule updated", "rule_id", rule.ID)
	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleId")
	if err := s.svc.Engine.DeleteRule(id); err != nil {
		respondDomainError(w, "Failed to delete rule", err)
		return
	}
	logger.Info("Risk rule deleted", "rule_id", id)
	w.WriteHeader(http.StatusNoContent)
}
