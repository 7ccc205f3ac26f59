package main

import (
	"time"

	"github.com/liamcoop/claims/claims"
	"github.com/liamcoop/claims/rules"
)

// API request and response models

// CreateClaimRequest lists already stored document paths for a new claim.
// Uploads use multipart/form-data with one or more "files" parts instead.
type CreateClaimRequest struct {
	Documents []string `json:"documents" example:"uploads/a/record.pdf"`
} // @name CreateClaimRequest

// ClaimCreatedResponse is returned once a claim is stored as uploaded
type ClaimCreatedResponse struct {
	ClaimID       string        `json:"claim_id"`
	Message       string        `json:"message" example:"文档上传成功"`
	DocumentCount int           `json:"document_count" example:"3"`
	Claim         *claims.Claim `json:"claim"`
} // @name ClaimCreatedResponse

// StageAcceptedResponse is returned when a stage is queued
type StageAcceptedResponse struct {
	ClaimID string `json:"claim_id"`
	Stage   string `json:"stage" example:"classify"`
	Message string `json:"message" example:"文档分类任务已启动"`
} // @name StageAcceptedResponse

// ClaimsListResponse represents the response for listing claims
type ClaimsListResponse struct {
	Claims []*claims.Claim `json:"claims"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
} // @name ClaimsListResponse

// ClaimEvaluationResponse is returned by a synchronous claim evaluation
type ClaimEvaluationResponse struct {
	ClaimID         string                      `json:"claim_id"`
	Status          claims.Status               `json:"status"`
	LiabilityResult *claims.LiabilityEvaluation `json:"liability_result"`
} // @name ClaimEvaluationResponse

// EvaluateRequest evaluates fields that are not attached to a claim
type EvaluateRequest struct {
	Fields claims.Fields `json:"fields" binding:"required"`
	Policy string        `json:"policy,omitempty" example:"health_insurance_basic"`
} // @name EvaluateRequest

// EvaluateResponse represents the response for a stateless evaluation
type EvaluateResponse struct {
	Evaluation     claims.LiabilityEvaluation `json:"evaluation"`
	Policy         string                     `json:"policy"`
	EvaluationTime string                     `json:"evaluationTime" example:"2.3ms"`
} // @name EvaluateResponse

// PoliciesListResponse represents the response for listing policies
type PoliciesListResponse struct {
	Policies []claims.PolicyTerms `json:"policies"`
	Default  string               `json:"default"`
} // @name PoliciesListResponse

// CreateRuleRequest represents the request body for creating a risk rule
type CreateRuleRequest struct {
	ID          string `json:"id,omitempty" example:"night_admission"`
	Name        string `json:"name" example:"夜间入院" binding:"required"`
	Description string `json:"description" example:"入院时间异常"`
	Severity    string `json:"severity" example:"medium"`
	Expression  string `json:"expression" example:"derived.invoice_amount > 50000.0" binding:"required"`
	Priority    int    `json:"priority" example:"50"`
	Active      *bool  `json:"active,omitempty" example:"true"`
} // @name CreateRuleRequest

// UpdateRuleRequest represents the request body for updating a risk rule.
// Omitted fields keep their current value.
type UpdateRuleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Expression  string `json:"expression"`
	Priority    *int   `json:"priority,omitempty"`
	Active      *bool  `json:"active,omitempty"`
} // @name UpdateRuleRequest

// RuleResponse represents a risk rule in API responses
type RuleResponse struct {
	ID          string          `json:"id" example:"abnormal_cost"`
	Name        string          `json:"name" example:"费用异常高"`
	Description string          `json:"description"`
	Severity    claims.Severity `json:"severity" example:"medium"`
	Expression  string          `json:"expression"`
	Priority    int             `json:"priority" example:"30"`
	Active      bool            `json:"active" example:"true"`
	CreatedAt   time.Time       `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt   time.Time       `json:"updated_at" example:"2024-01-15T10:30:00Z"`
} // @name RuleResponse

// RulesListResponse represents the response for listing risk rules
type RulesListResponse struct {
	Rules []RuleResponse `json:"rules"`
} // @name RulesListResponse

func toRuleResponse(r *rules.Rule) RuleResponse {
	return RuleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Severity:    r.Severity,
		Expression:  r.Expression,
		Priority:    r.Priority,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"claim not found"`
	Details string `json:"details,omitempty"`
} // @name ErrorResponse

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status" example:"healthy"`
	Error         string `json:"error,omitempty"`
	Uptime        string `json:"uptime"`
	Driver        string `json:"driver" example:"postgres"`
	Policies      int    `json:"policies"`
	DefaultPolicy string `json:"default_policy"`
} // @name HealthResponse
