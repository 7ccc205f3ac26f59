package pipeline

import (
	"context"
	"fmt"

	"github.com/liamcoop/claims/claims"
)

// Report is the operator-facing summary of a claim
type Report struct {
	ClaimID        string        `json:"claim_id" yaml:"claim_id"`
	Summary        string        `json:"summary" yaml:"summary"`
	Details        ReportDetails `json:"details" yaml:"details"`
	Recommendation string        `json:"recommendation" yaml:"recommendation"`
}

// ReportDetails carries the claim's stage results
type ReportDetails struct {
	Status                claims.Status                 `json:"status" yaml:"status"`
	DocumentCount         int                           `json:"document_count" yaml:"document_count"`
	PolicyHolder          string                        `json:"policy_holder,omitempty" yaml:"policy_holder,omitempty"`
	InsuredPerson         string                        `json:"insured_person,omitempty" yaml:"insured_person,omitempty"`
	ClaimAmount           *float64                      `json:"claim_amount,omitempty" yaml:"claim_amount,omitempty"`
	ClassificationResults []claims.ClassificationResult `json:"classification_results" yaml:"classification_results"`
	ExtractionResults     []claims.ExtractionResult     `json:"extraction_results" yaml:"extraction_results"`
	LiabilityEvaluation   *claims.LiabilityEvaluation   `json:"liability_evaluation" yaml:"liability_evaluation"`
	Error                 string                        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Recommendations
const (
	recPay      = "根据评估结果，建议按责任范围赔付 %.2f 元"
	recReview   = "根据评估结果，建议人工复核后决定是否赔付"
	recPending  = "案件尚未完成责任评估"
	recRejected = "案件处理失败，需人工处理"
)

// Report builds the report for a claim in any status
func (p *Processor) Report(ctx context.Context, id string) (*Report, error) {
	claim, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildReport(claim), nil
}

// BuildReport summarises claim
func BuildReport(claim *claims.Claim) *Report {
	return &Report{
		ClaimID: claim.ID,
		Summary: fmt.Sprintf("理赔案件 %s 处理报告", claim.ID),
		Details: ReportDetails{
			Status:                claim.Status,
			DocumentCount:         len(claim.Documents),
			PolicyHolder:          claim.PolicyHolder,
			InsuredPerson:         claim.InsuredPerson,
			ClaimAmount:           claim.ClaimAmount,
			ClassificationResults: claim.ClassificationResults,
			ExtractionResults:     claim.ExtractionResults,
			LiabilityEvaluation:   claim.LiabilityEvaluation,
			Error:                 claim.Error,
		},
		Recommendation: recommend(claim),
	}
}

func recommend(claim *claims.Claim) string {
	switch {
	case claim.Status == claims.StatusRejected:
		return recRejected
	case claim.LiabilityEvaluation == nil:
		return recPending
	case claim.LiabilityEvaluation.RecommendedPayout > 0:
		return fmt.Sprintf(recPay, claim.LiabilityEvaluation.RecommendedPayout)
	default:
		return recReview
	}
}
