// Package pipeline drives a claim through classification, extraction and
// liability evaluation, persisting each stage through a claim store.
//
// Status moves uploaded → classifying → extracting → evaluating → completed.
// Classify enters classifying and leaves the claim in extracting, Extract
// leaves it in evaluating, and Evaluate completes it. A completed claim may be
// evaluated again, which replaces the previous evaluation. Any stage failure
// rejects the claim; nothing is retried.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/claims/catalog"
	"github.com/liamcoop/claims/claims"
	"github.com/liamcoop/claims/classify"
	"github.com/liamcoop/claims/doctext"
	"github.com/liamcoop/claims/extract"
	"github.com/liamcoop/claims/internal/logger"
	"github.com/liamcoop/claims/liability"
	"github.com/liamcoop/claims/policy"
	"github.com/liamcoop/claims/store"
)

var (
	// ErrInvalidTransition is returned when the claim's status does not allow the stage
	ErrInvalidTransition = errors.New("invalid claim status transition")
	// ErrBusy is returned while another stage of the same claim is running
	ErrBusy = errors.New("claim is already being processed")
	// ErrNoDocuments is returned by Submit for an empty document list
	ErrNoDocuments = errors.New("claim has no documents")
)

// Stage names a processing step
type Stage string

const (
	StageClassify Stage = "classify"
	StageExtract  Stage = "extract"
	StageEvaluate Stage = "evaluate"
)

// Field names copied onto the claim record
const (
	fieldPolicyHolder  = "policy_holder"
	fieldInsuredPerson = "insured_person"
	fieldPatientName   = "patient_name"
)

// Processor orchestrates the claim stages.
// Safe for concurrent use; at most one stage runs per claim id at a time.
type Processor struct {
	classifier *classify.Classifier
	extractor  *extract.Extractor
	evaluator  *liability.Evaluator
	policies   policy.Source
	texts      doctext.Provider
	store      store.ClaimStore

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New wires a processor over the catalog tables and its collaborators
func New(cat *catalog.Catalog, evaluator *liability.Evaluator, policies policy.Source, texts doctext.Provider, st store.ClaimStore) *Processor {
	return &Processor{
		classifier: classify.New(cat),
		extractor:  extract.New(cat),
		evaluator:  evaluator,
		policies:   policies,
		texts:      texts,
		store:      st,
		inFlight:   make(map[string]struct{}),
	}
}

// DocumentID derives a stable id for a document path
func DocumentID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
}

// Submit creates a claim in the uploaded status for the given documents
func (p *Processor) Submit(ctx context.Context, documents []string) (*claims.Claim, error) {
	docs := make([]string, 0, len(documents))
	for _, d := range documents {
		if d = strings.TrimSpace(d); d != "" {
			docs = append(docs, d)
		}
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate claim id: %w", err)
	}

	claim := &claims.Claim{
		ID:        id.String(),
		Status:    claims.StatusUploaded,
		Documents: docs,
	}
	if err := p.store.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("failed to create claim: %w", err)
	}

	logger.ClaimSubmitted()
	logger.Info("claim submitted", "claim_id", claim.ID, "documents", len(docs))

	return p.store.Get(ctx, claim.ID)
}

// Get returns a claim by id
func (p *Processor) Get(ctx context.Context, id string) (*claims.Claim, error) {
	return p.store.Get(ctx, id)
}

// List returns claims matching filter, newest first
func (p *Processor) List(ctx context.Context, filter store.Filter) ([]*claims.Claim, error) {
	return p.store.List(ctx, filter)
}

// Ready reports whether stage could start for the claim now. Callers that run
// stages in the background use it to fail fast; the stage checks again.
func (p *Processor) Ready(ctx context.Context, id string, stage Stage) error {
	p.mu.Lock()
	_, busy := p.inFlight[id]
	p.mu.Unlock()
	if busy {
		return fmt.Errorf("%w: %s", ErrBusy, id)
	}

	claim, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return checkStage(claim.Status, stage)
}

// checkStage maps a stage to the statuses it may start from
func checkStage(status claims.Status, stage Stage) error {
	var ok bool
	switch stage {
	case StageClassify:
		ok = status.CanTransition(claims.StatusClassifying)
	case StageExtract:
		ok = status == claims.StatusExtracting
	case StageEvaluate:
		ok = status.CanTransition(claims.StatusCompleted)
	}
	if !ok {
		return fmt.Errorf("%w: cannot %s a claim in status %s", ErrInvalidTransition, stage, status)
	}
	return nil
}

// acquire marks id in flight; release must be called when the stage ends
func (p *Processor) acquire(id string) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, busy := p.inFlight[id]; busy {
		return nil, fmt.Errorf("%w: %s", ErrBusy, id)
	}
	p.inFlight[id] = struct{}{}

	return func() {
		p.mu.Lock()
		delete(p.inFlight, id)
		p.mu.Unlock()
	}, nil
}

// Classify classifies every document of the claim in document order
func (p *Processor) Classify(ctx context.Context, id string) (*claims.Claim, error) {
	release, err := p.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	claim, err := p.store.Update(ctx, id, func(c *claims.Claim) error {
		if err := checkStage(c.Status, StageClassify); err != nil {
			return err
		}
		c.Status = claims.StatusClassifying
		c.Error = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]claims.ClassificationResult, 0, len(claim.Documents))
	for _, doc := range claim.Documents {
		text, err := p.texts.Text(ctx, doc)
		if err != nil {
			return p.reject(ctx, id, StageClassify, err)
		}
		result := p.classifier.ClassifyDocument(DocumentID(doc), text)
		logger.Debug("document classified",
			"claim_id", id,
			"document", doc,
			"type", result.PredictedType,
			"confidence", result.Confidence,
		)
		results = append(results, result)
	}

	claim, err = p.store.Update(ctx, id, func(c *claims.Claim) error {
		if c.Status != claims.StatusClassifying {
			return fmt.Errorf("%w: claim left classifying (now %s)", ErrInvalidTransition, c.Status)
		}
		c.ClassificationResults = results
		c.Status = claims.StatusExtracting
		return nil
	})
	if err != nil {
		return p.reject(ctx, id, StageClassify, err)
	}

	logger.Info("claim classified", "claim_id", id, "documents", len(results))
	return claim, nil
}

// Extract extracts fields from every classified document in document order
// and fills the claim metadata from the merged fields
func (p *Processor) Extract(ctx context.Context, id string) (*claims.Claim, error) {
	release, err := p.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	claim, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkStage(claim.Status, StageExtract); err != nil {
		return nil, err
	}

	types := make(map[string]claims.DocumentType, len(claim.ClassificationResults))
	for _, r := range claim.ClassificationResults {
		types[r.DocumentID] = r.PredictedType
	}

	results := make([]claims.ExtractionResult, 0, len(claim.Documents))
	for _, doc := range claim.Documents {
		docID := DocumentID(doc)
		docType, ok := types[docID]
		if !ok {
			return p.reject(ctx, id, StageExtract, fmt.Errorf("document %s was not classified", doc))
		}
		text, err := p.texts.Text(ctx, doc)
		if err != nil {
			return p.reject(ctx, id, StageExtract, err)
		}
		result := p.extractor.ExtractDocument(docID, text, docType)
		logger.Debug("document extracted",
			"claim_id", id,
			"document", doc,
			"fields", len(result.ExtractedFields),
			"accuracy", result.ExtractionAccuracy,
		)
		results = append(results, result)
	}

	fields := claims.MergeExtractionResults(results...)

	claim, err = p.store.Update(ctx, id, func(c *claims.Claim) error {
		if c.Status != claims.StatusExtracting {
			return fmt.Errorf("%w: claim left extracting (now %s)", ErrInvalidTransition, c.Status)
		}
		c.ExtractionResults = results
		fillMetadata(c, fields)
		c.Status = claims.StatusEvaluating
		return nil
	})
	if err != nil {
		return p.reject(ctx, id, StageExtract, err)
	}

	logger.Info("claim extracted", "claim_id", id, "fields", len(fields))
	return claim, nil
}

// Evaluate evaluates the claim's merged fields under the named policy, or the
// default policy for an empty name. Re-evaluating a completed claim replaces
// its evaluation.
func (p *Processor) Evaluate(ctx context.Context, id, policyName string) (*claims.Claim, error) {
	terms, err := policy.Resolve(p.policies, policyName)
	if err != nil {
		return nil, err
	}

	release, err := p.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	claim, err := p.store.Update(ctx, id, func(c *claims.Claim) error {
		if err := checkStage(c.Status, StageEvaluate); err != nil {
			return err
		}
		fields := claims.MergeExtractionResults(c.ExtractionResults...)
		eval := p.evaluator.Evaluate(fields, terms)
		c.LiabilityEvaluation = &eval
		c.Status = claims.StatusCompleted
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return p.reject(ctx, id, StageEvaluate, err)
	}

	logger.ClaimCompleted()
	logger.Info("claim evaluated",
		"claim_id", id,
		"policy", terms.Name,
		"covered", claim.LiabilityEvaluation.CoverageApplicable,
		"payout", claim.LiabilityEvaluation.RecommendedPayout,
		"confidence", claim.LiabilityEvaluation.Confidence,
	)
	return claim, nil
}

// EvaluateFields evaluates fields that did not come from a stored claim
func (p *Processor) EvaluateFields(fields claims.Fields, policyName string) (claims.LiabilityEvaluation, error) {
	terms, err := policy.Resolve(p.policies, policyName)
	if err != nil {
		return claims.LiabilityEvaluation{}, err
	}
	return p.evaluator.Evaluate(fields, terms), nil
}

// Process runs classification, extraction and evaluation back to back
func (p *Processor) Process(ctx context.Context, id, policyName string) (*claims.Claim, error) {
	if _, err := policy.Resolve(p.policies, policyName); err != nil {
		return nil, err
	}
	if _, err := p.Classify(ctx, id); err != nil {
		return nil, err
	}
	if _, err := p.Extract(ctx, id); err != nil {
		return nil, err
	}
	return p.Evaluate(ctx, id, policyName)
}

// ProcessDocuments submits documents as a new claim and processes it under
// the default policy. A failed claim is returned together with the error.
func (p *Processor) ProcessDocuments(ctx context.Context, documents []string) (*claims.Claim, error) {
	claim, err := p.Submit(ctx, documents)
	if err != nil {
		return nil, err
	}

	processed, err := p.Process(ctx, claim.ID, "")
	if err != nil {
		if current, getErr := p.store.Get(context.WithoutCancel(ctx), claim.ID); getErr == nil {
			return current, err
		}
		return claim, err
	}
	return processed, nil
}

// reject moves the claim to rejected, records cause on it and returns the
// stage error. The update is not bound to ctx so a cancelled request still
// leaves the claim terminal.
func (p *Processor) reject(ctx context.Context, id string, stage Stage, cause error) (*claims.Claim, error) {
	logger.ClaimRejected(id, string(stage), cause)

	claim, err := p.store.Update(context.WithoutCancel(ctx), id, func(c *claims.Claim) error {
		if !c.Status.CanTransition(claims.StatusRejected) {
			return fmt.Errorf("%w: cannot reject a claim in status %s", ErrInvalidTransition, c.Status)
		}
		c.Status = claims.StatusRejected
		c.Error = fmt.Sprintf("%s: %v", stage, cause)
		return nil
	})
	if err != nil {
		logger.Error("failed to reject claim", "claim_id", id, "error", err)
	}

	return claim, fmt.Errorf("%s claim %s: %w", stage, id, cause)
}

// fillMetadata copies the claim-level facts out of the merged fields
func fillMetadata(c *claims.Claim, fields claims.Fields) {
	if v := fields.Value(fieldPolicyHolder); v != "" {
		c.PolicyHolder = v
	}
	if v := fields.Value(fieldInsuredPerson); v != "" {
		c.InsuredPerson = v
	} else if v := fields.Value(fieldPatientName); v != "" && c.InsuredPerson == "" {
		c.InsuredPerson = v
	}

	for _, name := range []string{liability.FieldAccidentDate, liability.FieldAdmissionDate} {
		if d, ok := liability.ParseDate(fields.Value(name)); ok {
			d = d.In(time.UTC)
			c.IncidentDate = &d
			break
		}
	}

	if v := fields.Value(liability.FieldInvoiceAmount); v != "" {
		amount := liability.ParseAmount(v)
		c.ClaimAmount = &amount
	}
}
