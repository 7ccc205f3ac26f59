package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/liamcoop/claims/claims"
)

// ClaimProcessor runs a full claim through the pipeline from its document paths
type ClaimProcessor interface {
	ProcessDocuments(ctx context.Context, documents []string) (*claims.Claim, error)
}

// ClaimJob processes one claim
type ClaimJob struct {
	Index     int
	Documents []string
	Processor ClaimProcessor
}

// Execute executes the claim job
func (j *ClaimJob) Execute(ctx context.Context) Result {
	claim, err := j.Processor.ProcessDocuments(ctx, j.Documents)
	return &ClaimResult{
		Index:     j.Index,
		Documents: j.Documents,
		Claim:     claim,
		Error:     err,
	}
}

// ClaimResult represents the result of a claim job
type ClaimResult struct {
	Index     int
	Documents []string
	Claim     *claims.Claim
	Error     error
}

// GetError returns the error from the claim result
func (r *ClaimResult) GetError() error {
	return r.Error
}

// BatchProcessor processes many claims concurrently, each independently
type BatchProcessor struct {
	processor   ClaimProcessor
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(processor ClaimProcessor, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		processor:   processor,
		concurrency: concurrency,
	}
}

// ProcessClaims processes each document group as its own claim and returns
// the results in input order
func (b *BatchProcessor) ProcessClaims(ctx context.Context, groups [][]string) []*ClaimResult {
	if len(groups) == 0 {
		return []*ClaimResult{}
	}

	pool := NewPool(b.concurrency)
	pool.Start()

	out := make([]*ClaimResult, len(groups))
	for i, docs := range groups {
		job := &ClaimJob{Index: i, Documents: docs, Processor: b.processor}
		if err := pool.Submit(ctx, job); err != nil {
			out[i] = &ClaimResult{Index: i, Documents: docs, Error: err}
		}
	}

	for _, r := range pool.Wait() {
		cr := r.(*ClaimResult)
		out[cr.Index] = cr
	}

	return out
}

// ProcessFile reads document groups from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*ClaimResult, error) {
	groups, err := ReadClaimsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	return b.ProcessClaims(ctx, groups), nil
}

// ReadClaimsFromFile reads one claim per line, its document paths separated
// by commas. Blank lines and # comments are skipped; duplicate lines are
// processed once.
func ReadClaimsFromFile(filePath string) ([][]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var groups [][]string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true

		var docs []string
		for _, part := range strings.Split(line, ",") {
			if p := strings.TrimSpace(part); p != "" {
				docs = append(docs, p)
			}
		}
		if len(docs) > 0 {
			groups = append(groups, docs)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return groups, nil
}
