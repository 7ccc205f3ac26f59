// Package classify assigns a document type to raw document text by keyword
// presence scoring.
package classify

import (
	"strings"

	"github.com/liamcoop/claims/catalog"
	"github.com/liamcoop/claims/claims"
)

const (
	// FallbackConfidence is reported when no keyword of any type occurs in the text
	FallbackConfidence = 0.1
	// FallbackType is predicted when no keyword of any type occurs in the text.
	// This is a fixed bias toward medical records, not a computed decision.
	FallbackType = claims.MedicalRecord

	maxAlternatives = 3
)

// Classifier scores text against the catalog keyword lists.
// It holds only immutable state and is safe for concurrent use.
type Classifier struct {
	types    []claims.DocumentType
	keywords map[claims.DocumentType][]string // lower-cased
	divisor  float64
}

// New creates a classifier over the catalog keyword lists
func New(cat *catalog.Catalog) *Classifier {
	c := &Classifier{
		types:    claims.DocumentTypes(),
		keywords: make(map[claims.DocumentType][]string),
	}

	for _, t := range c.types {
		kws := cat.Keywords(t)
		for i, kw := range kws {
			kws[i] = strings.ToLower(kw)
		}
		c.keywords[t] = kws
	}

	divisor := cat.TotalKeywords() / len(c.types)
	if divisor < 1 {
		divisor = 1
	}
	c.divisor = float64(divisor)

	return c
}

// Score returns the number of distinct keywords of t present in text
func (c *Classifier) Score(text string, t claims.DocumentType) int {
	return score(strings.ToLower(text), c.keywords[t])
}

func score(lowered string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			n++
		}
	}
	return n
}

// Classify predicts the document type of text
func (c *Classifier) Classify(text string) claims.ClassificationResult {
	lowered := strings.ToLower(text)

	best := c.types[0]
	bestScore := 0
	for _, t := range c.types {
		// strict comparison keeps the earliest type on ties
		if s := score(lowered, c.keywords[t]); s > bestScore {
			best, bestScore = t, s
		}
	}

	if bestScore == 0 {
		return claims.ClassificationResult{
			PredictedType:    FallbackType,
			Confidence:       FallbackConfidence,
			AlternativeTypes: c.alternatives(FallbackType),
		}
	}

	confidence := float64(bestScore) / c.divisor
	if confidence > 1 {
		confidence = 1
	}

	return claims.ClassificationResult{
		PredictedType:    best,
		Confidence:       confidence,
		AlternativeTypes: c.alternatives(best),
	}
}

// ClassifyDocument classifies text and tags the result with documentID
func (c *Classifier) ClassifyDocument(documentID, text string) claims.ClassificationResult {
	result := c.Classify(text)
	result.DocumentID = documentID
	return result
}

// alternatives lists the first types in enumeration order other than predicted.
// They are not ranked by score.
func (c *Classifier) alternatives(predicted claims.DocumentType) []claims.DocumentType {
	out := make([]claims.DocumentType, 0, maxAlternatives)
	for _, t := range c.types {
		if t == predicted {
			continue
		}
		out = append(out, t)
		if len(out) == maxAlternatives {
			break
		}
	}
	return out
}
