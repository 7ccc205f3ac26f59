// Package extract pulls type-specific fields out of document text using the
// catalog's field patterns.
package extract

import (
	"math"
	"strings"

	"github.com/liamcoop/claims/catalog"
	"github.com/liamcoop/claims/claims"
)

const (
	// FieldConfidence is assigned to every extracted field
	FieldConfidence = 0.9

	meanWeight         = 0.7
	completenessWeight = 0.3

	// PageBreak separates pages in provider output
	PageBreak = '\f'
)

// Extractor applies field definitions to text.
// It holds only immutable state and is safe for concurrent use.
type Extractor struct {
	catalog *catalog.Catalog
	ideal   float64
}

// New creates an extractor over the catalog field definitions
func New(cat *catalog.Catalog) *Extractor {
	return &Extractor{
		catalog: cat,
		ideal:   float64(cat.IdealFieldCount()),
	}
}

// Extract runs every field definition of docType against text
func (e *Extractor) Extract(text string, docType claims.DocumentType) claims.ExtractionResult {
	fields := make([]claims.ExtractedField, 0)
	paged := strings.ContainsRune(text, PageBreak)

	for _, def := range e.catalog.Fields(docType) {
		field, ok := extractField(def, text, paged)
		if !ok {
			continue
		}
		fields = append(fields, field)
	}

	return claims.ExtractionResult{
		ExtractedFields:    fields,
		ExtractionAccuracy: e.Accuracy(fields),
	}
}

// ExtractDocument extracts fields and tags the result with documentID
func (e *Extractor) ExtractDocument(documentID, text string, docType claims.DocumentType) claims.ExtractionResult {
	result := e.Extract(text, docType)
	result.DocumentID = documentID
	return result
}

// extractField takes the first match of def; the value is the last capture
// group when the pattern has groups, the whole match otherwise
func extractField(def catalog.Field, text string, paged bool) (claims.ExtractedField, bool) {
	loc := def.Regexp().FindStringSubmatchIndex(text)
	if loc == nil {
		return claims.ExtractedField{}, false
	}

	start, end := loc[0], loc[1]
	if n := len(loc) / 2; n > 1 {
		start, end = loc[2*(n-1)], loc[2*(n-1)+1]
		if start < 0 {
			// last group did not participate in the match
			return claims.ExtractedField{}, false
		}
	}

	raw := text[start:end]
	value := strings.TrimSpace(raw)
	if value == "" {
		return claims.ExtractedField{}, false
	}

	// shrink the span to the trimmed value
	start += strings.Index(raw, value)
	end = start + len(value)

	field := claims.ExtractedField{
		FieldName:  def.Name,
		FieldValue: value,
		Confidence: FieldConfidence,
		Position:   &claims.FieldPosition{Start: start, End: end},
	}
	if paged {
		page := 1 + strings.Count(text[:start], string(PageBreak))
		field.PageNumber = &page
	}

	return field, true
}

// Accuracy scores a set of extracted fields: 0.7 * mean confidence plus
// 0.3 * completeness against the ideal field count
func (e *Extractor) Accuracy(fields []claims.ExtractedField) float64 {
	if len(fields) == 0 {
		return 0
	}

	var sum float64
	for _, f := range fields {
		sum += f.Confidence
	}
	mean := sum / float64(len(fields))

	completeness := math.Min(float64(len(fields))/e.ideal, 1)

	return meanWeight*mean + completenessWeight*completeness
}
