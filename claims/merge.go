package claims

// FieldValue is one entry of the merged field map consumed by the evaluator
type FieldValue struct {
	Value      string  `json:"value" yaml:"value"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Fields maps field names to their merged values
type Fields map[string]FieldValue

// Value returns the value stored under name, or "" when absent
func (f Fields) Value(name string) string {
	if f == nil {
		return ""
	}
	return f[name].Value
}

// MergeExtractionResults folds the extracted fields of several documents into
// one map. Results are applied in the order given and a later document
// overwrites an earlier one on a name collision, so callers must pass results
// in document processing order.
func MergeExtractionResults(results ...ExtractionResult) Fields {
	merged := make(Fields)
	for _, result := range results {
		for _, field := range result.ExtractedFields {
			merged[field.FieldName] = FieldValue{
				Value:      field.FieldValue,
				Confidence: field.Confidence,
			}
		}
	}
	return merged
}
