package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/liamcoop/claims/claims"
)

const (
	maxFieldsPerType = 50
	maxKeywordLength = 50
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateSpec checks a catalog spec before it is compiled
// Returns an error describing the first problem found, nil if the catalog is valid
func ValidateSpec(spec Spec) error {
	if spec.IdealFieldCount <= 0 {
		return fmt.Errorf("ideal_field_count must be positive, got %d", spec.IdealFieldCount)
	}

	if len(spec.DocumentTypes) == 0 {
		return fmt.Errorf("catalog must define at least one document type")
	}

	seenTypes := make(map[claims.DocumentType]bool)
	for _, dt := range spec.DocumentTypes {
		if !dt.Type.Valid() {
			return fmt.Errorf("unknown document type %q", dt.Type)
		}
		if seenTypes[dt.Type] {
			return fmt.Errorf("document type %q defined more than once", dt.Type)
		}
		seenTypes[dt.Type] = true

		if err := validateKeywords(dt); err != nil {
			return err
		}
		if err := validateFields(dt); err != nil {
			return err
		}
	}

	if len(spec.Policies) == 0 {
		return fmt.Errorf("catalog must define at least one policy")
	}

	seenPolicies := make(map[string]bool)
	for _, p := range spec.Policies {
		if err := ValidatePolicy(p); err != nil {
			return err
		}
		if seenPolicies[p.Name] {
			return fmt.Errorf("policy %q defined more than once", p.Name)
		}
		seenPolicies[p.Name] = true
	}

	if !seenPolicies[spec.DefaultPolicy] {
		return fmt.Errorf("default policy %q is not defined", spec.DefaultPolicy)
	}

	return nil
}

func validateKeywords(dt DocumentTypeSpec) error {
	if len(dt.Keywords) == 0 {
		return fmt.Errorf("document type %q must have at least one keyword", dt.Type)
	}
	seen := make(map[string]bool)
	for _, kw := range dt.Keywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("document type %q has an empty keyword", dt.Type)
		}
		if len([]rune(kw)) > maxKeywordLength {
			return fmt.Errorf("keyword %q of %q exceeds %d characters", kw, dt.Type, maxKeywordLength)
		}
		// duplicates would count once anyway but inflate the confidence divisor
		if seen[kw] {
			return fmt.Errorf("document type %q lists keyword %q twice", dt.Type, kw)
		}
		seen[kw] = true
	}
	return nil
}

func validateFields(dt DocumentTypeSpec) error {
	if len(dt.Fields) > maxFieldsPerType {
		return fmt.Errorf("document type %q has %d fields, maximum allowed is %d", dt.Type, len(dt.Fields), maxFieldsPerType)
	}
	seen := make(map[string]bool)
	for _, f := range dt.Fields {
		if err := validateIdentifier(f.Name); err != nil {
			return fmt.Errorf("invalid field name %q in %q: %w", f.Name, dt.Type, err)
		}
		if seen[f.Name] {
			return fmt.Errorf("field %q defined twice in %q", f.Name, dt.Type)
		}
		seen[f.Name] = true

		if f.Pattern == "" {
			return fmt.Errorf("field %q in %q has an empty pattern", f.Name, dt.Type)
		}
		if _, err := compilePattern(f.Pattern); err != nil {
			return fmt.Errorf("field %q in %q has invalid pattern: %w", f.Name, dt.Type, err)
		}
	}
	return nil
}

// ValidatePolicy checks a single policy bundle
func ValidatePolicy(p claims.PolicyTerms) error {
	if err := validateIdentifier(p.Name); err != nil {
		return fmt.Errorf("invalid policy name %q: %w", p.Name, err)
	}
	for _, label := range p.Exclusions {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("policy %q has an empty exclusion label", p.Name)
		}
	}
	for name, v := range p.Limits {
		if v < 0 {
			return fmt.Errorf("policy %q limit %q is negative", p.Name, name)
		}
	}
	if ratio, ok := p.Limits[claims.LimitSelfPayRatio]; ok && ratio > 1 {
		return fmt.Errorf("policy %q self_pay_ratio %v must be within [0, 1]", p.Name, ratio)
	}
	if p.WaitingPeriod < 0 {
		return fmt.Errorf("policy %q has negative waiting period", p.Name)
	}
	return nil
}

// validateIdentifier checks a field or policy name.
// Field names become keys of the rule facts map, so CEL keywords are refused.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(name))
	}
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}
	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

func isReservedKeyword(name string) bool {
	reservedKeywords := map[string]bool{
		"true":      true,
		"false":     true,
		"null":      true,
		"in":        true,
		"as":        true,
		"break":     true,
		"const":     true,
		"continue":  true,
		"else":      true,
		"for":       true,
		"function":  true,
		"if":        true,
		"import":    true,
		"let":       true,
		"loop":      true,
		"package":   true,
		"namespace": true,
		"return":    true,
		"var":       true,
		"void":      true,
		"while":     true,
	}

	return reservedKeywords[name]
}
