// Package catalog holds the static tables the pipeline runs on: classifier
// keywords, extraction field definitions and policy bundles.
//
// A Catalog is built once at startup and never mutated afterwards, so it is
// safe to share by pointer across goroutines.
package catalog

import (
	"fmt"
	"regexp"

	"github.com/liamcoop/claims/claims"
)

// FieldDefinition describes one extractable field
type FieldDefinition struct {
	Name    string `json:"name" yaml:"name"`
	Pattern string `json:"pattern" yaml:"pattern"`
	Label   string `json:"label" yaml:"label"`
}

// DocumentTypeSpec groups the keywords and fields of one document type
type DocumentTypeSpec struct {
	Type     claims.DocumentType `json:"type" yaml:"type"`
	Keywords []string            `json:"keywords" yaml:"keywords"`
	Fields   []FieldDefinition   `json:"fields" yaml:"fields"`
}

// Spec is the serializable form of a catalog
type Spec struct {
	IdealFieldCount int                  `json:"ideal_field_count" yaml:"ideal_field_count"`
	DefaultPolicy   string               `json:"default_policy" yaml:"default_policy"`
	DocumentTypes   []DocumentTypeSpec   `json:"document_types" yaml:"document_types"`
	Policies        []claims.PolicyTerms `json:"policies" yaml:"policies"`
}

// Field is a FieldDefinition with its compiled, case-insensitive pattern
type Field struct {
	FieldDefinition
	re *regexp.Regexp
}

// Regexp returns the compiled pattern
func (f Field) Regexp() *regexp.Regexp {
	return f.re
}

// Catalog is the validated, compiled form of a Spec
type Catalog struct {
	idealFieldCount int
	defaultPolicy   string
	keywords        map[claims.DocumentType][]string
	totalKeywords   int
	fields          map[claims.DocumentType][]Field
	policies        map[string]claims.PolicyTerms
	policyOrder     []string
}

// New validates spec and compiles its patterns
func New(spec Spec) (*Catalog, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	c := &Catalog{
		idealFieldCount: spec.IdealFieldCount,
		defaultPolicy:   spec.DefaultPolicy,
		keywords:        make(map[claims.DocumentType][]string),
		fields:          make(map[claims.DocumentType][]Field),
		policies:        make(map[string]claims.PolicyTerms),
	}

	for _, dt := range spec.DocumentTypes {
		c.keywords[dt.Type] = append([]string(nil), dt.Keywords...)
		c.totalKeywords += len(dt.Keywords)

		compiled := make([]Field, 0, len(dt.Fields))
		for _, def := range dt.Fields {
			re, err := compilePattern(def.Pattern)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", dt.Type, def.Name, err)
			}
			compiled = append(compiled, Field{FieldDefinition: def, re: re})
		}
		c.fields[dt.Type] = compiled
	}

	for _, p := range spec.Policies {
		c.policies[p.Name] = clonePolicy(p)
		c.policyOrder = append(c.policyOrder, p.Name)
	}

	return c, nil
}

var defaultCatalog = mustDefault()

func mustDefault() *Catalog {
	c, err := New(DefaultSpec())
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// Default returns the built-in catalog
func Default() *Catalog {
	return defaultCatalog
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)` + pattern)
}

// IdealFieldCount is the field count at which extraction completeness saturates
func (c *Catalog) IdealFieldCount() int {
	return c.idealFieldCount
}

// Keywords returns the classifier keywords of t
func (c *Catalog) Keywords(t claims.DocumentType) []string {
	return append([]string(nil), c.keywords[t]...)
}

// TotalKeywords is the number of keywords across all document types
func (c *Catalog) TotalKeywords() int {
	return c.totalKeywords
}

// Fields returns the field definitions of t in extraction order
func (c *Catalog) Fields(t claims.DocumentType) []Field {
	return append([]Field(nil), c.fields[t]...)
}

// Policy returns a copy of the named policy bundle
func (c *Catalog) Policy(name string) (*claims.PolicyTerms, bool) {
	p, ok := c.policies[name]
	if !ok {
		return nil, false
	}
	cp := clonePolicy(p)
	return &cp, true
}

// DefaultPolicy returns a copy of the default policy bundle
func (c *Catalog) DefaultPolicy() *claims.PolicyTerms {
	p, _ := c.Policy(c.defaultPolicy)
	return p
}

// DefaultPolicyName returns the name of the default policy bundle
func (c *Catalog) DefaultPolicyName() string {
	return c.defaultPolicy
}

// Policies returns copies of every policy bundle in declaration order
func (c *Catalog) Policies() []claims.PolicyTerms {
	out := make([]claims.PolicyTerms, 0, len(c.policyOrder))
	for _, name := range c.policyOrder {
		out = append(out, clonePolicy(c.policies[name]))
	}
	return out
}

// Spec returns the serializable form of the catalog
func (c *Catalog) Spec() Spec {
	spec := Spec{
		IdealFieldCount: c.idealFieldCount,
		DefaultPolicy:   c.defaultPolicy,
		Policies:        c.Policies(),
	}
	for _, t := range claims.DocumentTypes() {
		if _, ok := c.keywords[t]; !ok {
			continue
		}
		dt := DocumentTypeSpec{Type: t, Keywords: c.Keywords(t)}
		for _, f := range c.fields[t] {
			dt.Fields = append(dt.Fields, f.FieldDefinition)
		}
		spec.DocumentTypes = append(spec.DocumentTypes, dt)
	}
	return spec
}

func clonePolicy(p claims.PolicyTerms) claims.PolicyTerms {
	out := p
	out.Coverage = append([]string(nil), p.Coverage...)
	out.Exclusions = append([]string(nil), p.Exclusions...)
	if p.Limits != nil {
		out.Limits = make(map[string]float64, len(p.Limits))
		for k, v := range p.Limits {
			out.Limits[k] = v
		}
	}
	return out
}
