// Package policy resolves named policy bundles for liability evaluation.
package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/liamcoop/claims/catalog"
	"github.com/liamcoop/claims/claims"
	"github.com/liamcoop/claims/internal/database"
	"github.com/liamcoop/claims/internal/logger"
)

var (
	// ErrNotFound is returned for an unknown policy name
	ErrNotFound = errors.New("policy not found")
	// ErrDefaultPolicy is returned when deleting the default policy
	ErrDefaultPolicy = errors.New("default policy cannot be deleted")
)

// Source resolves policy bundles by name
type Source interface {
	Get(name string) (*claims.PolicyTerms, bool)
	Default() *claims.PolicyTerms
}

// Registry holds the policy bundles known to the service, seeded from the
// catalog and optionally persisted in the policies table.
// Safe for concurrent use; callers always receive copies.
type Registry struct {
	policies    map[string]claims.PolicyTerms
	defaultName string
	db          *sql.DB
	dialect     database.Dialect
	mu          sync.RWMutex
}

// NewRegistry creates a registry holding the catalog's policies
func NewRegistry(cat *catalog.Catalog) *Registry {
	r := &Registry{
		policies:    make(map[string]claims.PolicyTerms),
		defaultName: cat.DefaultPolicyName(),
	}
	for _, p := range cat.Policies() {
		r.policies[p.Name] = p
	}
	return r
}

// WithDB attaches a database so Upsert and Delete persist and LoadFromDB can run
func (r *Registry) WithDB(db *sql.DB, dialect database.Dialect) *Registry {
	r.mu.Lock()
	r.db = db
	r.dialect = dialect
	r.mu.Unlock()
	return r
}

// Get returns a copy of the named policy
func (r *Registry) Get(name string) (*claims.PolicyTerms, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[name]
	if !ok {
		return nil, false
	}
	cp := clone(p)
	return &cp, true
}

// Default returns a copy of the default policy
func (r *Registry) Default() *claims.PolicyTerms {
	r.mu.RLock()
	name := r.defaultName
	r.mu.RUnlock()

	p, _ := r.Get(name)
	return p
}

// DefaultName returns the name of the default policy
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// SetDefault makes an existing policy the default
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.defaultName = name
	return nil
}

// Resolve returns the named policy, or the default for an empty name
func (r *Registry) Resolve(name string) (*claims.PolicyTerms, error) {
	return Resolve(r, name)
}

// Resolve looks name up in src; an empty name selects the default
func Resolve(src Source, name string) (*claims.PolicyTerms, error) {
	if name == "" {
		return src.Default(), nil
	}
	p, ok := src.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// List returns all policies sorted by name
func (r *Registry) List() []claims.PolicyTerms {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]claims.PolicyTerms, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadFromDB reads every stored policy and overlays it on the registry.
// Stored rows win over catalog entries of the same name.
func (r *Registry) LoadFromDB(ctx context.Context) (int, error) {
	r.mu.RLock()
	db, dialect := r.db, r.dialect
	r.mu.RUnlock()
	if db == nil {
		return 0, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT name, display_name, coverage, exclusions, limits, waiting_period
		FROM policies
		ORDER BY name
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch policies: %w", err)
	}
	defer rows.Close()

	var loaded []claims.PolicyTerms
	for rows.Next() {
		var p claims.PolicyTerms
		var coverage, exclusions, limits []byte
		if err := rows.Scan(&p.Name, &p.DisplayName, &coverage, &exclusions, &limits, &p.WaitingPeriod); err != nil {
			return 0, fmt.Errorf("failed to scan policy row: %w", err)
		}
		if err := decode(coverage, &p.Coverage); err != nil {
			return 0, fmt.Errorf("invalid coverage for policy %s: %w", p.Name, err)
		}
		if err := decode(exclusions, &p.Exclusions); err != nil {
			return 0, fmt.Errorf("invalid exclusions for policy %s: %w", p.Name, err)
		}
		if err := decode(limits, &p.Limits); err != nil {
			return 0, fmt.Errorf("invalid limits for policy %s: %w", p.Name, err)
		}
		if err := catalog.ValidatePolicy(p); err != nil {
			logger.Warn("Skipping invalid stored policy", "policy", p.Name, "dialect", string(dialect), "error", err)
			continue
		}
		loaded = append(loaded, p)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating policy rows: %w", err)
	}

	r.mu.Lock()
	for _, p := range loaded {
		r.policies[p.Name] = p
	}
	r.mu.Unlock()

	logger.Info("Policies loaded from database", "count", len(loaded))
	return len(loaded), nil
}

// Upsert validates p, persists it when a database is attached and swaps it in
func (r *Registry) Upsert(ctx context.Context, p claims.PolicyTerms) error {
	if err := catalog.ValidatePolicy(p); err != nil {
		return err
	}
	p = clone(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		if err := r.save(ctx, p); err != nil {
			return err
		}
	}
	r.policies[p.Name] = p
	return nil
}

func (r *Registry) save(ctx context.Context, p claims.PolicyTerms) error {
	coverage, err := json.Marshal(nonNil(p.Coverage))
	if err != nil {
		return fmt.Errorf("failed to marshal coverage: %w", err)
	}
	exclusions, err := json.Marshal(nonNil(p.Exclusions))
	if err != nil {
		return fmt.Errorf("failed to marshal exclusions: %w", err)
	}
	limits := p.Limits
	if limits == nil {
		limits = map[string]float64{}
	}
	limitsJSON, err := json.Marshal(limits)
	if err != nil {
		return fmt.Errorf("failed to marshal limits: %w", err)
	}

	now := r.dialect.Time(time.Now())
	_, err = r.db.ExecContext(ctx, r.dialect.Rebind(`
		INSERT INTO policies (name, display_name, coverage, exclusions, limits, waiting_period, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			display_name = excluded.display_name,
			coverage = excluded.coverage,
			exclusions = excluded.exclusions,
			limits = excluded.limits,
			waiting_period = excluded.waiting_period,
			updated_at = excluded.updated_at
	`), p.Name, p.DisplayName, string(coverage), string(exclusions), string(limitsJSON), p.WaitingPeriod, now, now)
	if err != nil {
		return fmt.Errorf("failed to save policy %s: %w", p.Name, err)
	}
	return nil
}

// Delete removes a policy. The default policy cannot be removed.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == r.defaultName {
		return fmt.Errorf("%w: %s", ErrDefaultPolicy, name)
	}
	if _, ok := r.policies[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if r.db != nil {
		if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM policies WHERE name = ?`), name); err != nil {
			return fmt.Errorf("failed to delete policy %s: %w", name, err)
		}
	}
	delete(r.policies, name)
	return nil
}

func decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func clone(p claims.PolicyTerms) claims.PolicyTerms {
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
