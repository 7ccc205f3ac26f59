// Package rules compiles and evaluates risk rules written in CEL.
//
// Rules see two variables: fields, a map of lower-cased extracted field
// values, and derived, a map of values computed from them (age, age_known,
// invoice_amount).
package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Variable names visible to rule expressions
const (
	VarFields  = "fields"
	VarDerived = "derived"
)

// costLimit bounds the work a single expression may do
const costLimit = 1000000

// Engine manages CEL environment and rule compilation/evaluation.
// Safe for concurrent use; compiled programs are guarded by an RWMutex.
type Engine struct {
	env      *cel.Env
	store    RuleStore
	cache    RulesCache             // cache for active rules list
	programs map[string]cel.Program // ruleID -> compiled program
	mu       sync.RWMutex
}

// NewEnv returns the CEL environment risk rules compile against
func NewEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable(VarFields, cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable(VarDerived, cel.MapType(cel.StringType, cel.DynType)),
	)
}

// NewEngine creates a rules engine over store and compiles its active rules
func NewEngine(store RuleStore) (*Engine, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return NewEngineWithEnv(env, store, DefaultCacheConfig())
}

// NewEngineWithEnv creates a rules engine with a custom CEL environment and cache policy
func NewEngineWithEnv(env *cel.Env, store RuleStore, cacheConfig CacheConfig) (*Engine, error) {
	en := &Engine{
		env:      env,
		store:    store,
		cache:    NewInMemoryRulesCache(cacheConfig),
		programs: make(map[string]cel.Program),
	}

	if err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	return en, nil
}

// Store returns the backing rule store
func (en *Engine) Store() RuleStore {
	return en.store
}

func (en *Engine) compile(expression string) (cel.Program, error) {
	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := en.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// Validate reports whether expression compiles without caching it
func (en *Engine) Validate(expression string) error {
	_, err := en.compile(expression)
	return err
}

// CompileRule compiles a single rule expression and caches the program
func (en *Engine) CompileRule(ruleID, expression string) error {
	prog, err := en.compile(expression)
	if err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[ruleID] = prog
	en.mu.Unlock()

	return nil
}

func (en *Engine) run(rule *Rule, facts map[string]any) *EvaluationResult {
	result := &EvaluationResult{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Severity:    rule.Severity,
		Description: rule.Description,
	}

	en.mu.RLock()
	prog, exists := en.programs[rule.ID]
	en.mu.RUnlock()

	if !exists {
		result.Error = fmt.Errorf("rule %s is not compiled", rule.ID)
		return result
	}

	out, details, err := prog.Eval(facts)
	if err != nil {
		result.Error = err
		return result
	}

	// non-boolean results count as no match
	if boolVal, ok := out.Value().(bool); ok {
		result.Matched = boolVal
	}
	result.Trace = details.State()
	return result
}

// Evaluate evaluates a single rule against the provided facts
func (en *Engine) Evaluate(ruleID string, facts map[string]any) (*EvaluationResult, error) {
	rule, err := en.store.Get(ruleID)
	if err != nil {
		return nil, err
	}

	result := en.run(rule, facts)
	return result, result.Error
}

// CompileAllRules compiles all active rules from the store
// and primes the active rules cache
func (en *Engine) CompileAllRules() error {
	rules, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := en.CompileRule(rule.ID, rule.Expression); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
		}
	}

	en.cache.Set(rules)

	return nil
}

// AddRule validates, compiles and stores a new rule
func (en *Engine) AddRule(r *Rule) error {
	if _, err := en.store.Get(r.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrRuleExists, r.ID)
	}

	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Add(r); err != nil {
		en.mu.Lock()
		delete(en.programs, r.ID)
		en.mu.Unlock()
		return err
	}

	en.cache.Invalidate()

	return nil
}

// UpdateRule replaces a rule and recompiles it.
// The previous program stays in place when the new expression is invalid.
func (en *Engine) UpdateRule(r *Rule) error {
	prog, err := en.compile(r.Expression)
	if err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Update(r); err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[r.ID] = prog
	en.mu.Unlock()

	en.cache.Invalidate()

	return nil
}

// DeleteRule removes a rule from the store and compiled programs
func (en *Engine) DeleteRule(ruleID string) error {
	if err := en.store.Delete(ruleID); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.programs, ruleID)
	en.mu.Unlock()

	en.cache.Invalidate()

	return nil
}

// ActiveRules returns the active rules in evaluation order
func (en *Engine) ActiveRules() ([]*Rule, error) {
	rules := en.cache.Get()
	if rules != nil {
		return rules, nil
	}

	rules, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}
	SortRules(rules)

	// rules written by another process may not be compiled yet; one that
	// fails here is reported per evaluation as not compiled
	for _, rule := range rules {
		en.mu.RLock()
		_, compiled := en.programs[rule.ID]
		en.mu.RUnlock()
		if !compiled {
			_ = en.CompileRule(rule.ID, rule.Expression)
		}
	}

	en.cache.Set(rules)
	return rules, nil
}

// EvaluateAll evaluates every active rule in order.
// A rule that fails is reported with Error set and evaluation continues.
func (en *Engine) EvaluateAll(facts map[string]any) ([]*EvaluationResult, error) {
	rules, err := en.ActiveRules()
	if err != nil {
		return nil, err
	}

	results := make([]*EvaluationResult, 0, len(rules))
	for _, rule := range rules {
		results = append(results, en.run(rule, facts))
	}

	return results, nil
}
