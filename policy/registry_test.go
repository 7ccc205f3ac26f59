package policy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/liamcoop/claims/catalog"
	"github.com/liamcoop/claims/claims"
	"github.com/liamcoop/claims/internal/database"
)

var _ Source = (*Registry)(nil)

func dentalPolicy() claims.PolicyTerms {
	return claims.PolicyTerms{
		Name:          "dental_plus",
		DisplayName:   "齿科保险",
		Coverage:      []string{"牙科治疗"},
		Exclusions:    []string{"美容手术"},
		Limits:        map[string]float64{claims.LimitAnnual: 8000, claims.LimitSelfPayRatio: 0.2},
		WaitingPeriod: 90,
	}
}

// TestRegistrySeededFromCatalog verifies the catalog bundles are available
func TestRegistrySeededFromCatalog(t *testing.T) {
	r := NewRegistry(catalog.Default())

	if r.DefaultName() != "health_insurance_basic" {
		t.Errorf("DefaultName() = %s, want health_insurance_basic", r.DefaultName())
	}
	if p := r.Default(); p == nil || p.WaitingPeriod != 30 {
		t.Errorf("Default() = %+v, want the health bundle", p)
	}
	if _, ok := r.Get("accident_insurance"); !ok {
		t.Error("Get(accident_insurance) not found")
	}

	list := r.List()
	if len(list) != 2 || list[0].Name != "accident_insurance" {
		t.Errorf("List() = %v, want two policies sorted by name", list)
	}
}

// TestRegistryResolve verifies empty and unknown names
func TestRegistryResolve(t *testing.T) {
	r := NewRegistry(catalog.Default())

	p, err := r.Resolve("")
	if err != nil || p.Name != "health_insurance_basic" {
		t.Errorf("Resolve(\"\") = %v, %v; want default", p, err)
	}

	if _, err := r.Resolve("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(nope) error = %v, want ErrNotFound", err)
	}
}

// TestRegistryReturnsCopies verifies callers cannot mutate registered policies
func TestRegistryReturnsCopies(t *testing.T) {
	r := NewRegistry(catalog.Default())

	p := r.Default()
	p.Exclusions[0] = "mutated"
	p.Limits[claims.LimitAnnual] = 1

	again := r.Default()
	if again.Exclusions[0] == "mutated" || again.Limits[claims.LimitAnnual] != 100000 {
		t.Errorf("Default() returned shared state: %+v", again)
	}
}

// TestRegistryUpsertValidates verifies invalid bundles are refused
func TestRegistryUpsertValidates(t *testing.T) {
	r := NewRegistry(catalog.Default())
	ctx := context.Background()

	bad := dentalPolicy()
	bad.Limits[claims.LimitSelfPayRatio] = 1.5
	if err := r.Upsert(ctx, bad); err == nil {
		t.Error("Upsert() with self_pay_ratio > 1 should fail")
	}

	bad = dentalPolicy()
	bad.Exclusions = []string{""}
	if err := r.Upsert(ctx, bad); err == nil {
		t.Error("Upsert() with an empty exclusion should fail")
	}

	if err := r.Upsert(ctx, dentalPolicy()); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if _, ok := r.Get("dental_plus"); !ok {
		t.Error("Get(dental_plus) not found after Upsert()")
	}
}

// TestRegistryDelete verifies deletion rules
func TestRegistryDelete(t *testing.T) {
	r := NewRegistry(catalog.Default())
	ctx := context.Background()

	if err := r.Delete(ctx, "health_insurance_basic"); !errors.Is(err, ErrDefaultPolicy) {
		t.Errorf("Delete() of the default policy error = %v, want ErrDefaultPolicy", err)
	}
	if err := r.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
	if err := r.Delete(ctx, "accident_insurance"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, ok := r.Get("accident_insurance"); ok {
		t.Error("accident_insurance still present after Delete()")
	}
}

// TestRegistrySQLitePersistence verifies bundles survive a reload from SQLite
func TestRegistrySQLitePersistence(t *testing.T) {
	db := database.OpenMemory(t)
	ctx := context.Background()

	r := NewRegistry(catalog.Default()).WithDB(db, database.SQLite)
	if err := r.Upsert(ctx, dentalPolicy()); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	updated := dentalPolicy()
	updated.WaitingPeriod = 60
	if err := r.Upsert(ctx, updated); err != nil {
		t.Fatalf("second Upsert() failed: %v", err)
	}

	fresh := NewRegistry(catalog.Default()).WithDB(db, database.SQLite)
	n, err := fresh.LoadFromDB(ctx)
	if err != nil {
		t.Fatalf("LoadFromDB() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("LoadFromDB() loaded %d policies, want 1", n)
	}

	got, ok := fresh.Get("dental_plus")
	if !ok {
		t.Fatal("Get(dental_plus) not found after reload")
	}
	if got.WaitingPeriod != 60 || got.DisplayName != "齿科保险" {
		t.Errorf("reloaded policy = %+v", got)
	}
	if got.Limits[claims.LimitAnnual] != 8000 || got.Exclusions[0] != "美容手术" {
		t.Errorf("reloaded limits/exclusions = %+v", got)
	}

	if err := fresh.Delete(ctx, "dental_plus"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if n, _ := NewRegistry(catalog.Default()).WithDB(db, database.SQLite).LoadFromDB(ctx); n != 0 {
		t.Errorf("LoadFromDB() after Delete() loaded %d policies, want 0", n)
	}
}

// TestRegistryConcurrentAccess verifies readers and writers can run together
func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(catalog.Default())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if r.Default() == nil {
					t.Error("Default() returned nil")
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := r.Upsert(ctx, dentalPolicy()); err != nil {
					t.Errorf("Upsert() failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()
}

// TestRegistrySetDefault verifies the default can move to another policy
func TestRegistrySetDefault(t *testing.T) {
	r := NewRegistry(catalog.Default())

	if err := r.SetDefault("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetDefault(missing) error = %v, want ErrNotFound", err)
	}
	if err := r.SetDefault("accident_insurance"); err != nil {
		t.Fatalf("SetDefault() failed: %v", err)
	}
	if p := r.Default(); p == nil || p.Name != "accident_insurance" {
		t.Errorf("Default() = %v, want accident_insurance", p)
	}
	if p, err := Resolve(r, ""); err != nil || p.Name != "accident_insurance" {
		t.Errorf("Resolve(\"\") = %v, %v", p, err)
	}
}
