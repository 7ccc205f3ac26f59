// Package bootstrap assembles the claim pipeline from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/liamcoop/claims/catalog"
	"github.com/liamcoop/claims/doctext"
	"github.com/liamcoop/claims/internal/config"
	"github.com/liamcoop/claims/internal/database"
	"github.com/liamcoop/claims/internal/logger"
	"github.com/liamcoop/claims/liability"
	"github.com/liamcoop/claims/pipeline"
	"github.com/liamcoop/claims/policy"
	"github.com/liamcoop/claims/rules"
	"github.com/liamcoop/claims/store"
)

// Service holds every wired component
type Service struct {
	Config    *config.Config
	DB        *sql.DB // nil for the memory driver
	Dialect   database.Dialect
	Catalog   *catalog.Catalog
	Policies  *policy.Registry
	Engine    *rules.Engine
	Evaluator *liability.Evaluator
	Texts     *doctext.CachedProvider
	Store     store.ClaimStore
	Processor *pipeline.Processor
}

// New builds the service described by cfg
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if err := logger.Configure(cfg.Log.Level, cfg.Log.ErrorSampleRate); err != nil {
		return nil, err
	}

	svc := &Service{Config: cfg}

	cat, err := loadCatalog(cfg.Catalog.File)
	if err != nil {
		return nil, err
	}
	svc.Catalog = cat

	if err := svc.openDatabase(cfg.Database); err != nil {
		return nil, err
	}

	if err := svc.buildPolicies(ctx, cfg.Pipeline.DefaultPolicy); err != nil {
		svc.Close()
		return nil, err
	}

	if err := svc.buildEngine(); err != nil {
		svc.Close()
		return nil, err
	}

	opts, err := evaluatorOptions(cfg)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Evaluator = liability.New(svc.Engine, svc.Policies.Default(), opts...)

	svc.Texts = doctext.NewCachedProvider(doctext.NewFileProvider(), cfg.Pipeline.TextCacheTTL)

	if svc.DB != nil {
		svc.Store = store.NewSQLStore(svc.DB, svc.Dialect)
	} else {
		svc.Store = store.NewMemoryStore()
	}

	svc.Processor = pipeline.New(svc.Catalog, svc.Evaluator, svc.Policies, svc.Texts, svc.Store)

	logger.Info("Claim pipeline ready",
		"driver", cfg.Database.Driver,
		"policies", len(svc.Policies.List()),
		"default_policy", svc.Policies.DefaultName(),
	)
	return svc, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	logger.Info("Catalog loaded", "file", path)
	return cat, nil
}

func (s *Service) openDatabase(cfg config.DatabaseConfig) error {
	if cfg.Driver == config.DriverMemory {
		return nil
	}

	dialect, err := database.ParseDialect(cfg.Driver)
	if err != nil {
		return err
	}

	var db *sql.DB
	if cfg.AutoMigrate {
		db, err = database.OpenMigrated(dialect, cfg.URL)
	} else {
		db, err = database.Open(dialect, cfg.URL)
	}
	if err != nil {
		return err
	}

	s.DB = db
	s.Dialect = dialect
	return nil
}

func (s *Service) buildPolicies(ctx context.Context, defaultPolicy string) error {
	s.Policies = policy.NewRegistry(s.Catalog)
	if s.DB != nil {
		s.Policies.WithDB(s.DB, s.Dialect)
		if _, err := s.Policies.LoadFromDB(ctx); err != nil {
			return err
		}
	}
	if defaultPolicy != "" {
		if err := s.Policies.SetDefault(defaultPolicy); err != nil {
			return fmt.Errorf("pipeline.default_policy: %w", err)
		}
	}
	return nil
}

// buildEngine keeps risk rules in Postgres when it is the configured
// database and in memory otherwise, seeding the built-in rules either way
func (s *Service) buildEngine() error {
	var rs rules.RuleStore
	if s.DB != nil && s.Dialect == database.Postgres {
		rs = rules.NewPostgresRuleStore(s.DB)
	} else {
		rs = rules.NewInMemoryRuleStore()
	}

	added, err := rules.SeedDefaults(rs)
	if err != nil {
		return err
	}
	if added > 0 {
		logger.Info("Seeded default risk rules", "count", added)
	}

	engine, err := rules.NewEngine(rs)
	if err != nil {
		return err
	}
	s.Engine = engine
	return nil
}

func evaluatorOptions(cfg *config.Config) ([]liability.Option, error) {
	var opts []liability.Option
	if cfg.Liability.EnforceWaitingPeriod {
		opts = append(opts, liability.WithWaitingPeriodCheck())
	}
	ref, ok, err := cfg.ReferenceTime()
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, liability.WithClock(func() time.Time { return ref }))
	}
	return opts, nil
}

// Close releases the database, if any
func (s *Service) Close() {
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			logger.Warn("Failed to close database", "error", err)
		}
	}
}

// Ping checks the database, if any
func (s *Service) Ping(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.PingContext(ctx)
}
