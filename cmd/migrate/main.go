package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/liamcoop/claims/internal/config"
	"github.com/liamcoop/claims/internal/database"
	"github.com/liamcoop/claims/internal/logger"
	"github.com/liamcoop/claims/migrations"
)

func main() {
	var configPath, driver, databaseURL, command string

	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&driver, "driver", "", "database driver: postgres or sqlite (default from config)")
	flag.StringVar(&databaseURL, "database", "", "database URL (default from config or DATABASE_URL)")
	flag.StringVar(&command, "command", "up", "migration command: up, down, version, force")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}
	if driver == "" {
		driver = cfg.Database.Driver
	}
	if databaseURL == "" {
		databaseURL = cfg.Database.URL
	}

	if err := run(driver, databaseURL, command, flag.Args()); err != nil {
		logger.Fatal("Migration failed", "command", command, "error", err)
	}
}

func run(driver, databaseURL, command string, args []string) error {
	if driver == config.DriverMemory {
		return errors.New("the memory driver has no schema; use -driver postgres or -driver sqlite")
	}
	dialect, err := database.ParseDialect(driver)
	if err != nil {
		return err
	}
	if databaseURL == "" {
		return errors.New("database URL is required. Use -database flag or DATABASE_URL environment variable")
	}

	logger.Info("Connecting to database...", "driver", dialect)
	db, err := database.Open(dialect, databaseURL)
	if err != nil {
		return err
	}

	m, err := migrations.New(db, string(dialect))
	if err != nil {
		db.Close()
		return err
	}
	// Closing the migrator closes db as well
	defer m.Close()

	switch command {
	case "up":
		logger.Info("Running migrations up...")
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("No migrations to run (database is up to date)")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Migrations completed successfully")

	case "down":
		logger.Info("Rolling back migrations...")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
		logger.Info("Rollback completed successfully")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("No migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("Current version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return errors.New("force command requires a version number: -command force <version>")
		}
		var version int
		if _, err := fmt.Sscanf(args[0], "%d", &version); err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		logger.Info("Forced version", "version", version)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s (use: up, down, version, force)\n", command)
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}
