package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rxlocator/platform/pkg/common/config"
	"github.com/rxlocator/platform/pkg/common/logger"
)

func main() {
	logger.Init()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		logger.Log.WithField("store", cfg.StoreDriver).Fatal("Migrations apply to the postgres store only; sqlite creates its schema on open")
	}

	source := os.Getenv("MIGRATIONS_DIR")
	if source == "" {
		source = "migrations"
	}

	logger.Log.WithFields(map[string]interface{}{
		"host": cfg.PostgresHost,
		"db":   cfg.PostgresDB,
		"dir":  source,
	}).Info("Connecting for migrations")

	m, err := migrate.New("file://"+source, cfg.PostgresURL())
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialise migrations")
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			logger.Log.WithFields(map[string]interface{}{
				"source_error": sourceErr,
				"db_error":     dbErr,
			}).Warn("Failed to close migration resources")
		}
	}()

	switch command {
	case "up":
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			logger.Log.Info("Schema already up to date")
		case err != nil:
			logger.Log.WithError(err).Fatal("Migration failed")
		default:
			logger.Log.Info("Migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			logger.Log.WithError(err).Fatal("Rollback failed")
		}
		logger.Log.Info("Rolled back one migration")

	case "goto":
		if len(os.Args) < 3 {
			logger.Log.Fatal("goto requires a version")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			logger.Log.WithError(err).Fatal("Invalid version")
		}
		if err := m.Migrate(uint(version)); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Log.WithError(err).WithField("version", version).Fatal("Migration failed")
		}
		logger.Log.WithField("version", version).Info("Schema at version")

	case "status":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			logger.Log.Info("No migrations applied yet")
		case err != nil:
			logger.Log.WithError(err).Fatal("Failed to read schema version")
		default:
			logger.Log.WithFields(map[string]interface{}{"version": version, "dirty": dirty}).Info("Schema version")
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - print the current schema version")
}
