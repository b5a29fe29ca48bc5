// Command migrate manages the carbon registry schemas: the Postgres
// mirror the ledger rehydrates from, and the ClickHouse event archive.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/carbon-registry/internal/config"
	"github.com/carbon-registry/internal/logging"
	"github.com/carbon-registry/internal/storage"
)

const usage = `Usage: migrate [-db postgres|clickhouse] [-path dir] <up|down|version>

Applies schema migrations for the carbon registry.

  up       apply all pending migrations
  down     roll back the most recent migration (postgres only)
  version  print the schema version currently applied (postgres only)

The ClickHouse event archive is append-only and never rolled back;
only 'up' is supported for -db clickhouse.
`

func main() {
	dbTarget := flag.String("db", "postgres", "which store to migrate: postgres or clickhouse")
	path := flag.String("path", "", "migrations directory (default migrations/<db>)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	action := flag.Arg(0)

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	migrationsPath := *path
	if migrationsPath == "" {
		migrationsPath = "migrations/" + *dbTarget
	}

	switch *dbTarget {
	case "postgres":
		err = migratePostgres(cfg, action, migrationsPath, logger)
	case "clickhouse":
		err = migrateClickHouse(cfg, action, migrationsPath, logger)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.WithError(err).WithField("db", *dbTarget).Fatal("Migration failed")
	}
}

func migratePostgres(cfg *config.Config, action, migrationsPath string, logger *logging.Logger) error {
	databaseURL := storage.PostgresURL(&cfg.Database.Postgres)

	switch action {
	case "up":
		if err := storage.MigrateUp(databaseURL, migrationsPath); err != nil {
			return err
		}
		logger.Info("Postgres schema is up to date")
	case "down":
		if err := storage.MigrateDown(databaseURL, migrationsPath); err != nil {
			return err
		}
		logger.Info("Rolled back one Postgres migration")
	case "version":
		version, dirty, err := storage.MigrateVersion(databaseURL, migrationsPath)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		}).Info("Postgres schema version")
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

func migrateClickHouse(cfg *config.Config, action, migrationsPath string, logger *logging.Logger) error {
	if action != "up" {
		return fmt.Errorf("the event archive only supports 'up', got %q", action)
	}

	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to close ClickHouse connection")
		}
	}()

	if err := storage.RunClickHouseMigrations(db, migrationsPath); err != nil {
		return err
	}
	logger.Info("ClickHouse event archive schema is up to date")
	return nil
}
