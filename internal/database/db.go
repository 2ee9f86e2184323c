// Package database provides the durable entity store on PostgreSQL or SQLite, including
// connection and migration management.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/parsascontentcorner/discordlitesync/internal/config"
)

//go:embed migrations
var migrationsFS embed.FS

// DB wraps the database connection
type DB struct {
	*sql.DB
	logger *zap.Logger
	driver string
}

// NewDB creates a new database connection with connection pooling
func NewDB(cfg *config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = config.DriverPostgres
	}
	if driver != config.DriverPostgres && driver != config.DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	// Build connection string
	dsn := cfg.GetDSN()

	// Open database connection
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	if driver == config.DriverSQLite {
		// SQLite allows a single writer; an in-memory database also lives on one connection only
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	// Verify connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == config.DriverSQLite {
		logger.Info("database connection established",
			zap.String("driver", driver),
			zap.String("path", cfg.Path),
		)
	} else {
		logger.Info("database connection established",
			zap.String("driver", driver),
			zap.String("host", cfg.Host),
			zap.String("port", cfg.Port),
			zap.String("database", cfg.Name),
		)
	}

	return &DB{
		DB:     sqlDB,
		logger: logger,
		driver: driver,
	}, nil
}

// Driver returns the name of the SQL driver in use
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database connection
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// Health checks the database health
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// RunMigrations runs the embedded migrations for the active driver using golang-migrate
func (db *DB) RunMigrations() error {
	path := "migrations/" + db.driver
	db.logger.Info("running database migrations with golang-migrate",
		zap.String("driver", db.driver),
		zap.String("path", path),
	)

	source, err := iofs.New(migrationsFS, path)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	// Create driver instance from existing connection
	var driver migratedb.Driver
	switch db.driver {
	case config.DriverSQLite:
		driver, err = sqlite.WithInstance(db.DB, &sqlite.Config{
			MigrationsTable: "schema_migrations",
		})
	default:
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{
			MigrationsTable: "schema_migrations",
		})
	}
	if err != nil {
		return fmt.Errorf("failed to create %s driver instance: %w", db.driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, db.driver, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run all pending migrations
	if err := m.Up(); err != nil {
		// ErrNoChange is not an error - it means we're already up to date
		if errors.Is(err, migrate.ErrNoChange) {
			db.logger.Info("database schema is already up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Get current version
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		db.logger.Warn("failed to get migration version", zap.Error(err))
	} else if errors.Is(err, migrate.ErrNilVersion) {
		db.logger.Info("no migrations have been applied yet")
	} else {
		db.logger.Info("database migrations completed successfully",
			zap.Uint("version", version),
			zap.Bool("dirty", dirty),
		)
	}

	return nil
}

var postgresPlaceholder = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders into the ?N form SQLite binds positionally
func (db *DB) rebind(query string) string {
	if db.driver != config.DriverSQLite {
		return query
	}
	return postgresPlaceholder.ReplaceAllString(query, "?$1")
}
