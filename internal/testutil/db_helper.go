package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/config"
	"github.com/parsascontentcorner/discordlitesync/internal/database"
)

// SetupTestDB creates a PostgreSQL TestContainer, runs migrations, and returns a database connection.
// Returns the DB connection, a cleanup function, and any error encountered.
//
// Usage:
//
//	db, cleanup, err := testutil.SetupTestDB(ctx)
//	require.NoError(t, err)
//	defer cleanup()
func SetupTestDB(ctx context.Context) (*database.DB, func(), error) {
	// Create PostgreSQL container
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	// Get connection details
	host, err := pgContainer.Host(ctx)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	logger := zap.NewNop()

	cfg := &config.DatabaseConfig{
		Driver:       config.DriverPostgres,
		Host:         host,
		Port:         mappedPort.Port(),
		User:         "testuser",
		Password:     "testpass",
		Name:         "testdb",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	db, err := database.NewDB(cfg, logger)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Migrations are embedded, so the working directory does not matter
	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close db", zap.Error(err))
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			logger.Error("failed to terminate container", zap.Error(err))
		}
	}

	return db, cleanup, nil
}

// SetupSQLiteDB opens a migrated in-memory SQLite database closed when the test ends.
func SetupSQLiteDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewDB(&config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   ":memory:",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.RunMigrations())
	return db
}

// entityTables lists every table holding entity or sync data (schema_migrations excluded).
var entityTables = []string{
	"guilds",
	"users",
	"members",
	"channels",
	"roles",
	"messages",
	"interactions",
	"quotes",
	"characters",
	"marriages",
	"sync_state",
}

// TruncateTables removes all data from all tables (except schema_migrations).
// Useful for cleaning up between tests without recreating the entire database.
func TruncateTables(ctx context.Context, db *database.DB) error {
	for _, table := range entityTables {
		stmt := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)
		if db.Driver() == config.DriverSQLite {
			stmt = fmt.Sprintf("DELETE FROM %s", table)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// SeedTestData inserts a guild with its owner, one role, one channel and the owner's membership.
func SeedTestData(ctx context.Context, db *database.DB) error {
	const (
		guildID   = 1000
		ownerID   = 2000
		channelID = 3000
	)

	if _, err := db.UpsertUser(ctx, GenerateUser(ownerID)); err != nil {
		return fmt.Errorf("failed to seed test user: %w", err)
	}
	if _, err := db.UpsertGuild(ctx, GenerateGuild(guildID, ownerID)); err != nil {
		return fmt.Errorf("failed to seed test guild: %w", err)
	}
	if _, err := db.UpsertRole(ctx, GenerateRole(guildID, guildID)); err != nil {
		return fmt.Errorf("failed to seed test role: %w", err)
	}
	if _, err := db.UpsertChannel(ctx, GenerateChannel(channelID, guildID)); err != nil {
		return fmt.Errorf("failed to seed test channel: %w", err)
	}
	if _, err := db.UpsertMember(ctx, GenerateMember(guildID, ownerID, guildID)); err != nil {
		return fmt.Errorf("failed to seed test member: %w", err)
	}

	return nil
}
