package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// SyncScope names a kind of eager synchronization tracked in sync_state
type SyncScope string

// Sync scopes
const (
	SyncScopeGuildBootstrap SyncScope = "guild_bootstrap"
)

// SyncState records when an entity was last eagerly synchronized
type SyncState struct {
	Scope     SyncScope
	EntityID  snowflake.ID
	SyncedAt  time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFresh reports whether the sync has not expired yet
func (s *SyncState) IsFresh(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// MarkSynced records a completed sync for an entity, valid for ttl
func (db *DB) MarkSynced(ctx context.Context, scope SyncScope, entityID snowflake.ID, ttl time.Duration) error {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	query := `
		INSERT INTO sync_state (scope, entity_id, synced_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope, entity_id) DO UPDATE
		SET synced_at = EXCLUDED.synced_at,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := db.ExecContext(ctx, db.rebind(query), string(scope), int64(entityID), now, expiresAt, now, now)
	if err != nil {
		return fmt.Errorf("failed to mark sync state: %w", err)
	}

	return nil
}

// GetSyncState retrieves the sync record of an entity
func (db *DB) GetSyncState(ctx context.Context, scope SyncScope, entityID snowflake.ID) (*SyncState, error) {
	query := `
		SELECT scope, entity_id, synced_at, expires_at, created_at, updated_at
		FROM sync_state
		WHERE scope = $1 AND entity_id = $2
	`

	var state SyncState
	var scopeName string
	err := db.QueryRowContext(ctx, db.rebind(query), string(scope), int64(entityID)).Scan(
		&scopeName,
		&state.EntityID,
		&state.SyncedAt,
		&state.ExpiresAt,
		&state.CreatedAt,
		&state.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sync state not found")
		}
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	state.Scope = SyncScope(scopeName)
	return &state, nil
}

// IsSyncFresh checks whether an entity was synchronized and the record has not expired
func (db *DB) IsSyncFresh(ctx context.Context, scope SyncScope, entityID snowflake.ID) (bool, error) {
	state, err := db.GetSyncState(ctx, scope, entityID)
	if err != nil {
		// Never synced
		return false, nil
	}

	return state.IsFresh(time.Now()), nil
}

// CleanupExpiredSyncState removes expired sync records
func (db *DB) CleanupExpiredSyncState(ctx context.Context) (int64, error) {
	query := `DELETE FROM sync_state WHERE expires_at < $1`

	result, err := db.ExecContext(ctx, db.rebind(query), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sync state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		db.logger.Debug("cleaned up expired sync state", zap.Int64("count", rowsAffected))
	}

	return rowsAffected, nil
}

// StartSyncStateCleanupJob starts a background job that periodically removes expired sync records
func (db *DB) StartSyncStateCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			db.logger.Info("stopping sync state cleanup job")
			return
		case <-ticker.C:
			if _, err := db.CleanupExpiredSyncState(ctx); err != nil {
				db.logger.Error("error during sync state cleanup", zap.Error(err))
			}
		}
	}
}
