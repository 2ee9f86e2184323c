package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
)

var upsertRoleQuery = upsertStatement("roles",
	[]string{"guild_id", "role_id"},
	[]string{"name", "colour", "position", "permissions", "hoist", "mentionable", "managed", "deleted"},
)

// UpsertRole inserts or updates a role and returns the number of rows changed
func (db *DB) UpsertRole(ctx context.Context, role *models.Role) (int64, error) {
	now := time.Now().UTC()

	rows, err := db.execUpsert(ctx, upsertRoleQuery, now,
		int64(role.GuildID),
		int64(role.RoleID),
		role.Name,
		role.Colour,
		role.Position,
		role.Permissions,
		role.Hoist,
		role.Mentionable,
		role.Managed,
		role.Deleted,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert role: %w", err)
	}

	stamp(&role.CreatedAt, &role.UpdatedAt, rows, now)
	return rows, nil
}

// GetRole retrieves a role by guild and role id, including deleted roles
func (db *DB) GetRole(ctx context.Context, key models.RoleKey) (*models.Role, error) {
	query := `
		SELECT guild_id, role_id, name, colour, position, permissions, hoist, mentionable, managed, deleted,
		       created_at, updated_at
		FROM roles
		WHERE guild_id = $1 AND role_id = $2
	`

	var role models.Role
	err := db.QueryRowContext(ctx, db.rebind(query), int64(key.GuildID), int64(key.RoleID)).Scan(
		&role.GuildID,
		&role.RoleID,
		&role.Name,
		&role.Colour,
		&role.Position,
		&role.Permissions,
		&role.Hoist,
		&role.Mentionable,
		&role.Managed,
		&role.Deleted,
		&role.CreatedAt,
		&role.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role not found: %w", tier.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}
