package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/lib/pq"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
)

var upsertGuildQuery = upsertStatement("guilds",
	[]string{"id"},
	[]string{"name", "icon", "owner_id", "accent_colour", "role_ids", "channel_ids", "unavailable"},
)

// UpsertGuild inserts or updates a guild and returns the number of rows changed
func (db *DB) UpsertGuild(ctx context.Context, guild *models.Guild) (int64, error) {
	now := time.Now().UTC()

	rows, err := db.execUpsert(ctx, upsertGuildQuery, now,
		int64(guild.ID),
		guild.Name,
		guild.Icon,
		int64(guild.OwnerID),
		guild.AccentColour,
		toInt64Array(guild.RoleIDs),
		toInt64Array(guild.ChannelIDs),
		guild.Unavailable,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert guild: %w", err)
	}

	stamp(&guild.CreatedAt, &guild.UpdatedAt, rows, now)
	return rows, nil
}

// GetGuild retrieves a guild by its id
func (db *DB) GetGuild(ctx context.Context, id snowflake.ID) (*models.Guild, error) {
	query := `
		SELECT id, name, icon, owner_id, accent_colour, role_ids, channel_ids, unavailable, created_at, updated_at
		FROM guilds
		WHERE id = $1
	`

	var guild models.Guild
	var roleIDs, channelIDs pq.Int64Array
	err := db.QueryRowContext(ctx, db.rebind(query), int64(id)).Scan(
		&guild.ID,
		&guild.Name,
		&guild.Icon,
		&guild.OwnerID,
		&guild.AccentColour,
		&roleIDs,
		&channelIDs,
		&guild.Unavailable,
		&guild.CreatedAt,
		&guild.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("guild not found: %w", tier.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get guild: %w", err)
	}

	guild.RoleIDs = fromInt64Array(roleIDs)
	guild.ChannelIDs = fromInt64Array(channelIDs)
	return &guild, nil
}
