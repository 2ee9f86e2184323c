package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
)

var upsertChannelQuery = upsertStatement("channels",
	[]string{"id"},
	[]string{"guild_id", "type", "name", "position", "parent_id", "topic", "nsfw"},
)

// UpsertChannel inserts or updates a channel and returns the number of rows changed
func (db *DB) UpsertChannel(ctx context.Context, channel *models.Channel) (int64, error) {
	now := time.Now().UTC()

	rows, err := db.execUpsert(ctx, upsertChannelQuery, now,
		int64(channel.ID),
		int64(channel.GuildID),
		int(channel.Type),
		channel.Name,
		channel.Position,
		int64(channel.ParentID),
		channel.Topic,
		channel.NSFW,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert channel: %w", err)
	}

	stamp(&channel.CreatedAt, &channel.UpdatedAt, rows, now)
	return rows, nil
}

// GetChannel retrieves a channel by its id
func (db *DB) GetChannel(ctx context.Context, id snowflake.ID) (*models.Channel, error) {
	query := `
		SELECT id, guild_id, type, name, position, parent_id, topic, nsfw, created_at, updated_at
		FROM channels
		WHERE id = $1
	`

	var channel models.Channel
	err := db.QueryRowContext(ctx, db.rebind(query), int64(id)).Scan(
		&channel.ID,
		&channel.GuildID,
		&channel.Type,
		&channel.Name,
		&channel.Position,
		&channel.ParentID,
		&channel.Topic,
		&channel.NSFW,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("channel not found: %w", tier.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	return &channel, nil
}

// GetChannelsByGuild retrieves all channels of a guild ordered by position
func (db *DB) GetChannelsByGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Channel, error) {
	query := `
		SELECT id, guild_id, type, name, position, parent_id, topic, nsfw, created_at, updated_at
		FROM channels
		WHERE guild_id = $1
		ORDER BY position ASC, id ASC
	`

	rows, err := db.QueryContext(ctx, db.rebind(query), int64(guildID))
	if err != nil {
		return nil, fmt.Errorf("failed to get guild channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		var channel models.Channel
		err := rows.Scan(
			&channel.ID,
			&channel.GuildID,
			&channel.Type,
			&channel.Name,
			&channel.Position,
			&channel.ParentID,
			&channel.Topic,
			&channel.NSFW,
			&channel.CreatedAt,
			&channel.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, &channel)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channels: %w", err)
	}

	return channels, nil
}
