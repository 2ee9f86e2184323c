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

// Interactions keep the creation time derived from their id rather than the write time
var upsertInteractionQuery = `
	INSERT INTO interactions AS t (id, application_id, type, guild_id, channel_id, user_id, command_name, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE
	SET application_id = EXCLUDED.application_id,
	    type = EXCLUDED.type,
	    guild_id = EXCLUDED.guild_id,
	    channel_id = EXCLUDED.channel_id,
	    user_id = EXCLUDED.user_id,
	    command_name = EXCLUDED.command_name,
	    updated_at = EXCLUDED.updated_at
	WHERE t.application_id IS DISTINCT FROM EXCLUDED.application_id
	   OR t.type IS DISTINCT FROM EXCLUDED.type
	   OR t.guild_id IS DISTINCT FROM EXCLUDED.guild_id
	   OR t.channel_id IS DISTINCT FROM EXCLUDED.channel_id
	   OR t.user_id IS DISTINCT FROM EXCLUDED.user_id
	   OR t.command_name IS DISTINCT FROM EXCLUDED.command_name
`

// UpsertInteraction inserts or updates an interaction and returns the number of rows changed
func (db *DB) UpsertInteraction(ctx context.Context, interaction *models.Interaction) (int64, error) {
	now := time.Now().UTC()
	createdAt := interaction.CreatedAt
	if createdAt.IsZero() {
		createdAt = interaction.ID.Time().UTC()
	}

	result, err := db.ExecContext(ctx, db.rebind(upsertInteractionQuery),
		int64(interaction.ID),
		int64(interaction.ApplicationID),
		int(interaction.Type),
		int64(interaction.GuildID),
		int64(interaction.ChannelID),
		int64(interaction.UserID),
		interaction.CommandName,
		createdAt,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert interaction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows > 0 {
		interaction.CreatedAt = createdAt
		interaction.UpdatedAt = now
	}
	return rows, nil
}

// GetInteraction retrieves an interaction by its id
func (db *DB) GetInteraction(ctx context.Context, id snowflake.ID) (*models.Interaction, error) {
	query := `
		SELECT id, application_id, type, guild_id, channel_id, user_id, command_name, created_at, updated_at
		FROM interactions
		WHERE id = $1
	`

	var interaction models.Interaction
	err := db.QueryRowContext(ctx, db.rebind(query), int64(id)).Scan(
		&interaction.ID,
		&interaction.ApplicationID,
		&interaction.Type,
		&interaction.GuildID,
		&interaction.ChannelID,
		&interaction.UserID,
		&interaction.CommandName,
		&interaction.CreatedAt,
		&interaction.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("interaction not found: %w", tier.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get interaction: %w", err)
	}

	return &interaction, nil
}
