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

var upsertMessageQuery = upsertStatement("messages",
	[]string{"id"},
	[]string{"channel_id", "guild_id", "author_id", "content", "type", "timestamp", "edited_timestamp",
		"referenced_message_id", "deleted"},
)

// UpsertMessage inserts or updates a message and returns the number of rows changed
func (db *DB) UpsertMessage(ctx context.Context, message *models.Message) (int64, error) {
	now := time.Now().UTC()

	rows, err := db.execUpsert(ctx, upsertMessageQuery, now,
		int64(message.ID),
		int64(message.ChannelID),
		int64(message.GuildID),
		int64(message.AuthorID),
		message.Content,
		int(message.Type),
		message.Timestamp,
		message.EditedTimestamp,
		int64(message.ReferencedMessageID),
		message.Deleted,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert message: %w", err)
	}

	stamp(&message.CreatedAt, &message.UpdatedAt, rows, now)
	return rows, nil
}

// GetMessage retrieves a message by its id, including deleted messages
func (db *DB) GetMessage(ctx context.Context, id snowflake.ID) (*models.Message, error) {
	query := `
		SELECT id, channel_id, guild_id, author_id, content, type, timestamp, edited_timestamp,
		       referenced_message_id, deleted, created_at, updated_at
		FROM messages
		WHERE id = $1
	`

	var message models.Message
	err := db.QueryRowContext(ctx, db.rebind(query), int64(id)).Scan(
		&message.ID,
		&message.ChannelID,
		&message.GuildID,
		&message.AuthorID,
		&message.Content,
		&message.Type,
		&message.Timestamp,
		&message.EditedTimestamp,
		&message.ReferencedMessageID,
		&message.Deleted,
		&message.CreatedAt,
		&message.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message not found: %w", tier.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &message, nil
}
