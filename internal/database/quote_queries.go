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

var upsertQuoteQuery = `
	INSERT INTO quotes AS t (id, guild_id, channel_id, message_id, author_id, added_by, content, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE
	SET guild_id = EXCLUDED.guild_id,
	    channel_id = EXCLUDED.channel_id,
	    message_id = EXCLUDED.message_id,
	    author_id = EXCLUDED.author_id,
	    added_by = EXCLUDED.added_by,
	    content = EXCLUDED.content,
	    updated_at = EXCLUDED.updated_at
	WHERE t.guild_id IS DISTINCT FROM EXCLUDED.guild_id
	   OR t.channel_id IS DISTINCT FROM EXCLUDED.channel_id
	   OR t.message_id IS DISTINCT FROM EXCLUDED.message_id
	   OR t.author_id IS DISTINCT FROM EXCLUDED.author_id
	   OR t.added_by IS DISTINCT FROM EXCLUDED.added_by
	   OR t.content IS DISTINCT FROM EXCLUDED.content
`

// UpsertQuote inserts or updates a quote and returns the number of rows changed. The quote keeps
// the creation time it was saved with
func (db *DB) UpsertQuote(ctx context.Context, quote *models.Quote) (int64, error) {
	now := time.Now().UTC()
	createdAt := quote.CreatedAt
	if createdAt.IsZero() {
		createdAt = quote.ID.Time().UTC()
	}

	result, err := db.ExecContext(ctx, db.rebind(upsertQuoteQuery),
		int64(quote.ID),
		int64(quote.GuildID),
		int64(quote.ChannelID),
		int64(quote.MessageID),
		int64(quote.AuthorID),
		int64(quote.AddedBy),
		quote.Content,
		createdAt,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert quote: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows > 0 {
		quote.CreatedAt = createdAt
		quote.UpdatedAt = now
	}
	return rows, nil
}

// GetQuote retrieves a quote by its id
func (db *DB) GetQuote(ctx context.Context, id snowflake.ID) (*models.Quote, error) {
	query := `
		SELECT id, guild_id, channel_id, message_id, author_id, added_by, content, created_at, updated_at
		FROM quotes
		WHERE id = $1
	`

	var quote models.Quote
	err := db.QueryRowContext(ctx, db.rebind(query), int64(id)).Scan(
		&quote.ID,
		&quote.GuildID,
		&quote.ChannelID,
		&quote.MessageID,
		&quote.AuthorID,
		&quote.AddedBy,
		&quote.Content,
		&quote.CreatedAt,
		&quote.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("quote not found: %w", tier.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	return &quote, nil
}
