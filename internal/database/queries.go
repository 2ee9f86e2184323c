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

var upsertUserQuery = upsertStatement("users",
	[]string{"id"},
	[]string{"username", "global_name", "discriminator", "avatar", "bot"},
)

// UpsertUser inserts or updates a user and returns the number of rows changed
func (db *DB) UpsertUser(ctx context.Context, user *models.User) (int64, error) {
	now := time.Now().UTC()

	rows, err := db.execUpsert(ctx, upsertUserQuery, now,
		int64(user.ID),
		user.Username,
		user.GlobalName,
		user.Discriminator,
		user.Avatar,
		user.Bot,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert user: %w", err)
	}

	stamp(&user.CreatedAt, &user.UpdatedAt, rows, now)
	return rows, nil
}

// GetUser retrieves a user by their id
func (db *DB) GetUser(ctx context.Context, id snowflake.ID) (*models.User, error) {
	query := `
		SELECT id, username, global_name, discriminator, avatar, bot, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := db.QueryRowContext(ctx, db.rebind(query), int64(id)).Scan(
		&user.ID,
		&user.Username,
		&user.GlobalName,
		&user.Discriminator,
		&user.Avatar,
		&user.Bot,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", tier.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}
