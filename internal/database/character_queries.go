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

var upsertCharacterQuery = upsertStatement("characters",
	[]string{"user_id", "name"},
	[]string{"display_name", "description", "avatar_url"},
)

// UpsertCharacter inserts or updates a character under its canonical name and returns the
// number of rows changed
func (db *DB) UpsertCharacter(ctx context.Context, character *models.Character) (int64, error) {
	now := time.Now().UTC()
	key := character.Key()

	rows, err := db.execUpsert(ctx, upsertCharacterQuery, now,
		int64(key.UserID),
		key.Name,
		character.DisplayName,
		character.Description,
		character.AvatarURL,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert character: %w", err)
	}

	stamp(&character.CreatedAt, &character.UpdatedAt, rows, now)
	return rows, nil
}

// GetCharacter retrieves a character by owner and name. The name is folded before lookup
func (db *DB) GetCharacter(ctx context.Context, key models.CharacterKey) (*models.Character, error) {
	key = key.Canonical()

	query := `
		SELECT user_id, name, display_name, description, avatar_url, created_at, updated_at
		FROM characters
		WHERE user_id = $1 AND name = $2
	`

	var character models.Character
	err := db.QueryRowContext(ctx, db.rebind(query), int64(key.UserID), key.Name).Scan(
		&character.UserID,
		&character.Name,
		&character.DisplayName,
		&character.Description,
		&character.AvatarURL,
		&character.CreatedAt,
		&character.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("character not found: %w", tier.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get character: %w", err)
	}

	return &character, nil
}
