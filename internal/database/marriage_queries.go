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

var upsertMarriageQuery = upsertStatement("marriages",
	[]string{"user_a", "user_b"},
	[]string{"proposer_id", "married_at"},
)

// UpsertMarriage inserts or updates a marriage under its ordered pair key and returns the number
// of rows changed
func (db *DB) UpsertMarriage(ctx context.Context, marriage *models.Marriage) (int64, error) {
	if marriage.UserA == marriage.UserB {
		return 0, fmt.Errorf("marriage partners must differ: %s", marriage.UserA)
	}

	now := time.Now().UTC()
	key := marriage.Key()

	rows, err := db.execUpsert(ctx, upsertMarriageQuery, now,
		int64(key.UserA),
		int64(key.UserB),
		int64(marriage.ProposerID),
		marriage.MarriedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert marriage: %w", err)
	}

	stamp(&marriage.CreatedAt, &marriage.UpdatedAt, rows, now)
	return rows, nil
}

// GetMarriage retrieves a marriage by its pair of users in either order
func (db *DB) GetMarriage(ctx context.Context, key models.MarriageKey) (*models.Marriage, error) {
	key = key.Canonical()

	query := `
		SELECT user_a, user_b, proposer_id, married_at, created_at, updated_at
		FROM marriages
		WHERE user_a = $1 AND user_b = $2
	`

	var marriage models.Marriage
	err := db.QueryRowContext(ctx, db.rebind(query), int64(key.UserA), int64(key.UserB)).Scan(
		&marriage.UserA,
		&marriage.UserB,
		&marriage.ProposerID,
		&marriage.MarriedAt,
		&marriage.CreatedAt,
		&marriage.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("marriage not found: %w", tier.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get marriage: %w", err)
	}

	return &marriage, nil
}

// GetMarriagesByUser retrieves every marriage the user is part of
func (db *DB) GetMarriagesByUser(ctx context.Context, userID snowflake.ID) ([]*models.Marriage, error) {
	query := `
		SELECT user_a, user_b, proposer_id, married_at, created_at, updated_at
		FROM marriages
		WHERE user_a = $1 OR user_b = $1
		ORDER BY married_at ASC
	`

	rows, err := db.QueryContext(ctx, db.rebind(query), int64(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user marriages: %w", err)
	}
	defer rows.Close()

	var marriages []*models.Marriage
	for rows.Next() {
		var marriage models.Marriage
		err := rows.Scan(
			&marriage.UserA,
			&marriage.UserB,
			&marriage.ProposerID,
			&marriage.MarriedAt,
			&marriage.CreatedAt,
			&marriage.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan marriage: %w", err)
		}
		marriages = append(marriages, &marriage)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating marriages: %w", err)
	}

	return marriages, nil
}
