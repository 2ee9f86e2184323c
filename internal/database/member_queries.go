package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
)

var upsertMemberQuery = upsertStatement("members",
	[]string{"guild_id", "user_id"},
	[]string{"nick", "avatar", "role_ids", "joined_at", "left_at", "pending"},
)

// UpsertMember inserts or updates a guild member and returns the number of rows changed
func (db *DB) UpsertMember(ctx context.Context, member *models.Member) (int64, error) {
	now := time.Now().UTC()

	rows, err := db.execUpsert(ctx, upsertMemberQuery, now,
		int64(member.GuildID),
		int64(member.UserID),
		member.Nick,
		member.Avatar,
		toInt64Array(member.RoleIDs),
		member.JoinedAt,
		member.LeftAt,
		member.Pending,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert member: %w", err)
	}

	stamp(&member.CreatedAt, &member.UpdatedAt, rows, now)
	return rows, nil
}

// GetMember retrieves a member by guild and user id. Members that left are returned with
// LeftAt set
func (db *DB) GetMember(ctx context.Context, key models.MemberKey) (*models.Member, error) {
	query := `
		SELECT guild_id, user_id, nick, avatar, role_ids, joined_at, left_at, pending, created_at, updated_at
		FROM members
		WHERE guild_id = $1 AND user_id = $2
	`

	var member models.Member
	var roleIDs pq.Int64Array
	err := db.QueryRowContext(ctx, db.rebind(query), int64(key.GuildID), int64(key.UserID)).Scan(
		&member.GuildID,
		&member.UserID,
		&member.Nick,
		&member.Avatar,
		&roleIDs,
		&member.JoinedAt,
		&member.LeftAt,
		&member.Pending,
		&member.CreatedAt,
		&member.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("member not found: %w", tier.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	member.RoleIDs = fromInt64Array(roleIDs)
	return &member, nil
}
