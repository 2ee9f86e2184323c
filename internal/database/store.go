package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
	"github.com/parsascontentcorner/discordlitesync/pkg/logger"
)

// upsertStatement builds the insert-or-update statement for one entity table. The update only
// fires when a value column differs, so re-applying the same payload affects zero rows
func upsertStatement(table string, keyCols, valueCols []string) string {
	cols := make([]string, 0, len(keyCols)+len(valueCols)+2)
	cols = append(cols, keyCols...)
	cols = append(cols, valueCols...)
	cols = append(cols, "created_at", "updated_at")

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sets := make([]string, 0, len(valueCols)+1)
	changed := make([]string, 0, len(valueCols))
	for _, c := range valueCols {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		changed = append(changed, fmt.Sprintf("t.%s IS DISTINCT FROM EXCLUDED.%s", c, c))
	}
	sets = append(sets, "updated_at = EXCLUDED.updated_at")

	return fmt.Sprintf(
		"INSERT INTO %s AS t (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s WHERE %s",
		table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(keyCols, ", "),
		strings.Join(sets, ", "),
		strings.Join(changed, " OR "),
	)
}

// execUpsert runs an upsert built by upsertStatement. The caller passes the key and value
// arguments; the bookkeeping timestamps are appended here
func (db *DB) execUpsert(ctx context.Context, query string, now time.Time, args ...any) (int64, error) {
	args = append(args, now, now)

	result, err := db.ExecContext(ctx, db.rebind(query), args...)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// stamp fills the bookkeeping timestamps of a record whose row was just written
func stamp(createdAt, updatedAt *time.Time, rows int64, now time.Time) {
	if rows == 0 {
		return
	}
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}

// toInt64Array converts ids for storage. Nil becomes an empty array, never NULL
func toInt64Array(ids []snowflake.ID) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func fromInt64Array(values pq.Int64Array) []snowflake.ID {
	if len(values) == 0 {
		return nil
	}
	out := make([]snowflake.ID, len(values))
	for i, v := range values {
		out[i] = snowflake.ID(v)
	}
	return out
}

// entityStore adapts a pair of query methods to tier.Store. Not-found passes through unchanged;
// every other failure becomes a *tier.DriverError carrying kind, key and operation
type entityStore[K comparable, V any] struct {
	kind   models.Kind
	logger *zap.Logger
	get    func(ctx context.Context, key K) (V, error)
	upsert func(ctx context.Context, v V) (int64, error)
	keyOf  func(v V) K
}

func (s *entityStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	v, err := s.get(ctx, key)
	if err == nil || errors.Is(err, tier.ErrNotFound) {
		return v, err
	}

	var zero V
	return zero, s.fail(tier.OpGet, key, err)
}

func (s *entityStore[K, V]) Upsert(ctx context.Context, v V) (int64, error) {
	rows, err := s.upsert(ctx, v)
	if err != nil {
		return 0, s.fail(tier.OpUpsert, s.keyOf(v), err)
	}
	return rows, nil
}

func (s *entityStore[K, V]) fail(op string, key K, err error) error {
	driverErr := &tier.DriverError{Kind: s.kind, Key: fmt.Sprint(key), Op: op, Err: err}
	s.logger.Debug("entity store operation failed", logger.TierFields(string(s.kind), driverErr.Key, op, err)...)
	return driverErr
}

// Stores returns the store tier of every entity kind backed by this database
func (db *DB) Stores() tier.Stores {
	return tier.Stores{
		Guilds: &entityStore[snowflake.ID, *models.Guild]{
			kind: models.KindGuild, logger: db.logger,
			get: db.GetGuild, upsert: db.UpsertGuild, keyOf: (*models.Guild).Key,
		},
		Users: &entityStore[snowflake.ID, *models.User]{
			kind: models.KindUser, logger: db.logger,
			get: db.GetUser, upsert: db.UpsertUser, keyOf: (*models.User).Key,
		},
		Members: &entityStore[models.MemberKey, *models.Member]{
			kind: models.KindMember, logger: db.logger,
			get: db.GetMember, upsert: db.UpsertMember, keyOf: (*models.Member).Key,
		},
		Channels: &entityStore[snowflake.ID, *models.Channel]{
			kind: models.KindChannel, logger: db.logger,
			get: db.GetChannel, upsert: db.UpsertChannel, keyOf: (*models.Channel).Key,
		},
		Roles: &entityStore[models.RoleKey, *models.Role]{
			kind: models.KindRole, logger: db.logger,
			get: db.GetRole, upsert: db.UpsertRole, keyOf: (*models.Role).Key,
		},
		Messages: &entityStore[snowflake.ID, *models.Message]{
			kind: models.KindMessage, logger: db.logger,
			get: db.GetMessage, upsert: db.UpsertMessage, keyOf: (*models.Message).Key,
		},
		Interactions: &entityStore[snowflake.ID, *models.Interaction]{
			kind: models.KindInteraction, logger: db.logger,
			get: db.GetInteraction, upsert: db.UpsertInteraction, keyOf: (*models.Interaction).Key,
		},
		Quotes: &entityStore[snowflake.ID, *models.Quote]{
			kind: models.KindQuote, logger: db.logger,
			get: db.GetQuote, upsert: db.UpsertQuote, keyOf: (*models.Quote).Key,
		},
		Characters: &entityStore[models.CharacterKey, *models.Character]{
			kind: models.KindCharacter, logger: db.logger,
			get: db.GetCharacter, upsert: db.UpsertCharacter, keyOf: (*models.Character).Key,
		},
		Marriages: &entityStore[models.MarriageKey, *models.Marriage]{
			kind: models.KindMarriage, logger: db.logger,
			get: db.GetMarriage, upsert: db.UpsertMarriage, keyOf: (*models.Marriage).Key,
		},
	}
}
