package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/cache"
	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
)

// ErrInvalidKey is returned when a key does not match the shape its kind expects
var ErrInvalidKey = errors.New("invalid key")

// Config sizes the per-kind caches
type Config struct {
	Shards             int
	MaxEntriesPerShard int
}

// Resolvers holds one resolver per entity kind and is the read API for the rest of the bot
type Resolvers struct {
	Guilds       *Resolver[snowflake.ID, *models.Guild]
	Users        *Resolver[snowflake.ID, *models.User]
	Members      *Resolver[models.MemberKey, *models.Member]
	Channels     *Resolver[snowflake.ID, *models.Channel]
	Roles        *Resolver[models.RoleKey, *models.Role]
	Messages     *Resolver[snowflake.ID, *models.Message]
	Interactions *Resolver[snowflake.ID, *models.Interaction]
	Quotes       *Resolver[snowflake.ID, *models.Quote]
	Characters   *Resolver[models.CharacterKey, *models.Character]
	Marriages    *Resolver[models.MarriageKey, *models.Marriage]
}

// NewResolvers wires a resolver for every kind over the given tiers. Kinds without a remote
// in remotes never consult one
func NewResolvers(stores tier.Stores, remotes tier.Remotes, cfg Config, logger *zap.Logger) (*Resolvers, error) {
	shards := cfg.Shards
	if shards == 0 {
		shards = cache.DefaultShards
	}
	opts := []cache.Option{
		cache.WithShards(shards),
		cache.WithMaxEntriesPerShard(cfg.MaxEntriesPerShard),
		cache.WithLogger(logger),
	}

	var err error
	rs := &Resolvers{}

	if rs.Guilds, err = build(models.KindGuild, stores.Guilds, remotes.Guilds, nil, opts, logger); err != nil {
		return nil, err
	}
	if rs.Users, err = build(models.KindUser, stores.Users, remotes.Users, nil, opts, logger); err != nil {
		return nil, err
	}
	if rs.Members, err = build(models.KindMember, stores.Members, remotes.Members, nil, opts, logger); err != nil {
		return nil, err
	}
	if rs.Channels, err = build(models.KindChannel, stores.Channels, remotes.Channels, nil, opts, logger); err != nil {
		return nil, err
	}
	if rs.Roles, err = build(models.KindRole, stores.Roles, remotes.Roles, nil, opts, logger); err != nil {
		return nil, err
	}
	if rs.Messages, err = build(models.KindMessage, stores.Messages, remotes.Messages, nil, opts, logger); err != nil {
		return nil, err
	}
	if rs.Interactions, err = build(models.KindInteraction, stores.Interactions, remotes.Interactions, nil, opts, logger); err != nil {
		return nil, err
	}
	if rs.Quotes, err = build(models.KindQuote, stores.Quotes, remotes.Quotes, nil, opts, logger); err != nil {
		return nil, err
	}
	if rs.Characters, err = build(models.KindCharacter, stores.Characters, remotes.Characters, models.CharacterKey.Canonical, opts, logger); err != nil {
		return nil, err
	}
	if rs.Marriages, err = build(models.KindMarriage, stores.Marriages, remotes.Marriages, models.MarriageKey.Canonical, opts, logger); err != nil {
		return nil, err
	}

	return rs, nil
}

func build[K comparable, V Entity[K, V]](
	kind models.Kind,
	store tier.Store[K, V],
	remote tier.Remote[K, V],
	canonical func(K) K,
	opts []cache.Option,
	logger *zap.Logger,
) (*Resolver[K, V], error) {
	if store == nil {
		return nil, fmt.Errorf("no entity store for %s", kind)
	}
	c, err := cache.New[K, V](string(kind), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s cache: %w", kind, err)
	}
	return New(kind, c, store, remote, canonical, logger.Named(string(kind))), nil
}

// Guild resolves a guild by id
func (rs *Resolvers) Guild(ctx context.Context, id snowflake.ID) (*models.Guild, error) {
	return rs.Guilds.Resolve(ctx, id)
}

// User resolves a user by id
func (rs *Resolvers) User(ctx context.Context, id snowflake.ID) (*models.User, error) {
	return rs.Users.Resolve(ctx, id)
}

// Member resolves a member of a guild. Members who left are returned with LeftAt set
func (rs *Resolvers) Member(ctx context.Context, guildID, userID snowflake.ID) (*models.Member, error) {
	return rs.Members.Resolve(ctx, models.MemberKey{GuildID: guildID, UserID: userID})
}

// Channel resolves a channel by id
func (rs *Resolvers) Channel(ctx context.Context, id snowflake.ID) (*models.Channel, error) {
	return rs.Channels.Resolve(ctx, id)
}

// Role resolves a role of a guild. Deleted roles are returned with Deleted set
func (rs *Resolvers) Role(ctx context.Context, guildID, roleID snowflake.ID) (*models.Role, error) {
	return rs.Roles.Resolve(ctx, models.RoleKey{GuildID: guildID, RoleID: roleID})
}

// Message resolves a message by id
func (rs *Resolvers) Message(ctx context.Context, id snowflake.ID) (*models.Message, error) {
	return rs.Messages.Resolve(ctx, id)
}

// Interaction resolves an interaction by id
func (rs *Resolvers) Interaction(ctx context.Context, id snowflake.ID) (*models.Interaction, error) {
	return rs.Interactions.Resolve(ctx, id)
}

// Quote resolves a quote by id
func (rs *Resolvers) Quote(ctx context.Context, id snowflake.ID) (*models.Quote, error) {
	return rs.Quotes.Resolve(ctx, id)
}

// Character resolves a user's character; the name is matched case-insensitively
func (rs *Resolvers) Character(ctx context.Context, userID snowflake.ID, name string) (*models.Character, error) {
	return rs.Characters.Resolve(ctx, models.NewCharacterKey(userID, name))
}

// Marriage resolves the marriage between two users in either order
func (rs *Resolvers) Marriage(ctx context.Context, a, b snowflake.ID) (*models.Marriage, error) {
	return rs.Marriages.Resolve(ctx, models.NewMarriageKey(a, b))
}

// Resolve resolves any kind with a key of the matching type: snowflake.ID for single-id kinds,
// or the kind's key struct
func (rs *Resolvers) Resolve(ctx context.Context, kind models.Kind, key any) (models.Entity, error) {
	switch kind {
	case models.KindGuild:
		return resolveAs(ctx, rs.Guilds, kind, key)
	case models.KindUser:
		return resolveAs(ctx, rs.Users, kind, key)
	case models.KindMember:
		return resolveAs(ctx, rs.Members, kind, key)
	case models.KindChannel:
		return resolveAs(ctx, rs.Channels, kind, key)
	case models.KindRole:
		return resolveAs(ctx, rs.Roles, kind, key)
	case models.KindMessage:
		return resolveAs(ctx, rs.Messages, kind, key)
	case models.KindInteraction:
		return resolveAs(ctx, rs.Interactions, kind, key)
	case models.KindQuote:
		return resolveAs(ctx, rs.Quotes, kind, key)
	case models.KindCharacter:
		return resolveAs(ctx, rs.Characters, kind, key)
	case models.KindMarriage:
		return resolveAs(ctx, rs.Marriages, kind, key)
	default:
		return nil, fmt.Errorf("unknown entity kind: %q", kind)
	}
}

func resolveAs[K comparable, V interface {
	Entity[K, V]
	models.Entity
}](ctx context.Context, r *Resolver[K, V], kind models.Kind, key any) (models.Entity, error) {
	k, ok := key.(K)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects %T, got %T", ErrInvalidKey, kind, k, key)
	}
	v, err := r.Resolve(ctx, k)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Stats returns the counters of every resolver keyed by kind
func (rs *Resolvers) Stats() map[models.Kind]Stats {
	return map[models.Kind]Stats{
		models.KindGuild:       rs.Guilds.Stats(),
		models.KindUser:        rs.Users.Stats(),
		models.KindMember:      rs.Members.Stats(),
		models.KindChannel:     rs.Channels.Stats(),
		models.KindRole:        rs.Roles.Stats(),
		models.KindMessage:     rs.Messages.Stats(),
		models.KindInteraction: rs.Interactions.Stats(),
		models.KindQuote:       rs.Quotes.Stats(),
		models.KindCharacter:   rs.Characters.Stats(),
		models.KindMarriage:    rs.Marriages.Stats(),
	}
}

// ParseKey builds the key for kind from its textual parts: one id for single-id kinds,
// "guild user" for members, "guild role" for roles, "user name" for characters and
// "user user" for marriages
func ParseKey(kind models.Kind, parts []string) (any, error) {
	want := 1
	switch kind {
	case models.KindMember, models.KindRole, models.KindCharacter, models.KindMarriage:
		want = 2
	}
	if len(parts) != want {
		return nil, fmt.Errorf("%w: %s takes %d key parts, got %d", ErrInvalidKey, kind, want, len(parts))
	}

	if kind == models.KindCharacter {
		userID, err := parseID(parts[0])
		if err != nil {
			return nil, err
		}
		return models.NewCharacterKey(userID, parts[1]), nil
	}

	ids := make([]snowflake.ID, len(parts))
	for i, p := range parts {
		id, err := parseID(p)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	switch kind {
	case models.KindGuild, models.KindUser, models.KindChannel, models.KindMessage,
		models.KindInteraction, models.KindQuote:
		return ids[0], nil
	case models.KindMember:
		return models.MemberKey{GuildID: ids[0], UserID: ids[1]}, nil
	case models.KindRole:
		return models.RoleKey{GuildID: ids[0], RoleID: ids[1]}, nil
	case models.KindMarriage:
		return models.NewMarriageKey(ids[0], ids[1]), nil
	default:
		return nil, fmt.Errorf("unknown entity kind: %q", kind)
	}
}

func parseID(s string) (snowflake.ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%w: %q is not an id", ErrInvalidKey, s)
	}
	return snowflake.ID(v), nil
}
