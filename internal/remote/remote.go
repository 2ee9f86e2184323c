// Package remote exposes the Discord REST client as the remote tier of the platform-sourced
// entity kinds, and as the guild lister used by the ready bootstrap.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/discord"
	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/normalize"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
)

// API is the subset of the Discord client the remote tier needs
type API interface {
	GetGuild(ctx context.Context, guildID snowflake.ID) (*discord.Guild, error)
	GetUser(ctx context.Context, userID snowflake.ID) (*discord.User, error)
	GetMember(ctx context.Context, guildID, userID snowflake.ID) (*discord.Member, error)
	GetChannel(ctx context.Context, channelID snowflake.ID) (*discord.Channel, error)
	GetGuildRoles(ctx context.Context, guildID snowflake.ID) ([]discord.Role, error)
	GetGuildChannels(ctx context.Context, guildID snowflake.ID) ([]discord.Channel, error)
	GetAllGuildMembers(ctx context.Context, guildID snowflake.ID, pageSize int) ([]discord.Member, error)
}

// Source fetches single entities from the Discord API and converts them to canonical records.
// It never writes anything; persisting results is the resolver's job
type Source struct {
	api    API
	logger *zap.Logger
}

// New creates a remote source over api
func New(api API, logger *zap.Logger) *Source {
	return &Source{api: api, logger: logger}
}

// Remotes returns the remote tier for every kind Discord can answer for. Bot-owned kinds and
// messages are left nil and never reach the API
func (s *Source) Remotes() tier.Remotes {
	return tier.Remotes{
		Guilds:   tier.RemoteFunc[snowflake.ID, *models.Guild](s.FetchGuild),
		Users:    tier.RemoteFunc[snowflake.ID, *models.User](s.FetchUser),
		Members:  tier.RemoteFunc[models.MemberKey, *models.Member](s.FetchMember),
		Channels: tier.RemoteFunc[snowflake.ID, *models.Channel](s.FetchChannel),
		Roles:    tier.RemoteFunc[models.RoleKey, *models.Role](s.FetchRole),
	}
}

// FetchGuild fetches a guild with its role list
func (s *Source) FetchGuild(ctx context.Context, id snowflake.ID) (*models.Guild, error) {
	raw, err := s.api.GetGuild(ctx, id)
	if err != nil {
		return nil, s.fail(models.KindGuild, id, err)
	}
	return normalize.Guild(raw, nil), nil
}

// FetchUser fetches a user
func (s *Source) FetchUser(ctx context.Context, id snowflake.ID) (*models.User, error) {
	raw, err := s.api.GetUser(ctx, id)
	if err != nil {
		return nil, s.fail(models.KindUser, id, err)
	}
	return normalize.User(raw), nil
}

// FetchMember fetches a current guild member. Members who left are unknown to the API
func (s *Source) FetchMember(ctx context.Context, key models.MemberKey) (*models.Member, error) {
	raw, err := s.api.GetMember(ctx, key.GuildID, key.UserID)
	if err != nil {
		return nil, s.fail(models.KindMember, key, err)
	}
	member, err := normalize.Member(raw, key.GuildID, nil)
	if err != nil {
		return nil, s.fail(models.KindMember, key, err)
	}
	return member, nil
}

// FetchChannel fetches a channel
func (s *Source) FetchChannel(ctx context.Context, id snowflake.ID) (*models.Channel, error) {
	raw, err := s.api.GetChannel(ctx, id)
	if err != nil {
		return nil, s.fail(models.KindChannel, id, err)
	}
	return normalize.Channel(raw), nil
}

// FetchRole looks the role up in its guild's role list; there is no single-role endpoint
func (s *Source) FetchRole(ctx context.Context, key models.RoleKey) (*models.Role, error) {
	roles, err := s.api.GetGuildRoles(ctx, key.GuildID)
	if err != nil {
		return nil, s.fail(models.KindRole, key, err)
	}
	for i := range roles {
		if roles[i].ID != key.RoleID {
			continue
		}
		role, err := normalize.Role(key.GuildID, &roles[i])
		if err != nil {
			return nil, s.fail(models.KindRole, key, err)
		}
		return role, nil
	}
	return nil, fmt.Errorf("%s %s: %w", models.KindRole, key, tier.ErrNotFound)
}

// GuildChannels lists every channel of a guild
func (s *Source) GuildChannels(ctx context.Context, guildID snowflake.ID) ([]*models.Channel, error) {
	raw, err := s.api.GetGuildChannels(ctx, guildID)
	if err != nil {
		return nil, s.fail(models.KindChannel, guildID, err)
	}
	out := make([]*models.Channel, 0, len(raw))
	for i := range raw {
		c := normalize.Channel(&raw[i])
		if c.GuildID == 0 {
			c.GuildID = guildID
		}
		out = append(out, c)
	}
	return out, nil
}

// GuildRoles lists every role of a guild. Roles that fail to convert are logged and skipped
func (s *Source) GuildRoles(ctx context.Context, guildID snowflake.ID) ([]*models.Role, error) {
	raw, err := s.api.GetGuildRoles(ctx, guildID)
	if err != nil {
		return nil, s.fail(models.KindRole, guildID, err)
	}
	out := make([]*models.Role, 0, len(raw))
	for i := range raw {
		role, err := normalize.Role(guildID, &raw[i])
		if err != nil {
			s.logger.Warn("skipping malformed role",
				zap.String("guild_id", guildID.String()),
				zap.Error(err),
			)
			continue
		}
		out = append(out, role)
	}
	return out, nil
}

// GuildMembers lists every member of a guild together with their users
func (s *Source) GuildMembers(ctx context.Context, guildID snowflake.ID) ([]*models.Member, []*models.User, error) {
	raw, err := s.api.GetAllGuildMembers(ctx, guildID, discord.MaxMembersPerPage)
	if err != nil {
		return nil, nil, s.fail(models.KindMember, guildID, err)
	}
	members := make([]*models.Member, 0, len(raw))
	users := make([]*models.User, 0, len(raw))
	for i := range raw {
		member, err := normalize.Member(&raw[i], guildID, nil)
		if err != nil {
			s.logger.Warn("skipping malformed member",
				zap.String("guild_id", guildID.String()),
				zap.Error(err),
			)
			continue
		}
		members = append(members, member)
		users = append(users, normalize.User(raw[i].User))
	}
	return members, users, nil
}

// fail maps a client error onto the remote tier taxonomy. 404 stays a not-found, everything
// else becomes a *tier.RemoteError carrying the HTTP status when there was one
func (s *Source) fail(kind models.Kind, key any, err error) error {
	keyStr := fmt.Sprint(key)

	if tier.IsNotFound(err) {
		return fmt.Errorf("%s %s: %w", kind, keyStr, err)
	}

	remoteErr := &tier.RemoteError{Kind: kind, Key: keyStr, Err: err}
	if apiErr, ok := discord.AsAPIError(err); ok {
		remoteErr.Status = apiErr.Status
		remoteErr.RetryAfter = apiErr.RetryAfter
	}
	if errors.Is(err, normalize.ErrInvalid) {
		s.logger.Warn("remote returned malformed entity",
			zap.String("kind", string(kind)),
			zap.String("key", keyStr),
			zap.Error(err),
		)
	}
	return remoteErr
}
