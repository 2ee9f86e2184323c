package pipeline

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/database"
	"github.com/parsascontentcorner/discordlitesync/internal/events"
)

// applyReady records the bot identity and, when enabled, eagerly syncs every listed guild
func (p *Pipeline) applyReady(ctx context.Context, e events.Ready) {
	p.mu.Lock()
	p.applicationID = e.ApplicationID
	p.selfID = e.User.ID
	p.mu.Unlock()

	p.applyUser(ctx, e.User)

	p.logger.Info("session ready",
		zap.String("user_id", e.User.ID.String()),
		zap.String("application_id", e.ApplicationID.String()),
		zap.Int("guild_count", len(e.GuildIDs)),
	)

	if !p.cfg.BootstrapFetch || p.lister == nil {
		return
	}

	for _, guildID := range e.GuildIDs {
		if ctx.Err() != nil {
			return
		}
		p.bootstrapGuild(ctx, guildID)
	}
}

// bootstrapGuild resolves the guild and writes every channel, role and member the API lists
// for it. The guild is marked synced only when all three listings succeeded
func (p *Pipeline) bootstrapGuild(ctx context.Context, guildID snowflake.ID) {
	logger := p.logger.With(zap.String("guild_id", guildID.String()))

	if p.ledger != nil {
		fresh, err := p.ledger.IsSyncFresh(ctx, database.SyncScopeGuildBootstrap, guildID)
		if err != nil {
			logger.Warn("failed to read sync state, bootstrapping anyway", zap.Error(err))
		}
		if fresh {
			logger.Debug("guild bootstrap still fresh, skipping")
			return
		}
	}

	complete := true

	guild, err := p.resolvers.Guild(ctx, guildID)
	if err != nil {
		complete = false
		p.failures.Add(1)
		logger.Warn("failed to resolve guild during bootstrap", zap.Error(err))
	}

	channels, err := p.lister.GuildChannels(ctx, guildID)
	if err != nil {
		complete = false
		p.failures.Add(1)
		logger.Warn("failed to list guild channels", zap.Error(err))
	}
	channelIDs := make([]snowflake.ID, 0, len(channels))
	for _, c := range channels {
		if existing := known(ctx, p.resolvers.Channels, c.ID); existing != nil {
			c.CreatedAt = existing.CreatedAt
		}
		write(ctx, p, p.resolvers.Channels, c)
		channelIDs = append(channelIDs, c.ID)
	}

	roles, err := p.lister.GuildRoles(ctx, guildID)
	if err != nil {
		complete = false
		p.failures.Add(1)
		logger.Warn("failed to list guild roles", zap.Error(err))
	}
	for _, r := range roles {
		if existing := known(ctx, p.resolvers.Roles, r.Key()); existing != nil {
			r.CreatedAt = existing.CreatedAt
		}
		write(ctx, p, p.resolvers.Roles, r)
	}

	members, users, err := p.lister.GuildMembers(ctx, guildID)
	if err != nil {
		complete = false
		p.failures.Add(1)
		logger.Warn("failed to list guild members", zap.Error(err))
	}
	for _, u := range users {
		if existing := known(ctx, p.resolvers.Users, u.ID); existing != nil {
			u.CreatedAt = existing.CreatedAt
		}
		write(ctx, p, p.resolvers.Users, u)
	}
	for _, m := range members {
		if existing := known(ctx, p.resolvers.Members, m.Key()); existing != nil {
			m.CreatedAt = existing.CreatedAt
		}
		write(ctx, p, p.resolvers.Members, m)
	}

	// The REST guild object has no channel list
	if guild != nil && len(channelIDs) > 0 {
		guild.ChannelIDs = channelIDs
		write(ctx, p, p.resolvers.Guilds, guild)
	}

	p.bootstraps.Add(1)
	logger.Info("guild bootstrap finished",
		zap.Int("channel_count", len(channels)),
		zap.Int("role_count", len(roles)),
		zap.Int("member_count", len(members)),
		zap.Bool("complete", complete),
	)

	if !complete || p.ledger == nil {
		return
	}
	if err := p.ledger.MarkSynced(ctx, database.SyncScopeGuildBootstrap, guildID, p.cfg.BootstrapTTL); err != nil {
		logger.Warn("failed to record guild bootstrap", zap.Error(err))
	}
}
