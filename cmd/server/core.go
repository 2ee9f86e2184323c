package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/config"
	"github.com/parsascontentcorner/discordlitesync/internal/database"
	"github.com/parsascontentcorner/discordlitesync/internal/discord"
	"github.com/parsascontentcorner/discordlitesync/internal/remote"
	"github.com/parsascontentcorner/discordlitesync/internal/resolver"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
)

// core is the read path every command needs: the store, the optional remote source and the
// resolvers over both
type core struct {
	db        *database.DB
	source    *remote.Source
	resolvers *resolver.Resolvers
}

// openCore connects to the database, runs migrations and wires the resolvers
func openCore(cfg *config.Config, log *zap.Logger) (*core, error) {
	db, err := database.NewDB(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	c := &core{db: db}

	var remotes tier.Remotes
	if cfg.Discord.RemoteEnabled {
		c.source = remote.New(discord.NewClient(&cfg.Discord, log), log)
		remotes = c.source.Remotes()
	} else {
		log.Info("remote source disabled, resolving from the entity store only")
	}

	c.resolvers, err = resolver.NewResolvers(db.Stores(), remotes, resolver.Config{
		Shards:             cfg.Cache.Shards,
		MaxEntriesPerShard: cfg.Cache.MaxEntriesPerShard,
	}, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

func (c *core) close(log *zap.Logger) {
	if err := c.db.Close(); err != nil {
		log.Error("failed to close database connection", zap.Error(err))
	}
}
