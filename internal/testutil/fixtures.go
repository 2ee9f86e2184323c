package testutil

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"

	"github.com/parsascontentcorner/discordlitesync/internal/config"
	"github.com/parsascontentcorner/discordlitesync/internal/models"
)

// FixedTime is the reference instant used by fixtures so stored values compare exactly.
var FixedTime = time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)

// GenerateUser creates a test user with the given id.
// Optional fields (global name, discriminator, avatar) are set to test values.
func GenerateUser(id snowflake.ID) *models.User {
	return &models.User{
		ID:            id,
		Username:      fmt.Sprintf("testuser_%s", id),
		GlobalName:    fmt.Sprintf("Test User %s", id),
		Discriminator: "0",
		Avatar:        "test_avatar_hash",
	}
}

// GenerateGuild creates a test guild owned by ownerID.
func GenerateGuild(id, ownerID snowflake.ID) *models.Guild {
	return &models.Guild{
		ID:         id,
		Name:       fmt.Sprintf("Test Guild %s", id),
		Icon:       "test_icon_hash",
		OwnerID:    ownerID,
		RoleIDs:    []snowflake.ID{id},
		ChannelIDs: []snowflake.ID{},
	}
}

// GenerateMember creates a test member who joined at FixedTime.
func GenerateMember(guildID, userID snowflake.ID, roleIDs ...snowflake.ID) *models.Member {
	return &models.Member{
		GuildID:  guildID,
		UserID:   userID,
		Nick:     fmt.Sprintf("nick_%s", userID),
		RoleIDs:  roleIDs,
		JoinedAt: FixedTime,
	}
}

// GenerateLeftMember creates a member carrying the soft-delete marker.
func GenerateLeftMember(guildID, userID snowflake.ID, leftAt time.Time) *models.Member {
	member := GenerateMember(guildID, userID)
	member.LeftAt = sql.NullTime{Time: leftAt, Valid: true}
	return member
}

// GenerateChannel creates a text channel in a guild.
func GenerateChannel(id, guildID snowflake.ID) *models.Channel {
	return &models.Channel{
		ID:      id,
		GuildID: guildID,
		Type:    models.ChannelTypeGuildText,
		Name:    fmt.Sprintf("channel-%s", id),
		Topic:   "test topic",
	}
}

// GenerateRole creates a test role.
func GenerateRole(guildID, roleID snowflake.ID) *models.Role {
	return &models.Role{
		GuildID:     guildID,
		RoleID:      roleID,
		Name:        fmt.Sprintf("role-%s", roleID),
		Colour:      0x5865F2,
		Position:    1,
		Permissions: 1 << 10,
	}
}

// GenerateMessage creates a test message sent at FixedTime.
func GenerateMessage(id, channelID, guildID, authorID snowflake.ID) *models.Message {
	return &models.Message{
		ID:        id,
		ChannelID: channelID,
		GuildID:   guildID,
		AuthorID:  authorID,
		Content:   "hello world",
		Type:      models.MessageTypeDefault,
		Timestamp: FixedTime,
	}
}

// GenerateMarriage creates a marriage between a and b proposed by a.
func GenerateMarriage(a, b snowflake.ID) *models.Marriage {
	key := models.NewMarriageKey(a, b)
	return &models.Marriage{
		UserA:      key.UserA,
		UserB:      key.UserB,
		ProposerID: a,
		MarriedAt:  FixedTime,
	}
}

// GenerateCharacter creates a character owned by userID.
func GenerateCharacter(userID snowflake.ID, name string) *models.Character {
	return &models.Character{
		UserID:      userID,
		Name:        models.CanonicalName(name),
		DisplayName: name,
		Description: "a test character",
	}
}

// GenerateRequestID generates a random request id (UUID).
func GenerateRequestID() string {
	return uuid.New().String()
}

// GenerateTestConfig creates a test configuration with valid values.
// Uses an in-memory SQLite store and the mock bot token.
func GenerateTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HTTPPort: "8080",
			GRPCPort: "50051",
			Host:     "localhost",
			Env:      "test",
		},
		Discord: config.DiscordConfig{
			BotToken:              MockBotToken,
			APIURL:                "http://localhost:0",
			GatewayURL:            "ws://localhost:0",
			Intents:               config.DefaultIntents,
			RequestTimeoutSeconds: 5,
			RequestTimeout:        5 * time.Second,
			RemoteEnabled:         true,
		},
		Database: config.DatabaseConfig{
			Driver:       config.DriverSQLite,
			Path:         ":memory:",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
		Cache: config.CacheConfig{
			Shards: 4,
		},
		Sync: config.SyncConfig{
			BootstrapFetch:      true,
			BootstrapTTLMinutes: 60,
			BootstrapTTL:        time.Hour,
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "console",
		},
	}
}
