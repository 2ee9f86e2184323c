// Package events defines the closed set of inbound change events the sync pipeline consumes,
// and decodes gateway dispatch payloads into them.
package events

import (
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/parsascontentcorner/discordlitesync/internal/discord"
	"github.com/parsascontentcorner/discordlitesync/internal/models"
)

// Gateway dispatch event names
const (
	NameReady             = "READY"
	NameGuildCreate       = "GUILD_CREATE"
	NameGuildUpdate       = "GUILD_UPDATE"
	NameMemberAdd         = "GUILD_MEMBER_ADD"
	NameMemberUpdate      = "GUILD_MEMBER_UPDATE"
	NameMemberRemove      = "GUILD_MEMBER_REMOVE"
	NameMembersChunk      = "GUILD_MEMBERS_CHUNK"
	NameRoleCreate        = "GUILD_ROLE_CREATE"
	NameRoleUpdate        = "GUILD_ROLE_UPDATE"
	NameRoleDelete        = "GUILD_ROLE_DELETE"
	NameChannelCreate     = "CHANNEL_CREATE"
	NameChannelUpdate     = "CHANNEL_UPDATE"
	NameMessageCreate     = "MESSAGE_CREATE"
	NameMessageUpdate     = "MESSAGE_UPDATE"
	NameMessageDelete     = "MESSAGE_DELETE"
	NameMessageDeleteBulk = "MESSAGE_DELETE_BULK"
	NameUserUpdate        = "USER_UPDATE"
	NamePresenceUpdate    = "PRESENCE_UPDATE"
	NameInteractionCreate = "INTERACTION_CREATE"
)

// Names of events raised by the bot itself rather than the gateway
const (
	NameMessageCustom = "MESSAGE_CUSTOM"
	NameQuoteSave     = "QUOTE_SAVE"
	NameCharacterSave = "CHARACTER_SAVE"
	NameMarriageSave  = "MARRIAGE_SAVE"
)

// Event is one inbound change. The set of implementations is closed; the pipeline switches over
// all of them exhaustively
type Event interface {
	Name() string
	event()
}

// Ready is sent once the gateway session is established
type Ready struct {
	User          discord.User
	ApplicationID snowflake.ID
	SessionID     string
	GuildIDs      []snowflake.ID
}

// GuildCreate carries a full guild, including channels and members on gateway payloads
type GuildCreate struct {
	Guild discord.Guild
}

// GuildUpdate carries changed guild settings and its roles
type GuildUpdate struct {
	Guild discord.Guild
}

// MemberAdd is a user joining a guild
type MemberAdd struct {
	Member discord.Member
}

// MemberUpdate is a change to a member's nick, roles or avatar
type MemberUpdate struct {
	Member discord.Member
}

// MemberRemove is a user leaving or being removed from a guild
type MemberRemove struct {
	GuildID snowflake.ID
	User    discord.User
	LeftAt  time.Time
}

// MembersChunk is one page of a guild member request
type MembersChunk struct {
	GuildID    snowflake.ID
	Members    []discord.Member
	ChunkIndex int
	ChunkCount int
}

// RoleCreate is a role added to a guild
type RoleCreate struct {
	GuildID snowflake.ID
	Role    discord.Role
}

// RoleUpdate is a change to a role
type RoleUpdate struct {
	GuildID snowflake.ID
	Role    discord.Role
}

// RoleDelete is a role removed from a guild
type RoleDelete struct {
	GuildID snowflake.ID
	RoleID  snowflake.ID
}

// ChannelCreate is a channel added to a guild
type ChannelCreate struct {
	Channel discord.Channel
}

// ChannelUpdate is a change to a channel
type ChannelUpdate struct {
	Channel discord.Channel
}

// MessageCreate is a new message
type MessageCreate struct {
	Message discord.Message
}

// MessageUpdate is an edit; fields absent from the payload are unchanged
type MessageUpdate struct {
	Message discord.Message
}

// MessageDelete is a single message removed
type MessageDelete struct {
	ID        snowflake.ID
	ChannelID snowflake.ID
	GuildID   snowflake.ID
}

// MessageDeleteBulk is several messages of one channel removed at once
type MessageDeleteBulk struct {
	IDs       []snowflake.ID
	ChannelID snowflake.ID
	GuildID   snowflake.ID
}

// MessageCustom records a message the bot built itself, such as a scheduled post
type MessageCustom struct {
	Message models.Message
}

// UserUpdate is a change to the bot's own user
type UserUpdate struct {
	User discord.User
}

// PresenceUpdate carries a partial user; only the id is guaranteed
type PresenceUpdate struct {
	GuildID snowflake.ID
	User    discord.User
	Status  string
}

// InteractionCreate is a command or component invocation
type InteractionCreate struct {
	Interaction discord.Interaction
}

// QuoteSave stores a quote built by the quote command
type QuoteSave struct {
	Quote models.Quote
}

// CharacterSave stores a character built by the character command
type CharacterSave struct {
	Character models.Character
}

// MarriageSave stores a marriage accepted through the marriage command
type MarriageSave struct {
	Marriage models.Marriage
}

func (Ready) Name() string             { return NameReady }
func (GuildCreate) Name() string       { return NameGuildCreate }
func (GuildUpdate) Name() string       { return NameGuildUpdate }
func (MemberAdd) Name() string         { return NameMemberAdd }
func (MemberUpdate) Name() string      { return NameMemberUpdate }
func (MemberRemove) Name() string      { return NameMemberRemove }
func (MembersChunk) Name() string      { return NameMembersChunk }
func (RoleCreate) Name() string        { return NameRoleCreate }
func (RoleUpdate) Name() string        { return NameRoleUpdate }
func (RoleDelete) Name() string        { return NameRoleDelete }
func (ChannelCreate) Name() string     { return NameChannelCreate }
func (ChannelUpdate) Name() string     { return NameChannelUpdate }
func (MessageCreate) Name() string     { return NameMessageCreate }
func (MessageUpdate) Name() string     { return NameMessageUpdate }
func (MessageDelete) Name() string     { return NameMessageDelete }
func (MessageDeleteBulk) Name() string { return NameMessageDeleteBulk }
func (MessageCustom) Name() string     { return NameMessageCustom }
func (UserUpdate) Name() string        { return NameUserUpdate }
func (PresenceUpdate) Name() string    { return NamePresenceUpdate }
func (InteractionCreate) Name() string { return NameInteractionCreate }
func (QuoteSave) Name() string         { return NameQuoteSave }
func (CharacterSave) Name() string     { return NameCharacterSave }
func (MarriageSave) Name() string      { return NameMarriageSave }

func (Ready) event()             {}
func (GuildCreate) event()       {}
func (GuildUpdate) event()       {}
func (MemberAdd) event()         {}
func (MemberUpdate) event()      {}
func (MemberRemove) event()      {}
func (MembersChunk) event()      {}
func (RoleCreate) event()        {}
func (RoleUpdate) event()        {}
func (RoleDelete) event()        {}
func (ChannelCreate) event()     {}
func (ChannelUpdate) event()     {}
func (MessageCreate) event()     {}
func (MessageUpdate) event()     {}
func (MessageDelete) event()     {}
func (MessageDeleteBulk) event() {}
func (MessageCustom) event()     {}
func (UserUpdate) event()        {}
func (PresenceUpdate) event()    {}
func (InteractionCreate) event() {}
func (QuoteSave) event()         {}
func (CharacterSave) event()     {}
func (MarriageSave) event()      {}
