// Package discord is a bot-token REST client for the Discord API. It returns the raw API objects;
// conversion into entity records lives in the normalize package.
package discord

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// User represents a Discord user from the API
type User struct {
	ID            snowflake.ID `json:"id"`
	Username      string       `json:"username"`
	GlobalName    *string      `json:"global_name"`
	Discriminator string       `json:"discriminator"`
	Avatar        *string      `json:"avatar"`
	Bot           bool         `json:"bot"`
}

// Member represents a guild member from the API. GuildID is only present on gateway payloads
type Member struct {
	GuildID  snowflake.ID   `json:"guild_id"`
	User     *User          `json:"user"`
	Nick     *string        `json:"nick"`
	Avatar   *string        `json:"avatar"`
	Roles    []snowflake.ID `json:"roles"`
	JoinedAt *time.Time     `json:"joined_at"`
	Pending  bool           `json:"pending"`
}

// Role represents a guild role from the API
type Role struct {
	ID          snowflake.ID `json:"id"`
	Name        string       `json:"name"`
	Color       int          `json:"color"`
	Position    int          `json:"position"`
	Permissions string       `json:"permissions"`
	Hoist       bool         `json:"hoist"`
	Managed     bool         `json:"managed"`
	Mentionable bool         `json:"mentionable"`
}

// Channel represents a Discord channel from the API
type Channel struct {
	ID       snowflake.ID `json:"id"`
	Type     int          `json:"type"`
	GuildID  snowflake.ID `json:"guild_id"`
	Position int          `json:"position"`
	Name     string       `json:"name"`
	Topic    *string      `json:"topic"`
	NSFW     bool         `json:"nsfw"`
	ParentID snowflake.ID `json:"parent_id"`
}

// Guild represents a Discord guild (server). Roles are always present on REST responses;
// channels and members are only sent on the gateway GUILD_CREATE payload
type Guild struct {
	ID          snowflake.ID `json:"id"`
	Name        string       `json:"name"`
	Icon        *string      `json:"icon"`
	OwnerID     snowflake.ID `json:"owner_id"`
	Roles       []Role       `json:"roles"`
	Channels    []Channel    `json:"channels"`
	Members     []Member     `json:"members"`
	Unavailable bool         `json:"unavailable"`
}

// Message represents a Discord message
type Message struct {
	ID               snowflake.ID      `json:"id"`
	ChannelID        snowflake.ID      `json:"channel_id"`
	GuildID          snowflake.ID      `json:"guild_id"`
	Author           *User             `json:"author"`
	Member           *Member           `json:"member"`
	Content          *string           `json:"content"`
	Timestamp        *time.Time        `json:"timestamp"`
	EditedTimestamp  *time.Time        `json:"edited_timestamp"`
	Type             *int              `json:"type"`
	MessageReference *MessageReference `json:"message_reference"`
}

// MessageReference represents a message reference (for replies)
type MessageReference struct {
	MessageID snowflake.ID `json:"message_id"`
	ChannelID snowflake.ID `json:"channel_id"`
	GuildID   snowflake.ID `json:"guild_id"`
}

// Interaction represents an interaction payload
type Interaction struct {
	ID            snowflake.ID     `json:"id"`
	ApplicationID snowflake.ID     `json:"application_id"`
	Type          int              `json:"type"`
	GuildID       snowflake.ID     `json:"guild_id"`
	ChannelID     snowflake.ID     `json:"channel_id"`
	Member        *Member          `json:"member"`
	User          *User            `json:"user"`
	Data          *InteractionData `json:"data"`
}

// InteractionData carries the invoked command
type InteractionData struct {
	ID   snowflake.ID `json:"id"`
	Name string       `json:"name"`
}

// APIErrorBody is the JSON error object Discord returns on failed requests
type APIErrorBody struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}
