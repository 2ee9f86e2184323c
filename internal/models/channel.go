package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// ChannelType represents Discord channel types
type ChannelType int

// Discord channel type constants
const (
	ChannelTypeGuildText          ChannelType = 0
	ChannelTypeDM                 ChannelType = 1
	ChannelTypeGuildVoice         ChannelType = 2
	ChannelTypeGroupDM            ChannelType = 3
	ChannelTypeGuildCategory      ChannelType = 4
	ChannelTypeGuildNews          ChannelType = 5
	ChannelTypeGuildNewsThread    ChannelType = 10
	ChannelTypeGuildPublicThread  ChannelType = 11
	ChannelTypeGuildPrivateThread ChannelType = 12
	ChannelTypeGuildStageVoice    ChannelType = 13
	ChannelTypeGuildForum         ChannelType = 15
)

// Channel represents a Discord channel. GuildID is zero for DM channels
type Channel struct {
	ID        snowflake.ID `json:"id"`
	GuildID   snowflake.ID `json:"guild_id"`
	Type      ChannelType  `json:"type"`
	Name      string       `json:"name"`
	Position  int          `json:"position"`
	ParentID  snowflake.ID `json:"parent_id"`
	Topic     string       `json:"topic"`
	NSFW      bool         `json:"nsfw"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// EntityKind implements Entity
func (c *Channel) EntityKind() Kind { return KindChannel }

// Key returns the channel id
func (c *Channel) Key() snowflake.ID { return c.ID }

// Clone returns a copy of the channel
func (c *Channel) Clone() *Channel {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
