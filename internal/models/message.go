package models

import (
	"database/sql"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// MessageType represents Discord message types
type MessageType int

// Discord message type constants
const (
	MessageTypeDefault            MessageType = 0
	MessageTypeGuildMemberJoin    MessageType = 7
	MessageTypeReply              MessageType = 19
	MessageTypeChatInputCommand   MessageType = 20
	MessageTypeContextMenuCommand MessageType = 23
)

// Message represents a Discord message. Deleted messages stay stored with
// Deleted set
type Message struct {
	ID                  snowflake.ID `json:"id"`
	ChannelID           snowflake.ID `json:"channel_id"`
	GuildID             snowflake.ID `json:"guild_id"`
	AuthorID            snowflake.ID `json:"author_id"`
	Content             string       `json:"content"`
	Type                MessageType  `json:"type"`
	Timestamp           time.Time    `json:"timestamp"`
	EditedTimestamp     sql.NullTime `json:"edited_timestamp"`
	ReferencedMessageID snowflake.ID `json:"referenced_message_id"`
	Deleted             bool         `json:"deleted"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// EntityKind implements Entity
func (m *Message) EntityKind() Kind { return KindMessage }

// Key returns the message id
func (m *Message) Key() snowflake.ID { return m.ID }

// Clone returns a copy of the message
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
