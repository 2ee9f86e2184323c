package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Quote is a message saved by a guild member for later recall
type Quote struct {
	ID        snowflake.ID `json:"id"`
	GuildID   snowflake.ID `json:"guild_id"`
	ChannelID snowflake.ID `json:"channel_id"`
	MessageID snowflake.ID `json:"message_id"`
	AuthorID  snowflake.ID `json:"author_id"`
	AddedBy   snowflake.ID `json:"added_by"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// EntityKind implements Entity
func (q *Quote) EntityKind() Kind { return KindQuote }

// Key returns the quote id
func (q *Quote) Key() snowflake.ID { return q.ID }

// Clone returns a copy of the quote
func (q *Quote) Clone() *Quote {
	if q == nil {
		return nil
	}
	c := *q
	return &c
}
