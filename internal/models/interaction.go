package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// InteractionType represents Discord interaction types
type InteractionType int

// Discord interaction type constants
const (
	InteractionTypePing                           InteractionType = 1
	InteractionTypeApplicationCommand             InteractionType = 2
	InteractionTypeMessageComponent               InteractionType = 3
	InteractionTypeApplicationCommandAutocomplete InteractionType = 4
	InteractionTypeModalSubmit                    InteractionType = 5
)

// Interaction is the transient record of one command invocation
type Interaction struct {
	ID            snowflake.ID    `json:"id"`
	ApplicationID snowflake.ID    `json:"application_id"`
	Type          InteractionType `json:"type"`
	GuildID       snowflake.ID    `json:"guild_id"`
	ChannelID     snowflake.ID    `json:"channel_id"`
	UserID        snowflake.ID    `json:"user_id"`
	CommandName   string          `json:"command_name"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// EntityKind implements Entity
func (i *Interaction) EntityKind() Kind { return KindInteraction }

// Key returns the interaction id
func (i *Interaction) Key() snowflake.ID { return i.ID }

// Clone returns a copy of the interaction
func (i *Interaction) Clone() *Interaction {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
