package models

import (
	"database/sql"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Guild represents a Discord guild (server)
type Guild struct {
	ID           snowflake.ID   `json:"id"`
	Name         string         `json:"name"`
	Icon         string         `json:"icon"`
	OwnerID      snowflake.ID   `json:"owner_id"`
	AccentColour sql.NullInt64  `json:"accent_colour"`
	RoleIDs      []snowflake.ID `json:"role_ids"`
	ChannelIDs   []snowflake.ID `json:"channel_ids"`
	Unavailable  bool           `json:"unavailable"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// EntityKind implements Entity
func (g *Guild) EntityKind() Kind { return KindGuild }

// Key returns the guild id
func (g *Guild) Key() snowflake.ID { return g.ID }

// Clone returns a deep copy of the guild
func (g *Guild) Clone() *Guild {
	if g == nil {
		return nil
	}
	c := *g
	c.RoleIDs = cloneIDs(g.RoleIDs)
	c.ChannelIDs = cloneIDs(g.ChannelIDs)
	return &c
}

// HasRole reports whether the role id is part of the guild's role collection
func (g *Guild) HasRole(roleID snowflake.ID) bool {
	for _, id := range g.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}
