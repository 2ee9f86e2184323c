package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Role represents a guild role. Deleted roles stay stored with Deleted set
type Role struct {
	GuildID     snowflake.ID `json:"guild_id"`
	RoleID      snowflake.ID `json:"role_id"`
	Name        string       `json:"name"`
	Colour      int          `json:"colour"`
	Position    int          `json:"position"`
	Permissions int64        `json:"permissions"`
	Hoist       bool         `json:"hoist"`
	Mentionable bool         `json:"mentionable"`
	Managed     bool         `json:"managed"`
	Deleted     bool         `json:"deleted"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// EntityKind implements Entity
func (r *Role) EntityKind() Kind { return KindRole }

// Key returns the composite role key
func (r *Role) Key() RoleKey {
	return RoleKey{GuildID: r.GuildID, RoleID: r.RoleID}
}

// Clone returns a copy of the role
func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
