package models

import (
	"database/sql"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Member represents a user's state inside one guild. A member that left keeps
// its row; LeftAt marks the departure
type Member struct {
	GuildID   snowflake.ID   `json:"guild_id"`
	UserID    snowflake.ID   `json:"user_id"`
	Nick      string         `json:"nick"`
	Avatar    string         `json:"avatar"`
	RoleIDs   []snowflake.ID `json:"role_ids"`
	JoinedAt  time.Time      `json:"joined_at"`
	LeftAt    sql.NullTime   `json:"left_at"`
	Pending   bool           `json:"pending"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EntityKind implements Entity
func (m *Member) EntityKind() Kind { return KindMember }

// Key returns the composite member key
func (m *Member) Key() MemberKey {
	return MemberKey{GuildID: m.GuildID, UserID: m.UserID}
}

// Clone returns a deep copy of the member
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	c := *m
	c.RoleIDs = cloneIDs(m.RoleIDs)
	return &c
}

// HasLeft reports whether the member has left the guild
func (m *Member) HasLeft() bool {
	return m.LeftAt.Valid
}
