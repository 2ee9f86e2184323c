package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// User represents a platform-wide Discord identity
type User struct {
	ID            snowflake.ID `json:"id"`
	Username      string       `json:"username"`
	GlobalName    string       `json:"global_name"`
	Discriminator string       `json:"discriminator"`
	Avatar        string       `json:"avatar"`
	Bot           bool         `json:"bot"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// EntityKind implements Entity
func (u *User) EntityKind() Kind { return KindUser }

// Key returns the user id
func (u *User) Key() snowflake.ID { return u.ID }

// Clone returns a copy of the user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// DisplayName prefers the global display name over the username
func (u *User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
