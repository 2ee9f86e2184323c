package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Character is a user-owned roleplay persona. Name holds the canonical form;
// DisplayName keeps the spelling the user chose
type Character struct {
	UserID      snowflake.ID `json:"user_id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	AvatarURL   string       `json:"avatar_url"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// EntityKind implements Entity
func (c *Character) EntityKind() Kind { return KindCharacter }

// Key returns the canonical character key
func (c *Character) Key() CharacterKey {
	return NewCharacterKey(c.UserID, c.Name)
}

// Clone returns a copy of the character
func (c *Character) Clone() *Character {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
