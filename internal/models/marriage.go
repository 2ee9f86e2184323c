package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Marriage links two users. UserA < UserB always holds for stored records
type Marriage struct {
	UserA      snowflake.ID `json:"user_a"`
	UserB      snowflake.ID `json:"user_b"`
	ProposerID snowflake.ID `json:"proposer_id"`
	MarriedAt  time.Time    `json:"married_at"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// EntityKind implements Entity
func (m *Marriage) EntityKind() Kind { return KindMarriage }

// Key returns the canonical pair key
func (m *Marriage) Key() MarriageKey {
	return NewMarriageKey(m.UserA, m.UserB)
}

// Clone returns a copy of the marriage
func (m *Marriage) Clone() *Marriage {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// Partner returns the other user of the marriage
func (m *Marriage) Partner(userID snowflake.ID) snowflake.ID {
	if m.UserA == userID {
		return m.UserB
	}
	return m.UserA
}
