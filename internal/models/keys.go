package models

import (
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MemberKey identifies a user's membership in one guild
type MemberKey struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
}

func (k MemberKey) String() string {
	return k.GuildID.String() + ":" + k.UserID.String()
}

// RoleKey identifies a role inside its guild
type RoleKey struct {
	GuildID snowflake.ID
	RoleID  snowflake.ID
}

func (k RoleKey) String() string {
	return k.GuildID.String() + ":" + k.RoleID.String()
}

// CharacterKey identifies a character owned by a user. Name is compared in
// its canonical form, see CanonicalName
type CharacterKey struct {
	UserID snowflake.ID
	Name   string
}

// NewCharacterKey builds a canonical character key
func NewCharacterKey(userID snowflake.ID, name string) CharacterKey {
	return CharacterKey{UserID: userID, Name: CanonicalName(name)}
}

// Canonical returns the key with its name folded
func (k CharacterKey) Canonical() CharacterKey {
	return NewCharacterKey(k.UserID, k.Name)
}

func (k CharacterKey) String() string {
	return k.UserID.String() + ":" + k.Name
}

// CanonicalName folds a character name so that "Ada", " ada " and "ＡＤＡ"
// address the same record
func CanonicalName(name string) string {
	// cases.Caser keeps state between calls and must not be shared
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(name)))
}

// MarriageKey identifies a marriage by the unordered pair of its partners.
// UserA is always the smaller id once the key is canonical
type MarriageKey struct {
	UserA snowflake.ID
	UserB snowflake.ID
}

// NewMarriageKey orders the pair so that argument order never matters
func NewMarriageKey(a, b snowflake.ID) MarriageKey {
	if b < a {
		a, b = b, a
	}
	return MarriageKey{UserA: a, UserB: b}
}

// Canonical returns the ordered form of the key
func (k MarriageKey) Canonical() MarriageKey {
	return NewMarriageKey(k.UserA, k.UserB)
}

// Involves reports whether the user is one of the partners
func (k MarriageKey) Involves(userID snowflake.ID) bool {
	return k.UserA == userID || k.UserB == userID
}

func (k MarriageKey) String() string {
	return k.UserA.String() + ":" + k.UserB.String()
}

// cloneIDs copies an id slice so clones never share backing arrays
func cloneIDs(ids []snowflake.ID) []snowflake.ID {
	if ids == nil {
		return nil
	}
	out := make([]snowflake.ID, len(ids))
	copy(out, ids)
	return out
}
