// Package models defines the canonical entity records shared by the cache, the
// entity store and the remote source.
package models

import (
	"fmt"
)

// Kind identifies one entity kind. Each kind has its own cache, table and
// resolver
type Kind string

// Entity kinds
const (
	KindGuild       Kind = "guild"
	KindUser        Kind = "user"
	KindMember      Kind = "member"
	KindChannel     Kind = "channel"
	KindRole        Kind = "role"
	KindMessage     Kind = "message"
	KindInteraction Kind = "interaction"
	KindQuote       Kind = "quote"
	KindCharacter   Kind = "character"
	KindMarriage    Kind = "marriage"
)

// Kinds lists every entity kind in a stable order
var Kinds = []Kind{
	KindGuild,
	KindUser,
	KindMember,
	KindChannel,
	KindRole,
	KindMessage,
	KindInteraction,
	KindQuote,
	KindCharacter,
	KindMarriage,
}

// ParseKind converts a kind name into a Kind
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind: %q", name)
}

// Entity is implemented by every canonical record
type Entity interface {
	EntityKind() Kind
}
