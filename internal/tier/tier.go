// Package tier defines the contracts shared by the three lookup tiers (cache,
// entity store, remote source) and the error taxonomy they report.
package tier

import (
	"context"

	"github.com/disgoorg/snowflake/v2"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
)

// Store is the durable tier for one entity kind. Get returns ErrNotFound when
// the key has no row; every other failure is a *DriverError
type Store[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, error)
	Upsert(ctx context.Context, v V) (int64, error)
}

// Remote is the authoritative read-only tier for one entity kind. Fetch
// returns ErrNotFound when the platform does not know the key and a
// *RemoteError for every other failure
type Remote[K comparable, V any] interface {
	Fetch(ctx context.Context, key K) (V, error)
}

// RemoteFunc adapts a plain function to Remote
type RemoteFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Fetch calls f
func (f RemoteFunc[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	return f(ctx, key)
}

// NoRemote is the remote tier for kinds the platform cannot serve by id.
// It always reports ErrNotFound
type NoRemote[K comparable, V any] struct{}

// Fetch implements Remote
func (NoRemote[K, V]) Fetch(_ context.Context, _ K) (V, error) {
	var zero V
	return zero, ErrNotFound
}

// Stores groups the store tier of every entity kind
type Stores struct {
	Guilds       Store[snowflake.ID, *models.Guild]
	Users        Store[snowflake.ID, *models.User]
	Members      Store[models.MemberKey, *models.Member]
	Channels     Store[snowflake.ID, *models.Channel]
	Roles        Store[models.RoleKey, *models.Role]
	Messages     Store[snowflake.ID, *models.Message]
	Interactions Store[snowflake.ID, *models.Interaction]
	Quotes       Store[snowflake.ID, *models.Quote]
	Characters   Store[models.CharacterKey, *models.Character]
	Marriages    Store[models.MarriageKey, *models.Marriage]
}

// Remotes groups the remote tier of every entity kind. Nil members are
// replaced with NoRemote by the resolver
type Remotes struct {
	Guilds       Remote[snowflake.ID, *models.Guild]
	Users        Remote[snowflake.ID, *models.User]
	Members      Remote[models.MemberKey, *models.Member]
	Channels     Remote[snowflake.ID, *models.Channel]
	Roles        Remote[models.RoleKey, *models.Role]
	Messages     Remote[snowflake.ID, *models.Message]
	Interactions Remote[snowflake.ID, *models.Interaction]
	Quotes       Remote[snowflake.ID, *models.Quote]
	Characters   Remote[models.CharacterKey, *models.Character]
	Marriages    Remote[models.MarriageKey, *models.Marriage]
}
