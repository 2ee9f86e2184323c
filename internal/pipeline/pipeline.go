// Package pipeline applies inbound change events to the entity store and cache. Every event is
// split into the entities it touches; each one is normalised and written on its own, so a failed
// write never stops the rest of the event.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/database"
	"github.com/parsascontentcorner/discordlitesync/internal/events"
	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/resolver"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
	"github.com/parsascontentcorner/discordlitesync/pkg/logger"
)

var (
	// ErrNilEvent is returned by Apply for a nil event
	ErrNilEvent = errors.New("nil event")

	// ErrUnknownEvent is returned by Apply for an event type it has no handler for
	ErrUnknownEvent = errors.New("unhandled event type")
)

// GuildLister enumerates a guild's entities from the remote API for the ready bootstrap
type GuildLister interface {
	GuildChannels(ctx context.Context, guildID snowflake.ID) ([]*models.Channel, error)
	GuildRoles(ctx context.Context, guildID snowflake.ID) ([]*models.Role, error)
	GuildMembers(ctx context.Context, guildID snowflake.ID) ([]*models.Member, []*models.User, error)
}

// SyncLedger remembers which guilds were bootstrapped recently
type SyncLedger interface {
	IsSyncFresh(ctx context.Context, scope database.SyncScope, entityID snowflake.ID) (bool, error)
	MarkSynced(ctx context.Context, scope database.SyncScope, entityID snowflake.ID, ttl time.Duration) error
}

// Config controls the ready bootstrap
type Config struct {
	// BootstrapFetch enumerates every guild listed in READY through the remote API
	BootstrapFetch bool
	// BootstrapTTL is how long a completed guild bootstrap suppresses the next one
	BootstrapTTL time.Duration
}

// Stats is a snapshot of the pipeline counters
type Stats struct {
	Events     uint64 `json:"events"`
	Writes     uint64 `json:"writes"`
	Unchanged  uint64 `json:"unchanged"`
	Failures   uint64 `json:"failures"`
	Skipped    uint64 `json:"skipped"`
	Bootstraps uint64 `json:"bootstraps"`
}

// Pipeline is the write path for inbound events
type Pipeline struct {
	resolvers *resolver.Resolvers
	lister    GuildLister
	ledger    SyncLedger
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	mu            sync.RWMutex
	applicationID snowflake.ID
	selfID        snowflake.ID

	events     atomic.Uint64
	writes     atomic.Uint64
	unchanged  atomic.Uint64
	failures   atomic.Uint64
	skipped    atomic.Uint64
	bootstraps atomic.Uint64
}

// New creates a pipeline writing through resolvers. lister and ledger are optional; without a
// lister READY only records the bot identity
func New(resolvers *resolver.Resolvers, lister GuildLister, ledger SyncLedger, cfg Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		resolvers: resolvers,
		lister:    lister,
		ledger:    ledger,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// ApplicationID returns the application id recorded from READY
func (p *Pipeline) ApplicationID() snowflake.ID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.applicationID
}

// SelfID returns the bot user id recorded from READY
func (p *Pipeline) SelfID() snowflake.ID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selfID
}

// Stats returns a snapshot of the pipeline counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Events:     p.events.Load(),
		Writes:     p.writes.Load(),
		Unchanged:  p.unchanged.Load(),
		Failures:   p.failures.Load(),
		Skipped:    p.skipped.Load(),
		Bootstraps: p.bootstraps.Load(),
	}
}

// Apply writes everything ev carries. It fails only for events it cannot handle at all;
// failures of individual entities are logged and counted
func (p *Pipeline) Apply(ctx context.Context, ev events.Event) error {
	if ev == nil {
		return ErrNilEvent
	}

	switch e := ev.(type) {
	case events.Ready:
		p.applyReady(ctx, e)
	case events.GuildCreate:
		p.applyGuild(ctx, e.Guild)
	case events.GuildUpdate:
		p.applyGuild(ctx, e.Guild)
	case events.MemberAdd:
		p.applyMember(ctx, e.Member, 0)
	case events.MemberUpdate:
		p.applyMember(ctx, e.Member, 0)
	case events.MemberRemove:
		p.applyMemberRemove(ctx, e)
	case events.MembersChunk:
		for _, m := range e.Members {
			p.applyMember(ctx, m, e.GuildID)
		}
	case events.RoleCreate:
		p.applyRole(ctx, e.GuildID, e.Role)
	case events.RoleUpdate:
		p.applyRole(ctx, e.GuildID, e.Role)
	case events.RoleDelete:
		p.applyRoleDelete(ctx, e)
	case events.ChannelCreate:
		p.applyChannel(ctx, e.Channel)
	case events.ChannelUpdate:
		p.applyChannel(ctx, e.Channel)
	case events.MessageCreate:
		p.applyMessage(ctx, e.Message)
	case events.MessageUpdate:
		p.applyMessage(ctx, e.Message)
	case events.MessageDelete:
		p.applyMessageDelete(ctx, e.ID, e.ChannelID, e.GuildID)
	case events.MessageDeleteBulk:
		for _, id := range e.IDs {
			p.applyMessageDelete(ctx, id, e.ChannelID, e.GuildID)
		}
	case events.MessageCustom:
		p.applyMessageCustom(ctx, e.Message)
	case events.UserUpdate:
		p.applyUser(ctx, e.User)
	case events.PresenceUpdate:
		p.applyPartialUser(ctx, e.User)
	case events.InteractionCreate:
		p.applyInteraction(ctx, e.Interaction)
	case events.QuoteSave:
		p.applyQuote(ctx, e.Quote)
	case events.CharacterSave:
		p.applyCharacter(ctx, e.Character)
	case events.MarriageSave:
		p.applyMarriage(ctx, e.Marriage)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}

	p.events.Add(1)
	return nil
}

// write upserts one entity through its resolver, which refreshes the cache on success
func write[K comparable, V resolver.Entity[K, V]](ctx context.Context, p *Pipeline, r *resolver.Resolver[K, V], v V) bool {
	rows, err := r.Write(ctx, v)
	if err != nil {
		p.failures.Add(1)
		return false
	}
	if rows == 0 {
		p.unchanged.Add(1)
	} else {
		p.writes.Add(1)
	}
	return true
}

// local returns the stored record for key, or the zero value when there is none. It reports
// false when the store could not be read; merging onto nothing would then wipe stored fields,
// so the caller skips the entity
func local[K comparable, V resolver.Entity[K, V]](ctx context.Context, p *Pipeline, r *resolver.Resolver[K, V], key K) (V, bool) {
	v, err := r.ResolveLocal(ctx, key)
	if err == nil {
		return v, true
	}

	var zero V
	if tier.IsNotFound(err) {
		return zero, true
	}

	p.skipped.Add(1)
	p.logger.Warn("skipping update, stored record unreadable", logger.TierFields(string(r.Kind()), key, tier.OpGet, err)...)
	return zero, false
}

// known returns the stored record for key, or the zero value when it is unknown or unreadable.
// Full objects replace the stored record, so only its bookkeeping is carried over
func known[K comparable, V resolver.Entity[K, V]](ctx context.Context, r *resolver.Resolver[K, V], key K) V {
	v, err := r.ResolveLocal(ctx, key)
	if err != nil {
		var zero V
		return zero
	}
	return v
}

func (p *Pipeline) invalid(kind models.Kind, err error) {
	p.failures.Add(1)
	p.logger.Warn("dropping malformed entity",
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
}
