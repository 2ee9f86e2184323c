// Package resolver implements the tiered read path: cache, then the entity store, then the
// remote API, backfilling the faster tiers on a miss.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/parsascontentcorner/discordlitesync/internal/cache"
	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
	"github.com/parsascontentcorner/discordlitesync/pkg/logger"
)

// Entity is a record that can be cached and knows its own key
type Entity[K comparable, V any] interface {
	Clone() V
	Key() K
}

// Stats is a snapshot of one resolver's counters
type Stats struct {
	Cache            cache.Stats `json:"cache"`
	StoreHits        uint64      `json:"store_hits"`
	StoreMisses      uint64      `json:"store_misses"`
	StoreFailures    uint64      `json:"store_failures"`
	RemoteFetches    uint64      `json:"remote_fetches"`
	RemoteFailures   uint64      `json:"remote_failures"`
	BackfillFailures uint64      `json:"backfill_failures"`
	Coalesced        uint64      `json:"coalesced"`
	Writes           uint64      `json:"writes"`
	WriteFailures    uint64      `json:"write_failures"`
}

// Resolver resolves one entity kind across the three tiers
type Resolver[K comparable, V Entity[K, V]] struct {
	kind      models.Kind
	canonical func(K) K
	cache     *cache.Cache[K, V]
	store     tier.Store[K, V]
	remote    tier.Remote[K, V]
	inflight  singleflight.Group
	logger    *zap.Logger

	storeHits        atomic.Uint64
	storeMisses      atomic.Uint64
	storeFailures    atomic.Uint64
	remoteFetches    atomic.Uint64
	remoteFailures   atomic.Uint64
	backfillFailures atomic.Uint64
	coalesced        atomic.Uint64
	writes           atomic.Uint64
	writeFailures    atomic.Uint64
}

// New creates a resolver for one kind. canonical normalises keys before every tier call and may
// be nil for kinds whose keys need no normalisation. A nil remote never finds anything
func New[K comparable, V Entity[K, V]](
	kind models.Kind,
	c *cache.Cache[K, V],
	store tier.Store[K, V],
	remote tier.Remote[K, V],
	canonical func(K) K,
	logger *zap.Logger,
) *Resolver[K, V] {
	if remote == nil {
		remote = tier.NoRemote[K, V]{}
	}
	if canonical == nil {
		canonical = func(k K) K { return k }
	}
	return &Resolver[K, V]{
		kind:      kind,
		canonical: canonical,
		cache:     c,
		store:     store,
		remote:    remote,
		logger:    logger,
	}
}

// Kind returns the entity kind this resolver serves
func (r *Resolver[K, V]) Kind() models.Kind {
	return r.kind
}

// Resolve returns the entity for key. Store failures are logged and treated as misses. A remote
// failure is returned only when no tier produced a value; otherwise the result is the entity or
// an error wrapping tier.ErrNotFound
func (r *Resolver[K, V]) Resolve(ctx context.Context, key K) (V, error) {
	key = r.canonical(key)

	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}

	if v, ok := r.fromStore(ctx, key); ok {
		return v, nil
	}

	ch := r.inflight.DoChan(fmt.Sprint(key), func() (any, error) {
		// The shared fetch outlives any single caller
		return r.fetch(context.WithoutCancel(ctx), key)
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			r.coalesced.Add(1)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V).Clone(), nil
	}
}

// ResolveLocal consults only the cache and the store. It returns an error wrapping
// tier.ErrNotFound on a miss and the *tier.DriverError on a store failure, so callers merging
// partial updates can tell "unknown" from "unreadable"
func (r *Resolver[K, V]) ResolveLocal(ctx context.Context, key K) (V, error) {
	key = r.canonical(key)

	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}

	var zero V
	v, err := r.store.Get(ctx, key)
	if err != nil {
		if tier.IsNotFound(err) {
			r.storeMisses.Add(1)
		} else {
			r.storeFailures.Add(1)
		}
		return zero, err
	}

	r.storeHits.Add(1)
	r.cache.Put(key, v)
	return v, nil
}

// Write upserts v and, once the store accepted it, refreshes the cache. It returns the rows the
// store reported as changed; the cache is refreshed even when that is zero
func (r *Resolver[K, V]) Write(ctx context.Context, v V) (int64, error) {
	key := r.canonical(v.Key())

	rows, err := r.store.Upsert(ctx, v)
	if err != nil {
		r.writeFailures.Add(1)
		r.logger.Error("entity store write failed", logger.TierFields(string(r.kind), key, tier.OpUpsert, err)...)
		return 0, err
	}

	r.writes.Add(1)
	r.cache.Put(key, v)
	return rows, nil
}

// Prime stores v in the cache without touching the store
func (r *Resolver[K, V]) Prime(v V) {
	r.cache.Put(r.canonical(v.Key()), v)
}

// Invalidate drops key from the cache
func (r *Resolver[K, V]) Invalidate(key K) {
	r.cache.Delete(r.canonical(key))
}

// Stats returns a snapshot of the resolver counters
func (r *Resolver[K, V]) Stats() Stats {
	return Stats{
		Cache:            r.cache.Stats(),
		StoreHits:        r.storeHits.Load(),
		StoreMisses:      r.storeMisses.Load(),
		StoreFailures:    r.storeFailures.Load(),
		RemoteFetches:    r.remoteFetches.Load(),
		RemoteFailures:   r.remoteFailures.Load(),
		BackfillFailures: r.backfillFailures.Load(),
		Coalesced:        r.coalesced.Load(),
		Writes:           r.writes.Load(),
		WriteFailures:    r.writeFailures.Load(),
	}
}

func (r *Resolver[K, V]) fromStore(ctx context.Context, key K) (V, bool) {
	v, err := r.store.Get(ctx, key)
	switch {
	case err == nil:
		r.storeHits.Add(1)
		r.cache.Put(key, v)
		return v, true

	case tier.IsNotFound(err):
		r.storeMisses.Add(1)

	default:
		r.storeFailures.Add(1)
		r.logger.Warn("entity store read failed, falling back to remote",
			logger.TierFields(string(r.kind), key, tier.OpGet, err)...)
	}

	var zero V
	return zero, false
}

// fetch asks the remote tier and backfills store and cache. A failed backfill is logged; the
// fetched entity is still returned
func (r *Resolver[K, V]) fetch(ctx context.Context, key K) (V, error) {
	r.remoteFetches.Add(1)

	var zero V
	v, err := r.remote.Fetch(ctx, key)
	if err != nil {
		if tier.IsNotFound(err) {
			return zero, fmt.Errorf("%s %v: %w", r.kind, key, tier.ErrNotFound)
		}

		r.remoteFailures.Add(1)
		var remoteErr *tier.RemoteError
		if !errors.As(err, &remoteErr) {
			err = &tier.RemoteError{Kind: r.kind, Key: fmt.Sprint(key), Err: err}
		}
		r.logger.Debug("remote fetch failed", logger.TierFields(string(r.kind), key, tier.OpFetch, err)...)
		return zero, err
	}

	if _, err := r.store.Upsert(ctx, v); err != nil {
		r.backfillFailures.Add(1)
		r.logger.Warn("backfill to entity store failed", logger.TierFields(string(r.kind), key, tier.OpUpsert, err)...)
	}

	r.cache.Put(key, v)
	return v, nil
}
