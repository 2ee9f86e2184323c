package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ============================================================================
// Helper Types
// ============================================================================

// fragile panics from Clone once explode is set
type fragile struct {
	n       int
	explode *atomic.Bool
}

func (f *fragile) Clone() *fragile {
	if f.explode != nil && f.explode.Load() {
		panic("corrupted entry")
	}
	c := *f
	return &c
}

func newUserCache(t *testing.T, opts ...Option) *Cache[int, *models.User] {
	t.Helper()
	c, err := New[int, *models.User]("user", opts...)
	require.NoError(t, err)
	return c
}

// ============================================================================
// Construction Tests
// ============================================================================

func TestNew_ShardValidation(t *testing.T) {
	tests := []struct {
		name    string
		shards  int
		wantErr bool
	}{
		{"one", 1, false},
		{"sixteen", 16, false},
		{"zero", 0, true},
		{"negative", -4, true},
		{"not power of two", 12, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New[int, *models.User]("user", WithShards(tt.shards))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := New[int, *models.User]("user", WithMaxEntriesPerShard(-1))
	assert.Error(t, err)
}

// ============================================================================
// Get / Put Tests
// ============================================================================

func TestGetPut(t *testing.T) {
	c := newUserCache(t)

	_, ok := c.Get(42)
	assert.False(t, ok)

	c.Put(42, &models.User{ID: 42, Username: "ada"})

	got, ok := c.Get(42)
	require.True(t, ok)
	assert.Equal(t, "ada", got.Username)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, "user", c.Name())
}

func TestLookup_MissIsNotFound(t *testing.T) {
	c := newUserCache(t)

	_, err := c.Lookup(1)
	assert.ErrorIs(t, err, tier.ErrNotFound)
}

func TestPut_Overwrites(t *testing.T) {
	c := newUserCache(t)

	c.Put(1, &models.User{ID: 1, Username: "first"})
	c.Put(1, &models.User{ID: 1, Username: "second"})

	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "second", got.Username)
	assert.Equal(t, 1, c.Len())
}

func TestGet_ReturnsCopy(t *testing.T) {
	c := newUserCache(t)

	original := &models.User{ID: 1, Username: "ada"}
	c.Put(1, original)

	// Mutating the stored argument must not leak into the cache
	original.Username = "mutated"

	got, _ := c.Get(1)
	assert.Equal(t, "ada", got.Username)

	// Mutating a returned copy must not leak either
	got.Username = "changed"
	again, _ := c.Get(1)
	assert.Equal(t, "ada", again.Username)
}

func TestDelete(t *testing.T) {
	c := newUserCache(t)
	c.Put(1, &models.User{ID: 1})
	c.Delete(1)

	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCompositeKeys(t *testing.T) {
	c, err := New[models.MarriageKey, *models.Marriage]("marriage")
	require.NoError(t, err)

	c.Put(models.NewMarriageKey(5, 3), &models.Marriage{UserA: 3, UserB: 5})

	_, ok := c.Get(models.NewMarriageKey(3, 5))
	assert.True(t, ok)
}

func TestMaxEntriesPerShard_Evicts(t *testing.T) {
	c := newUserCache(t, WithShards(1), WithMaxEntriesPerShard(2))

	c.Put(1, &models.User{ID: 1})
	c.Put(2, &models.User{ID: 2})
	c.Put(3, &models.User{ID: 3})

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Evicted)

	_, ok := c.Get(3)
	assert.True(t, ok, "newest entry must survive eviction")

	// Overwriting an existing key never evicts
	c.Put(3, &models.User{ID: 3, Username: "again"})
	assert.Equal(t, uint64(1), c.Stats().Evicted)
}

// ============================================================================
// Lock Fault Tests
// ============================================================================

func TestLookup_PanicIsLockFault(t *testing.T) {
	c, err := New[int, *fragile]("fragile", WithShards(1), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	explode := &atomic.Bool{}
	c.Put(1, &fragile{n: 1, explode: explode})
	explode.Store(true)

	_, err = c.Lookup(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tier.ErrLockFault))

	_, ok := c.Get(1)
	assert.False(t, ok, "a lock fault is reported as a miss")
	assert.Equal(t, uint64(2), c.Stats().Faults)

	// The shard lock was released, so writers still make progress
	c.Put(2, &fragile{n: 2})
	got, ok := c.Get(2)
	require.True(t, ok)
	assert.Equal(t, 2, got.n)
}

func TestPut_PanicIsRecovered(t *testing.T) {
	c, err := New[int, *fragile]("fragile", WithShards(1))
	require.NoError(t, err)

	explode := &atomic.Bool{}
	explode.Store(true)

	assert.NotPanics(t, func() {
		c.Put(1, &fragile{n: 1, explode: explode})
	})
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Faults)
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestConcurrentAccess(t *testing.T) {
	c := newUserCache(t, WithShards(4))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Put(i, &models.User{ID: 1, Username: "w"})
				c.Get(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, c.Len())
}
