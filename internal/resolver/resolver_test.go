package resolver

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/cache"
	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ============================================================================
// Fakes
// ============================================================================

// fakeStore is an in-memory tier.Store that counts calls
type fakeStore[K comparable, V Entity[K, V]] struct {
	mu        sync.Mutex
	items     map[K]V
	gets      int
	upserts   []V
	getErr    error
	upsertErr error
	unchanged bool
	onGet     func()
}

func newFakeStore[K comparable, V Entity[K, V]]() *fakeStore[K, V] {
	return &fakeStore[K, V]{items: make(map[K]V)}
}

func (s *fakeStore[K, V]) Get(_ context.Context, key K) (V, error) {
	s.mu.Lock()
	s.gets++
	v, ok := s.items[key]
	getErr, onGet := s.getErr, s.onGet
	s.mu.Unlock()

	if onGet != nil {
		onGet()
	}

	var zero V
	if getErr != nil {
		return zero, getErr
	}
	if !ok {
		return zero, tier.ErrNotFound
	}
	return v.Clone(), nil
}

func (s *fakeStore[K, V]) Upsert(_ context.Context, v V) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upserts = append(s.upserts, v)
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	s.items[v.Key()] = v.Clone()
	if s.unchanged {
		return 0, nil
	}
	return 1, nil
}

func (s *fakeStore[K, V]) counts() (gets, upserts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, len(s.upserts)
}

// fakeRemote answers from a map and counts fetches. When gate is set every fetch blocks on it.
type fakeRemote[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]V
	err     error
	fetches int
	gate    chan struct{}
	started chan struct{}
}

func newFakeRemote[K comparable, V any]() *fakeRemote[K, V] {
	return &fakeRemote[K, V]{items: make(map[K]V)}
}

func (r *fakeRemote[K, V]) Fetch(_ context.Context, key K) (V, error) {
	r.mu.Lock()
	r.fetches++
	v, ok := r.items[key]
	err := r.err
	r.mu.Unlock()

	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.gate != nil {
		<-r.gate
	}

	var zero V
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, tier.ErrNotFound
	}
	return v, nil
}

func (r *fakeRemote[K, V]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

// widget is a minimal entity whose Clone can be made to panic
type widget struct {
	ID      int
	Name    string
	explode *atomic.Bool
}

func (w *widget) Key() int { return w.ID }

func (w *widget) Clone() *widget {
	if w.explode != nil && w.explode.Load() {
		panic("clone exploded")
	}
	c := *w
	return &c
}

func newWidgetResolver(t *testing.T, store tier.Store[int, *widget], remote tier.Remote[int, *widget]) *Resolver[int, *widget] {
	t.Helper()
	c, err := cache.New[int, *widget]("widget", cache.WithShards(4))
	require.NoError(t, err)
	return New[int, *widget]("widget", c, store, remote, nil, zap.NewNop())
}

func newUserResolver(t *testing.T, store tier.Store[snowflake.ID, *models.User], remote tier.Remote[snowflake.ID, *models.User]) *Resolver[snowflake.ID, *models.User] {
	t.Helper()
	c, err := cache.New[snowflake.ID, *models.User]("user")
	require.NoError(t, err)
	return New(models.KindUser, c, store, remote, nil, zap.NewNop())
}

// ============================================================================
// Tier order
// ============================================================================

func TestResolve_CacheHitShortCircuits(t *testing.T) {
	store := newFakeStore[int, *widget]()
	remote := newFakeRemote[int, *widget]()
	r := newWidgetResolver(t, store, remote)

	r.Prime(&widget{ID: 1, Name: "cached"})

	got, err := r.Resolve(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "cached", got.Name)
	gets, upserts := store.counts()
	assert.Zero(t, gets)
	assert.Zero(t, upserts)
	assert.Zero(t, remote.count())
}

func TestResolve_StoreHitFillsCache(t *testing.T) {
	store := newFakeStore[int, *widget]()
	store.items[1] = &widget{ID: 1, Name: "stored"}
	remote := newFakeRemote[int, *widget]()
	r := newWidgetResolver(t, store, remote)

	got, err := r.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "stored", got.Name)

	_, err = r.Resolve(context.Background(), 1)
	require.NoError(t, err)

	gets, _ := store.counts()
	assert.Equal(t, 1, gets)
	assert.Zero(t, remote.count())
	assert.Equal(t, uint64(1), r.Stats().StoreHits)
}

func TestResolve_BackfillThenCache(t *testing.T) {
	store := newFakeStore[int, *widget]()
	remote := newFakeRemote[int, *widget]()
	remote.items[1] = &widget{ID: 1, Name: "remote"}
	r := newWidgetResolver(t, store, remote)

	got, err := r.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "remote", got.Name)

	again, err := r.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "remote", again.Name)

	gets, upserts := store.counts()
	assert.Equal(t, 1, gets, "second resolve must not reach the store")
	assert.Equal(t, 1, upserts)
	assert.Equal(t, 1, remote.count(), "second resolve must not reach the remote")
}

func TestResolve_UserAdaExample(t *testing.T) {
	store := newFakeStore[snowflake.ID, *models.User]()
	remote := newFakeRemote[snowflake.ID, *models.User]()
	remote.items[42] = &models.User{ID: 42, Username: "Ada"}
	r := newUserResolver(t, store, remote)

	user, err := r.Resolve(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), user.ID)
	assert.Equal(t, "Ada", user.Username)

	require.Len(t, store.upserts, 1)
	assert.Equal(t, snowflake.ID(42), store.upserts[0].ID)

	getsBefore, _ := store.counts()
	fetchesBefore := remote.count()

	_, err = r.Resolve(context.Background(), 42)
	require.NoError(t, err)

	getsAfter, upsertsAfter := store.counts()
	assert.Equal(t, getsBefore, getsAfter)
	assert.Equal(t, 1, upsertsAfter)
	assert.Equal(t, fetchesBefore, remote.count())
}

// ============================================================================
// Failures
// ============================================================================

func TestResolve_TotalMissIsNotFound(t *testing.T) {
	store := newFakeStore[int, *widget]()
	remote := newFakeRemote[int, *widget]()
	r := newWidgetResolver(t, store, remote)

	_, err := r.Resolve(context.Background(), 1)

	assert.True(t, tier.IsNotFound(err))
	var remoteErr *tier.RemoteError
	assert.False(t, errors.As(err, &remoteErr))
}

func TestResolve_NilRemoteIsNotFound(t *testing.T) {
	r := newWidgetResolver(t, newFakeStore[int, *widget](), nil)

	_, err := r.Resolve(context.Background(), 1)

	assert.True(t, tier.IsNotFound(err))
}

func TestResolve_RemoteFailurePropagates(t *testing.T) {
	store := newFakeStore[int, *widget]()
	remote := newFakeRemote[int, *widget]()
	remote.err = &tier.RemoteError{Kind: "widget", Key: "1", Status: 429, RetryAfter: time.Second}
	r := newWidgetResolver(t, store, remote)

	_, err := r.Resolve(context.Background(), 1)

	var remoteErr *tier.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.True(t, remoteErr.RateLimited())
	assert.False(t, tier.IsNotFound(err))
	assert.Equal(t, uint64(1), r.Stats().RemoteFailures)
}

func TestResolve_UntypedRemoteFailureIsWrapped(t *testing.T) {
	remote := newFakeRemote[int, *widget]()
	remote.err = errors.New("connection reset")
	r := newWidgetResolver(t, newFakeStore[int, *widget](), remote)

	_, err := r.Resolve(context.Background(), 7)

	var remoteErr *tier.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, models.Kind("widget"), remoteErr.Kind)
	assert.Equal(t, "7", remoteErr.Key)
	assert.EqualError(t, remoteErr.Err, "connection reset")
}

func TestResolve_StoreFailureFallsThrough(t *testing.T) {
	store := newFakeStore[int, *widget]()
	store.getErr = &tier.DriverError{Kind: "widget", Key: "1", Op: tier.OpGet, Err: errors.New("connection refused")}
	remote := newFakeRemote[int, *widget]()
	remote.items[1] = &widget{ID: 1, Name: "remote"}
	r := newWidgetResolver(t, store, remote)

	got, err := r.Resolve(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "remote", got.Name)
	assert.Equal(t, uint64(1), r.Stats().StoreFailures)
}

func TestResolve_StoreFailureAndRemoteMissIsNotFound(t *testing.T) {
	store := newFakeStore[int, *widget]()
	store.getErr = &tier.DriverError{Kind: "widget", Key: "1", Op: tier.OpGet, Err: errors.New("boom")}
	r := newWidgetResolver(t, store, newFakeRemote[int, *widget]())

	_, err := r.Resolve(context.Background(), 1)

	assert.True(t, tier.IsNotFound(err))
	var driverErr *tier.DriverError
	assert.False(t, errors.As(err, &driverErr), "driver failures are never surfaced")
}

func TestResolve_BackfillFailureStillReturnsEntity(t *testing.T) {
	store := newFakeStore[int, *widget]()
	store.upsertErr = &tier.DriverError{Kind: "widget", Key: "1", Op: tier.OpUpsert, Err: errors.New("read only")}
	remote := newFakeRemote[int, *widget]()
	remote.items[1] = &widget{ID: 1, Name: "remote"}
	r := newWidgetResolver(t, store, remote)

	got, err := r.Resolve(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "remote", got.Name)
	assert.Equal(t, uint64(1), r.Stats().BackfillFailures)

	// The cache still serves the fetched value
	_, err = r.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.count())
}

func TestResolve_LockFaultIsMiss(t *testing.T) {
	store := newFakeStore[int, *widget]()
	store.items[1] = &widget{ID: 1, Name: "stored"}
	r := newWidgetResolver(t, store, newFakeRemote[int, *widget]())

	explode := &atomic.Bool{}
	r.Prime(&widget{ID: 1, Name: "poisoned", explode: explode})
	explode.Store(true)

	got, err := r.Resolve(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "stored", got.Name)
	gets, _ := store.counts()
	assert.Equal(t, 1, gets)
	assert.Equal(t, uint64(1), r.Stats().Cache.Faults)
}

// ============================================================================
// Keys and soft deletes
// ============================================================================

func TestResolve_MarriageKeyIsSymmetric(t *testing.T) {
	store := newFakeStore[models.MarriageKey, *models.Marriage]()
	store.items[models.NewMarriageKey(3, 8)] = &models.Marriage{UserA: 3, UserB: 8, ProposerID: 8}

	c, err := cache.New[models.MarriageKey, *models.Marriage]("marriage")
	require.NoError(t, err)
	r := New(models.KindMarriage, c, tier.Store[models.MarriageKey, *models.Marriage](store), nil,
		models.MarriageKey.Canonical, zap.NewNop())

	ab, err := r.Resolve(context.Background(), models.MarriageKey{UserA: 3, UserB: 8})
	require.NoError(t, err)
	ba, err := r.Resolve(context.Background(), models.MarriageKey{UserA: 8, UserB: 3})
	require.NoError(t, err)

	assert.Equal(t, ab.Key(), ba.Key())
	gets, _ := store.counts()
	assert.Equal(t, 1, gets, "both orders address the same cache entry")
}

func TestResolve_SoftDeletedMemberIsReturned(t *testing.T) {
	key := models.MemberKey{GuildID: 1, UserID: 2}
	leftAt := time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)

	store := newFakeStore[models.MemberKey, *models.Member]()
	store.items[key] = &models.Member{GuildID: 1, UserID: 2, LeftAt: sql.NullTime{Time: leftAt, Valid: true}}
	remote := newFakeRemote[models.MemberKey, *models.Member]()

	c, err := cache.New[models.MemberKey, *models.Member]("member")
	require.NoError(t, err)
	r := New(models.KindMember, c, tier.Store[models.MemberKey, *models.Member](store),
		tier.Remote[models.MemberKey, *models.Member](remote), nil, zap.NewNop())

	member, err := r.Resolve(context.Background(), key)

	require.NoError(t, err)
	assert.True(t, member.HasLeft())
	assert.Equal(t, leftAt, member.LeftAt.Time)
	assert.Zero(t, remote.count())
}

func TestResolve_ReturnsCopies(t *testing.T) {
	r := newWidgetResolver(t, newFakeStore[int, *widget](), nil)
	r.Prime(&widget{ID: 1, Name: "original"})

	first, err := r.Resolve(context.Background(), 1)
	require.NoError(t, err)
	first.Name = "mutated"

	second, err := r.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "original", second.Name)
}

// ============================================================================
// Coalescing
// ============================================================================

func TestResolve_CoalescesConcurrentMisses(t *testing.T) {
	const callers = 8

	var arrived sync.WaitGroup
	arrived.Add(callers)
	barrier := make(chan struct{})
	go func() {
		arrived.Wait()
		close(barrier)
	}()

	store := newFakeStore[int, *widget]()
	store.onGet = func() {
		arrived.Done()
		<-barrier
	}

	remote := newFakeRemote[int, *widget]()
	remote.items[1] = &widget{ID: 1, Name: "remote"}
	remote.gate = make(chan struct{})
	remote.started = make(chan struct{}, 1)

	r := newWidgetResolver(t, store, remote)

	results := make(chan *widget, callers)
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := r.Resolve(context.Background(), 1)
			if err != nil {
				errs <- err
				return
			}
			results <- v
		}()
	}

	<-remote.started
	// Let every caller join the in-flight fetch before it completes
	time.Sleep(50 * time.Millisecond)
	close(remote.gate)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("Resolve() failed: %v", err)
	}

	seen := make(map[*widget]bool)
	for v := range results {
		assert.Equal(t, "remote", v.Name)
		assert.False(t, seen[v], "callers must not share one instance")
		seen[v] = true
	}
	assert.Len(t, seen, callers)

	assert.Equal(t, 1, remote.count())
	_, upserts := store.counts()
	assert.Equal(t, 1, upserts)
	assert.Greater(t, r.Stats().Coalesced, uint64(0))
}

func TestResolve_CallerCancellationDoesNotAbortFetch(t *testing.T) {
	store := newFakeStore[int, *widget]()
	remote := newFakeRemote[int, *widget]()
	remote.items[1] = &widget{ID: 1, Name: "remote"}
	remote.gate = make(chan struct{})
	remote.started = make(chan struct{}, 1)
	r := newWidgetResolver(t, store, remote)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, 1)
		done <- err
	}()

	<-remote.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(remote.gate)
	require.Eventually(t, func() bool {
		_, upserts := store.counts()
		return upserts == 1
	}, time.Second, 10*time.Millisecond)

	// Once the shared fetch finished, the value is cached
	require.Eventually(t, func() bool {
		_, err := r.ResolveLocal(context.Background(), 1)
		return err == nil
	}, time.Second, 10*time.Millisecond)
}

// ============================================================================
// Local reads and writes
// ============================================================================

func TestResolveLocal(t *testing.T) {
	store := newFakeStore[int, *widget]()
	remote := newFakeRemote[int, *widget]()
	remote.items[1] = &widget{ID: 1}
	r := newWidgetResolver(t, store, remote)

	_, err := r.ResolveLocal(context.Background(), 1)
	assert.True(t, tier.IsNotFound(err))
	assert.Zero(t, remote.count())

	store.items[1] = &widget{ID: 1, Name: "stored"}
	got, err := r.ResolveLocal(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "stored", got.Name)
}

func TestResolveLocal_DriverErrorIsReturned(t *testing.T) {
	store := newFakeStore[int, *widget]()
	store.getErr = &tier.DriverError{Kind: "widget", Key: "1", Op: tier.OpGet, Err: errors.New("boom")}
	r := newWidgetResolver(t, store, nil)

	_, err := r.ResolveLocal(context.Background(), 1)

	var driverErr *tier.DriverError
	assert.True(t, errors.As(err, &driverErr))
	assert.False(t, tier.IsNotFound(err))
}

func TestWrite(t *testing.T) {
	store := newFakeStore[int, *widget]()
	r := newWidgetResolver(t, store, nil)

	rows, err := r.Write(context.Background(), &widget{ID: 1, Name: "written"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	got, err := r.ResolveLocal(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "written", got.Name)
	gets, _ := store.counts()
	assert.Zero(t, gets, "write must populate the cache")
}

func TestWrite_UnchangedRowStillRefreshesCache(t *testing.T) {
	store := newFakeStore[int, *widget]()
	store.unchanged = true
	r := newWidgetResolver(t, store, nil)
	r.Prime(&widget{ID: 1, Name: "backfilled"})

	rows, err := r.Write(context.Background(), &widget{ID: 1, Name: "stored"})
	require.NoError(t, err)
	assert.Zero(t, rows)

	got, err := r.ResolveLocal(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "stored", got.Name, "cache follows the store after an unchanged write")
}

func TestWrite_FailureLeavesCacheUntouched(t *testing.T) {
	store := newFakeStore[int, *widget]()
	store.upsertErr = errors.New("constraint violation")
	r := newWidgetResolver(t, store, nil)
	r.Prime(&widget{ID: 1, Name: "before"})

	_, err := r.Write(context.Background(), &widget{ID: 1, Name: "after"})
	require.Error(t, err)

	got, err := r.ResolveLocal(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Name)
	assert.Equal(t, uint64(1), r.Stats().WriteFailures)
}

func TestInvalidate(t *testing.T) {
	store := newFakeStore[int, *widget]()
	r := newWidgetResolver(t, store, nil)
	r.Prime(&widget{ID: 1})

	r.Invalidate(1)

	_, err := r.ResolveLocal(context.Background(), 1)
	assert.True(t, tier.IsNotFound(err))
}
