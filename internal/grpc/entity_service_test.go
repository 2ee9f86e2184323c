package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/parsascontentcorner/discordlitesync/internal/database"
	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/resolver"
	"github.com/parsascontentcorner/discordlitesync/internal/testutil"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
)

// ============================================================================
// Test Setup & Helpers
// ============================================================================

type stubChecker struct {
	err error
}

func (c *stubChecker) Health(context.Context) error { return c.err }

type testEntityService struct {
	db      *database.DB
	server  *Server
	client  *EntityClient
	health  healthpb.HealthClient
	checker *stubChecker
}

func setupEntityServiceTest(t *testing.T, remotes tier.Remotes) *testEntityService {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)
	logger := zap.NewNop()

	resolvers, err := resolver.NewResolvers(db.Stores(), remotes, resolver.Config{Shards: 4}, logger)
	require.NoError(t, err)

	checker := &stubChecker{}
	server, err := NewServer(NewEntityServer(resolvers, logger), checker, "0", logger)
	require.NoError(t, err)

	go func() { _ = server.Serve() }()
	t.Cleanup(server.Stop)

	_, port, err := net.SplitHostPort(server.Addr().String())
	require.NoError(t, err)

	conn, err := grpc.NewClient("127.0.0.1:"+port, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testEntityService{
		db:      db,
		server:  server,
		client:  NewEntityClient(conn),
		health:  healthpb.NewHealthClient(conn),
		checker: checker,
	}
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func resolveCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================================
// Resolve
// ============================================================================

func TestResolve_User(t *testing.T) {
	ts := setupEntityServiceTest(t, tier.Remotes{})
	ctx := resolveCtx(t)

	_, err := ts.db.UpsertUser(ctx, testutil.GenerateUser(42))
	require.NoError(t, err)

	resp, err := ts.client.Resolve(ctx, request(t, map[string]any{"kind": "user", "id": "42"}))

	require.NoError(t, err)
	fields := resp.GetFields()
	assert.Equal(t, "user", fields["kind"].GetStringValue())
	assert.Equal(t, "42", fields["id"].GetStringValue())
	assert.Equal(t, "testuser_42", fields["username"].GetStringValue())
}

func TestResolve_NumericID(t *testing.T) {
	ts := setupEntityServiceTest(t, tier.Remotes{})
	ctx := resolveCtx(t)

	_, err := ts.db.UpsertChannel(ctx, testutil.GenerateChannel(3, 1))
	require.NoError(t, err)

	resp, err := ts.client.Resolve(ctx, request(t, map[string]any{"kind": "channel", "id": 3}))

	require.NoError(t, err)
	assert.Equal(t, "3", resp.GetFields()["id"].GetStringValue())
}

func TestResolve_Member(t *testing.T) {
	ts := setupEntityServiceTest(t, tier.Remotes{})
	ctx := resolveCtx(t)

	_, err := ts.db.UpsertMember(ctx, testutil.GenerateLeftMember(1, 2, testutil.FixedTime))
	require.NoError(t, err)

	resp, err := ts.client.Resolve(ctx, request(t, map[string]any{
		"kind":     "member",
		"guild_id": "1",
		"user_id":  "2",
	}))

	require.NoError(t, err)
	assert.Equal(t, "nick_2", resp.GetFields()["nick"].GetStringValue())
}

func TestResolve_MarriageEitherOrder(t *testing.T) {
	ts := setupEntityServiceTest(t, tier.Remotes{})
	ctx := resolveCtx(t)

	_, err := ts.db.UpsertMarriage(ctx, testutil.GenerateMarriage(10, 20))
	require.NoError(t, err)

	for _, pair := range [][2]string{{"10", "20"}, {"20", "10"}} {
		resp, err := ts.client.Resolve(ctx, request(t, map[string]any{
			"kind":   "marriage",
			"user_a": pair[0],
			"user_b": pair[1],
		}))

		require.NoError(t, err)
		assert.Equal(t, "10", resp.GetFields()["user_a"].GetStringValue())
		assert.Equal(t, "20", resp.GetFields()["user_b"].GetStringValue())
	}
}

func TestResolve_CharacterCaseInsensitive(t *testing.T) {
	ts := setupEntityServiceTest(t, tier.Remotes{})
	ctx := resolveCtx(t)

	_, err := ts.db.UpsertCharacter(ctx, testutil.GenerateCharacter(7, "Aria"))
	require.NoError(t, err)

	resp, err := ts.client.Resolve(ctx, request(t, map[string]any{
		"kind":    "character",
		"user_id": "7",
		"name":    "ARIA",
	}))

	require.NoError(t, err)
	assert.Equal(t, "Aria", resp.GetFields()["display_name"].GetStringValue())
}

func TestResolve_NotFound(t *testing.T) {
	ts := setupEntityServiceTest(t, tier.Remotes{})

	_, err := ts.client.Resolve(resolveCtx(t), request(t, map[string]any{"kind": "quote", "id": "99"}))

	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestResolve_InvalidRequests(t *testing.T) {
	ts := setupEntityServiceTest(t, tier.Remotes{})

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"missing kind", map[string]any{"id": "1"}},
		{"unknown kind", map[string]any{"kind": "emoji", "id": "1"}},
		{"missing key field", map[string]any{"kind": "member", "guild_id": "1"}},
		{"non-numeric id", map[string]any{"kind": "user", "id": "abc"}},
		{"zero id", map[string]any{"kind": "user", "id": "0"}},
		{"fractional id", map[string]any{"kind": "user", "id": 1.5}},
		{"negative id", map[string]any{"kind": "user", "id": -1}},
		{"bool id", map[string]any{"kind": "user", "id": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.client.Resolve(resolveCtx(t), request(t, tt.fields))

			require.Error(t, err)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestResolve_RemoteFailure(t *testing.T) {
	remotes := tier.Remotes{
		Users: tier.RemoteFunc[snowflake.ID, *models.User](func(_ context.Context, id snowflake.ID) (*models.User, error) {
			return nil, &tier.RemoteError{
				Kind:       models.KindUser,
				Key:        id.String(),
				Status:     429,
				RetryAfter: 1500 * time.Millisecond,
				Err:        errors.New("rate limited"),
			}
		}),
	}
	ts := setupEntityServiceTest(t, remotes)

	_, err := ts.client.Resolve(resolveCtx(t), request(t, map[string]any{"kind": "user", "id": "42"}))

	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "retry after 1.5s")
}

func TestResolve_RequestID(t *testing.T) {
	ts := setupEntityServiceTest(t, tier.Remotes{})
	ctx := resolveCtx(t)

	var header metadata.MD
	_, _ = ts.client.Resolve(ctx, request(t, map[string]any{"kind": "user", "id": "1"}), grpc.Header(&header))
	generated := header.Get(RequestIDHeader)
	require.Len(t, generated, 1)
	assert.NotEmpty(t, generated[0])

	requestID := testutil.GenerateRequestID()
	ctx = metadata.AppendToOutgoingContext(ctx, RequestIDHeader, requestID)
	_, _ = ts.client.Resolve(ctx, request(t, map[string]any{"kind": "user", "id": "1"}), grpc.Header(&header))
	assert.Equal(t, []string{requestID}, header.Get(RequestIDHeader))
}

// ============================================================================
// Health
// ============================================================================

func TestHealth_FollowsStore(t *testing.T) {
	ts := setupEntityServiceTest(t, tier.Remotes{})
	ctx := resolveCtx(t)

	assert.True(t, ts.server.CheckHealth(ctx))
	resp, err := ts.health.Check(ctx, &healthpb.HealthCheckRequest{Service: EntityServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	ts.checker.err = errors.New("connection refused")
	assert.False(t, ts.server.CheckHealth(ctx))
	resp, err = ts.health.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

// ============================================================================
// Error mapping
// ============================================================================

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", tier.ErrNotFound, codes.NotFound},
		{"invalid key", resolver.ErrInvalidKey, codes.InvalidArgument},
		{"remote", &tier.RemoteError{Kind: models.KindGuild, Key: "1", Status: 502, Err: errors.New("bad gateway")}, codes.Unavailable},
		{"cancelled", context.Canceled, codes.Canceled},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"other", errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(toStatus(tt.err)))
		})
	}
}
