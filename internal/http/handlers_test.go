package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/pipeline"
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

func (c stubChecker) Health(context.Context) error { return c.err }

type stubPipeline struct {
	stats pipeline.Stats
}

func (p stubPipeline) Stats() pipeline.Stats { return p.stats }

func newTestServer(t *testing.T, checker HealthChecker, p PipelineStats) (*Server, *resolver.Resolvers) {
	t.Helper()
	return newObservedServer(t, checker, p, zap.NewNop())
}

func newObservedServer(t *testing.T, checker HealthChecker, p PipelineStats, logger *zap.Logger) (*Server, *resolver.Resolvers) {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)

	resolvers, err := resolver.NewResolvers(db.Stores(), tier.Remotes{}, resolver.Config{Shards: 4}, logger)
	require.NoError(t, err)

	if checker == nil {
		checker = db
	}
	server, err := NewServer(NewHandlers(checker, resolvers, p, logger), "0", logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = server.Shutdown(context.Background())
		_ = server.listener.Close()
	})
	return server, resolvers
}

func get(t *testing.T, server *Server, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v[0])
	}

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

// ============================================================================
// /health
// ============================================================================

func TestHealthHandler(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	rr := get(t, server, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestHealthHandler_StoreDown(t *testing.T) {
	server, _ := newTestServer(t, stubChecker{err: errors.New("database health check failed: connection refused")}, nil)

	rr := get(t, server, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Contains(t, body.Error, "connection refused")
}

// ============================================================================
// /stats
// ============================================================================

func TestStatsHandler(t *testing.T) {
	server, resolvers := newTestServer(t, nil, stubPipeline{stats: pipeline.Stats{Events: 3, Writes: 5, Unchanged: 1}})
	ctx := context.Background()

	_, err := resolvers.Users.Write(ctx, testutil.GenerateUser(42))
	require.NoError(t, err)
	_, err = resolvers.User(ctx, 42)
	require.NoError(t, err)
	_, err = resolvers.User(ctx, 43)
	require.True(t, tier.IsNotFound(err))

	rr := get(t, server, "/stats", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var body StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	require.Len(t, body.Resolvers, len(models.Kinds))
	users := body.Resolvers[models.KindUser]
	assert.Equal(t, uint64(1), users.Cache.Hits)
	assert.Equal(t, uint64(1), users.Cache.Misses)
	assert.Equal(t, uint64(1), users.StoreMisses)
	assert.Equal(t, uint64(1), users.Writes)

	require.NotNil(t, body.Pipeline)
	assert.Equal(t, uint64(3), body.Pipeline.Events)
	assert.Equal(t, uint64(5), body.Pipeline.Writes)
}

func TestStatsHandler_WithoutPipeline(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	rr := get(t, server, "/stats", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), `"pipeline"`)
}

// ============================================================================
// Routing & middleware
// ============================================================================

func TestRouting(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	assert.Equal(t, http.StatusNotFound, get(t, server, "/auth/callback", nil).Code)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "/stats", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRequestID(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	generated := get(t, server, "/health", nil).Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)

	requestID := testutil.GenerateRequestID()
	rr := get(t, server, "/health", http.Header{RequestIDHeader: {requestID}})
	assert.Equal(t, requestID, rr.Header().Get(RequestIDHeader))
}

func TestRequestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	server, _ := newObservedServer(t, stubChecker{err: errors.New("connection refused")}, nil, zap.New(core))
	requestID := testutil.GenerateRequestID()

	rr := get(t, server, "/health", http.Header{RequestIDHeader: {requestID}})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	warned := logs.FilterMessage("health check failed").All()
	require.Len(t, warned, 1)
	assert.Equal(t, requestID, warned[0].ContextMap()["request_id"])

	failed := logs.FilterMessage("HTTP request failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	assert.Equal(t, "http", fields["transport"])
	assert.Equal(t, "GET /health", fields["method"])
	assert.EqualValues(t, http.StatusServiceUnavailable, fields["status"])
}

func TestRecoverMiddleware(t *testing.T) {
	handler := recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "/health", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

// ============================================================================
// Listener
// ============================================================================

func TestServe(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	done := make(chan error, 1)
	go func() { done <- server.Serve() }()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+server.Addr().String()+"/health", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, server.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}
