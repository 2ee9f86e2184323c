// Package http serves the operational endpoints: store health and resolver/pipeline counters.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/pipeline"
	"github.com/parsascontentcorner/discordlitesync/internal/resolver"
	"github.com/parsascontentcorner/discordlitesync/pkg/logger"
)

// HealthChecker reports whether the entity store is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ResolverStats reports per-kind resolver counters
type ResolverStats interface {
	Stats() map[models.Kind]resolver.Stats
}

// PipelineStats reports sync pipeline counters
type PipelineStats interface {
	Stats() pipeline.Stats
}

// Handlers contains all HTTP handlers
type Handlers struct {
	checker   HealthChecker
	resolvers ResolverStats
	pipeline  PipelineStats
	logger    *zap.Logger
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StatsResponse is the body of /stats
type StatsResponse struct {
	Resolvers map[models.Kind]resolver.Stats `json:"resolvers"`
	Pipeline  *pipeline.Stats                `json:"pipeline,omitempty"`
}

// NewHandlers creates a new handlers instance. p may be nil when no pipeline runs
func NewHandlers(checker HealthChecker, resolvers ResolverStats, p PipelineStats, log *zap.Logger) *Handlers {
	return &Handlers{
		checker:   checker,
		resolvers: resolvers,
		pipeline:  p,
		logger:    log,
	}
}

// HealthHandler pings the entity store
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.checker.Health(r.Context()); err != nil {
		logger.FromContext(r.Context(), h.logger).Warn("health check failed", zap.Error(err))
		h.writeJSON(w, r, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	h.writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}

// StatsHandler reports the cache, store and remote counters of every kind and the pipeline counters
func (h *Handlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Resolvers: h.resolvers.Stats()}
	if h.pipeline != nil {
		stats := h.pipeline.Stats()
		resp.Pipeline = &stats
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context(), h.logger).Error("failed to write response", zap.Error(err))
	}
}
