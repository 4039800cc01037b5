package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/ticketbridge/internal/store"
	"github.com/erauner12/ticketbridge/internal/webhook"
)

// Server holds dependencies for the ops HTTP surface.
type Server struct {
	Store    *store.Store
	Consumer *webhook.Consumer
	Registry *prometheus.Registry
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// Routes creates the ops router: health, stats, metrics and the
// JWT-guarded admin endpoints.
func (s *Server) Routes(adminJWT AdminJWTCfg) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(adminAuth(adminJWT))
		r.Post("/v1/admin/cache/clear", s.handleCacheClear)
		r.Post("/v1/admin/cache/sweep", s.handleCacheSweep)
	})

	return r
}

// handleHealth reports per-tier storage health plus the consumer state.
// Any unhealthy required backend turns the whole response 503; redis is
// best-effort and only degrades.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tiers := s.Store.Cache().HealthCheck(r.Context())

	resp := map[string]any{
		"tiers":    tiers,
		"consumer": s.Consumer.Health(),
	}

	code := http.StatusOK
	if !tiers["postgres"] {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.Cache().Stats())
}

type cacheClearReq struct {
	Pattern string `json:"pattern"`
	ID      string `json:"id"`
}

// handleCacheClear deletes a single cached entry. The pattern is
// validated against the store's enum before it touches the key space.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	var req cacheClearReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}

	err := s.Store.ClearCache(r.Context(), store.ClearPattern(req.Pattern), req.ID)
	if err != nil {
		if errors.Is(err, store.ErrUnknownPattern) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("pattern", req.Pattern).Msg("cache clear failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache clear failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleCacheSweep runs the durable-tier TTL sweep on demand.
func (s *Server) handleCacheSweep(w http.ResponseWriter, r *http.Request) {
	removed, err := s.Store.Cache().Sweep(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("cache sweep failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sweep failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
