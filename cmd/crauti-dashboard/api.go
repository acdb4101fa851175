package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcourtman/crauti-dashboard/internal/display"
	"github.com/rcourtman/crauti-dashboard/internal/logging"
	"github.com/rcourtman/crauti-dashboard/internal/models"
	"github.com/rcourtman/crauti-dashboard/internal/monitoring"
	"github.com/rcourtman/crauti-dashboard/internal/resolver"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// snapshotSource is the part of the store the API reads.
type snapshotSource interface {
	Snapshot() monitoring.Snapshot
	State() monitoring.State
	Freshness() monitoring.Freshness
	Config() models.GlobalConfig
}

type apiServer struct {
	store    snapshotSource
	resolver resolver.Resolver
	logger   zerolog.Logger
}

type snapshotResponse struct {
	State     monitoring.State     `json:"state"`
	Revision  string               `json:"revision,omitempty"`
	FetchedAt *time.Time           `json:"fetchedAt,omitempty"`
	Freshness monitoring.Freshness `json:"freshness"`
	Config    models.GlobalConfig  `json:"config"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newAPIHandler builds the read-only HTTP API. When gatherer is non-nil
// /metrics is served on the same listener.
func newAPIHandler(store snapshotSource, gatherer prometheus.Gatherer) http.Handler {
	s := &apiServer{
		store:    store,
		resolver: resolver.NewLocal(store),
		logger:   logging.WithComponent("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/config.yaml", s.handleConfigYAML)
	mux.HandleFunc("GET /api/mount-points", s.handleMountPoints)
	mux.HandleFunc("GET /api/mount-point", s.handleMountPoint)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return withRequestID(mux)
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, id := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	fresh := s.store.Freshness()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"state":               s.store.State(),
		"consecutiveFailures": fresh.ConsecutiveFailures,
		"stalenessSeconds":    fresh.StalenessSeconds,
	})
}

func (s *apiServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	resp := snapshotResponse{
		State:     s.store.State(),
		Revision:  snap.Revision,
		Freshness: s.store.Freshness(),
		Config:    snap.Config,
	}
	if snap.Published() {
		resp.FetchedAt = &snap.FetchedAt
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (s *apiServer) handleConfigYAML(w http.ResponseWriter, r *http.Request) {
	text, err := display.GlobalYAML(s.store.Config())
	if err != nil {
		reqLogger := logging.ForRequest(r.Context(), s.logger)
		reqLogger.Error().Err(err).Msg("Failed to render global config")
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Error: "failed to render config"})
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (s *apiServer) handleMountPoints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := display.MountPointViews(resolver.Filter(s.store.Config(), q.Get("path"), q.Get("host")))
	if err != nil {
		reqLogger := logging.ForRequest(r.Context(), s.logger)
		reqLogger.Error().Err(err).Msg("Failed to render mount points")
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Error: "failed to render mount points"})
		return
	}
	writeJSONResponse(w, http.StatusOK, views)
}

func (s *apiServer) handleMountPoint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := resolver.Query{
		Path:        q.Get("path"),
		Host:        q.Get("host"),
		RequireHost: q.Get("requireHost") == "true",
	}
	if query.Path == "" {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: "path is required"})
		return
	}

	mp, err := s.resolver.Resolve(r.Context(), query)
	if err != nil {
		reqLogger := logging.ForRequest(r.Context(), s.logger)
		reqLogger.Warn().Err(err).Str("path", query.Path).Msg("Mount point lookup failed")
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if !mp.Found() {
		writeJSONResponse(w, http.StatusNotFound, errorResponse{Error: "no mount point matches"})
		return
	}

	view, err := display.NewMountPointView(mp)
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"mountPoint": mp,
		"view":       view,
	})
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}
