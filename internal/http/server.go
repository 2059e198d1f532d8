// Package http exposes the scrobbling API consumed by the browser extension,
// the auth callbacks, and the observability endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"scrobblerd/internal/controller"
	"scrobblerd/internal/core"
	"scrobblerd/internal/scrobbler"
)

type Server struct {
	config     *core.ServerConfig
	logger     *zap.Logger
	server     *http.Server
	metrics    *Metrics
	controller *controller.Controller
	manager    *scrobbler.Manager
}

type Metrics struct {
	registry         *prometheus.Registry
	EventsTotal      *prometheus.CounterVec
	DispatchFailures *prometheus.CounterVec
	DuplicatesTotal  prometheus.Counter
	ProcessingTime   *prometheus.HistogramVec
	BoundScrobblers  prometheus.Gauge
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrobblerd_events_total",
				Help: "Total number of listening events processed",
			},
			[]string{"op", "status"},
		),
		DispatchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrobblerd_dispatch_failures_total",
				Help: "Total number of failed backend calls",
			},
			[]string{"scrobbler", "kind"},
		),
		DuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scrobblerd_duplicates_total",
				Help: "Total number of duplicate scrobbles suppressed",
			},
		),
		ProcessingTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrobblerd_processing_duration_seconds",
				Help:    "Time spent handling listening events",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		BoundScrobblers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrobblerd_bound_scrobblers",
				Help: "Number of currently bound scrobblers",
			},
		),
	}

	m.registry.MustRegister(
		m.EventsTotal,
		m.DispatchFailures,
		m.DuplicatesTotal,
		m.ProcessingTime,
		m.BoundScrobblers,
	)
	return m
}

func NewServer(config *core.ServerConfig, logger *zap.Logger, ctrl *controller.Controller, manager *scrobbler.Manager) *Server {
	s := &Server{
		config:     config,
		logger:     logger,
		metrics:    newMetrics(),
		controller: ctrl,
		manager:    manager,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.routes(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/nowplaying", s.handleEvent("nowplaying", func(ctx context.Context, raw core.RawSong) (*controller.Outcome, error) {
		return s.controller.NowPlaying(ctx, raw)
	}))
	mux.HandleFunc("POST /api/scrobble", s.handleEvent("scrobble", func(ctx context.Context, raw core.RawSong) (*controller.Outcome, error) {
		return s.controller.Scrobble(ctx, raw)
	}))
	mux.HandleFunc("POST /api/love", s.handleLove)
	mux.HandleFunc("POST /api/correct", s.handleCorrect)
	mux.HandleFunc("POST /api/retry", s.handleRetry)
	mux.HandleFunc("GET /api/scrobblers", s.handleScrobblers)
	mux.HandleFunc("GET /api/scrobblers/{id}/authurl", s.handleAuthURL)
	mux.HandleFunc("POST /api/scrobblers/{id}/properties", s.handleScrobblerProperties)
	mux.HandleFunc("POST /api/scrobblers/{id}/signout", s.handleScrobblerSignOut)
	mux.HandleFunc("GET /auth/lastfm/callback", s.handleLastFMCallback)
	mux.HandleFunc("GET /auth/spotify/callback", s.handleSpotifyCallback)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"scrobblerd"}`))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"scrobblerd"}`))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	return mux
}

func (s *Server) handleEvent(op string, call func(context.Context, core.RawSong) (*controller.Outcome, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw core.RawSong
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode song: %w", err))
			return
		}

		start := time.Now()
		out, err := call(r.Context(), raw)
		s.metrics.ProcessingTime.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.EventsTotal.WithLabelValues(op, "error").Inc()
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}

		s.recordOutcome(op, out)
		s.writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleLove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Song  core.RawSong `json:"song"`
		Loved bool         `json:"loved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	out, err := s.controller.Love(r.Context(), req.Song, req.Loved)
	if err != nil {
		s.metrics.EventsTotal.WithLabelValues("love", "error").Inc()
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.recordOutcome("love", out)
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Song core.RawSong `json:"song"`
		Edit core.Edit    `json:"edit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	out, err := s.controller.Correct(r.Context(), req.Song, req.Edit)
	if err != nil {
		s.metrics.EventsTotal.WithLabelValues("correct", "error").Inc()
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.recordOutcome("correct", out)
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Song         core.RawSong `json:"song"`
		ScrobblerIDs []string     `json:"scrobblerIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	out, err := s.controller.Retry(r.Context(), req.Song, req.ScrobblerIDs)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scrobbler.ErrUnknownScrobbler) {
			status = http.StatusBadRequest
		}
		s.metrics.EventsTotal.WithLabelValues("retry", "error").Inc()
		s.writeError(w, status, err)
		return
	}

	s.recordOutcome("retry", out)
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleScrobblers(w http.ResponseWriter, r *http.Request) {
	s.metrics.BoundScrobblers.Set(float64(len(s.manager.Bound())))
	s.writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	target, ok := s.manager.ByID(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, scrobbler.ErrUnknownScrobbler)
		return
	}

	authURL, err := target.GetAuthURL(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"authUrl": authURL})
}

// handleScrobblerProperties applies backend-specific settings like a custom
// API root or a new token. Settings invalidate whatever session the backend
// held, so a rebind runs right away and the response reports whether the new
// settings actually work.
func (s *Server) handleScrobblerProperties(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	target, ok := s.manager.ByID(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, scrobbler.ErrUnknownScrobbler)
		return
	}

	var props scrobbler.Props
	if err := json.NewDecoder(r.Body).Decode(&props); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode properties: %w", err))
		return
	}
	if err := target.ApplyUserProperties(props); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.manager.Unbind(target)
	bound := s.manager.BindByID(r.Context(), id) == nil
	s.metrics.BoundScrobblers.Set(float64(len(s.manager.Bound())))
	s.writeJSON(w, http.StatusOK, map[string]any{"scrobbler": id, "bound": bound})
}

func (s *Server) handleScrobblerSignOut(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	target, ok := s.manager.ByID(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, scrobbler.ErrUnknownScrobbler)
		return
	}

	target.SignOut()
	s.manager.Unbind(target)
	s.metrics.BoundScrobblers.Set(float64(len(s.manager.Bound())))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "signedout", "scrobbler": id})
}

// handleLastFMCallback is hit after the user grants access on the Last.fm
// site. The pending token was stored by the auth-url request; binding
// redeems it.
func (s *Server) handleLastFMCallback(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.BindByID(r.Context(), "lastfm"); err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Errorf("bind lastfm: %w", err))
		return
	}
	s.metrics.BoundScrobblers.Set(float64(len(s.manager.Bound())))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "bound", "scrobbler": "lastfm"})
}

type spotifyAuthCompleter interface {
	CompleteAuth(code, state string) error
}

func (s *Server) handleSpotifyCallback(w http.ResponseWriter, r *http.Request) {
	target, ok := s.manager.ByID("spotify")
	if !ok {
		s.writeError(w, http.StatusNotFound, scrobbler.ErrUnknownScrobbler)
		return
	}
	completer, ok := target.(spotifyAuthCompleter)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("spotify backend cannot complete auth"))
		return
	}

	if err := completer.CompleteAuth(r.URL.Query().Get("code"), r.URL.Query().Get("state")); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.manager.BindByID(r.Context(), "spotify"); err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Errorf("bind spotify: %w", err))
		return
	}
	s.metrics.BoundScrobblers.Set(float64(len(s.manager.Bound())))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "bound", "scrobbler": "spotify"})
}

func (s *Server) recordOutcome(op string, out *controller.Outcome) {
	status := "ok"
	switch {
	case !out.Song.Valid:
		status = "invalid"
	case out.Duplicate:
		status = "duplicate"
		s.metrics.DuplicatesTotal.Inc()
	}
	s.metrics.EventsTotal.WithLabelValues(op, status).Inc()

	for _, r := range out.Results {
		if r.Status != "ok" {
			s.metrics.DispatchFailures.WithLabelValues(r.ScrobblerID, r.Status).Inc()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("Request failed", zap.Int("status", status), zap.Error(err))
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// SetBoundScrobblers refreshes the bound-backends gauge, called by the run
// loop's ticker.
func (s *Server) SetBoundScrobblers(count int) {
	s.metrics.BoundScrobblers.Set(float64(count))
}
