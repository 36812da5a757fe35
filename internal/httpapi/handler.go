// Package httpapi exposes the public HTTP surface: album pages, the media
// proxy endpoint and operational routes.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/albumforge/albumforge/internal/domain/album"
	"github.com/albumforge/albumforge/internal/metrics"
	"github.com/albumforge/albumforge/internal/proxy"
	"github.com/albumforge/albumforge/internal/storage"
	"github.com/albumforge/albumforge/pkg/logger"
)

// mediaCacheControl lets browsers and CDNs keep proxied media for an hour.
const mediaCacheControl = "public, max-age=3600"

// Config tunes the HTTP surface.
type Config struct {
	RatePerSecond int
	RateBurst     int
}

// Handler serves the public HTTP API.
type Handler struct {
	store   storage.AlbumStore
	proxy   *proxy.Service
	limiter *rateLimiter
	log     *logger.Logger
}

func New(store storage.AlbumStore, proxySvc *proxy.Service, cfg Config, log *logger.Logger) *Handler {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 2 * cfg.RatePerSecond
	}
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{
		store:   store,
		proxy:   proxySvc,
		limiter: newRateLimiter(cfg.RatePerSecond, cfg.RateBurst),
		log:     log,
	}
}

// Router builds the route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(h.limiter.Handler)

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/media/{reference}", h.handleMedia)
	r.Get("/album/{albumID}", h.handleAlbum)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMedia proxies one media item. It always answers 200 with renderable
// bytes; upstream trouble degrades to the placeholder image.
func (h *Handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing media reference"))
		return
	}

	data, contentType := h.proxy.FetchAndServe(r.Context(), reference)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", mediaCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleAlbum renders a completed album. Wrong tokens and unknown albums are
// indistinguishable from the outside.
func (h *Handler) handleAlbum(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "albumID")
	token := r.URL.Query().Get("token")

	alb, err := h.store.GetAlbum(r.Context(), albumID)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("album_id", albumID).Error("album lookup failed")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	if alb.Status != album.StatusCompleted || !tokenMatches(alb.AccessToken, token) {
		http.NotFound(w, r)
		return
	}

	groups, err := h.store.ListGroups(r.Context(), alb.ID)
	if err != nil {
		h.log.WithError(err).WithField("album_id", albumID).Error("group listing failed")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := albumTemplate.Execute(w, albumPage{Groups: groups}); err != nil {
		h.log.WithError(err).WithField("album_id", albumID).Error("album render failed")
	}
}

type albumPage struct {
	Groups []album.Group
}

func tokenMatches(want, got string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// Server wraps the handler in an http.Server managed by the system manager.
type Server struct {
	srv *http.Server
	log *logger.Logger
}

func NewServer(addr string, handler http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Server{
		srv: &http.Server{Addr: addr, Handler: handler},
		log: log,
	}
}

// Name implements system.Service.
func (s *Server) Name() string { return "httpapi" }

// Start implements system.Service.
func (s *Server) Start(context.Context) error {
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server stopped")
		}
	}()
	return nil
}

// Stop implements system.Service.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
