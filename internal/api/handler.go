// Package api is the local operator surface: health, session control, pack
// inspection, rule previews and recent diagnostics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/scoutcue/internal/audio"
	"github.com/gyaneshwarpardhi/scoutcue/internal/diag"
	"github.com/gyaneshwarpardhi/scoutcue/internal/engine"
	"github.com/gyaneshwarpardhi/scoutcue/internal/matchctx"
	"github.com/gyaneshwarpardhi/scoutcue/internal/mediacache"
	"github.com/gyaneshwarpardhi/scoutcue/internal/poller"
	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

const (
	defaultDiagLimit = 50
	maxDiagLimit     = 500
)

// Sessions starts and stops monitoring.
type Sessions interface {
	Start() (*poller.Session, error)
	Stop() bool
	Current() *poller.Session
}

// Packs serves the current sound pack.
type Packs interface {
	Pack() *soundpack.Pack
	Reload() (*soundpack.Pack, error)
}

// MediaCache resolves sources for previews.
type MediaCache interface {
	Resolve(ctx context.Context, src soundpack.Source) (string, error)
	Stats() mediacache.Stats
}

// Diagnostics holds recent diagnostic lines.
type Diagnostics interface {
	Recent(n int) []diag.Line
}

// Deps are the collaborators the handler serves.
type Deps struct {
	Sessions Sessions
	Packs    Packs
	Cache    MediaCache
	Sink     audio.Sink
	Diag     Diagnostics
	Logger   *slog.Logger
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	Deps
}

// New creates an HTTP handler and registers all routes.
func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &Handler{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/pack", h.pack)
		r.Post("/pack/reload", h.reloadPack)
		r.Post("/preview", h.preview)
		r.Post("/preview/sound", h.previewSound)
		r.Get("/diagnostics", h.diagnostics)
		r.Post("/session/start", h.startSession)
		r.Post("/session/stop", h.stopSession)
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

// GET /healthz: always 200, for liveness checks.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 while no session is monitoring.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.Sessions.Current() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "idle"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type sessionView struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Watermark *int64    `json:"watermark"`
	Processed int64     `json:"processed"`
}

func viewOf(s *poller.Session) *sessionView {
	if s == nil {
		return nil
	}
	v := &sessionView{ID: s.ID(), State: s.State().String(), StartedAt: s.StartedAt(), Processed: s.Processed()}
	if mark, ok := s.Watermark(); ok {
		v.Watermark = &mark
	}
	return v
}

// GET /v1/status
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"session": viewOf(h.Sessions.Current())}
	if h.Cache != nil {
		body["cache"] = h.Cache.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// GET /v1/pack
func (h *Handler) pack(w http.ResponseWriter, r *http.Request) {
	p := h.Packs.Pack()
	writeJSON(w, http.StatusOK, p)
}

// POST /v1/pack/reload: re-read the pack file. Running sessions keep theirs.
func (h *Handler) reloadPack(w http.ResponseWriter, r *http.Request) {
	p, err := h.Packs.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":    true,
		"id":          p.ID,
		"rules_count": len(p.Rules),
	})
}

type previewResponse struct {
	Matched  bool             `json:"matched"`
	Decision *engine.Decision `json:"decision,omitempty"`
	Path     string           `json:"path,omitempty"`
}

// POST /v1/preview[?play=true]: decide a sound for a posted event context
// with the current pack, optionally playing it.
func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var ec matchctx.EventContext
	if !decodeBody(w, r, &ec) {
		return
	}
	if !ec.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "kind must be one of the supported event kinds")
		return
	}
	eng, err := engine.New(h.Packs.Pack())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	d, ok := eng.Decide(ec)
	if !ok {
		writeJSON(w, http.StatusOK, previewResponse{})
		return
	}
	resp := previewResponse{Matched: true, Decision: &d}
	if play, _ := strconv.ParseBool(r.URL.Query().Get("play")); play {
		path, status, err := h.play(r.Context(), d.Entry.Source, d.Volume)
		if err != nil {
			writeError(w, status, err.Error())
			return
		}
		resp.Path = path
	}
	writeJSON(w, http.StatusOK, resp)
}

type soundRequest struct {
	Source soundpack.Source `json:"source"`
	Volume *float64         `json:"volume"`
}

// POST /v1/preview/sound: resolve and play one source, as the pack editor does.
func (h *Handler) previewSound(w http.ResponseWriter, r *http.Request) {
	var req soundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Source.String() == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	volume := 1.0
	if req.Volume != nil {
		volume = *req.Volume
	}
	path, status, err := h.play(r.Context(), req.Source, volume)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "volume": volume})
}

func (h *Handler) play(ctx context.Context, src soundpack.Source, volume float64) (string, int, error) {
	if h.Cache == nil || h.Sink == nil {
		return "", http.StatusNotImplemented, errors.New("playback is not configured")
	}
	path, err := h.Cache.Resolve(ctx, src)
	switch {
	case errors.Is(err, mediacache.ErrNotFound):
		return "", http.StatusNotFound, err
	case err != nil:
		return "", http.StatusBadGateway, err
	}
	if err := h.Sink.Play(ctx, path, volume); err != nil {
		return "", http.StatusInternalServerError, err
	}
	return path, http.StatusOK, nil
}

// GET /v1/diagnostics?limit=n: most recent lines, oldest first.
func (h *Handler) diagnostics(w http.ResponseWriter, r *http.Request) {
	limit := defaultDiagLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxDiagLimit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": h.Diag.Recent(limit)})
}

// POST /v1/session/start
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Start()
	switch {
	case errors.Is(err, poller.ErrRunning):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "session": viewOf(s)})
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"session": viewOf(s)})
}

// POST /v1/session/stop: waits for the cycle in flight.
func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	if !h.Sessions.Stop() {
		writeError(w, http.StatusConflict, "no session is running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}
