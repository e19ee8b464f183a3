package ingest

import (
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/phkit/pkg/logger"
)

// EventPaths are the routes whose events go to the Sink.
var EventPaths = []string{"/e", "/batch", "/i/v0/e", "/s"}

type routerConfig struct {
	log         *slog.Logger
	flags       map[string]any
	payloads    map[string]any
	maxBodySize int64
}

// Option configures the router.
type Option func(*routerConfig)

func WithLogger(l *slog.Logger) Option {
	return func(c *routerConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithFlags sets the flags /flags/ answers with.
func WithFlags(flags map[string]any) Option {
	return func(c *routerConfig) { c.flags = maps.Clone(flags) }
}

// WithFlagPayloads sets the payloads /flags/ answers with.
func WithFlagPayloads(payloads map[string]any) Option {
	return func(c *routerConfig) { c.payloads = maps.Clone(payloads) }
}

// WithMaxBodySize limits request bodies.
func WithMaxBodySize(n int64) Option {
	return func(c *routerConfig) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// Router returns the ingestion routes backed by sink.
func Router(sink Sink, opts ...Option) chi.Router {
	cfg := &routerConfig{
		log:         slog.Default(),
		flags:       map[string]any{},
		payloads:    map[string]any{},
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	log := cfg.log.With(logger.Component("ingest"))

	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Recoverer)

	for _, path := range EventPaths {
		r.Post(path, eventsHandler(path, sink, cfg.maxBodySize, log))
	}
	r.Post("/flags", flagsHandler(cfg, log))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ALIVE"))
	})

	return r
}

func eventsHandler(path string, sink Sink, maxBody int64, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := Decode(r, maxBody)
		if err != nil {
			log.WarnContext(r.Context(), "rejected payload", slog.String("path", path), logger.Error(err))
			status := http.StatusInternalServerError
			if isBadRequest(err) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]any{"status": 0, "error": err.Error()})
			return
		}

		stampIP(events, requestIP(r))

		if err := sink.Ingest(r.Context(), path, events); err != nil {
			log.ErrorContext(r.Context(), "sink failed", slog.String("path", path), logger.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": 0, "error": "sink unavailable"})
			return
		}

		for _, e := range events {
			log.DebugContext(r.Context(), "event received", slog.String("path", path), logger.Event(eventName(e)))
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": 1})
	}
}

func flagsHandler(cfg *routerConfig, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := Decode(r, cfg.maxBodySize)
		if err != nil || len(req) != 1 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": 0, "error": "invalid flags request"})
			return
		}
		distinctID, _ := req[0]["distinct_id"].(string)
		log.DebugContext(r.Context(), "flags requested", logger.DistinctID(distinctID))

		writeJSON(w, http.StatusOK, map[string]any{
			"featureFlags":              cfg.flags,
			"featureFlagPayloads":       cfg.payloads,
			"errorsWhileComputingFlags": false,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
