package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/wudi/hitcounter/internal/counter"
	"github.com/wudi/hitcounter/internal/errors"
	"github.com/wudi/hitcounter/internal/logging"
	"github.com/wudi/hitcounter/internal/middleware"
)

// maxHitsLimit caps ?limit on the hits viewer.
const maxHitsLimit = 1000

// readinessKey is read, never written, by /readyz.
const readinessKey = "/"

// AdminHandler returns the admin API: health, metrics and the read-only hits
// viewer. The hits listing is gzip-compressed when the client accepts it.
func (g *Gateway) AdminHandler() http.Handler {
	r := httprouter.New()

	r.HandlerFunc(http.MethodGet, "/healthz", g.handleHealth)
	r.HandlerFunc(http.MethodGet, "/readyz", g.handleReady)
	r.HandlerFunc(http.MethodGet, "/stats", g.handleStats)
	r.Handler(http.MethodGet, "/metrics", g.metrics.Handler())
	r.Handler(http.MethodGet, "/hits", gzhttp.GzipHandler(http.HandlerFunc(g.handleHits)))
	r.HandlerFunc(http.MethodGet, "/hits/*path", g.handleHit)

	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		errors.WriteStatus(w, http.StatusNotFound, middleware.RequestIDFromContext(req.Context()))
	})

	return middleware.NewChain(
		middleware.RequestID(),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			SkipPaths: []string{"/healthz", "/readyz", "/metrics"},
		}),
		middleware.Recovery(),
	).Then(r)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := g.store.Get(ctx, readinessKey); err != nil {
		logging.Warn("Readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.Stats())
}

func (g *Gateway) handleHits(w http.ResponseWriter, r *http.Request) {
	limit := g.config.Admin.HitsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errors.WriteStatus(w, http.StatusBadRequest, middleware.RequestIDFromContext(r.Context()))
			return
		}
		limit = n
	}
	if limit <= 0 || limit > maxHitsLimit {
		limit = maxHitsLimit
	}

	match := r.URL.Query().Get("match")
	records, err := counter.ListMatching(r.Context(), g.store, match, limit)
	if stderrors.Is(err, counter.ErrInvalidPattern) {
		errors.WriteStatus(w, http.StatusBadRequest, middleware.RequestIDFromContext(r.Context()))
		return
	}
	if err != nil {
		logging.Error("Listing hits failed", zap.Error(err))
		errors.Wrap(err, errors.KindStoreUnavailable, "counter store unavailable").
			WithRequestID(middleware.RequestIDFromContext(r.Context())).
			WriteJSON(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"table":   g.config.Store.TableName(),
		"count":   len(records),
		"records": records,
	})
}

func (g *Gateway) handleHit(w http.ResponseWriter, r *http.Request) {
	key := httprouter.ParamsFromContext(r.Context()).ByName("path")

	hits, err := g.store.Get(r.Context(), key)
	if err != nil {
		logging.Error("Reading hits failed", zap.String("path", key), zap.Error(err))
		errors.Wrap(err, errors.KindStoreUnavailable, "counter store unavailable").
			WithKey(key).
			WithRequestID(middleware.RequestIDFromContext(r.Context())).
			WriteJSON(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path": key,
		"hits": hits,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
