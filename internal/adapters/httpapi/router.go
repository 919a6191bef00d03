// Package httpapi expone el protocolo de tools sobre HTTP.
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alejandrodnm/polydesk/internal/application/tools"
	"github.com/alejandrodnm/polydesk/internal/metrics"
)

const maxBodyBytes = 1 << 20

// NewRouter monta:
//
//	GET  /health
//	GET  /metrics
//	GET  /api/v1/tools
//	POST /api/v1/tools/{name}
//
// Una llamada devuelve 200 con el sobre {ok, result, error} aunque el tool
// falle; solo un error de persistencia responde 500.
func NewRouter(reg *tools.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "polydesk"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tools", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, reg.List())
		})
		r.Post("/tools/{name}", callTool(reg))
	})
	return r
}

func callTool(reg *tools.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
			return
		}
		if len(body) > maxBodyBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
			return
		}

		env, err := reg.Call(r.Context(), name, json.RawMessage(body))
		if err != nil {
			slog.Error("tool call aborted", "tool", name, "request", middleware.GetReqID(r.Context()), "err", err)
			writeJSON(w, http.StatusInternalServerError, env)
			return
		}
		writeJSON(w, http.StatusOK, env)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}
