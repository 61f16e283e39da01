// Package api exposes explorations over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sahithikokkula/explorer/pkg/executor"
	"github.com/sahithikokkula/explorer/pkg/explorer"
)

type JSON map[string]any

// Deps are the collaborators of the handlers. Metrics may be nil.
type Deps struct {
	Manager        *explorer.Manager
	Metadata       explorer.MetadataSource
	Runner         executor.Runner
	Registry       explorer.Registry
	QueryTimeout   time.Duration
	MaxConcurrency int
	Metrics        http.Handler
	Logger         *slog.Logger
}

func RegisterRoutes(r *mux.Router, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &Handler{d: d, logger: d.Logger.With(slog.String("component", "api"))}

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/data-sources", h.ListDataSources).Methods(http.MethodGet)

	r.HandleFunc("/explore", h.PostExplore).Methods(http.MethodPost)
	r.HandleFunc("/explore/{id}", h.GetExploration).Methods(http.MethodGet)
	r.HandleFunc("/explore/{id}/cancel", h.PostCancel).Methods(http.MethodPost)
	r.HandleFunc("/explore/{id}/stream", h.StreamExploration).Methods(http.MethodGet)
	r.HandleFunc("/explorations", h.ListExplorations).Methods(http.MethodGet)

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}
}

type Handler struct {
	d      Deps
	logger *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, JSON{"error": err.Error()})
}
