package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/sahithikokkula/explorer/pkg/explorer"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JSON{"status": "ok"})
}

func (h *Handler) ListDataSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.d.Metadata.DataSources(r.Context())
	if err != nil {
		h.logger.Error("listing data sources failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, JSON{"data_sources": sources})
}

type ExploreRequest struct {
	DataSource string   `json:"data_source"`
	Table      string   `json:"table"`
	Columns    []string `json:"columns"`
	// Only restricts the run to the named components.
	Only []string `json:"only,omitempty"`
	Seed uint64   `json:"seed,omitempty"`
}

type ExploreResponse struct {
	ID      string            `json:"id"`
	Status  explorer.Status   `json:"status"`
	Columns []explorer.Column `json:"columns"`
}

func (h *Handler) PostExplore(w http.ResponseWriter, r *http.Request) {
	var req ExploreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "invalid json"})
		return
	}
	req.DataSource = strings.TrimSpace(req.DataSource)
	req.Table = strings.TrimSpace(req.Table)
	if req.DataSource == "" || req.Table == "" {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "data_source and table required"})
		return
	}

	ec, err := explorer.BuildContext(r.Context(), h.d.Metadata, h.d.Runner, req.DataSource, req.Table, req.Columns,
		explorer.ContextOptions{QueryTimeout: h.d.QueryTimeout})
	if err != nil {
		var check *explorer.MetaDataCheckError
		if errors.As(err, &check) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("loading metadata failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	build, err := h.d.Registry.Resolve(ec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	e := h.d.Manager.Start(r.Context(), ec, build, explorer.Options{
		Only:           req.Only,
		Seed:           req.Seed,
		MaxConcurrency: h.d.MaxConcurrency,
	})
	writeJSON(w, http.StatusAccepted, ExploreResponse{ID: e.ID, Status: e.Status(), Columns: ec.Columns})
}

func (h *Handler) GetExploration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if e, ok := h.d.Manager.Get(id); ok {
		writeJSON(w, http.StatusOK, e.Result())
		return
	}
	writeError(w, http.StatusNotFound, explorer.ErrExplorationNotFound)
}

func (h *Handler) PostCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.d.Manager.Cancel(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	e, _ := h.d.Manager.Get(id)
	writeJSON(w, http.StatusAccepted, JSON{"id": id, "status": e.Status()})
}

// StreamExploration writes every metric as one JSON line as it is published,
// then a final line with the status.
func (h *Handler) StreamExploration(w http.ResponseWriter, r *http.Request) {
	e, ok := h.d.Manager.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, explorer.ErrExplorationNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for m := range e.Updates(r.Context()) {
		if err := enc.Encode(m); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if r.Context().Err() != nil {
		return
	}
	_ = enc.Encode(JSON{"id": e.ID, "status": e.Status()})
}

// ListExplorations lists the explorations held in memory, optionally filtered
// by status.
func (h *Handler) ListExplorations(w http.ResponseWriter, r *http.Request) {
	filter := explorer.Status(r.URL.Query().Get("status"))
	out := make([]JSON, 0)
	for _, e := range h.d.Manager.List() {
		st := e.Status()
		if filter != "" && st != filter {
			continue
		}
		out = append(out, JSON{
			"id":      e.ID,
			"status":  st,
			"table":   e.Context.Table,
			"columns": e.Context.Columns,
			"started": e.Started,
		})
	}
	writeJSON(w, http.StatusOK, JSON{"explorations": out})
}
