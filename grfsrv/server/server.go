// Package server is the thin HTTP consumer of the resolver. It serves the
// archive contents as if they were files on disk; middleware, CORS and
// compression live outside this repository.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/raiken-mf/grfserve/grfsrv/resolver"
	"github.com/raiken-mf/grfserve/grfsrv/service"
)

// Handler exposes the resolver surface over HTTP:
//
//	GET /data/<path>  entry bytes or 404
//	GET /list         unique canonical paths, JSON array
//	GET /search?q=    canonical paths matching a regular expression
//	GET /stats        cache, index and missing counters
type Handler struct {
	svc *service.Service
	mux *http.ServeMux
}

// New builds the handler for svc.
func New(svc *service.Service) *Handler {
	h := &Handler{svc: svc, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /data/", h.handleData)
	h.mux.HandleFunc("GET /list", h.handleList)
	h.mux.HandleFunc("GET /search", h.handleSearch)
	h.mux.HandleFunc("GET /stats", h.handleStats)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleData(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(r.URL.Path, "/data/")
	if p == "" {
		http.NotFound(w, r)
		return
	}
	buf, err := h.svc.Fetch(r.Context(), p)
	if errors.Is(err, resolver.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("fetch failed", "path", p, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Write(buf)
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.svc.List())
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("q")
	if expr == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}
	paths, err := h.svc.Search(expr)
	if err != nil {
		http.Error(w, "bad expression: "+err.Error(), http.StatusBadRequest)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, paths)
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.svc.Stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
