// Package http exposes the batch submission and progress observation
// boundary over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/vgrab/vgrab/internal/batch"
	"github.com/vgrab/vgrab/internal/domain"
)

// Server is the HTTP adapter over the batch controller.
type Server struct {
	ctrl     *batch.Controller
	defaults domain.Options
	tools    func() error
	mux      *http.ServeMux
	server   *http.Server
}

// NewServer creates a new HTTP server. tools is probed by the health
// endpoint; defaults is the option snapshot applied to submitted batches.
func NewServer(ctrl *batch.Controller, defaults domain.Options, tools func() error, addr string) *Server {
	s := &Server{
		ctrl:     ctrl,
		defaults: defaults,
		tools:    tools,
		mux:      http.NewServeMux(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /batches", s.handleSubmit)
	s.mux.HandleFunc("GET /batches/{handle}", s.handleSnapshot)
	s.mux.HandleFunc("DELETE /batches/{handle}", s.handleCancel)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// submitRequest is the request body for POST /batches.
type submitRequest struct {
	URLs []string `json:"urls"`
}

// submitResponse is the JSON response for a created batch.
type submitResponse struct {
	Handle string `json:"handle"`
	Jobs   int    `json:"jobs"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	handle, err := s.ctrl.Submit(req.URLs, s.defaults)
	if err != nil {
		if errors.Is(err, batch.ErrNoURLs) {
			s.writeError(w, http.StatusBadRequest, "urls is required")
			return
		}
		log.Printf("submit error: %v", err)
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	snap, _ := s.ctrl.Snapshot(handle)
	s.writeJSON(w, http.StatusCreated, submitResponse{Handle: handle, Jobs: len(snap.Jobs)})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Snapshot(r.PathValue("handle"))
	if err != nil {
		if errors.Is(err, batch.ErrBatchNotFound) {
			s.writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		log.Printf("snapshot error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.Cancel(r.PathValue("handle"))
	if err != nil {
		if errors.Is(err, batch.ErrBatchNotFound) {
			s.writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		log.Printf("cancel error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Cancellation is asynchronous; completion shows up in the snapshot.
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.tools(); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Port extracts the port from the address.
func (s *Server) Port() int {
	addr := s.server.Addr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		port, _ := strconv.Atoi(addr[idx+1:])
		return port
	}
	return 0
}
