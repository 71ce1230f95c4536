package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/somaflow/somaflow/wf"
)

// SubmitResponse is returned from POST /v1/workflows.
type SubmitResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	in := &wf.Workflow{}
	if err := json.NewDecoder(r.Body).Decode(in); err != nil {
		http.Error(w, "malformed workflow document: "+err.Error(), http.StatusBadRequest)
		return
	}
	id, err := s.Engine.Submit(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, &SubmitResponse{ID: id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	out, err := s.Engine.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.Engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, out)
}

func (s *Server) handleDefinition(w http.ResponseWriter, r *http.Request) {
	out, err := s.Engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	out, err := s.Engine.Events(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, out)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.Engine.Stop)
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.Engine.Kill)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.Engine.Restart)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.Engine.Delete)
}

// control runs one of the engine's per-workflow control operations
// and reports the outcome.
func (s *Server) control(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	if err := op(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, struct{}{})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error("Failed to write response", "error", err)
	}
}

// writeError maps engine errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *wf.ValidationError
	var cerr *wf.CyclicDependencyError
	var serr *wf.InvalidStateError

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, wf.ErrNotFound):
		code = http.StatusNotFound
	case errors.As(err, &verr), errors.As(err, &cerr):
		code = http.StatusBadRequest
	case errors.As(err, &serr):
		code = http.StatusConflict
	}
	http.Error(w, err.Error(), code)
}
