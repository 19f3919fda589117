package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/connstr"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/replicator"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/store"
)

type errResponse struct {
	Error string `json:"error"`
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, statusFor(err))
	render.JSON(w, r, errResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

type testConnectionRequest struct {
	ConnectionString string `json:"connectionString"`
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var req testConnectionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResponse{Error: "invalid request body"})
		return
	}

	info, err := s.service.TestConnection(r.Context(), req.ConnectionString)
	if err != nil {
		s.logger.Warn("Connection test for %s failed: %v", connstr.Redact(req.ConnectionString), err)
		s.renderError(w, r, err)
		return
	}
	render.JSON(w, r, info)
}

// startRequest starts either a saved configuration (ConfigID) or an ad-hoc
// replication from explicit connection strings.
type startRequest struct {
	ConfigID string `json:"configId,omitempty"`

	SourceConnectionString string         `json:"sourceConnectionString,omitempty"`
	TargetConnectionString string         `json:"targetConnectionString,omitempty"`
	Scripts                []string       `json:"scripts,omitempty"`
	Settings               store.Settings `json:"settings"`
}

type startResponse struct {
	JobID string `json:"jobId"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResponse{Error: "invalid request body"})
		return
	}

	var (
		jobID string
		err   error
	)
	if req.ConfigID != "" {
		jobID, err = s.service.StartFromSavedConfig(r.Context(), req.ConfigID)
	} else {
		jobID, err = s.service.Start(&replicator.Request{
			SourceConnStr: req.SourceConnectionString,
			TargetConnStr: req.TargetConnectionString,
			Scripts:       req.Scripts,
			Settings:      req.Settings,
		})
	}
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, startResponse{JobID: jobID})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.service.List())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Status(chi.URLParam(r, "id"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	render.JSON(w, r, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.Cancel(id); err != nil {
		s.renderError(w, r, err)
		return
	}
	snap, err := s.service.Status(id)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	render.JSON(w, r, snap)
}
