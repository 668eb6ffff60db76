package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type startRunRequest struct {
	RequestedBy string `json:"requestedBy"`
}

// handleStartRun handles POST /api/runs
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := parseJSONBody(r, &req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}
	if req.RequestedBy == "" {
		req.RequestedBy = "api"
	}

	run, err := s.engine.StartCycle(r.Context(), req.RequestedBy)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, run)
}

// handleGetRun handles GET /api/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	view, err := s.engine.GetRunView(r.Context(), runID)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handleCancelRun handles POST /api/runs/{id}/cancel
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	run, err := s.engine.CancelRun(r.Context(), runID)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// handleListRuns handles GET /api/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			respondError(w, http.StatusBadRequest, "INVALID_INPUT", "limit must be an integer between 1 and 500", nil)
			return
		}
		limit = parsed
	}

	runs, err := s.engine.ListRuns(r.Context(), limit)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
