package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	experiments, err := s.engine.ListExperiments(ctx, store.Filter{})
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	_ = row.Scan(&dbSize)

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

// BeaconRequest is an incoming tracking event.
type BeaconRequest struct {
	ExperimentID string  `json:"e"`
	UserID       string  `json:"u"`
	EventType    string  `json:"t"`
	Amount       float64 `json:"a,omitempty"`
}

// handleBeacon records an event fired from a client. Events against
// experiments that are no longer running are acknowledged and dropped.
func (s *Server) handleBeacon(w http.ResponseWriter, r *http.Request) {
	// Beacons come from browsers on other origins
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BeaconRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExperimentID == "" || req.UserID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	assignment, err := s.engine.TrackEvent(r.Context(), req.UserID, req.ExperimentID, experiment.Event{
		Type:   experiment.EventType(req.EventType),
		Amount: req.Amount,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if assignment == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type assignRequest struct {
	UserID       string `json:"user"`
	ExperimentID string `json:"experiment"`
}

func (s *Server) handleAssignments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("user")
		if userID == "" {
			http.Error(w, "user parameter required", http.StatusBadRequest)
			return
		}
		assignments, err := s.engine.ListUserAssignments(r.Context(), userID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, assignments)

	case http.MethodPost:
		var req assignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || req.ExperimentID == "" {
			http.Error(w, "Missing required fields", http.StatusBadRequest)
			return
		}
		assignment, err := s.engine.GetOrCreateAssignment(r.Context(), req.UserID, req.ExperimentID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, assignment)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := store.Filter{
			Status: store.ExperimentStatus(r.URL.Query().Get("status")),
			Type:   store.ExperimentType(r.URL.Query().Get("type")),
		}
		experiments, err := s.engine.ListExperiments(r.Context(), filter)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if experiments == nil {
			experiments = []*store.Experiment{}
		}
		writeJSON(w, http.StatusOK, experiments)

	case http.MethodPost:
		var params experiment.CreateParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		exp, err := s.engine.CreateExperiment(r.Context(), params)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, exp)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type completeRequest struct {
	Winner *string `json:"winner"`
}

// handleExperimentDetail routes /api/experiments/{id} and
// /api/experiments/{id}/{start|pause|complete|results}.
func (s *Server) handleExperimentDetail(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/experiments/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		http.Error(w, "experiment id required", http.StatusBadRequest)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	ctx := r.Context()
	switch {
	case action == "" && r.Method == http.MethodGet:
		exp, err := s.engine.GetExperiment(ctx, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exp)

	case action == "" && r.Method == http.MethodPatch:
		var patch experiment.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		exp, err := s.engine.UpdateExperiment(ctx, id, patch)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exp)

	case action == "" && r.Method == http.MethodDelete:
		exp, err := s.engine.DeleteExperiment(ctx, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exp)

	case action == "start" && r.Method == http.MethodPost:
		exp, err := s.engine.StartExperiment(ctx, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exp)

	case action == "pause" && r.Method == http.MethodPost:
		exp, err := s.engine.PauseExperiment(ctx, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exp)

	case action == "complete" && r.Method == http.MethodPost:
		var req completeRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid JSON", http.StatusBadRequest)
				return
			}
		}
		exp, err := s.engine.CompleteExperiment(ctx, id, req.Winner)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exp)

	case action == "results" && r.Method == http.MethodGet:
		results, err := s.engine.GetResults(ctx, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)

	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validationErr *experiment.ValidationError
	var notFoundErr *experiment.NotFoundError
	var conflictErr *experiment.StateConflictError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.As(err, &conflictErr):
		status = http.StatusConflict
	default:
		s.log.Error("request failed", "error", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
