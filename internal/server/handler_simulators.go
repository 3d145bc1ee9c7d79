package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/capsim/pkg/model"
)

func (s *Server) handleCreateSimulator(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		Capstone string     `json:"capstone"`
		Name     string     `json:"name"`
		Endpoint string     `json:"endpoint"`
		Ends     *time.Time `json:"ends"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid JSON body: "+err.Error()))
		return
	}

	if req.Name == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("name is required"))
		return
	}
	if req.Endpoint == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("endpoint is required"))
		return
	}
	if req.Ends == nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("ends is required"))
		return
	}

	now := time.Now().UTC()
	ends := req.Ends.UTC()
	sim := &model.Simulator{
		ID:        "sim_" + uuid.New().String(),
		Capstone:  req.Capstone,
		Name:      req.Name,
		Status:    model.StatusStopped,
		Endpoint:  req.Endpoint,
		Ends:      &ends,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateSimulator(r.Context(), sim); err != nil {
		respondInternal(w, reqID, err)
		return
	}

	s.logger.Info("simulator created", "id", sim.ID, "name", sim.Name)
	respondCreated(w, reqID, sim)
}

func (s *Server) handleListSimulators(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.DefaultListOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}
	opts.State = r.URL.Query().Get("status")
	opts.Clamp()

	sims, total, err := s.store.ListSimulators(r.Context(), opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}

	respondList(w, reqID, sims, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

func (s *Server) handleGetSimulator(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	sim, err := s.store.GetSimulator(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if sim == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("simulator", id))
		return
	}
	respondOK(w, reqID, sim)
}

func (s *Server) handleUpdateSimulator(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	sim, err := s.store.GetSimulator(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if sim == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("simulator", id))
		return
	}
	if sim.Status != model.StatusStopped {
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code:    model.CodeConflict,
			Message: "simulator can only be edited while stopped, current status is " + sim.Status.String(),
		})
		return
	}

	var req struct {
		Capstone *string    `json:"capstone"`
		Name     *string    `json:"name"`
		Endpoint *string    `json:"endpoint"`
		Ends     *time.Time `json:"ends"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid JSON body: "+err.Error()))
		return
	}

	if req.Capstone != nil {
		sim.Capstone = *req.Capstone
	}
	if req.Name != nil {
		sim.Name = *req.Name
	}
	if req.Endpoint != nil {
		sim.Endpoint = *req.Endpoint
	}
	if req.Ends != nil {
		ends := req.Ends.UTC()
		sim.Ends = &ends
	}
	sim.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateSimulator(r.Context(), sim); err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondOK(w, reqID, sim)
}

func (s *Server) handleDeleteSimulator(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	sim, err := s.store.GetSimulator(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if sim == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("simulator", id))
		return
	}

	if err := s.store.DeleteSimulator(r.Context(), id); err != nil {
		respondInternal(w, reqID, err)
		return
	}
	s.logger.Info("simulator deleted", "id", id)
	respondOK(w, reqID, map[string]any{"deleted": true})
}

// handleStartSimulator records a start request. The scheduler loop observes
// the "start" status, runs the capacity check, generates the schedule, and
// settles it into "started". A failed capacity check leaves the simulator
// in "start" with the reason in the server log.
func (s *Server) handleStartSimulator(w http.ResponseWriter, r *http.Request) {
	s.requestTransition(w, r, model.StatusStart, "start requested")
}

func (s *Server) handlePauseSimulator(w http.ResponseWriter, r *http.Request) {
	s.requestTransition(w, r, model.StatusPaused, "simulator paused")
}

// handleResetSimulator records a reset request. The scheduler loop deletes
// the run's due datapoints and settles the simulator back to "stopped".
func (s *Server) handleResetSimulator(w http.ResponseWriter, r *http.Request) {
	s.requestTransition(w, r, model.StatusReset, "reset requested")
}

func (s *Server) handleEndSimulator(w http.ResponseWriter, r *http.Request) {
	s.requestTransition(w, r, model.StatusEnded, "simulator ended")
}

// requestTransition applies one operator-requested status change with a
// compare-and-swap on the current status, so two racing operators cannot
// both win.
func (s *Server) requestTransition(w http.ResponseWriter, r *http.Request, to model.SimulatorStatus, logMsg string) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	sim, err := s.store.GetSimulator(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if sim == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("simulator", id))
		return
	}

	if !sim.Status.CanTransitionTo(to) {
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code:    model.CodeConflict,
			Message: (&model.InvalidTransitionError{SimulatorID: id, From: sim.Status, To: to}).Error(),
		})
		return
	}

	ok, err := s.store.SetSimulatorStatus(r.Context(), id, sim.Status, to)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if !ok {
		// Another request changed the status between our read and the swap.
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code:    model.CodeConflict,
			Message: "simulator status changed concurrently, retry",
		})
		return
	}

	s.logger.Info(logMsg, "id", id, "from", sim.Status, "to", to)
	respondOK(w, reqID, map[string]any{"id": id, "status": to})
}
