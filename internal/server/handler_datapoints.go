package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/capsim/pkg/model"
)

// handleCreateDatapoints bulk-loads payloads for a simulator. The request
// body is an array; order in the array fixes delivery order.
func (s *Server) handleCreateDatapoints(w http.ResponseWriter, r *http.Request) {
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
			Message: "datapoints can only be loaded while stopped, current status is " + sim.Status.String(),
		})
		return
	}

	var req []struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid JSON body: "+err.Error()))
		return
	}
	if len(req) == 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("at least one datapoint is required"))
		return
	}

	existing, err := s.store.ListDatapoints(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}

	now := time.Now().UTC()
	dps := make([]model.Datapoint, len(req))
	for i, d := range req {
		dps[i] = model.Datapoint{
			ID:          "dp_" + uuid.New().String(),
			SimulatorID: id,
			Seq:         len(existing) + i,
			Data:        d.Data,
			CreatedAt:   now,
		}
	}

	if err := s.store.CreateDatapoints(r.Context(), dps); err != nil {
		respondInternal(w, reqID, err)
		return
	}

	s.logger.Info("datapoints loaded", "simulator_id", id, "count", len(dps))
	respondCreated(w, reqID, dps)
}

func (s *Server) handleListDatapoints(w http.ResponseWriter, r *http.Request) {
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

	dps, err := s.store.ListDatapoints(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondOK(w, reqID, dps)
}
