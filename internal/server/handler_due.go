package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/capsim/pkg/model"
)

func (s *Server) handleListDue(w http.ResponseWriter, r *http.Request) {
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

	items, err := s.store.ListDueBySimulator(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}

	if state := r.URL.Query().Get("state"); state != "" {
		filtered := items[:0]
		for _, d := range items {
			if d.State == model.DueState(state) {
				filtered = append(filtered, d)
			}
		}
		items = filtered
	}

	respondOK(w, reqID, items)
}

func (s *Server) handleDueSummary(w http.ResponseWriter, r *http.Request) {
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

	items, err := s.store.ListDueBySimulator(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondOK(w, reqID, model.ComputeDueSummary(items))
}

// handleClaimDue hands out due items to an external dispatch worker. Each
// claimed item moves to "queued" and will not be handed out again.
func (s *Server) handleClaimDue(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid JSON body: "+err.Error()))
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	items, err := s.store.ClaimDue(r.Context(), time.Now().UTC(), req.Limit)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondOK(w, reqID, items)
}

// handleReportResult settles one claimed item with its delivery outcome.
// A result for an item that a reset deleted is discarded: the worker gets
// a 404 and nothing is written.
func (s *Server) handleReportResult(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var outcome model.Outcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid JSON body: "+err.Error()))
		return
	}

	if err := s.store.ReportResult(r.Context(), id, outcome); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Warn("result for deleted due datapoint discarded", "id", id)
			respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("due datapoint", id))
			return
		}
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code:    model.CodeConflict,
			Message: err.Error(),
		})
		return
	}

	respondOK(w, reqID, map[string]any{"id": id, "state": outcome.State})
}
