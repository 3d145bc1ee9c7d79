package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/capsim/pkg/model"
)

// handleCreateStudentApp enrolls a student's deployed app in a simulator.
// Enrolling into a started run schedules the remaining deliveries from now,
// spaced at the run's recorded interval (late join).
func (s *Server) handleCreateStudentApp(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		Student string `json:"student"`
		AppName string `json:"app_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid JSON body: "+err.Error()))
		return
	}
	if req.Student == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("student is required"))
		return
	}

	app := &model.StudentApp{
		ID:          "app_" + uuid.New().String(),
		SimulatorID: id,
		Student:     req.Student,
		AppName:     req.AppName,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateStudentApp(r.Context(), app); err != nil {
		respondInternal(w, reqID, err)
		return
	}

	scheduled := 0
	if s.scheduler != nil {
		scheduled, err = s.scheduler.EnrollStudent(r.Context(), sim, app)
		if err != nil {
			s.logger.Error("late-join scheduling", "simulator_id", id, "app_id", app.ID, "error", err)
		}
	}

	s.logger.Info("student app enrolled",
		"simulator_id", id, "app_id", app.ID, "student", app.Student, "scheduled", scheduled)
	respondCreated(w, reqID, map[string]any{
		"app":       app,
		"scheduled": scheduled,
	})
}

func (s *Server) handleListStudentApps(w http.ResponseWriter, r *http.Request) {
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

	apps, err := s.store.ListStudentApps(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondOK(w, reqID, apps)
}
