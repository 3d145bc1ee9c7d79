// Package schedule computes per-student delivery plans for a simulator.
package schedule

import (
	"time"

	"github.com/google/uuid"
	"github.com/me/capsim/pkg/model"
)

// Interval returns the fixed spacing between successive deliveries to the
// same student: (ends - starts) / len(datapoints).
func Interval(starts, ends time.Time, datapointCount int) (time.Duration, error) {
	if datapointCount == 0 {
		return 0, &model.ScheduleError{Reason: "simulator has no datapoints"}
	}
	if !ends.After(starts) {
		return 0, &model.ScheduleError{Reason: "end time must be after start time"}
	}
	return ends.Sub(starts) / time.Duration(datapointCount), nil
}

// Generate produces the full batch of due datapoints for the given student
// apps, one per (app, datapoint) pair. Each eligible app gets an arithmetic
// due sequence: first delivery at starts, then one every interval, following
// datapoint order. Ineligible apps (no deployed app name) are skipped.
//
// The batch is returned for the caller to persist in a single transaction;
// Generate itself has no side effects. Zero eligible apps yield an empty
// batch, not an error.
//
// For a late-joining student use GenerateWithInterval with starts = now and
// the run-level interval: the spacing matches the cohort's cadence even
// though the absolute times drift from the original grid.
func Generate(sim *model.Simulator, datapoints []model.Datapoint, starts time.Time, apps []model.StudentApp) ([]model.DueDatapoint, error) {
	if sim.Ends == nil {
		return nil, &model.ScheduleError{Reason: "simulator has no end time"}
	}
	interval, err := Interval(starts, *sim.Ends, len(datapoints))
	if err != nil {
		return nil, err
	}
	return GenerateWithInterval(sim, datapoints, starts, interval, apps)
}

// GenerateWithInterval is Generate with the delivery spacing fixed by the
// caller instead of derived from the window.
func GenerateWithInterval(sim *model.Simulator, datapoints []model.Datapoint, starts time.Time, interval time.Duration, apps []model.StudentApp) ([]model.DueDatapoint, error) {
	if len(datapoints) == 0 {
		return nil, &model.ScheduleError{Reason: "simulator has no datapoints"}
	}
	if interval <= 0 {
		return nil, &model.ScheduleError{Reason: "interval must be positive"}
	}

	now := time.Now().UTC()
	var batch []model.DueDatapoint
	for _, app := range apps {
		if !app.Eligible() {
			continue
		}
		url := sim.RenderEndpoint(app.AppName)
		due := starts
		for _, dp := range datapoints {
			batch = append(batch, model.DueDatapoint{
				ID:           "due_" + uuid.New().String(),
				SimulatorID:  sim.ID,
				DatapointID:  dp.ID,
				StudentAppID: app.ID,
				URL:          url,
				State:        model.DueStateDue,
				Due:          due,
				CreatedAt:    now,
			})
			due = due.Add(interval)
		}
	}
	return batch, nil
}
