package model

import (
	"strings"
	"time"
)

// AppNamePlaceholder is the single token substituted into a simulator's
// endpoint template. No other templating is supported.
const AppNamePlaceholder = "{app_name}"

// Simulator is one scheduled prediction exercise for a capstone cohort.
//
// Starts and Interval are set by the scheduler loop when the simulator is
// started and stay fixed until a reset clears them.
type Simulator struct {
	ID       string          `json:"id"`
	Capstone string          `json:"capstone"`
	Name     string          `json:"name"`
	Status   SimulatorStatus `json:"status"`

	// Endpoint is a URL template containing AppNamePlaceholder,
	// e.g. "https://{app_name}.herokuapp.com/predict".
	Endpoint string `json:"endpoint"`

	Starts   *time.Time    `json:"starts,omitempty"`
	Ends     *time.Time    `json:"ends,omitempty"`
	Interval time.Duration `json:"interval,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RenderEndpoint substitutes the app name into the endpoint template to form
// the concrete delivery URL.
func (s *Simulator) RenderEndpoint(appName string) string {
	return strings.ReplaceAll(s.Endpoint, AppNamePlaceholder, appName)
}

// Datapoint is one payload unit belonging to a simulator. Seq fixes the
// delivery order within the simulator.
type Datapoint struct {
	ID          string    `json:"id"`
	SimulatorID string    `json:"simulator_id"`
	Seq         int       `json:"seq"`
	Data        string    `json:"data"`
	CreatedAt   time.Time `json:"created_at"`
}

// StudentApp enrolls a student's deployed application in a simulator.
type StudentApp struct {
	ID          string    `json:"id"`
	SimulatorID string    `json:"simulator_id"`
	Student     string    `json:"student"`
	AppName     string    `json:"app_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Eligible reports whether the enrollment can be scheduled. Students without
// a deployed app name are skipped, not failed.
func (a *StudentApp) Eligible() bool {
	return a.AppName != ""
}
