package model

import "time"

// DueDatapoint is one scheduled delivery obligation: a datapoint owed to a
// student's app at a due time, with the delivery outcome recorded in place.
type DueDatapoint struct {
	ID           string   `json:"id"`
	SimulatorID  string   `json:"simulator_id"`
	DatapointID  string   `json:"datapoint_id"`
	StudentAppID string   `json:"student_app_id"`
	URL          string   `json:"url"`
	State        DueState `json:"state"`

	Due time.Time `json:"due"`

	// Response record, written exactly once by the dispatch worker when the
	// item leaves the queued state.
	ResponseContent   string  `json:"response_content,omitempty"`
	ResponseException string  `json:"response_exception,omitempty"`
	ResponseTraceback string  `json:"response_traceback,omitempty"`
	ResponseElapsed   float64 `json:"response_elapsed,omitempty"`
	ResponseStatus    int     `json:"response_status,omitempty"`
	ResponseTimeout   bool    `json:"response_timeout,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Outcome carries the result of one delivery attempt back from a worker.
type Outcome struct {
	State     DueState `json:"state"`
	Content   string   `json:"content,omitempty"`
	Exception string   `json:"exception,omitempty"`
	Traceback string   `json:"traceback,omitempty"`
	Elapsed   float64  `json:"elapsed,omitempty"`
	Status    int      `json:"status,omitempty"`
	Timeout   bool     `json:"timeout,omitempty"`
}

// DueSummary provides an aggregate count of due-item states for a simulator.
type DueSummary struct {
	Total   int `json:"total"`
	Due     int `json:"due"`
	Queued  int `json:"queued"`
	Success int `json:"success"`
	Fail    int `json:"fail"`
}

// ComputeDueSummary calculates the DueSummary from a slice of due datapoints.
func ComputeDueSummary(items []DueDatapoint) DueSummary {
	s := DueSummary{Total: len(items)}
	for _, d := range items {
		switch d.State {
		case DueStateDue:
			s.Due++
		case DueStateQueued:
			s.Queued++
		case DueStateSuccess:
			s.Success++
		case DueStateFail:
			s.Fail++
		}
	}
	return s
}
