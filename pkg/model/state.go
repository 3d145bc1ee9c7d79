package model

// SimulatorStatus represents the lifecycle status of a Simulator.
//
// "start" and "reset" are operator-requested statuses: the admin surface
// writes them, and the scheduler loop observes and settles them into
// "started" and "stopped". A simulator never acts on its own mutation.
type SimulatorStatus string

const (
	StatusStopped SimulatorStatus = "stopped"
	StatusStart   SimulatorStatus = "start"
	StatusStarted SimulatorStatus = "started"
	StatusPaused  SimulatorStatus = "paused"
	StatusReset   SimulatorStatus = "reset"
	StatusEnded   SimulatorStatus = "ended"
)

// String returns the string representation of the simulator status.
func (s SimulatorStatus) String() string {
	return string(s)
}

// IsRequested returns true for transient operator-requested statuses that
// the scheduler loop must observe and settle.
func (s SimulatorStatus) IsRequested() bool {
	return s == StatusStart || s == StatusReset
}

// IsTerminal returns true if the simulator is in a final status.
func (s SimulatorStatus) IsTerminal() bool {
	return s == StatusEnded
}

// ValidSimulatorTransitions defines the allowed status transitions.
// Reset may be requested from any status, including ended, so a finished
// cohort can be cleared and rerun.
var ValidSimulatorTransitions = map[SimulatorStatus][]SimulatorStatus{
	StatusStopped: {StatusStart, StatusReset},
	StatusStart:   {StatusStarted, StatusReset},
	StatusStarted: {StatusPaused, StatusEnded, StatusReset},
	StatusPaused:  {StatusStart, StatusReset},
	StatusReset:   {StatusStopped},
	StatusEnded:   {StatusReset},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s SimulatorStatus) CanTransitionTo(next SimulatorStatus) bool {
	for _, allowed := range ValidSimulatorTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DueState represents the delivery state of a DueDatapoint.
type DueState string

const (
	DueStateDue     DueState = "due"
	DueStateQueued  DueState = "queued"
	DueStateSuccess DueState = "success"
	DueStateFail    DueState = "fail"
)

// String returns the string representation of the due state.
func (s DueState) String() string {
	return string(s)
}

// IsTerminal returns true once a delivery outcome has been recorded.
func (s DueState) IsTerminal() bool {
	return s == DueStateSuccess || s == DueStateFail
}

// ValidDueTransitions defines the hand-off contract between the scheduler,
// the dispatch producer, and its workers: a due item is claimed exactly once
// (due → queued) and settled exactly once (queued → success|fail).
var ValidDueTransitions = map[DueState][]DueState{
	DueStateDue:    {DueStateQueued},
	DueStateQueued: {DueStateSuccess, DueStateFail},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s DueState) CanTransitionTo(next DueState) bool {
	for _, allowed := range ValidDueTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
