package model

import "testing"

func TestSimulatorStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to SimulatorStatus
		want     bool
	}{
		{StatusStopped, StatusStart, true},
		{StatusStart, StatusStarted, true},
		{StatusStarted, StatusPaused, true},
		{StatusStarted, StatusEnded, true},
		{StatusStarted, StatusReset, true},
		{StatusPaused, StatusStart, true},
		{StatusReset, StatusStopped, true},
		{StatusEnded, StatusReset, true},
		{StatusStopped, StatusStarted, false},
		{StatusEnded, StatusStart, false},
		{StatusStarted, StatusStart, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestResetRequestableFromAnyStatus(t *testing.T) {
	// An operator can always clear a run, even a finished one.
	for _, s := range []SimulatorStatus{StatusStopped, StatusStart, StatusStarted, StatusPaused, StatusEnded} {
		if !s.CanTransitionTo(StatusReset) {
			t.Errorf("%s -> reset rejected", s)
		}
	}
}

func TestSimulatorStatusIsRequested(t *testing.T) {
	for _, s := range []SimulatorStatus{StatusStart, StatusReset} {
		if !s.IsRequested() {
			t.Errorf("%s should be a requested status", s)
		}
	}
	for _, s := range []SimulatorStatus{StatusStopped, StatusStarted, StatusPaused, StatusEnded} {
		if s.IsRequested() {
			t.Errorf("%s should not be a requested status", s)
		}
	}
}

func TestDueStateTransitions(t *testing.T) {
	tests := []struct {
		from, to DueState
		want     bool
	}{
		{DueStateDue, DueStateQueued, true},
		{DueStateQueued, DueStateSuccess, true},
		{DueStateQueued, DueStateFail, true},
		{DueStateDue, DueStateSuccess, false},
		{DueStateSuccess, DueStateFail, false},
		{DueStateQueued, DueStateDue, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestDueStateIsTerminal(t *testing.T) {
	if DueStateDue.IsTerminal() || DueStateQueued.IsTerminal() {
		t.Error("due and queued are not terminal")
	}
	if !DueStateSuccess.IsTerminal() || !DueStateFail.IsTerminal() {
		t.Error("success and fail are terminal")
	}
}
