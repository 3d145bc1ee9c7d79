package model

import "testing"

func TestRenderEndpoint(t *testing.T) {
	sim := &Simulator{Endpoint: "https://{app_name}.herokuapp.com/predict"}
	got := sim.RenderEndpoint("alice-app")
	want := "https://alice-app.herokuapp.com/predict"
	if got != want {
		t.Errorf("RenderEndpoint = %q, want %q", got, want)
	}
}

func TestRenderEndpointNoPlaceholder(t *testing.T) {
	sim := &Simulator{Endpoint: "https://fixed.example.com/predict"}
	if got := sim.RenderEndpoint("alice"); got != sim.Endpoint {
		t.Errorf("RenderEndpoint = %q, want unchanged template", got)
	}
}

func TestStudentAppEligible(t *testing.T) {
	if (&StudentApp{AppName: ""}).Eligible() {
		t.Error("empty app name should not be eligible")
	}
	if !(&StudentApp{AppName: "alice-app"}).Eligible() {
		t.Error("non-empty app name should be eligible")
	}
}

func TestComputeDueSummary(t *testing.T) {
	items := []DueDatapoint{
		{State: DueStateDue},
		{State: DueStateDue},
		{State: DueStateQueued},
		{State: DueStateSuccess},
		{State: DueStateFail},
	}
	s := ComputeDueSummary(items)
	if s.Total != 5 || s.Due != 2 || s.Queued != 1 || s.Success != 1 || s.Fail != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
}
