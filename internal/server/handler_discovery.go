package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "capsim API",
		Version:     "v1",
		Description: "Capstone prediction-request simulator: scheduled delivery of datapoints to student prediction apps",
		Endpoints: []endpointInfo{
			{"/api/v1/simulators", []string{"GET", "POST"}, "Simulator management"},
			{"/api/v1/simulators/{id}", []string{"GET", "PUT", "DELETE"}, "Single simulator operations"},
			{"/api/v1/simulators/{id}/start", []string{"POST"}, "Request a start; settled by the scheduler loop"},
			{"/api/v1/simulators/{id}/pause", []string{"POST"}, "Pause a started simulator"},
			{"/api/v1/simulators/{id}/reset", []string{"POST"}, "Request a reset; deletes all due datapoints"},
			{"/api/v1/simulators/{id}/end", []string{"POST"}, "End a started simulator, retaining results"},
			{"/api/v1/simulators/{id}/datapoints", []string{"GET", "POST"}, "Payload loading and listing"},
			{"/api/v1/simulators/{id}/apps", []string{"GET", "POST"}, "Student app enrollment"},
			{"/api/v1/simulators/{id}/due", []string{"GET"}, "Delivery schedule and recorded results"},
			{"/api/v1/simulators/{id}/due/summary", []string{"GET"}, "Aggregate delivery state counts"},
			{"/api/v1/due/claim", []string{"POST"}, "Claim due items for dispatch"},
			{"/api/v1/due/{id}/result", []string{"POST"}, "Report a delivery outcome"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
