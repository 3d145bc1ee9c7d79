package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/capsim/internal/config"
	"github.com/me/capsim/internal/scheduler"
	"github.com/me/capsim/internal/store"
	"github.com/me/capsim/pkg/model"
)

func testServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sched := scheduler.NewLoop(st, scheduler.DefaultConfig(), logger)
	return New(config.DefaultServerConfig(), st, sched, logger), st
}

// envelope decodes the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func do(t *testing.T, srv *Server, method, path, body string, wantStatus int) envelope {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("%s %s: status=%d, want %d, body=%s", method, path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON: %v", method, path, err)
	}
	return env
}

// createSimulator creates a simulator over the API and returns its ID.
func createSimulator(t *testing.T, srv *Server) string {
	t.Helper()
	ends := time.Now().UTC().Add(2 * time.Hour).Format(time.RFC3339)
	body := fmt.Sprintf(`{"capstone":"ai-2026","name":"week-3","endpoint":"https://{app_name}.example.com/predict","ends":%q}`, ends)
	env := do(t, srv, "POST", "/api/v1/simulators/", body, http.StatusCreated)

	var sim model.Simulator
	if err := json.Unmarshal(env.Data, &sim); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sim.ID, "sim_") {
		t.Fatalf("id = %q, want sim_ prefix", sim.ID)
	}
	return sim.ID
}

func TestDiscovery(t *testing.T) {
	srv, _ := testServer(t)
	env := do(t, srv, "GET", "/api/v1/", "", http.StatusOK)
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	var data discoveryResponse
	json.Unmarshal(env.Data, &data)
	if data.Name != "capsim API" {
		t.Errorf("name = %q", data.Name)
	}
	if len(data.Endpoints) < 10 {
		t.Errorf("endpoints count = %d, want >= 10", len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	env := do(t, srv, "GET", "/api/v1/health", "", http.StatusOK)

	var data healthResponse
	json.Unmarshal(env.Data, &data)
	if data.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", data.Status)
	}
}

func TestCreateSimulator(t *testing.T) {
	srv, st := testServer(t)
	id := createSimulator(t, srv)

	sim, err := st.GetSimulator(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if sim.Status != model.StatusStopped {
		t.Errorf("initial status = %s, want stopped", sim.Status)
	}
}

func TestCreateSimulator_MissingFields(t *testing.T) {
	srv, _ := testServer(t)

	env := do(t, srv, "POST", "/api/v1/simulators/", `{"endpoint":"x","ends":"2026-09-01T00:00:00Z"}`, http.StatusBadRequest)
	if env.Error == nil || env.Error.Code != model.CodeValidation {
		t.Errorf("error = %+v, want VALIDATION_ERROR", env.Error)
	}

	do(t, srv, "POST", "/api/v1/simulators/", `{"name":"x","endpoint":"y"}`, http.StatusBadRequest)
	do(t, srv, "POST", "/api/v1/simulators/", "not json", http.StatusBadRequest)
}

func TestGetSimulator_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	env := do(t, srv, "GET", "/api/v1/simulators/sim_missing", "", http.StatusNotFound)
	if env.Error == nil || env.Error.Code != model.CodeNotFound {
		t.Errorf("error = %+v, want NOT_FOUND", env.Error)
	}
}

func TestStartWritesRequestedStatus(t *testing.T) {
	srv, st := testServer(t)
	id := createSimulator(t, srv)

	do(t, srv, "POST", "/api/v1/simulators/"+id+"/start", "", http.StatusOK)

	sim, err := st.GetSimulator(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if sim.Status != model.StatusStart {
		t.Errorf("status = %s, want start", sim.Status)
	}

	// The request is already recorded; repeating it is a conflict.
	env := do(t, srv, "POST", "/api/v1/simulators/"+id+"/start", "", http.StatusConflict)
	if env.Error == nil || env.Error.Code != model.CodeConflict {
		t.Errorf("error = %+v, want CONFLICT", env.Error)
	}
}

func TestPauseRequiresStarted(t *testing.T) {
	srv, _ := testServer(t)
	id := createSimulator(t, srv)

	env := do(t, srv, "POST", "/api/v1/simulators/"+id+"/pause", "", http.StatusConflict)
	if env.Error == nil || env.Error.Code != model.CodeConflict {
		t.Errorf("error = %+v, want CONFLICT", env.Error)
	}
}

func TestResetRequest(t *testing.T) {
	srv, st := testServer(t)
	id := createSimulator(t, srv)

	do(t, srv, "POST", "/api/v1/simulators/"+id+"/reset", "", http.StatusOK)

	sim, err := st.GetSimulator(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if sim.Status != model.StatusReset {
		t.Errorf("status = %s, want reset", sim.Status)
	}
}

func TestResetAfterEnded(t *testing.T) {
	srv, st := testServer(t)
	ctx := context.Background()
	id := createSimulator(t, srv)

	// Finish a run: started by hand, then ended over the API.
	sim, err := st.GetSimulator(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	sim.Status = model.StatusStarted
	sim.Starts = &now
	sim.Interval = time.Minute
	if err := st.UpdateSimulator(ctx, sim); err != nil {
		t.Fatal(err)
	}
	do(t, srv, "POST", "/api/v1/simulators/"+id+"/end", "", http.StatusOK)

	// An ended cohort can still be cleared for a rerun.
	do(t, srv, "POST", "/api/v1/simulators/"+id+"/reset", "", http.StatusOK)

	sim, err = st.GetSimulator(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sim.Status != model.StatusReset {
		t.Errorf("status = %s, want reset", sim.Status)
	}
}

func TestUpdateSimulator_OnlyWhileStopped(t *testing.T) {
	srv, _ := testServer(t)
	id := createSimulator(t, srv)

	env := do(t, srv, "PUT", "/api/v1/simulators/"+id, `{"name":"renamed"}`, http.StatusOK)
	var sim model.Simulator
	json.Unmarshal(env.Data, &sim)
	if sim.Name != "renamed" {
		t.Errorf("name = %q, want renamed", sim.Name)
	}

	do(t, srv, "POST", "/api/v1/simulators/"+id+"/start", "", http.StatusOK)
	do(t, srv, "PUT", "/api/v1/simulators/"+id, `{"name":"again"}`, http.StatusConflict)
}

func TestCreateDatapoints(t *testing.T) {
	srv, st := testServer(t)
	id := createSimulator(t, srv)

	body := `[{"data":"{\"x\":1}"},{"data":"{\"x\":2}"},{"data":"{\"x\":3}"}]`
	env := do(t, srv, "POST", "/api/v1/simulators/"+id+"/datapoints/", body, http.StatusCreated)

	var dps []model.Datapoint
	json.Unmarshal(env.Data, &dps)
	if len(dps) != 3 {
		t.Fatalf("created %d datapoints, want 3", len(dps))
	}
	for i, dp := range dps {
		if dp.Seq != i {
			t.Errorf("dp[%d].Seq = %d, want %d", i, dp.Seq, i)
		}
	}

	// A second load appends after the existing sequence.
	env = do(t, srv, "POST", "/api/v1/simulators/"+id+"/datapoints/", `[{"data":"{\"x\":4}"}]`, http.StatusCreated)
	json.Unmarshal(env.Data, &dps)
	if dps[0].Seq != 3 {
		t.Errorf("appended seq = %d, want 3", dps[0].Seq)
	}

	all, err := st.ListDatapoints(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("total datapoints = %d, want 4", len(all))
	}
}

func TestCreateDatapoints_RejectedWhileStarted(t *testing.T) {
	srv, _ := testServer(t)
	id := createSimulator(t, srv)

	do(t, srv, "POST", "/api/v1/simulators/"+id+"/start", "", http.StatusOK)
	do(t, srv, "POST", "/api/v1/simulators/"+id+"/datapoints/", `[{"data":"x"}]`, http.StatusConflict)
}

func TestEnrollStudent(t *testing.T) {
	srv, st := testServer(t)
	id := createSimulator(t, srv)

	body := `{"student":"alice","app_name":"alice-predictor"}`
	env := do(t, srv, "POST", "/api/v1/simulators/"+id+"/apps/", body, http.StatusCreated)

	var data struct {
		App       model.StudentApp `json:"app"`
		Scheduled int              `json:"scheduled"`
	}
	json.Unmarshal(env.Data, &data)
	if data.App.Student != "alice" {
		t.Errorf("student = %q", data.App.Student)
	}
	// Not started, so nothing is scheduled yet.
	if data.Scheduled != 0 {
		t.Errorf("scheduled = %d, want 0", data.Scheduled)
	}

	apps, err := st.ListStudentApps(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 1 {
		t.Errorf("apps = %d, want 1", len(apps))
	}
}

func TestEnrollStudent_LateJoinSchedules(t *testing.T) {
	srv, st := testServer(t)
	ctx := context.Background()
	id := createSimulator(t, srv)

	do(t, srv, "POST", "/api/v1/simulators/"+id+"/datapoints/",
		`[{"data":"a"},{"data":"b"},{"data":"c"},{"data":"d"}]`, http.StatusCreated)

	// Move the run to started by hand, as the scheduler loop would.
	sim, err := st.GetSimulator(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	sim.Status = model.StatusStarted
	sim.Starts = &now
	sim.Interval = 10 * time.Minute
	if err := st.UpdateSimulator(ctx, sim); err != nil {
		t.Fatal(err)
	}

	body := `{"student":"bob","app_name":"bob-predictor"}`
	env := do(t, srv, "POST", "/api/v1/simulators/"+id+"/apps/", body, http.StatusCreated)

	var data struct {
		Scheduled int `json:"scheduled"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Scheduled != 4 {
		t.Errorf("scheduled = %d, want 4", data.Scheduled)
	}

	items, err := st.ListDueBySimulator(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 4 {
		t.Fatalf("due items = %d, want 4", len(items))
	}
	// Spacing follows the run interval, anchored at the join time.
	if got := items[1].Due.Sub(items[0].Due); got != 10*time.Minute {
		t.Errorf("spacing = %v, want 10m", got)
	}
}

func TestEnrollStudent_NoAppNameSchedulesNothing(t *testing.T) {
	srv, st := testServer(t)
	ctx := context.Background()
	id := createSimulator(t, srv)

	do(t, srv, "POST", "/api/v1/simulators/"+id+"/datapoints/", `[{"data":"a"}]`, http.StatusCreated)

	sim, _ := st.GetSimulator(ctx, id)
	now := time.Now().UTC()
	sim.Status = model.StatusStarted
	sim.Starts = &now
	sim.Interval = time.Minute
	if err := st.UpdateSimulator(ctx, sim); err != nil {
		t.Fatal(err)
	}

	env := do(t, srv, "POST", "/api/v1/simulators/"+id+"/apps/", `{"student":"carol"}`, http.StatusCreated)
	var data struct {
		Scheduled int `json:"scheduled"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Scheduled != 0 {
		t.Errorf("scheduled = %d, want 0", data.Scheduled)
	}
}

func TestClaimAndReport(t *testing.T) {
	srv, st := testServer(t)
	ctx := context.Background()
	id := createSimulator(t, srv)

	seedDueItem(t, st, id, time.Now().UTC().Add(-time.Minute))

	env := do(t, srv, "POST", "/api/v1/due/claim", `{"limit":5}`, http.StatusOK)
	var claimed []model.DueDatapoint
	json.Unmarshal(env.Data, &claimed)
	if len(claimed) != 1 {
		t.Fatalf("claimed = %d, want 1", len(claimed))
	}
	if claimed[0].State != model.DueStateQueued {
		t.Errorf("state = %s, want queued", claimed[0].State)
	}

	outcome := `{"state":"success","content":"{\"p\":0.9}","status":200,"elapsed":0.05}`
	do(t, srv, "POST", "/api/v1/due/"+claimed[0].ID+"/result", outcome, http.StatusOK)

	got, err := st.GetDueDatapoint(ctx, claimed[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != model.DueStateSuccess {
		t.Errorf("state = %s, want success", got.State)
	}
	if got.ResponseStatus != 200 {
		t.Errorf("status = %d, want 200", got.ResponseStatus)
	}

	// Settling twice is a conflict.
	do(t, srv, "POST", "/api/v1/due/"+claimed[0].ID+"/result", outcome, http.StatusConflict)
}

func TestReportResult_DeletedItem(t *testing.T) {
	srv, _ := testServer(t)

	env := do(t, srv, "POST", "/api/v1/due/due_gone/result",
		`{"state":"success","status":200}`, http.StatusNotFound)
	if env.Error == nil || env.Error.Code != model.CodeNotFound {
		t.Errorf("error = %+v, want NOT_FOUND", env.Error)
	}
}

func TestDueSummary(t *testing.T) {
	srv, st := testServer(t)
	id := createSimulator(t, srv)

	seedDueItem(t, st, id, time.Now().UTC().Add(time.Hour))
	seedDueItem(t, st, id, time.Now().UTC().Add(2*time.Hour))

	env := do(t, srv, "GET", "/api/v1/simulators/"+id+"/due/summary", "", http.StatusOK)
	var sum model.DueSummary
	json.Unmarshal(env.Data, &sum)
	if sum.Total != 2 || sum.Due != 2 {
		t.Errorf("summary = %+v, want total=2 due=2", sum)
	}
}

func TestListSimulators_Pagination(t *testing.T) {
	srv, _ := testServer(t)
	for i := 0; i < 3; i++ {
		createSimulator(t, srv)
	}

	env := do(t, srv, "GET", "/api/v1/simulators/?limit=2", "", http.StatusOK)
	if env.Pagination == nil {
		t.Fatal("pagination missing")
	}
	if env.Pagination.Total != 3 {
		t.Errorf("total = %d, want 3", env.Pagination.Total)
	}
	if !env.Pagination.HasMore {
		t.Error("has_more = false, want true")
	}
}

func TestLoggingMiddlewareQuietHealthProbes(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := requestIDMiddleware(loggingMiddleware(logger)(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})))

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if buf.Len() != 0 {
		t.Errorf("health probe logged at info: %s", buf.String())
	}

	req = httptest.NewRequest("GET", "/api/v1/simulators/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	out := buf.String()
	if !strings.Contains(out, "path=/api/v1/simulators/") {
		t.Errorf("request not logged: %s", out)
	}
	if !strings.Contains(out, "bytes=2") {
		t.Errorf("response size not logged: %s", out)
	}
	if !strings.Contains(out, "request_id=req_") {
		t.Errorf("request_id not logged: %s", out)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); !strings.HasPrefix(got, "req_") {
		t.Errorf("X-Request-ID = %q, want req_ prefix", got)
	}
}

// seedDueItem inserts one due datapoint directly through the store,
// backed by a fresh datapoint and student app.
func seedDueItem(t *testing.T, st store.Store, simID string, due time.Time) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	dp := model.Datapoint{
		ID: fmt.Sprintf("dp_%d", due.UnixNano()), SimulatorID: simID, Seq: 0, Data: `{}`, CreatedAt: now,
	}
	if err := st.CreateDatapoints(ctx, []model.Datapoint{dp}); err != nil {
		t.Fatal(err)
	}

	app := &model.StudentApp{
		ID: fmt.Sprintf("app_%d", due.UnixNano()), SimulatorID: simID,
		Student: "seed", AppName: "seed-app", CreatedAt: now,
	}
	if err := st.CreateStudentApp(ctx, app); err != nil {
		t.Fatal(err)
	}

	d := model.DueDatapoint{
		ID:           fmt.Sprintf("due_%d", due.UnixNano()),
		SimulatorID:  simID,
		DatapointID:  dp.ID,
		StudentAppID: app.ID,
		URL:          "https://seed-app.example.com/predict",
		State:        model.DueStateDue,
		Due:          due,
		CreatedAt:    now,
	}
	if err := st.CreateDueDatapoints(ctx, []model.DueDatapoint{d}); err != nil {
		t.Fatal(err)
	}
	return d.ID
}
