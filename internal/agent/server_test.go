package agent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fireplane/pkg/api"
)

func newTestServer(t *testing.T, ctrl *stubController) (*Server, *Agent) {
	t.Helper()
	a := newTestAgent(ctrl)
	return NewServer("127.0.0.1:0", a, nil), a
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeCommand(t *testing.T, rr *httptest.ResponseRecorder) api.CommandResponse {
	t.Helper()
	var resp api.CommandResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestAssignEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{
			name:       "valid assignment",
			body:       api.AssignMissionRequest{TaskID: "TASK-20260830-0001", MissionConfig: testMissionConfig()},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing task id",
			body:       api.AssignMissionRequest{MissionConfig: testMissionConfig()},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "conflicting second task",
			body:       api.AssignMissionRequest{TaskID: "TASK-20260830-0002", MissionConfig: testMissionConfig()},
			wantStatus: http.StatusConflict,
		},
	}

	srv, _ := newTestServer(t, &stubController{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, srv.Handler(), "/api/mission/assign", tt.body)
			if rr.Code != tt.wantStatus {
				t.Errorf("status %d, want %d (body: %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestStartEndpointLifecycle(t *testing.T) {
	ctrl := &stubController{gate: make(chan struct{})}
	srv, a := newTestServer(t, ctrl)

	rr := postJSON(t, srv.Handler(), "/api/mission/start", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("start without mission: status %d", rr.Code)
	}

	rr = postJSON(t, srv.Handler(), "/api/mission/assign",
		api.AssignMissionRequest{TaskID: "TASK-20260830-0001", MissionConfig: testMissionConfig()})
	if rr.Code != http.StatusOK {
		t.Fatalf("assign failed: %s", rr.Body.String())
	}

	rr = postJSON(t, srv.Handler(), "/api/mission/start", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("start failed: %s", rr.Body.String())
	}
	resp := decodeCommand(t, rr)
	if !resp.Success || resp.TaskID != "TASK-20260830-0001" {
		t.Errorf("start response %+v", resp)
	}

	// Status must answer while the mission is held in flight.
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	statusRR := httptest.NewRecorder()
	srv.Handler().ServeHTTP(statusRR, req)
	if statusRR.Code != http.StatusOK {
		t.Fatalf("status during flight: %d", statusRR.Code)
	}
	var status api.StatusResponse
	if err := json.Unmarshal(statusRR.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.State != string(StateExecuting) {
		t.Errorf("in-flight state %s", status.State)
	}
	if status.CurrentTask != "TASK-20260830-0001" {
		t.Errorf("in-flight task %s", status.CurrentTask)
	}

	close(ctrl.gate)
	waitDone(t, a)
}

func TestKillEndpointRequiresConfirmation(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantState  State
	}{
		{
			name:       "no body",
			body:       nil,
			wantStatus: http.StatusBadRequest,
			wantState:  StateIdle,
		},
		{
			name:       "wrong word",
			body:       map[string]string{"confirm": "kill"},
			wantStatus: http.StatusBadRequest,
			wantState:  StateIdle,
		},
		{
			name:       "exact confirmation",
			body:       map[string]string{"confirm": "KILL"},
			wantStatus: http.StatusOK,
			wantState:  StateKilled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, a := newTestServer(t, &stubController{})
			rr := postJSON(t, srv.Handler(), "/api/kill", tt.body)
			if rr.Code != tt.wantStatus {
				t.Errorf("status %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := a.State(); got != tt.wantState {
				t.Errorf("agent state %s, want %s", got, tt.wantState)
			}
		})
	}
}

func TestHeartbeatEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubController{})

	rr := postJSON(t, srv.Handler(), "/api/heartbeat", api.HeartbeatRequest{})
	if rr.Code != http.StatusOK {
		t.Fatalf("heartbeat status %d", rr.Code)
	}
	var resp api.HeartbeatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.DroneID != "SD-001" || resp.State != string(StateIdle) {
		t.Errorf("heartbeat response %+v", resp)
	}
}

func TestRTLEndpointWithEmptyBody(t *testing.T) {
	srv, a := newTestServer(t, &stubController{})

	rr := postJSON(t, srv.Handler(), "/api/rtl", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("rtl status %d: %s", rr.Code, rr.Body.String())
	}
	if got := a.State(); got != StateRTL {
		t.Errorf("agent state %s, want %s", got, StateRTL)
	}
}
