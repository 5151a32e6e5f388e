package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"fireplane/pkg/api"
)

// Server is the HTTP command surface of one drone agent.
type Server struct {
	agent      *Agent
	httpServer *http.Server
}

// NewServer creates the agent server. metrics may be nil to disable the
// /metrics endpoint.
func NewServer(addr string, a *Agent, metrics http.Handler) *Server {
	s := &Server{agent: a}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /api/mission/assign", s.handleAssign)
	mux.HandleFunc("POST /api/mission/start", s.handleStart)

	// Emergency endpoints. These must stay responsive while a mission is
	// executing, which is why missions run on their own goroutine.
	mux.HandleFunc("POST /api/mission/abort", s.handleAbort)
	mux.HandleFunc("POST /api/rtl", s.handleRTL)
	mux.HandleFunc("POST /api/land", s.handleLand)
	mux.HandleFunc("POST /api/kill", s.handleKill)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.httpServer.Shutdown(shutDownCtx)
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.agent.Status())
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.agent.Heartbeat())
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req api.AssignMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TaskID == "" {
		s.respondError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	if err := s.agent.Assign(req.TaskID, req.MissionConfig); err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, api.CommandResponse{
		Success: true,
		Message: "mission assigned",
		DroneID: s.agent.cfg.DroneID,
		TaskID:  req.TaskID,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	taskID, err := s.agent.Start()
	if err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, api.CommandResponse{
		Success: true,
		Message: "mission started",
		DroneID: s.agent.cfg.DroneID,
		TaskID:  taskID,
	})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Abort(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, api.CommandResponse{
		Success: true,
		Message: "mission aborted, returning to launch",
		DroneID: s.agent.cfg.DroneID,
	})
}

func (s *Server) handleRTL(w http.ResponseWriter, r *http.Request) {
	var req api.RTLRequest
	// Body is optional; an empty reason is fine.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.agent.RTL(req.Reason); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, api.CommandResponse{
		Success: true,
		Message: "returning to launch",
		DroneID: s.agent.cfg.DroneID,
	})
}

func (s *Server) handleLand(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Land(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, api.CommandResponse{
		Success: true,
		Message: "landing at current position",
		DroneID: s.agent.cfg.DroneID,
	})
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm api.KillConfirmation `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Confirm != api.ConfirmKill {
		s.respondError(w, http.StatusBadRequest, "kill requires typed confirmation")
		return
	}

	if err := s.agent.Kill(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, api.CommandResponse{
		Success: true,
		Message: "motors disarmed",
		DroneID: s.agent.cfg.DroneID,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, api.CommandResponse{
		Success: false,
		Error:   message,
		DroneID: s.agent.cfg.DroneID,
	})
}
