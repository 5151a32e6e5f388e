// Package ground is the ground-station side of the drone control plane. It
// keeps a registry of known agents and issues commands over HTTP with a
// fixed timeout and no retries; a lost command must surface as an error,
// not be silently replayed against a flying drone.
package ground

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"fireplane/pkg/api"
)

type registeredDrone struct {
	baseURL   string
	connected bool
	lastSeen  time.Time
}

// Client commands a fleet of drone agents.
type Client struct {
	http *http.Client
	log  *slog.Logger

	mu     sync.Mutex
	drones map[string]*registeredDrone
}

// NewClient creates a ground client. timeout bounds every command round trip.
func NewClient(timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		log:    log,
		drones: make(map[string]*registeredDrone),
	}
}

// Register adds a drone agent endpoint to the registry. host:port only, no
// scheme.
func (c *Client) Register(droneID, addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drones[droneID] = &registeredDrone{baseURL: "http://" + addr}
}

// AssignMission uploads a mission to the drone without starting it.
func (c *Client) AssignMission(ctx context.Context, droneID, taskID string, cfg api.MissionConfig) error {
	req := api.AssignMissionRequest{TaskID: taskID, MissionConfig: cfg}
	_, err := c.post(ctx, droneID, "/api/mission/assign", req)
	return err
}

// StartMission starts the drone's assigned mission. Returns once the agent
// acknowledges; the flight continues in the background.
func (c *Client) StartMission(ctx context.Context, droneID string) error {
	_, err := c.post(ctx, droneID, "/api/mission/start", nil)
	return err
}

// AbortMission orders an immediate mission abort and return to launch.
func (c *Client) AbortMission(ctx context.Context, droneID string) error {
	if _, err := c.post(ctx, droneID, "/api/mission/abort", nil); err != nil {
		return fmt.Errorf("abort not acknowledged, drone may still be executing: %w", err)
	}
	return nil
}

// SendRTL orders a controlled return to launch.
func (c *Client) SendRTL(ctx context.Context, droneID, reason string) error {
	if _, err := c.post(ctx, droneID, "/api/rtl", api.RTLRequest{Reason: reason}); err != nil {
		return fmt.Errorf("rtl not acknowledged, drone may still be executing: %w", err)
	}
	return nil
}

// Land orders a landing at the drone's current position.
func (c *Client) Land(ctx context.Context, droneID string) error {
	if _, err := c.post(ctx, droneID, "/api/land", nil); err != nil {
		return fmt.Errorf("land not acknowledged, drone may still be executing: %w", err)
	}
	return nil
}

// Kill disarms the drone's motors immediately. The caller must pass the
// typed confirmation; there is no default.
func (c *Client) Kill(ctx context.Context, droneID string, confirm api.KillConfirmation) error {
	if confirm != api.ConfirmKill {
		return fmt.Errorf("kill refused: confirmation %q does not match %q", confirm, api.ConfirmKill)
	}
	body := struct {
		Confirm api.KillConfirmation `json:"confirm"`
	}{Confirm: confirm}
	if _, err := c.post(ctx, droneID, "/api/kill", body); err != nil {
		return fmt.Errorf("kill not acknowledged, drone may still be executing: %w", err)
	}
	return nil
}

// Status fetches the drone's current status snapshot.
func (c *Client) Status(ctx context.Context, droneID string) (*api.StatusResponse, error) {
	baseURL, err := c.lookup(droneID)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.markDisconnected(droneID)
		return nil, fmt.Errorf("status %s: %w", droneID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.markDisconnected(droneID)
		return nil, fmt.Errorf("status %s: unexpected status %d", droneID, resp.StatusCode)
	}

	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("status %s: decode: %w", droneID, err)
	}
	c.markSeen(droneID)
	return &status, nil
}

// Heartbeat probes one drone agent for liveness and updates the registry.
func (c *Client) Heartbeat(ctx context.Context, droneID string) error {
	_, err := c.post(ctx, droneID, "/api/heartbeat", api.HeartbeatRequest{Timestamp: time.Now().UTC()})
	return err
}

// ConnectedDrones lists registered drone IDs whose last command or
// heartbeat succeeded, in stable order.
func (c *Client) ConnectedDrones() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	for id, d := range c.drones {
		if d.connected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// LastSeen reports when the drone last answered, zero if never.
func (c *Client) LastSeen(droneID string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.drones[droneID]; ok {
		return d.lastSeen
	}
	return time.Time{}
}

// AllStatuses polls every registered drone. Unreachable drones are skipped
// with a warn; partial fleet visibility is still useful.
func (c *Client) AllStatuses(ctx context.Context) map[string]*api.StatusResponse {
	c.mu.Lock()
	ids := make([]string, 0, len(c.drones))
	for id := range c.drones {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)

	statuses := make(map[string]*api.StatusResponse)
	for _, id := range ids {
		status, err := c.Status(ctx, id)
		if err != nil {
			c.log.Warn("drone unreachable", "drone_id", id, "error", err)
			continue
		}
		statuses[id] = status
	}
	return statuses
}

// RunHeartbeatMonitor probes every registered drone on the interval until
// ctx is cancelled. Connection state transitions are logged.
func (c *Client) RunHeartbeatMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			ids := make([]string, 0, len(c.drones))
			for id := range c.drones {
				ids = append(ids, id)
			}
			c.mu.Unlock()

			for _, id := range ids {
				wasConnected := c.isConnected(id)
				err := c.Heartbeat(ctx, id)
				nowConnected := err == nil
				if wasConnected && !nowConnected {
					c.log.Warn("drone lost", "drone_id", id, "error", err)
				} else if !wasConnected && nowConnected {
					c.log.Info("drone connected", "drone_id", id)
				}
			}
		}
	}
}

// post sends a command and decodes the uniform CommandResponse. A response
// with success=false becomes an error carrying the agent's message.
func (c *Client) post(ctx context.Context, droneID, path string, body any) (*api.CommandResponse, error) {
	baseURL, err := c.lookup(droneID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.markDisconnected(droneID)
		return nil, fmt.Errorf("%s %s: %w", droneID, path, err)
	}
	defer resp.Body.Close()

	var cmdResp api.CommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&cmdResp); err != nil {
		return nil, fmt.Errorf("%s %s: decode: %w", droneID, path, err)
	}
	c.markSeen(droneID)

	if !cmdResp.Success {
		msg := cmdResp.Error
		if msg == "" {
			msg = cmdResp.Message
		}
		return &cmdResp, fmt.Errorf("%s %s: agent rejected command: %s", droneID, path, msg)
	}
	return &cmdResp, nil
}

func (c *Client) lookup(droneID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drones[droneID]
	if !ok {
		return "", fmt.Errorf("drone %s is not registered", droneID)
	}
	return d.baseURL, nil
}

func (c *Client) isConnected(droneID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.drones[droneID]; ok {
		return d.connected
	}
	return false
}

func (c *Client) markSeen(droneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.drones[droneID]; ok {
		d.connected = true
		d.lastSeen = time.Now().UTC()
	}
}

func (c *Client) markDisconnected(droneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.drones[droneID]; ok {
		d.connected = false
	}
}
