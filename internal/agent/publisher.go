package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fireplane/pkg/api"
)

// Publisher pushes drone-to-ground events to the station's event endpoint.
// A nil Publisher is valid and drops everything; agents run fine with no
// ground link and reconcile through the store instead.
type Publisher struct {
	droneID string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewPublisher creates a publisher targeting the ground station at groundURL.
func NewPublisher(droneID, groundURL string, timeout time.Duration, log *slog.Logger) *Publisher {
	if !strings.HasPrefix(groundURL, "http://") && !strings.HasPrefix(groundURL, "https://") {
		groundURL = "http://" + groundURL
	}
	return &Publisher{
		droneID: droneID,
		baseURL: strings.TrimSuffix(groundURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.With("drone_id", droneID),
	}
}

// Publish envelopes the payload and posts it to the ground station. Event
// delivery is best effort; callers treat a returned error as log-worthy,
// not mission-fatal.
func (p *Publisher) Publish(ctx context.Context, t api.MessageType, payload any) error {
	if p == nil {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", t, err)
	}

	body, err := json.Marshal(api.NewMessage(t, p.droneID, data))
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", t, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("publish %s: ground station returned %s", t, resp.Status)
	}
	return nil
}

// publish logs a failed delivery instead of surfacing it; events ride
// alongside the mission, never ahead of it.
func (p *Publisher) publish(ctx context.Context, t api.MessageType, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, t, payload); err != nil {
		p.log.Warn("event delivery failed", "type", t, "error", err)
	}
}
