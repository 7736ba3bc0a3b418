// Package hermesclient announces this Terma instance to an external
// service registry ("Hermes"): best-effort registration at startup, a
// periodic heartbeat, and session-lifecycle event publishing. None of it
// is load-bearing for Terma's own correctness: failures are retried, then
// logged, and never returned to the caller. Calls run synchronously on the
// caller's goroutine, so a session create or close request waits for its
// event publish, retries included.
package hermesclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// Config carries the announcement client's settings, resolved from
// HERMES_URL / REGISTER_WITH_HERMES.
type Config struct {
	BaseURL           string
	Enabled           bool
	ServiceName       string
	HeartbeatInterval time.Duration
	MaxRetries        int
	BaseDelay         time.Duration
	Timeout           time.Duration
}

func DefaultConfig() Config {
	return Config{
		ServiceName:       "terma",
		HeartbeatInterval: 30 * time.Second,
		MaxRetries:        3,
		BaseDelay:         250 * time.Millisecond,
		Timeout:           5 * time.Second,
	}
}

// Client is the Hermes announcement client. A zero-value Enabled Config
// makes every method a no-op, so callers can always construct and use one
// unconditionally.
type Client struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type registrationPayload struct {
	Service  string `json:"service"`
	Endpoint string `json:"endpoint"`
}

type eventPayload struct {
	Service   string `json:"service"`
	Event     string `json:"event"`
	SessionID string `json:"session_id,omitempty"`
}

// Register announces this instance's HTTP endpoint to Hermes at startup.
// Failure is logged, never fatal: Terma must run standalone when Hermes is
// unreachable or REGISTER_WITH_HERMES is unset.
func (c *Client) Register(ctx context.Context, selfEndpoint string) {
	if !c.cfg.Enabled {
		return
	}
	payload := registrationPayload{Service: c.cfg.ServiceName, Endpoint: selfEndpoint}
	if err := c.postWithRetry(ctx, "/register", payload); err != nil {
		logrus.Warnf("hermesclient: registration failed: %v", err)
		return
	}
	logrus.Infof("hermesclient: registered %s with %s", selfEndpoint, c.cfg.BaseURL)
}

// RunHeartbeat blocks, sending a heartbeat every HeartbeatInterval until
// ctx is cancelled. Intended to run in its own goroutine.
func (c *Client) RunHeartbeat(ctx context.Context) {
	if !c.cfg.Enabled {
		return
	}
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.postWithRetry(ctx, "/heartbeat", registrationPayload{Service: c.cfg.ServiceName}); err != nil {
				logrus.Warnf("hermesclient: heartbeat failed: %v", err)
			}
		}
	}
}

// PublishSessionCreated/PublishSessionClosed announce session lifecycle
// events, best-effort, so Hermes-side consumers can track active sessions
// without Terma depending on their availability.
func (c *Client) PublishSessionCreated(ctx context.Context, sessionID string) {
	c.publishEvent(ctx, "session_created", sessionID)
}

func (c *Client) PublishSessionClosed(ctx context.Context, sessionID string) {
	c.publishEvent(ctx, "session_closed", sessionID)
}

func (c *Client) publishEvent(ctx context.Context, event, sessionID string) {
	if !c.cfg.Enabled {
		return
	}
	payload := eventPayload{Service: c.cfg.ServiceName, Event: event, SessionID: sessionID}
	if err := c.postWithRetry(ctx, "/events", payload); err != nil {
		logrus.Warnf("hermesclient: publish %s for session %s failed: %v", event, sessionID, err)
	}
}

func (c *Client) postWithRetry(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("hermesclient: marshal payload: %w", err)
	}

	backoff := retry.NewExponential(c.cfg.BaseDelay)
	backoff = retry.WithMaxRetries(uint64(c.cfg.MaxRetries), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("hermes returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("hermes returned %d", resp.StatusCode)
		}
		return nil
	})
}
