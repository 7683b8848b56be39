package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

// Client talks to a running admin server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the admin server at baseURL. A bare
// host:port is treated as http.
func NewClient(baseURL string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Health fetches GET /v1/health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Interactions fetches GET /v1/interactions.
func (c *Client) Interactions(ctx context.Context) ([]InteractionView, error) {
	var out []InteractionView
	if err := c.do(ctx, http.MethodGet, "/v1/interactions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events fetches the limit most recent journal events.
func (c *Client) Events(ctx context.Context, limit int) ([]*store.Event, error) {
	var out []*store.Event
	if err := c.do(ctx, http.MethodGet, "/v1/events?limit="+strconv.Itoa(limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ask sends bindings through the named ASK interaction.
func (c *Client) Ask(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error) {
	var out ExchangeResponse
	if err := c.do(ctx, http.MethodPost, "/v1/ask", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Post sends bindings through the named POST interaction.
func (c *Client) Post(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error) {
	var out ExchangeResponse
	if err := c.do(ctx, http.MethodPost, "/v1/post", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register asks the server to register with the broker now.
func (c *Client) Register(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/register", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach admin server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return fmt.Errorf("admin server returned status %d", resp.StatusCode)
		}
		if e.Reason != "" {
			return fmt.Errorf("%s: %s", e.Error, e.Reason)
		}
		return fmt.Errorf("%s", e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
