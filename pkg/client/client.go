// Package client connects a knowledge base to the broker: it registers the
// knowledge base and its interactions, keeps that registration alive across
// broker restarts, and runs the loop that answers requests routed to it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
)

// Broker REST paths relative to the endpoint.
const (
	pathKnowledgeBase = "sc/"
	pathInteractions  = "sc/ki/"
	pathAsk           = "sc/ask"
	pathPost          = "sc/post"
	pathHandle        = "sc/handle"
)

// Header names understood by the broker.
const (
	HeaderKnowledgeBaseID        = "Knowledge-Base-Id"
	HeaderKnowledgeInteractionID = "Knowledge-Interaction-Id"
)

// DefaultEndpoint is used when no endpoint is configured.
const DefaultEndpoint = "http://localhost:8280/rest/"

// Response is a broker reply with its body fully read.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into v. An empty body decodes as {}.
func (r *Response) Decode(v any) error {
	body := bytes.TrimSpace(r.Body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode broker response: %w", err)
	}
	return nil
}

// Message returns the broker's error message, or the raw body when it is
// not an error document.
func (r *Response) Message() string {
	var er ErrorResponse
	if err := json.Unmarshal(r.Body, &er); err == nil && er.Message != "" {
		return er.Message
	}
	return strings.TrimSpace(string(r.Body))
}

// Client is the broker REST transport for one knowledge base.
type Client struct {
	endpoint string
	kbID     string
	http     *http.Client
}

// NewClient creates a transport. endpoint defaults to DefaultEndpoint and
// always ends with "/". A zero timeout leaves the HTTP client unbounded.
func NewClient(endpoint, kbID string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return &Client{
		endpoint: endpoint,
		kbID:     kbID,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithHTTPClient swaps the underlying HTTP client, for custom TLS or tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Endpoint returns the normalized broker endpoint.
func (c *Client) Endpoint() string { return c.endpoint }

// KnowledgeBaseID returns the id sent with every request.
func (c *Client) KnowledgeBaseID() string { return c.kbID }

// Do sends one request. kiID, when set, goes into the interaction header and
// body, when non-nil, is sent as JSON. Failing to reach the broker or to read
// its reply is a transport error; any HTTP status is returned as a Response.
func (c *Client) Do(ctx context.Context, method, path, kiID string, body any) (*Response, error) {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s body: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderKnowledgeBaseID, c.kbID)
	if kiID != "" {
		req.Header.Set(HeaderKnowledgeInteractionID, kiID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, kerrors.Transport(op, err, "broker unreachable: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, kerrors.Transport(op, err, "failed to read broker response: %v", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

// RegisterKnowledgeBase sends POST sc/.
func (c *Client) RegisterKnowledgeBase(ctx context.Context, req RegisterKnowledgeBaseRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, pathKnowledgeBase, "", req)
}

// ListInteractions sends GET sc/ki/.
func (c *Client) ListInteractions(ctx context.Context) (*Response, error) {
	return c.Do(ctx, http.MethodGet, pathInteractions, "", nil)
}

// RegisterInteraction sends POST sc/ki/ with a prepared registration body.
func (c *Client) RegisterInteraction(ctx context.Context, body map[string]any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, pathInteractions, "", body)
}

// DeleteInteraction sends DELETE sc/ki/ for one interaction.
func (c *Client) DeleteInteraction(ctx context.Context, kiID string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, pathInteractions, kiID, nil)
}
