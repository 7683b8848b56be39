package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestMCPServer_ReadEvents(t *testing.T) {
	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/events" {
			if r.URL.Query().Get("limit") != "50" {
				t.Errorf("Expected limit=50, got %q", r.URL.RawQuery)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"event_id":"e1","event_type":"ask_sent","payload":{}}]`))
			return
		}
		http.NotFound(w, r)
	})
	ts := httptest.NewServer(apiHandler)
	defer ts.Close()

	s := NewServer(ts.URL)

	req := mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: "ke://events",
		},
	}

	result, err := s.handleReadEvents(context.Background(), req)
	if err != nil {
		t.Fatalf("handleReadEvents failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 resource content, got %d", len(result))
	}

	content, ok := result[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("Expected TextResourceContents")
	}
	if content.MIMEType != "application/json" {
		t.Errorf("Expected application/json, got %s", content.MIMEType)
	}

	var events []map[string]interface{}
	if err := json.Unmarshal([]byte(content.Text), &events); err != nil {
		t.Errorf("Failed to parse result JSON: %v", err)
	}
	if len(events) != 1 || events[0]["event_type"] != "ask_sent" {
		t.Errorf("Unexpected events: %v", events)
	}
}

func TestMCPServer_ListInteractions(t *testing.T) {
	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/interactions" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"name":"post-command","type":"post","vars":["cmd"],"result_vars":["ack","cmd"],"registered":true}]`))
			return
		}
		http.NotFound(w, r)
	})
	ts := httptest.NewServer(apiHandler)
	defer ts.Close()

	s := NewServer(ts.URL)
	result, err := s.handleListInteractions(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("handleListInteractions failed: %v", err)
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected TextContent")
	}
	want := "post-command (post, registered) vars: cmd result vars: ack, cmd"
	if !strings.Contains(text.Text, want) {
		t.Errorf("Expected %q in %q", want, text.Text)
	}
}

func TestMCPServer_Ask(t *testing.T) {
	var got map[string]interface{}
	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/ask" && r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &got)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"interaction":"ask-measurement","bindings":[{"value":"\"42\""}],"exchanges":1}`))
			return
		}
		http.NotFound(w, r)
	})
	ts := httptest.NewServer(apiHandler)
	defer ts.Close()

	s := NewServer(ts.URL)

	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: "ask",
			Arguments: map[string]interface{}{
				"interaction": "measurement",
				"bindings":    `[{"meas":"<http://example.org/m1>"}]`,
			},
		},
	}

	result, err := s.handleAsk(context.Background(), req)
	if err != nil {
		t.Fatalf("handleAsk failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error: %v", result.Content)
	}
	if got["interaction"] != "measurement" {
		t.Errorf("Expected interaction to be forwarded, got %v", got)
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected TextContent")
	}
	if !strings.Contains(text.Text, "Exchanges: 1") {
		t.Errorf("Unexpected result text: %s", text.Text)
	}
}

func TestMCPServer_PostErrors(t *testing.T) {
	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"unknown_interaction","reason":"post-nope is not declared"}`))
	})
	ts := httptest.NewServer(apiHandler)
	defer ts.Close()

	s := NewServer(ts.URL)

	bad := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: "post", Arguments: map[string]interface{}{
		"interaction": "command",
		"bindings":    "{not json",
	}}}
	result, err := s.handlePost(context.Background(), bad)
	if err != nil {
		t.Fatalf("handlePost failed: %v", err)
	}
	if !result.IsError {
		t.Errorf("Expected error result for invalid bindings")
	}

	unknown := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: "post", Arguments: map[string]interface{}{
		"interaction": "nope",
	}}}
	result, err = s.handlePost(context.Background(), unknown)
	if err != nil {
		t.Fatalf("handlePost failed: %v", err)
	}
	if !result.IsError {
		t.Errorf("Expected error result for unknown interaction")
	}
}

func TestMCPServer_Prompt(t *testing.T) {
	s := NewServer("http://127.0.0.1:1")
	req := mcp.GetPromptRequest{Params: mcp.GetPromptParams{Name: "knowledge-engine-aware"}}
	res, err := s.handleGetPrompt(context.Background(), req)
	if err != nil {
		t.Fatalf("handleGetPrompt failed: %v", err)
	}
	if len(res.Messages) != 1 {
		t.Errorf("Expected 1 prompt message, got %d", len(res.Messages))
	}

	req.Params.Name = "other"
	if _, err := s.handleGetPrompt(context.Background(), req); err == nil {
		t.Errorf("Expected error for unknown prompt")
	}
}
