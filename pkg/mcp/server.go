// Package mcp exposes a running knowledge base client to MCP agents.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/BlueBird-project/ke-client-go/pkg/api"
)

// Server adapts the admin API to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *api.Client
}

// NewServer creates a new MCP server backed by the admin API at apiURL.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"ke-client",
			"1.0.0",
		),
		apiClient: api.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		"ke://events",
		"Knowledge Base Journal",
		mcp.WithResourceDescription("Recent registrations, exchanges and handled requests"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadEvents)

	s.mcpServer.AddResource(mcp.NewResource(
		"ke://interactions",
		"Knowledge Interactions",
		mcp.WithResourceDescription("Declared interactions with their variables and broker ids"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadInteractions)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"list_interactions",
		mcp.WithDescription("List the knowledge interactions of this knowledge base."),
	), s.handleListInteractions)

	s.mcpServer.AddTool(mcp.NewTool(
		"ask",
		mcp.WithDescription("Ask the knowledge network for bindings matching an ASK interaction's graph pattern."),
		mcp.WithString("interaction", mcp.Required(), mcp.Description("ASK interaction name, e.g. 'measurement'")),
		mcp.WithString("bindings", mcp.Description(`JSON array of bindings, e.g. [{"meas":"<http://example.org/m1>"}]`)),
	), s.handleAsk)

	s.mcpServer.AddTool(mcp.NewTool(
		"post",
		mcp.WithDescription("Post bindings through a POST interaction and return the reactions' results."),
		mcp.WithString("interaction", mcp.Required(), mcp.Description("POST interaction name")),
		mcp.WithString("bindings", mcp.Description("JSON array of bindings")),
	), s.handlePost)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"knowledge-engine-aware",
		mcp.WithPromptDescription("Explains knowledge interactions, graph patterns and bindings"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReadEvents(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	events, err := s.apiClient.Events(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	return jsonResource(request.Params.URI, events)
}

func (s *Server) handleReadInteractions(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	kis, err := s.apiClient.Interactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch interactions: %w", err)
	}
	return jsonResource(request.Params.URI, kis)
}

func (s *Server) handleListInteractions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kis, err := s.apiClient.Interactions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	var b strings.Builder
	for _, ki := range kis {
		state := "unregistered"
		if ki.Registered {
			state = "registered"
		}
		fmt.Fprintf(&b, "%s (%s, %s) vars: %s", ki.Name, ki.Type, state, strings.Join(ki.Vars, ", "))
		if len(ki.ResultVars) > 0 {
			fmt.Fprintf(&b, " result vars: %s", strings.Join(ki.ResultVars, ", "))
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return mcp.NewToolResultText("No interactions declared."), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func exchangeRequest(request mcp.CallToolRequest) (api.ExchangeRequest, error) {
	req := api.ExchangeRequest{Interaction: mcp.ParseString(request, "interaction", "")}
	if raw := mcp.ParseString(request, "bindings", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Bindings); err != nil {
			return req, fmt.Errorf("bindings must be a JSON array of objects: %w", err)
		}
	}
	return req, nil
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := exchangeRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.apiClient.Ask(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return exchangeResult(resp)
}

func (s *Server) handlePost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := exchangeRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.apiClient.Post(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return exchangeResult(resp)
}

func exchangeResult(resp *api.ExchangeResponse) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(resp.Bindings, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bindings: %w", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Interaction: %s\nExchanges: %d\nBindings:\n%s",
		resp.Interaction, resp.Exchanges, data)), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "knowledge-engine-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are connected to a knowledge base in a semantic knowledge network.

Concepts:
- Knowledge interaction: a named graph pattern this knowledge base asks, posts, answers or reacts to.
- Graph pattern: RDF triples with ?variables, e.g. "?meas ex:value ?value".
- Binding: a JSON object mapping variable names (without '?') to RDF terms in N3,
  e.g. {"meas":"<http://example.org/m1>","value":"\"42\"^^<http://www.w3.org/2001/XMLSchema#integer>"}.

Use 'list_interactions' to see what can be asked or posted.
Use 'ask' with the variables you know bound; the result lists every matching binding.
Use 'post' to publish data; reactions may return result bindings.
`

	return mcp.NewGetPromptResult(
		"knowledge-engine-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
