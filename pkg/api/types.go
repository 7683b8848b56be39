package api

import "github.com/BlueBird-project/ke-client-go/pkg/bindings"

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	Status          string `json:"status"` // ok, degraded
	KnowledgeBaseID string `json:"knowledge_base_id"`
	Connected       bool   `json:"connected"`
	Running         bool   `json:"running"`
	Leader          bool   `json:"leader"`
	Epoch           int64  `json:"epoch,omitempty"`
}

// InteractionView describes one declared interaction for GET /v1/interactions.
type InteractionView struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"` // ask, post, react, answer
	ID         string   `json:"knowledge_interaction_id,omitempty"`
	Vars       []string `json:"vars"`
	ResultVars []string `json:"result_vars,omitempty"`
	Registered bool     `json:"registered"`
}

// ExchangeRequest matches the POST /v1/ask and POST /v1/post body schema.
type ExchangeRequest struct {
	Interaction string              `json:"interaction"` // plain or role-qualified name
	Bindings    []map[string]string `json:"bindings,omitempty"`
}

// ExchangeResponse is returned by POST /v1/ask and POST /v1/post.
type ExchangeResponse struct {
	Interaction string       `json:"interaction"`
	Bindings    bindings.Set `json:"bindings"`
	Exchanges   int          `json:"exchanges"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
