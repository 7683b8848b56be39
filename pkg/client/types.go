package client

import (
	"strings"

	"github.com/BlueBird-project/ke-client-go/pkg/bindings"
)

// Exchange statuses reported by the broker.
const (
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// RegisterKnowledgeBaseRequest is the body of POST sc/.
type RegisterKnowledgeBaseRequest struct {
	KnowledgeBaseID          string `json:"knowledgeBaseId"`
	KnowledgeBaseName        string `json:"knowledgeBaseName"`
	KnowledgeBaseDescription string `json:"knowledgeBaseDescription"`
	ReasonerLevel            int    `json:"reasonerLevel"`
}

// InteractionInfo is one entry of GET sc/ki/.
type InteractionInfo struct {
	KnowledgeInteractionID   string `json:"knowledgeInteractionId"`
	KnowledgeInteractionName string `json:"knowledgeInteractionName,omitempty"`
	KnowledgeInteractionType string `json:"knowledgeInteractionType,omitempty"`
}

// RegisterInteractionResponse is the body returned by POST sc/ki/.
type RegisterInteractionResponse struct {
	KnowledgeInteractionID string `json:"knowledgeInteractionId"`
}

// ExchangeInfo describes the exchange with one other knowledge base.
type ExchangeInfo struct {
	KnowledgeBaseID          string       `json:"knowledgeBaseId,omitempty"`
	KnowledgeInteractionID   string       `json:"knowledgeInteractionId,omitempty"`
	Initiator                string       `json:"initiator,omitempty"`
	ExchangeStart            string       `json:"exchangeStart,omitempty"`
	ExchangeEnd              string       `json:"exchangeEnd,omitempty"`
	Status                   string       `json:"status,omitempty"`
	FailedMessage            string       `json:"failedMessage,omitempty"`
	BindingSet               bindings.Set `json:"bindingSet,omitempty"`
	ArgumentBindingSet       bindings.Set `json:"argumentBindingSet,omitempty"`
	ResultBindingSet         bindings.Set `json:"resultBindingSet,omitempty"`
	KnowledgeInteractionName string       `json:"knowledgeInteractionName,omitempty"`
}

// Failed reports whether the broker marked the exchange as failed.
func (e ExchangeInfo) Failed() bool {
	return strings.EqualFold(e.Status, StatusFailed)
}

// AskResult is the body of a successful sc/ask call.
type AskResult struct {
	BindingSet   bindings.Set   `json:"bindingSet"`
	ExchangeInfo []ExchangeInfo `json:"exchangeInfo"`
}

// PostResult is the body of a successful sc/post call.
type PostResult struct {
	ResultBindingSet bindings.Set   `json:"resultBindingSet"`
	ExchangeInfo     []ExchangeInfo `json:"exchangeInfo"`
}

// HandleRequest is a pending request delivered by GET sc/handle.
type HandleRequest struct {
	KnowledgeInteractionID string       `json:"knowledgeInteractionId"`
	HandleRequestID        int64        `json:"handleRequestId"`
	BindingSet             bindings.Set `json:"bindingSet"`
}

// HandleResponse answers a HandleRequest through POST sc/handle.
type HandleResponse struct {
	HandleRequestID int64        `json:"handleRequestId"`
	BindingSet      bindings.Set `json:"bindingSet"`
}

// ErrorResponse is the body the broker sends with non-success statuses.
type ErrorResponse struct {
	Message string `json:"message"`
}
