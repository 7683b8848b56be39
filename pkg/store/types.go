package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of event.
type EventType string

const (
	EventTypeKBRegistered        EventType = "kb_registered"
	EventTypeKIRegistered        EventType = "ki_registered"
	EventTypeKIDeleted           EventType = "ki_deleted"
	EventTypeAskSent             EventType = "ask_sent"
	EventTypePostSent            EventType = "post_sent"
	EventTypeRequestHandled      EventType = "request_handled"
	EventTypeDispatchFailed      EventType = "dispatch_failed"
	EventTypeReconnectAttempted  EventType = "reconnect_attempted"
	EventTypeReconnectFailed     EventType = "reconnect_failed"
	EventTypeKnowledgeBaseClosed EventType = "kb_closed"
	EventTypeLeaderPromoted      EventType = "leader_promoted"
	EventTypeLeaderDemoted       EventType = "leader_demoted"
)

// Lease represents a distributed lock or leadership claim.
type Lease struct {
	Name      string    `json:"name"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"` // For CAS (Compare-And-Swap) logic
	Epoch     int64     `json:"epoch"`   // Monotonically increasing election term
}

// ErrLeaseLost is returned by Renew when another holder took the lease or it
// was released.
var ErrLeaseLost = errors.New("lease lost")

// LeaseStore defines the interface for acquiring and renewing leases.
type LeaseStore interface {
	// Acquire tries to acquire the lease. Returns true if successful.
	// If the lease is already held by holderID, it renews it.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)

	// Renew updates the expiry of an existing lease held by holderID.
	// It fails with ErrLeaseLost when holderID no longer holds it.
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error

	// Release releases the lease if held by holderID.
	Release(ctx context.Context, name, holderID string) error

	// Get returns the current lease state.
	Get(ctx context.Context, name string) (*Lease, error)
}

// Journal records what a client did against the broker.
type Journal interface {
	AppendEvent(ctx context.Context, evt *Event) error
	ReadRecentEvents(ctx context.Context, limit int) ([]*Event, error)
}

// EventID is a unique identifier for an event.
type EventID string

// Event is the envelope for every journal entry.
type Event struct {
	EventID       EventID          `json:"event_id"`
	EventType     EventType        `json:"event_type"`
	SchemaVersion int              `json:"schema_version"`
	TsEvent       time.Time        `json:"ts_event"`
	TsIngest      time.Time        `json:"ts_ingest"`
	Epoch         int64            `json:"epoch,omitempty"` // Leadership epoch at generation time
	Source        EventSource      `json:"source"`
	Dimensions    EventDimensions  `json:"dimensions"`
	Correlation   EventCorrelation `json:"correlation"`
	Payload       json.RawMessage  `json:"payload"`
}

// EventSource describes the origin of the event.
type EventSource struct {
	OriginKind string `json:"origin_kind"` // client, broker, operator
	OriginID   string `json:"origin_id"`
	WriterID   string `json:"writer_id"`
}

// EventDimensions locate the event in the knowledge base.
type EventDimensions struct {
	KnowledgeBaseID string `json:"knowledge_base_id"`
	InteractionName string `json:"interaction_name,omitempty"`
	InteractionID   string `json:"interaction_id,omitempty"`
}

// EventCorrelation groups events logically.
type EventCorrelation struct {
	CorrelationID string `json:"correlation_id"` // handleRequestId for dispatched requests
	CausationID   string `json:"causation_id"`
}

// EventFilter defines filters for querying events.
type EventFilter struct {
	From            time.Time
	To              time.Time
	EventTypes      []EventType
	KnowledgeBaseID string
	InteractionName string
	Limit           int
}

// Default writer id stamped on events.
const WriterID = "ke-client"

// NewEvent builds an event with a fresh id and the payload marshalled to
// JSON. A nil payload is stored as {}.
func NewEvent(typ EventType, dims EventDimensions, payload any) (*Event, error) {
	raw := json.RawMessage(`{}`)
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
		}
		raw = b
	}
	now := time.Now().UTC()
	return &Event{
		EventID:       EventID(uuid.NewString()),
		EventType:     typ,
		SchemaVersion: 1,
		TsEvent:       now,
		TsIngest:      now,
		Source: EventSource{
			OriginKind: "client",
			OriginID:   dims.KnowledgeBaseID,
			WriterID:   WriterID,
		},
		Dimensions: dims,
		Payload:    raw,
	}, nil
}
