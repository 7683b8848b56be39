// Package reports renders the exchange journal as CSV.
package reports

import (
	"context"
	"io"
	"time"

	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

type ReportType string

const (
	ReportTypeExchangeLog  ReportType = "exchange_log"
	ReportTypeInteractions ReportType = "interactions"
)

type ReportParams struct {
	Start           time.Time
	End             time.Time
	KnowledgeBaseID string
	// Interaction restricts the report to one role-qualified name.
	Interaction string
}

// ReportStore defines the data access reports need.
type ReportStore interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}

func eventFilter(params ReportParams, types ...store.EventType) store.EventFilter {
	return store.EventFilter{
		From:            params.Start,
		To:              params.End,
		EventTypes:      types,
		KnowledgeBaseID: params.KnowledgeBaseID,
		InteractionName: params.Interaction,
	}
}
