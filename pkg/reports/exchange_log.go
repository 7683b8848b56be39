package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// ExchangeLogReport lists every journal event, one row each.
type ExchangeLogReport struct {
	store ReportStore
}

// NewExchangeLogReport creates a new ExchangeLogReport generator.
func NewExchangeLogReport(s ReportStore) *ExchangeLogReport {
	return &ExchangeLogReport{store: s}
}

// Generate writes timestamp, event type, interaction, broker id,
// correlation id and the raw JSON payload per event.
func (r *ExchangeLogReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"timestamp", "event_type", "interaction", "interaction_id", "correlation_id", "payload"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	events, err := r.store.QueryEvents(ctx, eventFilter(params))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	for _, event := range events {
		row := []string{
			event.TsEvent.UTC().Format(time.RFC3339),
			string(event.EventType),
			event.Dimensions.InteractionName,
			event.Dimensions.InteractionID,
			event.Correlation.CorrelationID,
			string(event.Payload),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return buf, nil
}
