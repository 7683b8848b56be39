package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

// InteractionReport summarizes traffic per interaction.
type InteractionReport struct {
	store ReportStore
}

// NewInteractionReport creates a new InteractionReport generator.
func NewInteractionReport(s ReportStore) *InteractionReport {
	return &InteractionReport{store: s}
}

type interactionStats struct {
	registered, sent, handled, failed int
	last                              time.Time
}

// Generate writes one row per interaction seen in the window, sorted by
// name. sent counts ASK and POST calls; handled and failed count served
// REACT and ANSWER requests.
func (r *InteractionReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	events, err := r.store.QueryEvents(ctx, eventFilter(params,
		store.EventTypeKIRegistered,
		store.EventTypeAskSent,
		store.EventTypePostSent,
		store.EventTypeRequestHandled,
		store.EventTypeDispatchFailed,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	stats := make(map[string]*interactionStats)
	for _, e := range events {
		name := e.Dimensions.InteractionName
		if name == "" {
			continue
		}
		s, ok := stats[name]
		if !ok {
			s = &interactionStats{}
			stats[name] = s
		}
		switch e.EventType {
		case store.EventTypeKIRegistered:
			s.registered++
		case store.EventTypeAskSent, store.EventTypePostSent:
			s.sent++
		case store.EventTypeRequestHandled:
			s.handled++
		case store.EventTypeDispatchFailed:
			s.failed++
		}
		if e.TsEvent.After(s.last) {
			s.last = e.TsEvent
		}
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"interaction", "registrations", "sent", "handled", "failed", "last_seen"}); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for _, name := range names {
		s := stats[name]
		row := []string{
			name,
			strconv.Itoa(s.registered),
			strconv.Itoa(s.sent),
			strconv.Itoa(s.handled),
			strconv.Itoa(s.failed),
			s.last.UTC().Format(time.RFC3339),
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
