// Package archive moves old journal events out of SQLite into gzipped
// JSON Lines blobs.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BlueBird-project/ke-client-go/pkg/blob"
	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

const (
	DefaultRetention     = 30 * 24 * time.Hour
	DefaultBatchSize     = 1000
	DefaultCheckInterval = time.Hour
)

// Config holds configuration for the Worker.
type Config struct {
	Retention     time.Duration
	BatchSize     int
	CheckInterval time.Duration
}

// EventSource is the part of the SQLite journal the worker drains.
type EventSource interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
	DeleteEvents(ctx context.Context, ids []store.EventID) error
}

// Worker archives events older than the retention window.
type Worker struct {
	source    EventSource
	blobStore blob.BlobStore
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewWorker creates a worker. Zero config fields take the defaults.
func NewWorker(source EventSource, blobStore blob.BlobStore, config Config, logger *slog.Logger) *Worker {
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		source:    source,
		blobStore: blobStore,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Run archives on every CheckInterval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil {
				w.logger.Error("archive worker failed", "error", err)
			}
		}
	}
}

// Drain archives batches until no candidate is left and returns the keys
// written.
func (w *Worker) Drain(ctx context.Context) ([]string, error) {
	var keys []string
	for {
		key, n, err := w.processBatch(ctx)
		if err != nil {
			return keys, err
		}
		if n == 0 {
			return keys, nil
		}
		keys = append(keys, key)
		w.logger.Info("archived journal events", "key", key, "events", n)
		if n < w.config.BatchSize {
			return keys, nil
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) (string, int, error) {
	cutoff := w.now().UTC().Add(-w.config.Retention)
	events, err := w.source.QueryEvents(ctx, store.EventFilter{To: cutoff, Limit: w.config.BatchSize})
	if err != nil {
		return "", 0, fmt.Errorf("failed to read candidate events: %w", err)
	}
	if len(events) == 0 {
		return "", 0, nil
	}

	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	encoder := json.NewEncoder(gzWriter)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			gzWriter.Close()
			return "", 0, fmt.Errorf("failed to encode event %s: %w", event.EventID, err)
		}
	}
	if err := gzWriter.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	// events/YYYY/MM/DD/{first}_{last}_{uuid}.jsonl.gz
	first, last := events[0], events[len(events)-1]
	year, month, day := first.TsEvent.Date()
	key := fmt.Sprintf("events/%04d/%02d/%02d/%d_%d_%s.jsonl.gz",
		year, month, day,
		first.TsEvent.Unix(),
		last.TsEvent.Unix(),
		uuid.NewString(),
	)

	if err := w.blobStore.Put(ctx, key, &buf); err != nil {
		return "", 0, fmt.Errorf("failed to upload archive to blob store: %w", err)
	}

	ids := make([]store.EventID, len(events))
	for i, event := range events {
		ids[i] = event.EventID
	}
	if err := w.source.DeleteEvents(ctx, ids); err != nil {
		return "", 0, fmt.Errorf("failed to delete archived events: %w", err)
	}
	return key, len(events), nil
}

// Read decodes an archive written by the worker.
func Read(ctx context.Context, b blob.BlobStore, key string) ([]*store.Event, error) {
	rc, err := b.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", key, err)
	}
	defer gz.Close()

	var events []*store.Event
	dec := json.NewDecoder(gz)
	for dec.More() {
		var evt store.Event
		if err := dec.Decode(&evt); err != nil {
			return nil, fmt.Errorf("failed to decode archive %s: %w", key, err)
		}
		events = append(events, &evt)
	}
	return events, nil
}
