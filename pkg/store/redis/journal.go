// Package redis keeps the client journal and leadership leases in Redis so
// replicas sharing a knowledge base see one history.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

// DefaultMaxEvents caps the journal list.
const DefaultMaxEvents = 10000

// RedisJournal stores events in a capped list, newest first.
type RedisJournal struct {
	client    *redis.Client
	key       string
	maxEvents int64
}

var _ store.Journal = (*RedisJournal)(nil)

// NewRedisJournal creates a journal for the knowledge base kbID. maxEvents <= 0
// uses DefaultMaxEvents.
func NewRedisJournal(client *redis.Client, kbID string, maxEvents int) *RedisJournal {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &RedisJournal{
		client:    client,
		key:       fmt.Sprintf("ke:events:%s", kbID),
		maxEvents: int64(maxEvents),
	}
}

// AppendEvent pushes evt and trims the list to its cap.
func (j *RedisJournal) AppendEvent(ctx context.Context, evt *store.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", evt.EventID, err)
	}
	pipe := j.client.TxPipeline()
	pipe.LPush(ctx, j.key, data)
	pipe.LTrim(ctx, j.key, 0, j.maxEvents-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append event %s: %w", evt.EventID, err)
	}
	return nil
}

// ReadRecentEvents returns up to limit events, newest first. Entries that no
// longer decode are skipped.
func (j *RedisJournal) ReadRecentEvents(ctx context.Context, limit int) ([]*store.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	values, err := j.client.LRange(ctx, j.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to LRANGE %s: %w", j.key, err)
	}
	events := make([]*store.Event, 0, len(values))
	for _, v := range values {
		var evt store.Event
		if err := json.Unmarshal([]byte(v), &evt); err != nil {
			slog.Warn("Skipping undecodable journal entry", "key", j.key, "error", err)
			continue
		}
		events = append(events, &evt)
	}
	return events, nil
}

// Clear drops the journal.
func (j *RedisJournal) Clear(ctx context.Context) error {
	return j.client.Del(ctx, j.key).Err()
}
