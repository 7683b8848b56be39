package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

const testKB = "http://fm.bluebird.com/kb"

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// RunJournalTests runs the journal contract against any store.Journal.
func RunJournalTests(t *testing.T, journal store.Journal) {
	ctx := context.Background()

	t.Run("Append and read newest first", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			evt, err := store.NewEvent(store.EventTypeAskSent, store.EventDimensions{
				KnowledgeBaseID: testKB,
				InteractionName: "ask-ts",
			}, map[string]int{"seq": i})
			if err != nil {
				t.Fatalf("NewEvent failed: %v", err)
			}
			evt.EventID = store.EventID(fmt.Sprintf("evt_%d", i))
			if err := journal.AppendEvent(ctx, evt); err != nil {
				t.Fatalf("AppendEvent failed: %v", err)
			}
		}

		events, err := journal.ReadRecentEvents(ctx, 2)
		if err != nil {
			t.Fatalf("ReadRecentEvents failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].EventID != "evt_3" || events[1].EventID != "evt_2" {
			t.Errorf("unexpected order: %s, %s", events[0].EventID, events[1].EventID)
		}
		if events[0].Dimensions.InteractionName != "ask-ts" {
			t.Errorf("dimensions lost: %+v", events[0].Dimensions)
		}
		if string(events[0].Payload) != `{"seq":3}` {
			t.Errorf("payload lost: %s", events[0].Payload)
		}
	})
}

func TestRedisJournal(t *testing.T) {
	_, client := newTestClient(t)
	RunJournalTests(t, NewRedisJournal(client, testKB, 0))
}

func TestRedisJournal_CapAndSkip(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	journal := NewRedisJournal(client, testKB, 3)

	for i := 0; i < 5; i++ {
		evt, _ := store.NewEvent(store.EventTypePostSent, store.EventDimensions{KnowledgeBaseID: testKB}, nil)
		if err := journal.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}
	if n, _ := client.LLen(ctx, "ke:events:"+testKB).Result(); n != 3 {
		t.Errorf("expected list capped at 3, got %d", n)
	}

	mr.Lpush("ke:events:"+testKB, "not json")
	events, err := journal.ReadRecentEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ReadRecentEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("expected garbage to be skipped, got %d events", len(events))
	}

	if err := journal.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	events, _ = journal.ReadRecentEvents(ctx, 0)
	if len(events) != 0 {
		t.Errorf("expected empty journal, got %d", len(events))
	}
}

func TestRedisLeaseStore(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	leases := NewRedisLeaseStore(client)
	name := "ke-leader:" + testKB

	ok, err := leases.Acquire(ctx, name, "replica-1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected replica-1 to acquire: ok=%v err=%v", ok, err)
	}
	ok, err = leases.Acquire(ctx, name, "replica-1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected replica-1 to re-acquire: ok=%v err=%v", ok, err)
	}
	ok, err = leases.Acquire(ctx, name, "replica-2", time.Second)
	if err != nil || ok {
		t.Fatalf("expected replica-2 to be refused: ok=%v err=%v", ok, err)
	}

	l, err := leases.Get(ctx, name)
	if err != nil || l == nil {
		t.Fatalf("Get failed: %v", err)
	}
	if l.HolderID != "replica-1" || l.Epoch != 1 {
		t.Errorf("unexpected lease %+v", l)
	}

	if err := leases.Renew(ctx, name, "replica-2", time.Second); !errors.Is(err, store.ErrLeaseLost) {
		t.Errorf("expected ErrLeaseLost for non-holder, got %v", err)
	}
	if err := leases.Renew(ctx, name, "replica-1", time.Second); err != nil {
		t.Errorf("Renew failed: %v", err)
	}

	mr.FastForward(2 * time.Second)
	ok, err = leases.Acquire(ctx, name, "replica-2", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected replica-2 to take over expired lease: ok=%v err=%v", ok, err)
	}
	l, _ = leases.Get(ctx, name)
	if l.HolderID != "replica-2" || l.Epoch != 2 {
		t.Errorf("expected replica-2 in epoch 2, got %+v", l)
	}

	if err := leases.Release(ctx, name, "replica-1"); err != nil {
		t.Fatalf("Release by non-holder failed: %v", err)
	}
	if l, _ := leases.Get(ctx, name); l == nil {
		t.Error("lease must survive release by non-holder")
	}
	if err := leases.Release(ctx, name, "replica-2"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if l, _ := leases.Get(ctx, name); l != nil {
		t.Errorf("expected lease gone, got %+v", l)
	}
}
