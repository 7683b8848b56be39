package election

import (
	"context"
	"log/slog"

	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

// Loop is the part of a client runtime leadership switches on and off.
type Loop interface {
	Start(ctx context.Context) error
	Stop()
	KnowledgeBaseID() string
}

// Gate returns promote and demote callbacks that start the loop on the
// leader and stop it elsewhere. Transitions are journaled when j is set.
func Gate(ctx context.Context, loop Loop, j store.Journal, logger *slog.Logger) (onPromote, onDemote func()) {
	if logger == nil {
		logger = slog.Default()
	}
	record := func(typ store.EventType) {
		if j == nil {
			return
		}
		evt, err := store.NewEvent(typ, store.EventDimensions{KnowledgeBaseID: loop.KnowledgeBaseID()}, nil)
		if err != nil {
			return
		}
		if err := j.AppendEvent(ctx, evt); err != nil {
			logger.Warn("failed to append journal event", "event_type", typ, "error", err)
		}
	}

	onPromote = func() {
		if err := loop.Start(ctx); err != nil {
			logger.Warn("handle loop not started", "error", err)
		}
		record(store.EventTypeLeaderPromoted)
	}
	onDemote = func() {
		loop.Stop()
		record(store.EventTypeLeaderDemoted)
	}
	return onPromote, onDemote
}
