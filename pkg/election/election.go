// Package election decides which of several replicas sharing one knowledge
// base id runs the handle loop.
package election

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

// ElectionManager manages distributed leadership election using a lease store.
type ElectionManager struct {
	store     store.LeaseStore
	holderID  string
	leaseName string
	ttl       time.Duration
	logger    *slog.Logger

	onPromote func()
	onDemote  func()

	isLeader bool
	epoch    int64
	mu       sync.RWMutex

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// LeaseName returns the lease replicas of a knowledge base compete for.
func LeaseName(kbID string) string {
	return "handle-loop:" + kbID
}

// NewHolderID returns a fresh replica id.
func NewHolderID() string {
	return uuid.NewString()
}

// NewElectionManager creates a new ElectionManager instance.
func NewElectionManager(
	store store.LeaseStore,
	holderID string,
	leaseName string,
	ttl time.Duration,
	onPromote func(),
	onDemote func(),
) *ElectionManager {
	return &ElectionManager{
		store:     store,
		holderID:  holderID,
		leaseName: leaseName,
		ttl:       ttl,
		logger:    slog.Default(),
		onPromote: onPromote,
		onDemote:  onDemote,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// WithLogger replaces the default logger.
func (em *ElectionManager) WithLogger(l *slog.Logger) *ElectionManager {
	em.logger = l
	return em
}

// Start runs one election right away, then one every ttl/2 in the background.
func (em *ElectionManager) Start(ctx context.Context) {
	ticker := time.NewTicker(em.ttl / 2)
	go func() {
		defer close(em.done)
		defer ticker.Stop()
		em.attemptElection(ctx)
		for {
			select {
			case <-ticker.C:
				em.attemptElection(ctx)
			case <-em.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	em.logger.Info("leader election started", "holder_id", em.holderID, "lease", em.leaseName)
}

// Stop stops the election loop and releases the lease if currently leader.
// The demote callback is not called.
func (em *ElectionManager) Stop(ctx context.Context) {
	em.stopOnce.Do(func() { close(em.stopCh) })
	<-em.done

	em.mu.Lock()
	wasLeader := em.isLeader
	em.isLeader = false
	em.mu.Unlock()
	if wasLeader {
		if err := em.store.Release(ctx, em.leaseName, em.holderID); err != nil {
			em.logger.Error("failed to release handle loop lease", "error", err, "holder_id", em.holderID, "lease", em.leaseName)
		} else {
			em.logger.Info("handle loop lease released", "holder_id", em.holderID, "lease", em.leaseName)
		}
	}
	em.logger.Info("leader election stopped", "holder_id", em.holderID, "lease", em.leaseName)
}

// IsLeader returns true if this instance is currently the leader.
func (em *ElectionManager) IsLeader() bool {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.isLeader
}

// Epoch returns the lease epoch observed when leadership was last won.
func (em *ElectionManager) Epoch() int64 {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.epoch
}

// HolderID returns the id this replica competes under.
func (em *ElectionManager) HolderID() string { return em.holderID }

func (em *ElectionManager) attemptElection(ctx context.Context) {
	em.mu.RLock()
	wasLeader := em.isLeader
	em.mu.RUnlock()

	var newLeader bool
	var err error

	if wasLeader {
		err = em.store.Renew(ctx, em.leaseName, em.holderID, em.ttl)
		if err != nil {
			em.logger.Warn("handle loop lease renewal failed", "error", err, "holder_id", em.holderID, "lease", em.leaseName)
		} else {
			newLeader = true
			em.logger.Debug("handle loop lease renewed", "holder_id", em.holderID, "lease", em.leaseName)
		}
	} else {
		newLeader, err = em.store.Acquire(ctx, em.leaseName, em.holderID, em.ttl)
		if err != nil {
			em.logger.Warn("handle loop lease acquisition failed", "error", err, "holder_id", em.holderID, "lease", em.leaseName)
			newLeader = false
		} else if newLeader {
			em.logger.Info("handle loop lease acquired", "holder_id", em.holderID, "lease", em.leaseName)
		} else {
			em.logger.Debug("handle loop lease held elsewhere", "holder_id", em.holderID, "lease", em.leaseName)
		}
	}

	var epoch int64
	if !wasLeader && newLeader {
		if lease, err := em.store.Get(ctx, em.leaseName); err == nil && lease != nil {
			epoch = lease.Epoch
		}
	}

	em.mu.Lock()
	em.isLeader = newLeader
	if epoch > 0 {
		em.epoch = epoch
	}
	em.mu.Unlock()

	if !wasLeader && newLeader {
		if em.onPromote != nil {
			em.onPromote()
		}
		em.logger.Info("replica promoted, serving the knowledge base", "holder_id", em.holderID, "lease", em.leaseName, "epoch", epoch)
	} else if wasLeader && !newLeader {
		if em.onDemote != nil {
			em.onDemote()
		}
		em.logger.Info("replica demoted, handle loop stays idle", "holder_id", em.holderID, "lease", em.leaseName)
	}
}
