package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseAcquire(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	name := "ke-leader:" + testKB

	ok, err := s.Acquire(ctx, name, "replica-1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "new lease")

	first, err := s.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "replica-1", first.HolderID)
	assert.EqualValues(t, 1, first.Epoch)

	ok, err = s.Acquire(ctx, name, "replica-1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "renew by holder")

	renewed, err := s.Get(ctx, name)
	require.NoError(t, err)
	assert.EqualValues(t, 1, renewed.Epoch, "same holder keeps the epoch")
	assert.Greater(t, renewed.Version, first.Version)

	ok, err = s.Acquire(ctx, name, "replica-2", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "valid lease held by another replica")

	_, err = s.db.Exec("UPDATE leases SET expires_at = ?", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	ok, err = s.Acquire(ctx, name, "replica-2", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "takeover of expired lease")

	taken, err := s.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "replica-2", taken.HolderID)
	assert.EqualValues(t, 2, taken.Epoch)
}

func TestLeaseRenew(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	name := "ke-leader:" + testKB

	assert.ErrorIs(t, s.Renew(ctx, name, "replica-1", time.Second), ErrLeaseLost, "no lease yet")

	ok, err := s.Acquire(ctx, name, "replica-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Renew(ctx, name, "replica-1", time.Second))

	_, err = s.db.Exec("UPDATE leases SET holder_id = 'replica-2' WHERE name = ?", name)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Renew(ctx, name, "replica-1", time.Second), ErrLeaseLost)
}

func TestLeaseRelease(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	name := "ke-leader:" + testKB

	_, err := s.Acquire(ctx, name, "replica-1", time.Second)
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, name, "replica-2"))
	l, err := s.Get(ctx, name)
	require.NoError(t, err)
	require.NotNil(t, l, "release by non-holder keeps the lease")

	require.NoError(t, s.Release(ctx, name, "replica-1"))
	l, err = s.Get(ctx, name)
	require.NoError(t, err)
	assert.Nil(t, l)

	require.NoError(t, s.Release(ctx, name, "replica-1"), "release is idempotent")
}

func TestLeaseGet_Missing(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	l, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, l)
}
