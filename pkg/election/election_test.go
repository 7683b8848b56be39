package election

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

// MockLeaseStore is a testify mock of store.LeaseStore.
type MockLeaseStore struct {
	mock.Mock
}

func (m *MockLeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, name, holderID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	args := m.Called(ctx, name, holderID, ttl)
	return args.Error(0)
}

func (m *MockLeaseStore) Release(ctx context.Context, name, holderID string) error {
	args := m.Called(ctx, name, holderID)
	return args.Error(0)
}

func (m *MockLeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	args := m.Called(ctx, name)
	lease, _ := args.Get(0).(*store.Lease)
	return lease, args.Error(1)
}

const testLease = "handle-loop:http://example.org/kb/fm"

func TestElectionManager_Promotion(t *testing.T) {
	ls := &MockLeaseStore{}
	ls.On("Acquire", mock.Anything, testLease, "holder-1", 50*time.Millisecond).Return(true, nil).Once()
	ls.On("Get", mock.Anything, testLease).Return(&store.Lease{Name: testLease, HolderID: "holder-1", Epoch: 4}, nil)
	ls.On("Renew", mock.Anything, testLease, "holder-1", 50*time.Millisecond).Return(nil)
	ls.On("Release", mock.Anything, testLease, "holder-1").Return(nil)

	promoteCh := make(chan struct{}, 1)
	em := NewElectionManager(ls, "holder-1", testLease, 50*time.Millisecond,
		func() { promoteCh <- struct{}{} },
		func() { t.Error("onDemote should not be called") },
	)

	ctx := context.Background()
	em.Start(ctx)

	select {
	case <-promoteCh:
	case <-time.After(time.Second):
		t.Fatal("onPromote not called")
	}
	assert.True(t, em.IsLeader())
	assert.Equal(t, int64(4), em.Epoch())

	em.Stop(ctx)
	assert.False(t, em.IsLeader())
	ls.AssertCalled(t, "Release", mock.Anything, testLease, "holder-1")
}

func TestElectionManager_Demotion(t *testing.T) {
	ls := &MockLeaseStore{}
	ls.On("Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Once()
	ls.On("Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	ls.On("Get", mock.Anything, mock.Anything).Return(&store.Lease{Epoch: 1}, nil)
	ls.On("Renew", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("lease stolen"))

	promoteCh := make(chan struct{}, 1)
	demoteCh := make(chan struct{}, 1)
	em := NewElectionManager(ls, "holder-1", testLease, 40*time.Millisecond,
		func() { promoteCh <- struct{}{} },
		func() { demoteCh <- struct{}{} },
	)

	ctx := context.Background()
	em.Start(ctx)
	defer em.Stop(ctx)

	select {
	case <-promoteCh:
	case <-time.After(time.Second):
		t.Fatal("onPromote not called")
	}
	select {
	case <-demoteCh:
	case <-time.After(time.Second):
		t.Fatal("onDemote not called")
	}
	assert.Eventually(t, func() bool { return !em.IsLeader() }, time.Second, 10*time.Millisecond)
}

func TestElectionManager_AcquireError(t *testing.T) {
	ls := &MockLeaseStore{}
	ls.On("Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("db down"))

	em := NewElectionManager(ls, "holder-1", testLease, 40*time.Millisecond, nil, nil)
	ctx := context.Background()
	em.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	em.Stop(ctx)

	assert.False(t, em.IsLeader())
	ls.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

type fakeLoop struct {
	mu      sync.Mutex
	starts  int
	stops   int
	startFn func() error
}

func (l *fakeLoop) Start(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts++
	if l.startFn != nil {
		return l.startFn()
	}
	return nil
}

func (l *fakeLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stops++
}

func (l *fakeLoop) KnowledgeBaseID() string { return "http://example.org/kb/fm" }

type memJournal struct {
	mu     sync.Mutex
	events []*store.Event
}

func (j *memJournal) AppendEvent(_ context.Context, evt *store.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, evt)
	return nil
}

func (j *memJournal) ReadRecentEvents(_ context.Context, limit int) ([]*store.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.events, nil
}

func TestGate(t *testing.T) {
	loop := &fakeLoop{}
	j := &memJournal{}
	promote, demote := Gate(context.Background(), loop, j, nil)

	promote()
	demote()

	assert.Equal(t, 1, loop.starts)
	assert.Equal(t, 1, loop.stops)
	require.Len(t, j.events, 2)
	assert.Equal(t, store.EventTypeLeaderPromoted, j.events[0].EventType)
	assert.Equal(t, store.EventTypeLeaderDemoted, j.events[1].EventType)
	assert.Equal(t, "http://example.org/kb/fm", j.events[0].Dimensions.KnowledgeBaseID)
}

func TestGate_StartError(t *testing.T) {
	loop := &fakeLoop{startFn: func() error { return errors.New("already started") }}
	promote, _ := Gate(context.Background(), loop, nil, nil)
	promote()
	assert.Equal(t, 1, loop.starts)
}

func TestLeaseName(t *testing.T) {
	assert.Equal(t, testLease, LeaseName("http://example.org/kb/fm"))
	assert.NotEqual(t, NewHolderID(), NewHolderID())
}
