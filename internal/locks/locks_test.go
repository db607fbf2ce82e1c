package locks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpusd/internal/db"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewManager(database)
}

func TestAcquire_FirstComerWins(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-1", time.Minute))
	assert.ErrorIs(t, m.Acquire(ctx, "snapshot", "worker-2", time.Minute), ErrNotAcquired)

	st, err := m.Status(ctx, "snapshot")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", st.Holder)
	assert.True(t, st.Held(time.Now()))
}

func TestAcquire_IndependentJobs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-1", time.Minute))
	require.NoError(t, m.Acquire(ctx, "sweep", "worker-2", time.Minute))
}

func TestAcquire_ExactlyOneWinnerUnderContention(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	const workers = 16
	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			err := m.Acquire(ctx, "snapshot", fmt.Sprintf("worker-%d", id), time.Minute)
			if err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrNotAcquired)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load(), "exactly one worker may hold the lock")
}

func TestAcquire_ExpiredLeaseIsReassignable(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-1", time.Minute))

	// Still within the lease: contender is rejected.
	m.now = func() time.Time { return base.Add(30 * time.Second) }
	assert.ErrorIs(t, m.Acquire(ctx, "snapshot", "worker-2", time.Minute), ErrNotAcquired)

	// Past expiry: the lock is up for grabs again.
	m.now = func() time.Time { return base.Add(61 * time.Second) }
	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-2", time.Minute))

	st, err := m.Status(ctx, "snapshot")
	require.NoError(t, err)
	assert.Equal(t, "worker-2", st.Holder)
}

func TestRenew_ExtendsUnexpiredLease(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-1", time.Minute))

	m.now = func() time.Time { return base.Add(45 * time.Second) }
	require.NoError(t, m.Renew(ctx, "snapshot", "worker-1", time.Minute))

	// Without the renewal the lease would have lapsed by now.
	m.now = func() time.Time { return base.Add(90 * time.Second) }
	assert.ErrorIs(t, m.Acquire(ctx, "snapshot", "worker-2", time.Minute), ErrNotAcquired)
}

func TestRenew_FailsAfterExpiry(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-1", time.Minute))

	// Expired but not yet reassigned: the old holder still may not renew.
	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.ErrorIs(t, m.Renew(ctx, "snapshot", "worker-1", time.Minute), ErrNotHeld)
}

func TestRenew_FailsForWrongHolder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-1", time.Minute))
	assert.ErrorIs(t, m.Renew(ctx, "snapshot", "worker-2", time.Minute), ErrNotHeld)
}

func TestRelease_AllowsSuccessor(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-1", time.Minute))
	require.NoError(t, m.Release(ctx, "snapshot", "worker-1"))
	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-2", time.Minute))
}

func TestRelease_OnlyByHolder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-1", time.Minute))
	assert.ErrorIs(t, m.Release(ctx, "snapshot", "worker-2"), ErrNotHeld)

	// A stale holder whose lease was reassigned cannot release the new one.
	base := time.Now()
	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-3", time.Minute))
	assert.ErrorIs(t, m.Release(ctx, "snapshot", "worker-1"), ErrNotHeld)

	st, err := m.Status(ctx, "snapshot")
	require.NoError(t, err)
	assert.Equal(t, "worker-3", st.Holder)
}

func TestStatus_UnknownJob(t *testing.T) {
	m := newTestManager(t)

	st, err := m.Status(context.Background(), "never-run")
	require.NoError(t, err)
	assert.Empty(t, st.Holder)
	assert.False(t, st.Held(time.Now()))
}

func TestList_ReportsAllJobs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "snapshot", "worker-1", time.Minute))
	require.NoError(t, m.Acquire(ctx, "sweep", "worker-1", time.Minute))
	require.NoError(t, m.Release(ctx, "sweep", "worker-1"))

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "snapshot", list[0].Job)
	assert.True(t, list[0].Held(time.Now()))
	assert.Equal(t, "sweep", list[1].Job)
	assert.False(t, list[1].Held(time.Now()))
}
