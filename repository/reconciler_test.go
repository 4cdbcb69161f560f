package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-offline-sync/model"
)

func (f *fixture) reconciler(t *testing.T) *Reconciler {
	t.Helper()
	r, err := NewReconciler(f.deps)
	require.NoError(t, err)
	return r
}

func TestReconciler_DrainReplaysQueuedAdd(t *testing.T) {
	f := newFixture(false)
	c := f.command(t, model.EntityTransaction)
	ctx := context.Background()

	item, err := c.Add(ctx, model.Item{Amount: 12.50, Category: "dining"})
	require.NoError(t, err)
	require.True(t, item.IsLocal())

	f.oracle.SetOnline(true)
	r := f.reconciler(t)
	stats, err := r.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, DrainStats{Replayed: 1, Succeeded: 1}, stats)
	require.Len(t, f.gateway.Created(), 1)

	// The replayed payload had its temp id stripped: the fake assigned srv_1.
	assert.Equal(t, "srv_1", f.gateway.Created()[0].ID)

	// Exactly one local record, under the server id; queue empty.
	assert.Equal(t, 1, f.store.RecordCount(model.EntityTransaction))
	_, found, err := f.store.GetRecord(ctx, model.EntityTransaction, "srv_1")
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = f.store.GetRecord(ctx, model.EntityTransaction, item.ID)
	require.NoError(t, err)
	assert.False(t, found, "the temp-id record is gone")
	assert.Equal(t, 0, f.store.QueueLen())
}

func TestReconciler_FIFOSeesReconciledID(t *testing.T) {
	f := newFixture(false)
	c := f.command(t, model.EntityTransaction)
	ctx := context.Background()

	item, err := c.Add(ctx, model.Item{Amount: 10, Category: "dining"})
	require.NoError(t, err)
	item.Amount = 15
	_, err = c.Update(ctx, item)
	require.NoError(t, err)
	require.Equal(t, 2, f.store.QueueLen())

	f.oracle.SetOnline(true)
	r := f.reconciler(t)
	stats, err := r.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, DrainStats{Replayed: 2, Succeeded: 2}, stats)
	require.Len(t, f.gateway.Updated(), 1)
	assert.Equal(t, "srv_1", f.gateway.Updated()[0].ID, "the update replays under the server id, not the temp id")
	assert.Equal(t, 15.0, f.gateway.Updated()[0].Amount)
	assert.Equal(t, 0, f.store.QueueLen())
}

func TestReconciler_DrainDoesNotResurrectDeletedRecord(t *testing.T) {
	f := newFixture(false)
	c := f.command(t, model.EntityTransaction)
	ctx := context.Background()

	item, err := c.Add(ctx, model.Item{Amount: 12.5, Category: "dining"})
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, item.ID))
	require.Equal(t, 0, f.store.RecordCount(model.EntityTransaction))
	require.Equal(t, 2, f.store.QueueLen())

	f.oracle.SetOnline(true)
	r := f.reconciler(t)
	stats, err := r.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, DrainStats{Replayed: 2, Succeeded: 2}, stats)
	require.Len(t, f.gateway.Deleted(), 1)
	assert.Equal(t, "srv_1", f.gateway.Deleted()[0], "the delete replays under the server id")

	// The add replay must not bring the deleted record back under srv_1.
	assert.Equal(t, 0, f.store.RecordCount(model.EntityTransaction))
	items, err := f.store.GetRecordsByOwnerAndPeriod(ctx, "u1", model.EntityTransaction, model.PeriodMonthly)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, f.store.QueueLen())
}

func TestReconciler_DeleteReplayDropsPersistedServerCopy(t *testing.T) {
	f := newFixture(false)
	c := f.command(t, model.EntityTransaction)
	ctx := context.Background()

	require.NoError(t, f.store.SaveRecord(ctx, model.EntityTransaction, model.Item{
		ID: "srv_9", OwnerID: "u1", Amount: 3, OccurredAt: testNow,
	}))
	require.NoError(t, c.Delete(ctx, "srv_9"))

	// A read persisted the server record again while the delete sat queued.
	require.NoError(t, f.store.SaveRecord(ctx, model.EntityTransaction, model.Item{
		ID: "srv_9", OwnerID: "u1", Amount: 3, OccurredAt: testNow,
	}))

	f.oracle.SetOnline(true)
	r := f.reconciler(t)
	stats, err := r.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 0, f.store.RecordCount(model.EntityTransaction), "the drained delete removes the local copy too")
}

func TestReconciler_FailureStaysQueued(t *testing.T) {
	f := newFixture(false)
	c := f.command(t, model.EntityTransaction)
	ctx := context.Background()

	_, err := c.Add(ctx, model.Item{Amount: 5, Category: "x"})
	require.NoError(t, err)

	f.oracle.SetOnline(true)
	f.gateway.CreateFn = func(ctx context.Context, entity model.EntityType, item model.Item) (model.Item, error) {
		return model.Item{}, errors.New("still unreachable")
	}
	r := f.reconciler(t)

	stats, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainStats{Replayed: 1, Failed: 1}, stats)
	require.Equal(t, 1, f.store.QueueLen(), "a failed replay is retried on the next drain, never dropped")

	pending, _ := f.store.PendingSync(ctx)
	assert.NotNil(t, pending[0].AttemptedAt, "the failed attempt is stamped")

	// Next drain with a healthy gateway succeeds.
	f.gateway.CreateFn = nil
	stats, err = r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainStats{Replayed: 1, Succeeded: 1}, stats)
	assert.Equal(t, 0, f.store.QueueLen())
}

func TestReconciler_DrainTwiceDoesNotDuplicate(t *testing.T) {
	f := newFixture(false)
	c := f.command(t, model.EntityTransaction)
	ctx := context.Background()

	_, err := c.Add(ctx, model.Item{Amount: 5, Category: "x"})
	require.NoError(t, err)

	f.oracle.SetOnline(true)
	r := f.reconciler(t)

	_, err = r.Drain(ctx)
	require.NoError(t, err)
	stats, err := r.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, DrainStats{}, stats, "a synced entry is never replayed again")
	assert.Len(t, f.gateway.Created(), 1)
	assert.Equal(t, 1, f.store.RecordCount(model.EntityTransaction))
}

func TestReconciler_InvalidatesOnceAndRefreshesOnce(t *testing.T) {
	f := newFixture(false)
	c := f.command(t, model.EntityTransaction)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Add(ctx, model.Item{Amount: float64(i + 1), Category: "x"})
		require.NoError(t, err)
	}

	month := model.MonthKey(testNow)
	for _, key := range InvalidationGroup(model.EntityTransaction, month) {
		f.cache.Set(key, "stale")
	}

	f.oracle.SetOnline(true)
	r := f.reconciler(t)
	refreshes := 0
	r.SetAnalysisRefresher(func(ctx context.Context) { refreshes++ })

	stats, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 1, refreshes, "one aggregate refresh per drain, not one per item")

	for _, key := range InvalidationGroup(model.EntityTransaction, month) {
		_, ok := f.cache.Get(key, 0)
		assert.False(t, ok, "key %s should be invalidated after the drain", key)
	}
}

func TestReconciler_NothingSucceededSkipsInvalidation(t *testing.T) {
	f := newFixture(false)
	c := f.command(t, model.EntityTransaction)
	ctx := context.Background()

	_, err := c.Add(ctx, model.Item{Amount: 5})
	require.NoError(t, err)

	key := listKey(model.EntityTransaction, model.PeriodMonthly)
	f.cache.Set(key, "kept")
	f.oracle.SetOnline(true)
	f.gateway.CreateFn = func(ctx context.Context, entity model.EntityType, item model.Item) (model.Item, error) {
		return model.Item{}, errors.New("down")
	}
	r := f.reconciler(t)
	refreshes := 0
	r.SetAnalysisRefresher(func(ctx context.Context) { refreshes++ })

	_, err = r.Drain(ctx)
	require.NoError(t, err)

	_, ok := f.cache.Get(key, 0)
	assert.True(t, ok, "an all-failed drain leaves caches alone")
	assert.Equal(t, 0, refreshes)
}

func TestReconciler_RunDrainsPendingWhenStartedOnline(t *testing.T) {
	f := newFixture(false)
	c := f.command(t, model.EntityTransaction)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := c.Add(ctx, model.Item{Amount: 7, Category: "dining"})
	require.NoError(t, err)
	require.Equal(t, 1, f.store.QueueLen())

	// Connectivity returns before Run starts; no transition will arrive on
	// the subscription, the queue must drain anyway.
	f.oracle.SetOnline(true)

	r := f.reconciler(t)
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return f.store.QueueLen() == 0
	}, time.Second, 5*time.Millisecond, "starting online should drain the existing queue")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

func TestReconciler_RunDrainsOnReconnect(t *testing.T) {
	f := newFixture(false)
	c := f.command(t, model.EntityTransaction)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := c.Add(ctx, model.Item{Amount: 12.50, Category: "dining"})
	require.NoError(t, err)
	require.Equal(t, 1, f.store.QueueLen())

	r := f.reconciler(t)
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// Give Run a moment to subscribe before flipping connectivity.
	time.Sleep(10 * time.Millisecond)
	f.oracle.SetOnline(true)

	require.Eventually(t, func() bool {
		return f.store.QueueLen() == 0
	}, time.Second, 5*time.Millisecond, "reconnect should trigger a drain")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
