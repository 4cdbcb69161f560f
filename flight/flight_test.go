package flight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_SingleOwnerPerKey(t *testing.T) {
	g := NewGroup()

	f1, owner1 := g.Register("k")
	f2, owner2 := g.Register("k")

	assert.True(t, owner1)
	assert.False(t, owner2)
	assert.Same(t, f1, f2, "waiters share the owner's flight")
	assert.True(t, g.InFlight("k"))

	require.NoError(t, g.Complete("k", "v"))
	assert.False(t, g.InFlight("k"))

	_, owner3 := g.Register("k")
	assert.True(t, owner3, "a completed key accepts a new owner")
}

func TestGroup_WaitersShareResult(t *testing.T) {
	g := NewGroup()
	f, owner := g.Register("k")
	require.True(t, owner)

	const waiters = 5
	results := make(chan any, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.Wait(context.Background())
			require.NoError(t, err)
			results <- v
		}()
	}

	g.Complete("k", "shared")
	wg.Wait()
	close(results)

	for v := range results {
		assert.Equal(t, "shared", v)
	}
}

func TestGroup_CompleteError(t *testing.T) {
	g := NewGroup()
	f, _ := g.Register("k")

	wantErr := errors.New("remote exploded")
	require.NoError(t, g.CompleteError("k", wantErr))

	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, g.InFlight("k"))
}

func TestGroup_CompleteUnknownKey(t *testing.T) {
	g := NewGroup()
	assert.ErrorIs(t, g.Complete("nope", 1), ErrNotRegistered)
	assert.ErrorIs(t, g.CompleteError("nope", errors.New("x")), ErrNotRegistered)
}

func TestFlight_WaitHonorsDeadline(t *testing.T) {
	g := NewGroup()
	f, _ := g.Register("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The marker survives until someone force-clears it.
	assert.True(t, g.InFlight("stuck"))
	g.Forget("stuck")
	assert.False(t, g.InFlight("stuck"))
}

func TestGroup_Do_CoalescesConcurrentCalls(t *testing.T) {
	g := NewGroup()

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "result", nil
	}

	const n = 8
	var wg sync.WaitGroup
	var shared atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, wasShared, err := g.Do(context.Background(), "k", fn)
			require.NoError(t, err)
			assert.Equal(t, "result", v)
			if wasShared {
				shared.Add(1)
			}
		}()
	}

	// Let every goroutine reach Register before the owner finishes.
	for g.InFlight("k") == false {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "exactly one caller does the work")
	assert.Equal(t, int32(n-1), shared.Load())
}

func TestGroup_Do_ErrorSharedByWaiters(t *testing.T) {
	g := NewGroup()
	wantErr := errors.New("fetch failed")

	_, _, err := g.Do(context.Background(), "k", func(ctx context.Context) (any, error) {
		return nil, wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.False(t, g.InFlight("k"), "a failed flight is removed, not stuck")
}

func TestGroup_IndependentKeys(t *testing.T) {
	g := NewGroup()

	_, ownerA := g.Register("a")
	_, ownerB := g.Register("b")

	assert.True(t, ownerA)
	assert.True(t, ownerB, "flights on different keys never coalesce")
}
