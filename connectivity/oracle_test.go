package connectivity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_OnlineState(t *testing.T) {
	m := NewManual(false)
	assert.False(t, m.Online(context.Background()))

	m.SetOnline(true)
	assert.True(t, m.Online(context.Background()))
}

func TestManual_PublishesTransitionsOnly(t *testing.T) {
	m := NewManual(false)
	ch := m.Changes()

	m.SetOnline(false) // repeat, not a transition
	m.SetOnline(true)
	m.SetOnline(true) // repeat
	m.SetOnline(false)

	select {
	case v := <-ch:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("expected an online transition")
	}
	select {
	case v := <-ch:
		assert.False(t, v)
	case <-time.After(time.Second):
		t.Fatal("expected an offline transition")
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra publication: %v", v)
	default:
	}
}

func TestManual_EverySubscriberSeesTransitions(t *testing.T) {
	m := NewManual(false)
	a := m.Changes()
	b := m.Changes()

	m.SetOnline(true)

	assert.True(t, <-a)
	assert.True(t, <-b)
}

func TestManual_Close(t *testing.T) {
	m := NewManual(false)
	ch := m.Changes()

	m.Close()

	_, ok := <-ch
	assert.False(t, ok, "streams close on Close")
	assert.False(t, m.Online(context.Background()))

	// After close, subscriptions come back closed and sets are no-ops.
	_, ok = <-m.Changes()
	assert.False(t, ok)
	m.SetOnline(true)
	assert.False(t, m.Online(context.Background()))
}

func TestProbe_PublishesCheckResults(t *testing.T) {
	results := make(chan bool, 4)
	results <- true

	p := NewProbe(ProbeConfig{
		Interval: 10 * time.Millisecond,
		Check: func(ctx context.Context) bool {
			select {
			case v := <-results:
				return v
			default:
				return true
			}
		},
	})
	ch := p.Changes()

	p.Start(context.Background())
	defer p.Stop()

	select {
	case v := <-ch:
		require.True(t, v, "first check result should publish an online transition")
	case <-time.After(time.Second):
		t.Fatal("probe never published")
	}
	assert.True(t, p.Online(context.Background()))
}
